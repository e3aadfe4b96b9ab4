package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckpoint_FreshWhenMissing(t *testing.T) {
	cp := LoadCheckpoint(filepath.Join(t.TempDir(), "cp.json"))

	if cp.Resumed() {
		t.Error("Resumed() = true for missing file, want false")
	}
	if cp.Processed != 0 || len(cp.ProcessedIDs) != 0 {
		t.Errorf("fresh checkpoint not empty: %+v", cp)
	}
}

func TestCheckpoint_ResumeSkipsProcessed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")

	cp := LoadCheckpoint(path)
	cp.MarkSuccess("OP02/en/op02-001")
	cp.MarkSuccess("OP02/en/op02-002")
	cp.MarkNotFound("OP02/en/op02-003")
	if err := cp.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	resumed := LoadCheckpoint(path)
	if !resumed.Resumed() {
		t.Fatal("Resumed() = false after reload, want true")
	}
	if resumed.Processed != 3 {
		t.Errorf("Processed = %d, want 3", resumed.Processed)
	}
	if resumed.Success != 2 || resumed.NotFound != 1 {
		t.Errorf("Success/NotFound = %d/%d, want 2/1", resumed.Success, resumed.NotFound)
	}
	for _, key := range []string{"OP02/en/op02-001", "OP02/en/op02-002", "OP02/en/op02-003"} {
		if !resumed.IsProcessed(key) {
			t.Errorf("IsProcessed(%q) = false after resume, want true", key)
		}
	}
	if resumed.IsProcessed("OP02/en/op02-004") {
		t.Error("IsProcessed for unseen key = true, want false")
	}
}

func TestCheckpoint_ResumeAppendsRatherThanReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")

	first := LoadCheckpoint(path)
	first.MarkSuccess("a")
	first.MarkSuccess("b")
	if err := first.Flush(); err != nil {
		t.Fatal(err)
	}

	second := LoadCheckpoint(path)
	second.MarkSuccess("c")
	if err := second.Flush(); err != nil {
		t.Fatal(err)
	}

	third := LoadCheckpoint(path)
	if third.Processed != 3 {
		t.Errorf("Processed = %d after two sessions, want 3", third.Processed)
	}
	want := []string{"a", "b", "c"}
	if len(third.ProcessedIDs) != len(want) {
		t.Fatalf("ProcessedIDs = %v, want %v", third.ProcessedIDs, want)
	}
	for i, id := range want {
		if third.ProcessedIDs[i] != id {
			t.Errorf("ProcessedIDs[%d] = %q, want %q", i, third.ProcessedIDs[i], id)
		}
	}
}

func TestCheckpoint_ErrorsAreRetriedNextRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")

	cp := LoadCheckpoint(path)
	cp.MarkSuccess("ok")
	cp.MarkError()
	if err := cp.Flush(); err != nil {
		t.Fatal(err)
	}

	resumed := LoadCheckpoint(path)
	if resumed.Errors != 1 {
		t.Errorf("Errors = %d, want 1", resumed.Errors)
	}
	// The failed item never entered the processed set, so a re-run
	// picks it up again
	if resumed.Processed != 1 {
		t.Errorf("Processed = %d, want 1 (errors excluded)", resumed.Processed)
	}
}

func TestCheckpoint_MarkIsIdempotent(t *testing.T) {
	cp := LoadCheckpoint(filepath.Join(t.TempDir(), "cp.json"))

	cp.MarkSuccess("dup")
	cp.MarkSuccess("dup")

	if cp.Processed != 1 {
		t.Errorf("Processed = %d after duplicate mark, want 1", cp.Processed)
	}
	if len(cp.ProcessedIDs) != 1 {
		t.Errorf("ProcessedIDs = %v, want one entry", cp.ProcessedIDs)
	}
	// Success still counts both calls; the dedupe guards identity, not
	// tallies
	if cp.Success != 2 {
		t.Errorf("Success = %d, want 2", cp.Success)
	}
}

func TestCheckpoint_PeriodicFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	cp := LoadCheckpoint(path)

	for i := 0; i < checkpointFlushEvery-1; i++ {
		cp.MarkSuccess(string(rune('a' + i)))
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("checkpoint written before %d marks", checkpointFlushEvery)
	}

	cp.MarkSuccess("z")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("checkpoint not written after %d marks: %v", checkpointFlushEvery, err)
	}
}

func TestCheckpoint_FinishDeletesCleanRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")

	cp := LoadCheckpoint(path)
	cp.MarkSuccess("a")
	if err := cp.Flush(); err != nil {
		t.Fatal(err)
	}

	deleted, err := cp.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if !deleted {
		t.Error("Finish() deleted = false for clean run, want true")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("checkpoint file still present after clean Finish")
	}
}

func TestCheckpoint_FinishKeepsFileOnErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")

	cp := LoadCheckpoint(path)
	cp.MarkSuccess("a")
	cp.MarkError()

	deleted, err := cp.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if deleted {
		t.Error("Finish() deleted = true despite errors, want false")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("checkpoint file missing after errored Finish: %v", err)
	}
}

func TestCheckpoint_FinishDeletesAfterCleanResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")

	first := LoadCheckpoint(path)
	first.MarkSuccess("a")
	first.MarkError()
	if _, err := first.Finish(); err != nil {
		t.Fatal(err)
	}

	// the resumed run retries the failed item and succeeds
	second := LoadCheckpoint(path)
	second.MarkSuccess("b")

	deleted, err := second.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if !deleted {
		t.Error("Finish() deleted = false after clean resume, want true (inherited errors were retried)")
	}
}

func TestCheckpoint_FileShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")

	cp := LoadCheckpoint(path)
	cp.MarkSuccess("OP02/en/op02-001")
	if err := cp.Flush(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}

	for _, field := range []string{"startedAt", "lastUpdated", "processed", "success", "errors", "notFound", "processedIds"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("checkpoint file missing field %q", field)
		}
	}
}

func TestCheckpoint_CorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	cp := LoadCheckpoint(path)
	if cp.Resumed() {
		t.Error("Resumed() = true for corrupt file, want false")
	}
	if cp.Processed != 0 {
		t.Errorf("Processed = %d for corrupt file, want 0", cp.Processed)
	}
}
