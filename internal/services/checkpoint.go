package services

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/metrics"
)

// checkpointFlushEvery trades a little redo-on-crash work for fewer
// disk writes: the file is persisted once per this many marked items,
// plus at Finish.
const checkpointFlushEvery = 5

// Checkpoint is the durable progress record of one ingestion run. It is
// read at startup to skip completed items, written incrementally while
// running, and deleted on clean completion so the next invocation
// starts fresh. A run that ends with errors leaves it in place for
// resume.
type Checkpoint struct {
	StartedAt    time.Time `json:"startedAt"`
	LastUpdated  time.Time `json:"lastUpdated"`
	Processed    int       `json:"processed"`
	Success      int       `json:"success"`
	Errors       int       `json:"errors"`
	NotFound     int       `json:"notFound"`
	ProcessedIDs []string  `json:"processedIds"`

	path       string
	seen       map[string]bool
	sinceFlush int
	resumed    bool
	runErrors  int // errors from this run only; Errors carries resumed history
}

// LoadCheckpoint opens the checkpoint at path, resuming from it when it
// exists. A missing file means a fresh run; an unreadable one is
// reported and treated as fresh rather than blocking ingestion.
func LoadCheckpoint(path string) *Checkpoint {
	cp := &Checkpoint{
		StartedAt: time.Now(),
		path:      path,
		seen:      make(map[string]bool),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Checkpoint] failed to read %s: %v (starting fresh)", path, err)
		}
		return cp
	}

	if err := json.Unmarshal(data, cp); err != nil {
		log.Printf("[Checkpoint] failed to parse %s: %v (starting fresh)", path, err)
		return &Checkpoint{
			StartedAt: time.Now(),
			path:      path,
			seen:      make(map[string]bool),
		}
	}

	for _, id := range cp.ProcessedIDs {
		cp.seen[id] = true
	}
	cp.resumed = true
	log.Printf("[Checkpoint] resuming from %s: %d processed (%d ok, %d errors, %d not found)",
		path, cp.Processed, cp.Success, cp.Errors, cp.NotFound)
	return cp
}

// Resumed reports whether this run picked up an existing checkpoint.
func (c *Checkpoint) Resumed() bool {
	return c.resumed
}

// IsProcessed reports whether a previous run already completed this
// item.
func (c *Checkpoint) IsProcessed(key string) bool {
	return c.seen[key]
}

// MarkSuccess records a completed item. The key joins the processed set
// so re-runs skip it.
func (c *Checkpoint) MarkSuccess(key string) {
	c.mark(key)
	c.Success++
	c.maybeFlush()
}

// MarkNotFound records an item the source no longer has. It joins the
// processed set: a dropped page will not come back next run.
func (c *Checkpoint) MarkNotFound(key string) {
	c.mark(key)
	c.NotFound++
	c.maybeFlush()
}

// MarkError counts a failed item WITHOUT adding it to the processed
// set, so the next run retries it.
func (c *Checkpoint) MarkError() {
	c.Errors++
	c.runErrors++
	c.maybeFlush()
}

func (c *Checkpoint) mark(key string) {
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.ProcessedIDs = append(c.ProcessedIDs, key)
	c.Processed++
}

func (c *Checkpoint) maybeFlush() {
	c.sinceFlush++
	if c.sinceFlush >= checkpointFlushEvery {
		if err := c.Flush(); err != nil {
			log.Printf("[Checkpoint] flush failed: %v", err)
		}
	}
}

// Flush persists the checkpoint to disk.
func (c *Checkpoint) Flush() error {
	c.LastUpdated = time.Now()
	c.sinceFlush = 0

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	metrics.CheckpointFlushesTotal.Inc()
	return nil
}

// Finish closes out the run: when this run produced no errors the file
// is deleted so the next invocation starts fresh; otherwise it is
// flushed and left in place for resume. Errors inherited from a resumed
// file do not keep it alive, since their items were retried this run.
// Returns whether the file was removed.
func (c *Checkpoint) Finish() (bool, error) {
	if c.runErrors == 0 {
		if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("failed to remove checkpoint: %w", err)
		}
		return true, nil
	}
	if err := c.Flush(); err != nil {
		return false, err
	}
	return false, nil
}
