package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/models"
)

func TestCardImagePath(t *testing.T) {
	tests := []struct {
		seriesCode string
		language   string
		number     string
		ext        string
		want       string
	}{
		{"OP02", "en", "4", "jpg", "OP02/en/004.jpg"},
		{"OP02", "en", "004", "jpg", "OP02/en/004.jpg"},
		{"OP02", "en", "004-ALT", "png", "OP02/en/004-ALT.png"},
		{"OP02", "fr", "45-ALT", "jpg", "OP02/fr/045-ALT.jpg"},
		{"EB01", "jp", "061-SP", "png", "EB01/jp/061-SP.png"},
		{"P", "fr", "1/P3", "jpg", "P/fr/1/P3.jpg"},
	}
	for _, tt := range tests {
		got := CardImagePath(tt.seriesCode, tt.language, tt.number, tt.ext)
		if got != tt.want {
			t.Errorf("CardImagePath(%q, %q, %q, %q) = %q, want %q",
				tt.seriesCode, tt.language, tt.number, tt.ext, got, tt.want)
		}
	}
}

func TestSeriesBannerPath(t *testing.T) {
	if got := SeriesBannerPath("OP02", "png"); got != "series/OP02.png" {
		t.Errorf("SeriesBannerPath() = %q, want series/OP02.png", got)
	}
}

func TestFileObjectStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileObjectStore(t.TempDir(), "/images/")
	if err != nil {
		t.Fatalf("NewFileObjectStore() error = %v", err)
	}

	t.Run("put then exists", func(t *testing.T) {
		if err := store.Put(ctx, "onepiece", "OP02/en/004.jpg", []byte("artwork")); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		exists, err := store.Exists(ctx, "onepiece", "OP02/en/004.jpg")
		if err != nil || !exists {
			t.Errorf("Exists() = %v, %v, want true", exists, err)
		}
		exists, err = store.Exists(ctx, "onepiece", "OP02/en/999.jpg")
		if err != nil || exists {
			t.Errorf("Exists() = %v, %v for missing object, want false", exists, err)
		}
	})

	t.Run("put leaves no temp files behind", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Join(store.baseDir, "onepiece", "OP02", "en"))
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 || entries[0].Name() != "004.jpg" {
			t.Errorf("object directory = %v, want only 004.jpg", entries)
		}
	})

	t.Run("copy duplicates within the bucket", func(t *testing.T) {
		if err := store.Copy(ctx, "onepiece", "OP02/en/004.jpg", "OP02/fr/004.jpg"); err != nil {
			t.Fatalf("Copy() error = %v", err)
		}
		data, err := os.ReadFile(filepath.Join(store.baseDir, "onepiece", "OP02", "fr", "004.jpg"))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "artwork" {
			t.Errorf("copied content = %q, want %q", data, "artwork")
		}
	})

	t.Run("public url", func(t *testing.T) {
		got := store.PublicURL("onepiece", "OP02/en/004.jpg")
		if got != "/images/onepiece/OP02/en/004.jpg" {
			t.Errorf("PublicURL() = %q", got)
		}
	})

	t.Run("rejects empty data", func(t *testing.T) {
		if err := store.Put(ctx, "onepiece", "OP02/en/005.jpg", nil); err == nil {
			t.Error("Put() error = nil for empty data, want error")
		}
	})

	t.Run("rejects path escaping the root", func(t *testing.T) {
		if err := store.Put(ctx, "onepiece", "../../escape.jpg", []byte("x")); err == nil {
			t.Error("Put() error = nil for escaping path, want error")
		}
	})
}

// stubSiblingLookup stands in for the catalog's cross-language image
// lookup and counts how often it is asked.
type stubSiblingLookup struct {
	url   string
	lang  models.Language
	calls int
}

func (s *stubSiblingLookup) SiblingImageURL(_ context.Context, _ uint, _ string, _ models.Language) (string, models.Language, error) {
	s.calls++
	return s.url, s.lang, nil
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, string, []byte) error {
	return errors.New("disk full")
}
func (failingStore) Copy(context.Context, string, string, string) error {
	return errors.New("disk full")
}
func (failingStore) Exists(context.Context, string, string) (bool, error) { return false, nil }
func (failingStore) PublicURL(bucket, objectPath string) string {
	return "/" + bucket + "/" + objectPath
}

func TestImagePipeline_DownloadsWhenNoSibling(t *testing.T) {
	artwork := testPNG(t, 240, 336)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(artwork)
	}))
	defer server.Close()

	store, err := NewFileObjectStore(t.TempDir(), "/images")
	if err != nil {
		t.Fatal(err)
	}
	pipeline := NewImagePipeline(store, newTestFetchClient(), &stubSiblingLookup{}, false)

	url, mode, err := pipeline.EnsureCardImage(context.Background(), ImageTask{
		TCG:        "onepiece",
		SeriesID:   7,
		SeriesCode: "OP02",
		Language:   "en",
		Number:     "004",
		SourceURL:  server.URL + "/cdn/op02-004.png",
	})
	if err != nil {
		t.Fatalf("EnsureCardImage() error = %v", err)
	}
	if mode != ImageModeDownloaded {
		t.Errorf("mode = %q, want %q", mode, ImageModeDownloaded)
	}
	if url != "/images/onepiece/OP02/en/004.jpg" {
		t.Errorf("url = %q, want the deterministic jpg path", url)
	}
	exists, err := store.Exists(context.Background(), "onepiece", "OP02/en/004.jpg")
	if err != nil || !exists {
		t.Errorf("stored object missing: exists=%v err=%v", exists, err)
	}
}

func TestImagePipeline_CopiesFromSibling(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileObjectStore(t.TempDir(), "/images")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "onepiece", "OP02/en/004.jpg", []byte("shared artwork")); err != nil {
		t.Fatal(err)
	}

	lookup := &stubSiblingLookup{url: "/images/onepiece/OP02/en/004.jpg", lang: models.LangEnglish}
	pipeline := NewImagePipeline(store, newTestFetchClient(), lookup, false)

	url, mode, err := pipeline.EnsureCardImage(ctx, ImageTask{
		TCG:        "onepiece",
		SeriesID:   7,
		SeriesCode: "OP02",
		Language:   "fr",
		Number:     "004",
		// never dialed: the sibling copy short-circuits the download
		SourceURL: "http://127.0.0.1:0/unreachable",
	})
	if err != nil {
		t.Fatalf("EnsureCardImage() error = %v", err)
	}
	if mode != ImageModeCopied {
		t.Errorf("mode = %q, want %q", mode, ImageModeCopied)
	}
	if url != "/images/onepiece/OP02/fr/004.jpg" {
		t.Errorf("url = %q", url)
	}

	data, err := os.ReadFile(filepath.Join(store.baseDir, "onepiece", "OP02", "fr", "004.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "shared artwork" {
		t.Errorf("copied content = %q", data)
	}
}

func TestImagePipeline_SiblingLookupCached(t *testing.T) {
	ctx := context.Background()
	artwork := testPNG(t, 240, 336)
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(artwork)
	}))
	defer server.Close()

	store, err := NewFileObjectStore(t.TempDir(), "/images")
	if err != nil {
		t.Fatal(err)
	}
	lookup := &stubSiblingLookup{}
	pipeline := NewImagePipeline(store, newTestFetchClient(), lookup, false)

	// repeated asks for a card with no stored sibling hit the catalog once
	task := ImageTask{TCG: "onepiece", SeriesID: 7, SeriesCode: "OP02", Language: "en", Number: "004"}
	for i := 0; i < 3; i++ {
		if _, mode, err := pipeline.EnsureCardImage(ctx, task); err != nil || mode != ImageModeSkipped {
			t.Fatalf("EnsureCardImage() = %q, %v, want skipped with no source", mode, err)
		}
	}
	if lookup.calls != 1 {
		t.Errorf("sibling lookups = %d for repeated task, want 1 (cached)", lookup.calls)
	}

	task.SourceURL = server.URL + "/op02-004.png"
	if _, mode, err := pipeline.EnsureCardImage(ctx, task); err != nil || mode != ImageModeDownloaded {
		t.Fatalf("EnsureCardImage() = %q, %v, want a download once a source exists", mode, err)
	}

	// the download replaced the cached miss: the next language pass
	// copies without another catalog query or fetch
	url, mode, err := pipeline.EnsureCardImage(ctx, ImageTask{
		TCG: "onepiece", SeriesID: 7, SeriesCode: "OP02", Language: "fr", Number: "004",
		SourceURL: server.URL + "/op02-004.png",
	})
	if err != nil {
		t.Fatalf("EnsureCardImage() error = %v", err)
	}
	if mode != ImageModeCopied {
		t.Errorf("mode = %q, want %q", mode, ImageModeCopied)
	}
	if url != "/images/onepiece/OP02/fr/004.jpg" {
		t.Errorf("url = %q", url)
	}
	if lookup.calls != 1 {
		t.Errorf("sibling lookups = %d, want still 1 (the download refreshed the cache)", lookup.calls)
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("artwork fetched %d times, want 1", n)
	}
}

func TestImagePipeline_DryRunWritesNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("dry run fetched from the network")
	}))
	defer server.Close()

	dir := t.TempDir()
	store, err := NewFileObjectStore(dir, "/images")
	if err != nil {
		t.Fatal(err)
	}
	pipeline := NewImagePipeline(store, newTestFetchClient(), &stubSiblingLookup{}, true)

	url, mode, err := pipeline.EnsureCardImage(context.Background(), ImageTask{
		TCG:        "onepiece",
		SeriesID:   7,
		SeriesCode: "OP02",
		Language:   "en",
		Number:     "004",
		SourceURL:  server.URL + "/cdn/op02-004.png",
	})
	if err != nil {
		t.Fatalf("EnsureCardImage() error = %v", err)
	}
	if mode != ImageModeDownloaded {
		t.Errorf("mode = %q, want the would-be mode reported", mode)
	}
	if url == "" {
		t.Error("url empty, want the would-be public URL")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("storage root not empty after dry run: %v", entries)
	}
}

func TestImagePipeline_SkipsWithoutSource(t *testing.T) {
	store, err := NewFileObjectStore(t.TempDir(), "/images")
	if err != nil {
		t.Fatal(err)
	}
	pipeline := NewImagePipeline(store, newTestFetchClient(), &stubSiblingLookup{}, false)

	url, mode, err := pipeline.EnsureCardImage(context.Background(), ImageTask{
		TCG: "onepiece", SeriesID: 7, SeriesCode: "OP02", Language: "en", Number: "004",
	})
	if err != nil {
		t.Fatalf("EnsureCardImage() error = %v", err)
	}
	if mode != ImageModeSkipped || url != "" {
		t.Errorf("EnsureCardImage() = %q, %q, want skipped with empty url", url, mode)
	}
}

func TestImagePipeline_SourceGone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store, err := NewFileObjectStore(t.TempDir(), "/images")
	if err != nil {
		t.Fatal(err)
	}
	pipeline := NewImagePipeline(store, newTestFetchClient(), &stubSiblingLookup{}, false)

	_, _, err = pipeline.EnsureCardImage(context.Background(), ImageTask{
		TCG: "onepiece", SeriesID: 7, SeriesCode: "OP02", Language: "en", Number: "004",
		SourceURL: server.URL + "/gone.png",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("EnsureCardImage() error = %v, want ErrNotFound", err)
	}
}

func TestImagePipeline_FailureKinds(t *testing.T) {
	t.Run("storage failure", func(t *testing.T) {
		artwork := testPNG(t, 100, 140)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			w.Write(artwork)
		}))
		defer server.Close()

		pipeline := NewImagePipeline(failingStore{}, newTestFetchClient(), &stubSiblingLookup{}, false)
		_, _, err := pipeline.EnsureCardImage(context.Background(), ImageTask{
			TCG: "onepiece", SeriesID: 7, SeriesCode: "OP02", Language: "en", Number: "004",
			SourceURL: server.URL + "/x.png",
		})
		if err == nil || FailureKindOf(err) != StorageFailure {
			t.Errorf("FailureKindOf() = %v (err %v), want storage", FailureKindOf(err), err)
		}
	})

	t.Run("transcode failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("not pixels at all"))
		}))
		defer server.Close()

		store, err := NewFileObjectStore(t.TempDir(), "/images")
		if err != nil {
			t.Fatal(err)
		}
		pipeline := NewImagePipeline(store, newTestFetchClient(), &stubSiblingLookup{}, false)
		_, _, err = pipeline.EnsureCardImage(context.Background(), ImageTask{
			TCG: "onepiece", SeriesID: 7, SeriesCode: "OP02", Language: "en", Number: "004",
			SourceURL: server.URL + "/x.png",
		})
		if err == nil || FailureKindOf(err) != TranscodeFailure {
			t.Errorf("FailureKindOf() = %v (err %v), want transcode", FailureKindOf(err), err)
		}
	})
}

func TestImagePipeline_EnsureSeriesBanner(t *testing.T) {
	banner := testPNG(t, 600, 200)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(banner)
	}))
	defer server.Close()

	store, err := NewFileObjectStore(t.TempDir(), "/images")
	if err != nil {
		t.Fatal(err)
	}
	pipeline := NewImagePipeline(store, newTestFetchClient(), nil, false)

	url, err := pipeline.EnsureSeriesBanner(context.Background(), "onepiece", "OP02", server.URL+"/banner.png", "")
	if err != nil {
		t.Fatalf("EnsureSeriesBanner() error = %v", err)
	}
	// banners letterbox, so the stored object is PNG
	if url != "/images/onepiece/series/OP02.png" {
		t.Errorf("url = %q", url)
	}
	exists, err := store.Exists(context.Background(), "onepiece", "series/OP02.png")
	if err != nil || !exists {
		t.Errorf("banner object missing: exists=%v err=%v", exists, err)
	}
}
