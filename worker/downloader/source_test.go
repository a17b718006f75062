package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestAcquire_SharedDownload(t *testing.T) {
	var downloads int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&downloads, 1)
		w.Write([]byte("source-bytes"))
	}))
	defer server.Close()

	cache := NewSourceCache(t.TempDir(), zaptest.NewLogger(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	paths := make([]string, 3)
	releases := make([]func(), 3)
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], releases[i], errs[i] = cache.Acquire(ctx, "task-1", server.URL)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		if errs[i] != nil {
			t.Fatalf("Acquire %d failed: %v", i, errs[i])
		}
		if paths[i] != paths[0] {
			t.Errorf("All acquirers must share one file, got %q and %q", paths[0], paths[i])
		}
	}
	if n := atomic.LoadInt32(&downloads); n != 1 {
		t.Errorf("Expected 1 download for 3 acquirers, got %d", n)
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("Failed to read shared file: %v", err)
	}
	if string(data) != "source-bytes" {
		t.Errorf("Unexpected file contents %q", data)
	}

	releases[0]()
	releases[1]()
	if _, err := os.Stat(paths[0]); err != nil {
		t.Fatalf("File must survive until the last release: %v", err)
	}
	releases[2]()
	if _, err := os.Stat(paths[0]); !os.IsNotExist(err) {
		t.Errorf("Expected file removed after last release")
	}
}

func TestAcquire_ReleaseIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("source-bytes"))
	}))
	defer server.Close()

	cache := NewSourceCache(t.TempDir(), zaptest.NewLogger(t))
	ctx := context.Background()

	path1, release1, err := cache.Acquire(ctx, "task-1", server.URL)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	_, release2, err := cache.Acquire(ctx, "task-1", server.URL)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// Double release of one handle must not steal the second holder's ref.
	release1()
	release1()
	if _, err := os.Stat(path1); err != nil {
		t.Fatalf("File removed while still held: %v", err)
	}
	release2()
	if _, err := os.Stat(path1); !os.IsNotExist(err) {
		t.Errorf("Expected file removed after last release")
	}
}

func TestAcquire_DownloadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	workDir := t.TempDir()
	cache := NewSourceCache(workDir, zaptest.NewLogger(t))

	_, _, err := cache.Acquire(context.Background(), "task-1", server.URL)
	if err == nil {
		t.Fatal("Expected acquire to fail on 404")
	}

	entries, readErr := os.ReadDir(workDir)
	if readErr != nil {
		t.Fatalf("Failed to read work dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Errorf("Expected failed download cleaned up, found %d entries", len(entries))
	}

	// A failed entry must not be cached; the next acquire retries the fetch.
	if _, _, err := cache.Acquire(context.Background(), "task-1", server.URL); err == nil {
		t.Fatal("Expected second acquire to fail too")
	}
}

func TestAcquire_LocalSource(t *testing.T) {
	src := filepath.Join(t.TempDir(), "input.png")
	if err := os.WriteFile(src, []byte("pixels"), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}

	workDir := t.TempDir()
	cache := NewSourceCache(workDir, zaptest.NewLogger(t))

	path, release, err := cache.Acquire(context.Background(), "task-1", src)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if filepath.Dir(path) != workDir {
		t.Errorf("Expected working copy under %s, got %s", workDir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read working copy: %v", err)
	}
	if string(data) != "pixels" {
		t.Errorf("Unexpected copy contents %q", data)
	}

	release()
	if _, err := os.Stat(src); err != nil {
		t.Errorf("Original source must never be removed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected working copy removed after release")
	}
}

func TestAcquire_MissingLocalSource(t *testing.T) {
	cache := NewSourceCache(t.TempDir(), zaptest.NewLogger(t))

	_, _, err := cache.Acquire(context.Background(), "task-1", filepath.Join(t.TempDir(), "missing.png"))
	if err == nil {
		t.Fatal("Expected acquire to fail for a missing local source")
	}
}
