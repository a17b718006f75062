package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SourceCache fetches source assets into local working storage and shares
// them across the concurrent workers of one task. A source is downloaded at
// most once per (task, locator); the file is removed only after the last
// profile holding it releases, success or failure. Workers read the file but
// never mutate it.
type SourceCache struct {
	mu      sync.Mutex
	entries map[string]*sourceEntry

	workDir string
	client  *http.Client
	logger  *zap.Logger
}

type sourceEntry struct {
	refs  int
	path  string
	ready chan struct{}
	err   error
}

func NewSourceCache(workDir string, logger *zap.Logger) *SourceCache {
	return &SourceCache{
		entries: make(map[string]*sourceEntry),
		workDir: workDir,
		client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  logger,
	}
}

// Acquire returns a local path for the source and a release func. The first
// caller for a (task, locator) pair performs the download; concurrent
// callers block until it is ready and share the same file.
func (c *SourceCache) Acquire(ctx context.Context, taskID, locator string) (string, func(), error) {
	key := taskID + "|" + locator

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok {
		entry.refs++
		c.mu.Unlock()
	} else {
		entry = &sourceEntry{refs: 1, ready: make(chan struct{})}
		c.entries[key] = entry
		c.mu.Unlock()

		entry.path, entry.err = c.fetch(ctx, taskID, locator)
		close(entry.ready)
	}

	select {
	case <-entry.ready:
	case <-ctx.Done():
		c.release(key, entry)
		return "", func() {}, ctx.Err()
	}

	if entry.err != nil {
		err := entry.err
		c.release(key, entry)
		return "", func() {}, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() { c.release(key, entry) })
	}
	return entry.path, release, nil
}

func (c *SourceCache) release(key string, entry *sourceEntry) {
	c.mu.Lock()
	entry.refs--
	last := entry.refs == 0
	if last {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if last && entry.path != "" {
		if err := os.Remove(entry.path); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("Failed to remove shared source file",
				zap.String("path", entry.path),
				zap.Error(err),
			)
		}
	}
}

func (c *SourceCache) fetch(ctx context.Context, taskID, locator string) (string, error) {
	if !strings.HasPrefix(locator, "http://") && !strings.HasPrefix(locator, "https://") {
		// Storage keys resolve to paths already on local storage.
		if _, err := os.Stat(locator); err != nil {
			return "", fmt.Errorf("stat source %s: %w", locator, err)
		}
		dest := filepath.Join(c.workDir, taskID+"_src_"+uuid.New().String())
		if err := copyFile(locator, dest); err != nil {
			return "", err
		}
		return dest, nil
	}

	if err := os.MkdirAll(c.workDir, 0755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}

	dest := filepath.Join(c.workDir, taskID+"_src_"+uuid.New().String())
	file, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create source file: %w", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("download source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		os.Remove(dest)
		return "", fmt.Errorf("download source: unexpected status %d", resp.StatusCode)
	}

	if _, err := io.Copy(file, resp.Body); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("write source file: %w", err)
	}

	c.logger.Info("Source downloaded",
		zap.String("task_id", taskID),
		zap.String("locator", locator),
		zap.String("path", dest),
	)
	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create copy: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		os.Remove(dest)
		return fmt.Errorf("copy source: %w", err)
	}
	return nil
}
