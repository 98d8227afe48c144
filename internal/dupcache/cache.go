package dupcache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/transformahq/transforma-agent/internal/common"
	"github.com/transformahq/transforma-agent/internal/model"
)

// Cache is the persistent record of filenames already submitted to the relay,
// keyed by filename only. It short-circuits resubmission before any network
// call. Staleness against the remote service is an accepted tradeoff; the
// relay is the source of truth for rejecting true duplicates.
type Cache struct {
	now        func() time.Time
	entries    map[string]model.CacheEntry
	syncCancel func()
	syncDone   chan struct{}
	path       string
	lastSync   time.Time
	interval   time.Duration
	mu         sync.Mutex
	loaded     bool
}

// Option customizes a Cache.
type Option func(*Cache)

// WithSyncInterval overrides the background sync wake interval.
func WithSyncInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache persisted at path. Call Load before Check.
func New(path string, opts ...Option) *Cache {
	c := &Cache{
		path:     path,
		entries:  make(map[string]model.CacheEntry),
		now:      time.Now,
		interval: DefaultSyncInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads the cache file. An absent, unreadable, or unrecognized file
// degrades to an empty cache; it is never fatal.
func (c *Cache) Load() error {
	if c.path == "" {
		return fmt.Errorf("%w: cache path", common.ErrMissingConfig)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]model.CacheEntry)
	c.lastSync = time.Time{}
	c.loaded = true

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Cache file unreadable, starting empty", "path", c.path, "error", err)
		}
		return nil
	}

	entries, lastSync, err := decodeFile(data)
	if err != nil {
		slog.Warn("Cache file unrecognized, starting empty", "path", c.path, "error", err)
		return nil
	}

	c.entries = entries
	c.lastSync = lastSync
	return nil
}

// Check reports whether filename has a recorded submission. Before Load it
// reports CacheUnavailable; callers may proceed with a warning.
func (c *Cache) Check(filename string) model.DuplicateCheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		return model.DuplicateCheckResult{Status: model.StatusCacheUnavailable}
	}

	entry, ok := c.entries[filename]
	if !ok {
		return model.DuplicateCheckResult{Status: model.StatusNotSubmitted}
	}
	return model.DuplicateCheckResult{
		Status: model.StatusAlreadySubmitted,
		Entry:  entry,
	}
}

// AddEntry records a submission and synchronously persists the full store
// before returning; it blocks its caller for the duration of a file write and
// must not be invoked from a UI-responsive thread. An existing record for the
// same filename is replaced (last write wins).
func (c *Cache) AddEntry(filename, reference, submitter string) error {
	entry := model.CacheEntry{
		Filename:    filename,
		Reference:   reference,
		Submitter:   submitter,
		SubmittedAt: c.now().Truncate(time.Second),
	}.Truncated()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entry.Filename] = entry
	c.loaded = true

	return c.saveLocked()
}

// Save persists the full store in a single write. A destination that cannot
// be opened is an error for the caller to log, never a process-level failure.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// saveLocked writes atomically via a temp file rename. Caller holds c.mu.
func (c *Cache) saveLocked() error {
	if c.path == "" {
		return fmt.Errorf("%w: cache path", common.ErrMissingConfig)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data := encodeFile(c.entries, c.lastSync)

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// Entries returns a snapshot of all records, sorted by filename.
func (c *Cache) Entries() []model.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]model.CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Filename < entries[j].Filename
	})
	return entries
}

// Len returns the number of records.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// LastSync returns the time of the last successful reconciliation.
func (c *Cache) LastSync() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}

// Clear removes the cache file and empties the in-memory store.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]model.CacheEntry)
	c.lastSync = time.Time{}

	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}
