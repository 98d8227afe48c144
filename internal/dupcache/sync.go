package dupcache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // sync source driver

	"github.com/transformahq/transforma-agent/internal/common"
	"github.com/transformahq/transforma-agent/internal/model"
	"github.com/transformahq/transforma-agent/internal/service"
)

// DefaultSyncInterval is how often the background worker reconciles the cache
// against the sync database.
const DefaultSyncInterval = 60 * time.Second

// StartBackgroundSync launches the long-lived reconciliation worker against
// the sync database at sourcePath. A failed pass is logged and retried on the
// next interval; it never terminates the worker. Starting an already-running
// worker is a no-op.
func (c *Cache) StartBackgroundSync(sourcePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.syncCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.syncCancel = cancel
	c.syncDone = make(chan struct{})

	go c.syncLoop(ctx, sourcePath, c.syncDone)

	slog.Info("Background cache sync started",
		"source", sourcePath,
		"interval", c.interval)
}

// StopBackgroundSync cancels the worker and waits for it to exit. The select
// on the context makes cancellation prompt even though the wake interval is
// coarse.
func (c *Cache) StopBackgroundSync() {
	c.mu.Lock()
	cancel := c.syncCancel
	done := c.syncDone
	c.syncCancel = nil
	c.syncDone = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("Background cache sync stopped")
}

func (c *Cache) syncLoop(ctx context.Context, sourcePath string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.SyncOnce(ctx, sourcePath); err != nil {
				common.LogError(err, "Cache sync failed, retrying next interval", common.Fields{
					"source": sourcePath,
				})
			}
		}
	}
}

// SyncOnce runs a single reconciliation pass: it reads the authoritative
// record set from the sync database, replaces the in-memory set, and
// persists. The cache lock is not held across the database read.
func (c *Cache) SyncOnce(ctx context.Context, sourcePath string) error {
	fresh, err := readSyncSource(ctx, sourcePath)
	if err != nil {
		return err
	}

	now := c.now()

	c.mu.Lock()
	c.entries = fresh
	c.lastSync = now
	c.loaded = true
	err = c.saveLocked()
	c.mu.Unlock()

	if err != nil {
		slog.Warn("Failed to persist cache after sync", "error", err)
	}
	slog.Debug("Cache reconciled from sync source", "records", len(fresh))
	return nil
}

// readSyncSource loads the submitted_invoices table into a fresh map. The
// database is opened read-only; opening is retried briefly because Float may
// be mid-write.
func readSyncSource(ctx context.Context, sourcePath string) (map[string]model.CacheEntry, error) {
	var db *sql.DB
	err := common.WithRetry(ctx, func() error {
		var openErr error
		db, openErr = openSyncDB(ctx, sourcePath)
		if openErr != nil {
			// Float may be mid-write; opening is worth another attempt.
			return &common.RetryableError{Err: openErr, Retryable: true}
		}
		return nil
	}, service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Debug("Failed to close sync database", "error", closeErr)
		}
	}()

	rows, err := db.QueryContext(ctx,
		`SELECT filename, submit_time, firs_ref, submitted_by FROM submitted_invoices`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync source: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Debug("Failed to close sync rows", "error", closeErr)
		}
	}()

	entries := make(map[string]model.CacheEntry)
	for rows.Next() {
		var (
			filename, reference, submitter string
			submitTime                     int64
		)
		if err := rows.Scan(&filename, &submitTime, &reference, &submitter); err != nil {
			return nil, fmt.Errorf("failed to scan sync row: %w", err)
		}
		entry := model.CacheEntry{
			Filename:    filename,
			Reference:   reference,
			Submitter:   submitter,
			SubmittedAt: time.Unix(submitTime, 0),
		}.Truncated()
		entries[entry.Filename] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sync rows: %w", err)
	}
	return entries, nil
}

func openSyncDB(ctx context.Context, sourcePath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+sourcePath+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sync database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach sync database: %w", err)
	}
	return db, nil
}
