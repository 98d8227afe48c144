package dupcache

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transformahq/transforma-agent/internal/model"
)

// newSyncDB creates a sync database containing the given rows.
func newSyncDB(t *testing.T, rows [][4]any) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sync.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	_, err = db.Exec(`CREATE TABLE submitted_invoices (
		filename TEXT NOT NULL,
		submit_time INTEGER NOT NULL,
		firs_ref TEXT NOT NULL,
		submitted_by TEXT NOT NULL
	)`)
	require.NoError(t, err)

	for _, row := range rows {
		_, err = db.Exec(
			`INSERT INTO submitted_invoices (filename, submit_time, firs_ref, submitted_by) VALUES (?, ?, ?, ?)`,
			row[0], row[1], row[2], row[3])
		require.NoError(t, err)
	}
	return path
}

func TestSyncOnce_ReplacesEntrySet(t *testing.T) {
	source := newSyncDB(t, [][4]any{
		{"inv1.pdf", int64(1700000000), "FIRS-2024-001", "alice"},
		{"inv2.pdf", int64(1700000100), "FIRS-2024-002", "bob"},
	})

	c := newTestCache(t)
	require.NoError(t, c.Load())
	// A locally recorded entry absent from the authoritative source is
	// dropped by reconciliation.
	require.NoError(t, c.AddEntry("local-only.pdf", "REF-L", "carol"))

	require.NoError(t, c.SyncOnce(context.Background(), source))

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, model.StatusNotSubmitted, c.Check("local-only.pdf").Status)

	result := c.Check("inv1.pdf")
	require.Equal(t, model.StatusAlreadySubmitted, result.Status)
	assert.Equal(t, "FIRS-2024-001", result.Entry.Reference)
	assert.Equal(t, "alice", result.Entry.Submitter)
	assert.Equal(t, int64(1700000000), result.Entry.SubmittedAt.Unix())

	assert.False(t, c.LastSync().IsZero())
}

func TestSyncOnce_PersistsReconciledSet(t *testing.T) {
	source := newSyncDB(t, [][4]any{
		{"inv1.pdf", int64(1700000000), "FIRS-2024-001", "alice"},
	})

	path := filepath.Join(t.TempDir(), "cache.bin")
	c := New(path)
	require.NoError(t, c.Load())
	require.NoError(t, c.SyncOnce(context.Background(), source))

	reopened := New(path)
	require.NoError(t, reopened.Load())
	assert.Equal(t, model.StatusAlreadySubmitted, reopened.Check("inv1.pdf").Status)
}

func TestSyncOnce_MissingSourceFails(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Load())
	require.NoError(t, c.AddEntry("inv1.pdf", "REF-1", "alice"))

	err := c.SyncOnce(context.Background(), filepath.Join(t.TempDir(), "absent.db"))
	require.Error(t, err)

	// A failed pass leaves the existing set untouched.
	assert.Equal(t, model.StatusAlreadySubmitted, c.Check("inv1.pdf").Status)
}

func TestBackgroundSync_StopIsPrompt(t *testing.T) {
	source := newSyncDB(t, nil)

	c := New(filepath.Join(t.TempDir(), "cache.bin"), WithSyncInterval(time.Hour))
	require.NoError(t, c.Load())

	c.StartBackgroundSync(source)

	stopped := make(chan struct{})
	go func() {
		c.StopBackgroundSync()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("StopBackgroundSync did not return promptly")
	}
}

func TestBackgroundSync_RunsOnInterval(t *testing.T) {
	source := newSyncDB(t, [][4]any{
		{"inv1.pdf", int64(1700000000), "FIRS-2024-001", "alice"},
	})

	c := New(filepath.Join(t.TempDir(), "cache.bin"), WithSyncInterval(20*time.Millisecond))
	require.NoError(t, c.Load())

	c.StartBackgroundSync(source)
	defer c.StopBackgroundSync()

	require.Eventually(t, func() bool {
		return c.Check("inv1.pdf").Status == model.StatusAlreadySubmitted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartBackgroundSync_SecondStartIsNoop(t *testing.T) {
	source := newSyncDB(t, nil)

	c := New(filepath.Join(t.TempDir(), "cache.bin"), WithSyncInterval(time.Hour))
	require.NoError(t, c.Load())

	c.StartBackgroundSync(source)
	c.StartBackgroundSync(source)
	c.StopBackgroundSync()
	// Stopping again is also safe.
	c.StopBackgroundSync()
}
