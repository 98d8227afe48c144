package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transformahq/transforma-agent/internal/model"
)

type fakeSecrets struct {
	cred model.Credential
}

func (f *fakeSecrets) Load() model.Credential      { return f.cred }
func (f *fakeSecrets) Save(model.Credential) error { return nil }
func (f *fakeSecrets) HasValid() bool              { return f.cred.Valid }
func (f *fakeSecrets) Clear() error                { return nil }

func validSecrets() *fakeSecrets {
	return &fakeSecrets{cred: model.Credential{
		Username: "alice@example.com",
		Token:    "tok-123",
		Valid:    true,
	}}
}

type fakeCache struct {
	entries     map[string]model.CacheEntry
	addErr      error
	mu          sync.Mutex
	addCalls    int
	unavailable bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]model.CacheEntry)}
}

func (f *fakeCache) Check(filename string) model.DuplicateCheckResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return model.DuplicateCheckResult{Status: model.StatusCacheUnavailable}
	}
	if entry, ok := f.entries[filename]; ok {
		return model.DuplicateCheckResult{Status: model.StatusAlreadySubmitted, Entry: entry}
	}
	return model.DuplicateCheckResult{Status: model.StatusNotSubmitted}
}

func (f *fakeCache) AddEntry(filename, reference, submitter string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.addErr != nil {
		return f.addErr
	}
	f.entries[filename] = model.CacheEntry{
		Filename:    filename,
		Reference:   reference,
		Submitter:   submitter,
		SubmittedAt: time.Now(),
	}
	return nil
}

type fakeTransport struct {
	err       error
	block     chan struct{}
	receipt   model.SubmitReceipt
	mu        sync.Mutex
	calls     int
	ctxErr    error
	available bool
}

func (f *fakeTransport) Submit(ctx context.Context, _, _, _ string) (model.SubmitReceipt, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			f.mu.Lock()
			f.ctxErr = ctx.Err()
			f.mu.Unlock()
			return model.SubmitReceipt{}, ctx.Err()
		}
	}
	return f.receipt, f.err
}

func (f *fakeTransport) IsAvailable(context.Context) bool { return f.available }

func (f *fakeTransport) submitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recorder collects every published snapshot.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]State, len(r.snaps))
	for i, s := range r.snaps {
		states[i] = s.State
	}
	return states
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

func fastConfig() Config {
	return Config{
		SuccessRevert: 40 * time.Millisecond,
		ErrorRevert:   40 * time.Millisecond,
		SubmitTimeout: time.Second,
	}
}

func waitForState(t *testing.T, c *Coordinator, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State().State == want
	}, 2*time.Second, 5*time.Millisecond, "expected state %s, still %s", want, c.State().State)
}

func TestCoordinator_Init(t *testing.T) {
	tests := []struct {
		secrets   *fakeSecrets
		name      string
		wantState State
		available bool
	}{
		{
			name:      "no session",
			secrets:   &fakeSecrets{cred: model.Credential{Err: "no session found (not logged in)"}},
			available: true,
			wantState: StateNoSession,
		},
		{
			name:      "relay down",
			secrets:   validSecrets(),
			available: false,
			wantState: StateRelayDown,
		},
		{
			name:      "ready",
			secrets:   validSecrets(),
			available: true,
			wantState: StateReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.secrets, newFakeCache(), &fakeTransport{available: tt.available})
			defer c.Close()

			assert.Equal(t, StateInitializing, c.State().State)
			c.Init(context.Background())
			assert.Equal(t, tt.wantState, c.State().State)
		})
	}
}

func TestCoordinator_Refresh(t *testing.T) {
	t.Run("cache hit wins over session check", func(t *testing.T) {
		cache := newFakeCache()
		cache.entries["inv1.pdf"] = model.CacheEntry{
			Filename:  "inv1.pdf",
			Reference: "REF-1",
			Submitter: "bob",
		}

		// Even with no session, a duplicate is reported first.
		c := New(&fakeSecrets{}, cache, &fakeTransport{available: true})
		defer c.Close()

		c.Refresh("/docs/inv1.pdf")
		snap := c.State()
		assert.Equal(t, StateAlreadySubmitted, snap.State)
		assert.Equal(t, "REF-1", snap.Reference)
		assert.Equal(t, "bob", snap.Submitter)
	})

	t.Run("no session", func(t *testing.T) {
		c := New(&fakeSecrets{}, newFakeCache(), &fakeTransport{available: true})
		defer c.Close()

		c.Refresh("/docs/new.pdf")
		assert.Equal(t, StateNoSession, c.State().State)
	})

	t.Run("ready", func(t *testing.T) {
		c := New(validSecrets(), newFakeCache(), &fakeTransport{available: true})
		defer c.Close()

		c.Refresh("/docs/new.pdf")
		assert.Equal(t, StateReady, c.State().State)
	})

	t.Run("cache unavailable falls through to session", func(t *testing.T) {
		cache := newFakeCache()
		cache.unavailable = true

		c := New(validSecrets(), cache, &fakeTransport{available: true})
		defer c.Close()

		c.Refresh("/docs/new.pdf")
		assert.Equal(t, StateReady, c.State().State)
	})
}

func TestCoordinator_SubmitSuccessSequence(t *testing.T) {
	cache := newFakeCache()
	transport := &fakeTransport{
		available: true,
		receipt:   model.SubmitReceipt{Reference: "FIRS-2024-001", FileID: "f-1", StatusCode: 201},
	}

	c := NewWithConfig(validSecrets(), cache, transport, fastConfig())
	defer c.Close()

	rec := &recorder{}
	c.Subscribe(rec.observe)

	c.Init(context.Background())
	require.Equal(t, StateReady, c.State().State)

	require.True(t, c.Submit("/docs/inv1.pdf"))
	waitForState(t, c, StateAlreadySubmitted)

	assert.Equal(t,
		[]State{StateReady, StateChecking, StateSubmitting, StateSuccess, StateAlreadySubmitted},
		rec.states())

	last := rec.last()
	assert.Equal(t, "FIRS-2024-001", last.Reference)
	assert.Equal(t, "alice@example.com", last.Submitter)

	assert.Equal(t, 1, transport.submitCalls())
	result := cache.Check("inv1.pdf")
	require.Equal(t, model.StatusAlreadySubmitted, result.Status)
	assert.Equal(t, "FIRS-2024-001", result.Entry.Reference)
}

func TestCoordinator_SubmitFailureRevertsToReady(t *testing.T) {
	transport := &fakeTransport{
		available: true,
		err:       errors.New("relay returned HTTP 500"),
	}

	c := NewWithConfig(validSecrets(), newFakeCache(), transport, fastConfig())
	defer c.Close()

	rec := &recorder{}
	c.Subscribe(rec.observe)

	c.Init(context.Background())
	require.True(t, c.Submit("/docs/inv1.pdf"))

	waitForState(t, c, StateError)
	assert.Contains(t, c.State().Tooltip, "HTTP 500")

	waitForState(t, c, StateReady)
	assert.Equal(t,
		[]State{StateReady, StateChecking, StateSubmitting, StateError, StateReady},
		rec.states())
}

func TestCoordinator_SubmitDuplicateShortCircuitsTransport(t *testing.T) {
	cache := newFakeCache()
	cache.entries["inv1.pdf"] = model.CacheEntry{
		Filename:  "inv1.pdf",
		Reference: "REF-OLD",
		Submitter: "bob",
	}
	transport := &fakeTransport{available: true}

	c := NewWithConfig(validSecrets(), cache, transport, fastConfig())
	defer c.Close()

	c.Init(context.Background())
	require.True(t, c.Submit("/docs/inv1.pdf"))

	waitForState(t, c, StateAlreadySubmitted)
	assert.Equal(t, "REF-OLD", c.State().Reference)
	assert.Zero(t, transport.submitCalls(), "transport must not be called for a known duplicate")
}

func TestCoordinator_SubmitWithoutSessionNeverReachesSubmitting(t *testing.T) {
	secrets := &fakeSecrets{cred: model.Credential{Err: "session expired"}}
	transport := &fakeTransport{available: true}

	c := NewWithConfig(secrets, newFakeCache(), transport, fastConfig())
	defer c.Close()

	rec := &recorder{}
	c.Subscribe(rec.observe)

	c.Init(context.Background())
	require.Equal(t, StateNoSession, c.State().State)

	// Submitting from NoSession re-runs the checks and reports the blocker.
	require.True(t, c.Submit("/docs/inv1.pdf"))
	waitForState(t, c, StateNoSession)

	assert.Equal(t, "session expired", c.State().Tooltip)
	assert.Zero(t, transport.submitCalls())
	assert.NotContains(t, rec.states(), StateSubmitting)
}

func TestCoordinator_SecondSubmitIgnoredWhileInFlight(t *testing.T) {
	block := make(chan struct{})
	transport := &fakeTransport{
		available: true,
		block:     block,
		receipt:   model.SubmitReceipt{Reference: "FIRS-2024-001"},
	}

	c := NewWithConfig(validSecrets(), newFakeCache(), transport, fastConfig())
	defer c.Close()

	c.Init(context.Background())
	require.True(t, c.Submit("/docs/inv1.pdf"))
	waitForState(t, c, StateSubmitting)

	assert.False(t, c.Submit("/docs/inv1.pdf"), "second submit must be ignored while one is in flight")

	close(block)
	waitForState(t, c, StateSuccess)
	assert.Equal(t, 1, transport.submitCalls())
}

func TestCoordinator_CancelAbandonsInFlightSubmission(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	transport := &fakeTransport{available: true, block: block}

	c := NewWithConfig(validSecrets(), newFakeCache(), transport, fastConfig())
	defer c.Close()

	c.Init(context.Background())
	require.True(t, c.Submit("/docs/inv1.pdf"))
	waitForState(t, c, StateSubmitting)

	c.Cancel()
	assert.Equal(t, StateReady, c.State().State)

	// The abandoned worker observed its context being canceled.
	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return transport.ctxErr != nil
	}, 2*time.Second, 5*time.Millisecond)

	// A new submission can start immediately.
	assert.True(t, c.Submit("/docs/inv1.pdf"))
}

// handoffTransport hands the test one controllable call per Submit: the test
// decides when each call returns, including calls whose context was canceled.
type handoffTransport struct {
	mu    sync.Mutex
	calls []*transportCall
}

type transportCall struct {
	release  chan struct{}
	done     chan struct{}
	canceled chan struct{}
}

func (h *handoffTransport) Submit(ctx context.Context, _, _, _ string) (model.SubmitReceipt, error) {
	call := &transportCall{
		release:  make(chan struct{}),
		done:     make(chan struct{}),
		canceled: make(chan struct{}),
	}
	h.mu.Lock()
	h.calls = append(h.calls, call)
	h.mu.Unlock()
	defer close(call.done)

	select {
	case <-call.release:
		return model.SubmitReceipt{Reference: "FIRS-2024-001"}, nil
	case <-ctx.Done():
		close(call.canceled)
		<-call.release
		return model.SubmitReceipt{}, ctx.Err()
	}
}

func (h *handoffTransport) IsAvailable(context.Context) bool { return true }

func (h *handoffTransport) waitForCall(t *testing.T, i int) *transportCall {
	t.Helper()
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.calls) > i
	}, 2*time.Second, 5*time.Millisecond)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[i]
}

func TestCoordinator_CancelAppliesToLatestSubmission(t *testing.T) {
	transport := &handoffTransport{}

	c := NewWithConfig(validSecrets(), newFakeCache(), transport, fastConfig())
	defer c.Close()

	c.Init(context.Background())
	require.True(t, c.Submit("/docs/inv1.pdf"))
	first := transport.waitForCall(t, 0)

	c.Cancel()
	require.Eventually(t, func() bool {
		select {
		case <-first.canceled:
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	// A second submission starts while the abandoned worker is still alive.
	require.True(t, c.Submit("/docs/inv2.pdf"))
	waitForState(t, c, StateSubmitting)
	second := transport.waitForCall(t, 1)

	// Let the abandoned worker finish its cleanup now; it must not release
	// the second submission's in-flight slot.
	close(first.release)
	<-first.done
	time.Sleep(50 * time.Millisecond)

	c.Cancel()
	assert.Equal(t, StateReady, c.State().State, "the second submission must still be cancelable")
	require.Eventually(t, func() bool {
		select {
		case <-second.canceled:
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	close(second.release)
}

func TestCoordinator_StaleRevertTimerDoesNotOverrideNewerState(t *testing.T) {
	transport := &fakeTransport{
		available: true,
		receipt:   model.SubmitReceipt{Reference: "FIRS-2024-001"},
	}
	cache := newFakeCache()
	cache.addErr = errors.New("disk full") // keep the cache empty so Refresh lands on Ready

	cfg := fastConfig()
	cfg.SuccessRevert = 80 * time.Millisecond

	c := NewWithConfig(validSecrets(), cache, transport, cfg)
	defer c.Close()

	c.Init(context.Background())
	require.True(t, c.Submit("/docs/inv1.pdf"))
	waitForState(t, c, StateSuccess)

	// A document-open refresh preempts the pending success revert.
	c.Refresh("/docs/other.pdf")
	require.Equal(t, StateReady, c.State().State)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, StateReady, c.State().State, "stale revert timer must not fire")
}

func TestCoordinator_CacheWriteFailureStillSucceeds(t *testing.T) {
	cache := newFakeCache()
	cache.addErr = errors.New("disk full")
	transport := &fakeTransport{
		available: true,
		receipt:   model.SubmitReceipt{Reference: "FIRS-2024-001"},
	}

	c := NewWithConfig(validSecrets(), cache, transport, fastConfig())
	defer c.Close()

	c.Init(context.Background())
	require.True(t, c.Submit("/docs/inv1.pdf"))
	waitForState(t, c, StateSuccess)
}

func TestCoordinator_ObserverSnapshotsAreImmutableCopies(t *testing.T) {
	c := New(validSecrets(), newFakeCache(), &fakeTransport{available: true})
	defer c.Close()

	var got Snapshot
	c.Subscribe(func(s Snapshot) { got = s })
	c.Init(context.Background())

	got.Label = "mutated"
	assert.Equal(t, "Submit to FIRS", c.State().Label)
}
