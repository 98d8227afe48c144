package coordinator

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/transformahq/transforma-agent/internal/model"
	"github.com/transformahq/transforma-agent/internal/service"
)

// Observer receives every state transition as a snapshot. Callbacks run
// synchronously and may execute on the submit pipeline's goroutine;
// marshaling to a UI-safe thread is the observer's responsibility.
type Observer func(Snapshot)

// Config holds timing options for the coordinator.
type Config struct {
	// SuccessRevert is how long StateSuccess is shown before
	// auto-transitioning to StateAlreadySubmitted.
	SuccessRevert time.Duration
	// ErrorRevert is how long StateError is shown before auto-reverting to
	// StateReady.
	ErrorRevert time.Duration
	// SubmitTimeout bounds the relay call of one submission.
	SubmitTimeout time.Duration
}

// DefaultConfig returns the default timing configuration.
func DefaultConfig() Config {
	return Config{
		SuccessRevert: 3 * time.Second,
		ErrorRevert:   5 * time.Second,
		SubmitTimeout: 30 * time.Second,
	}
}

// Coordinator owns the observable submission lifecycle for one document
// viewer. At most one submission is in flight at a time, enforced by a state
// guard at acceptance; the coordinator holds a cancel function for the
// in-flight submission so a hung one can be abandoned.
type Coordinator struct {
	secrets   service.SecretStore
	cache     service.DuplicateStore
	transport service.Transport

	inflight    context.CancelFunc
	inflightID  uint64
	revertTimer *time.Timer
	observers   []Observer
	snapshot    Snapshot
	cfg         Config
	gen         uint64
	mu          sync.Mutex
	closed      bool
}

// New creates a coordinator in StateInitializing.
func New(secrets service.SecretStore, cache service.DuplicateStore, transport service.Transport) *Coordinator {
	return NewWithConfig(secrets, cache, transport, DefaultConfig())
}

// NewWithConfig creates a coordinator with custom timing.
func NewWithConfig(secrets service.SecretStore, cache service.DuplicateStore, transport service.Transport, cfg Config) *Coordinator {
	def := DefaultConfig()
	if cfg.SuccessRevert <= 0 {
		cfg.SuccessRevert = def.SuccessRevert
	}
	if cfg.ErrorRevert <= 0 {
		cfg.ErrorRevert = def.ErrorRevert
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = def.SubmitTimeout
	}
	return &Coordinator{
		secrets:   secrets,
		cache:     cache,
		transport: transport,
		cfg:       cfg,
		snapshot:  initializingSnapshot(),
	}
}

// Subscribe registers an observer for all future transitions.
func (c *Coordinator) Subscribe(obs Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, obs)
}

// State returns a copy of the current snapshot.
func (c *Coordinator) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Init establishes the starting state: credential first, then relay
// availability.
func (c *Coordinator) Init(ctx context.Context) {
	cred := c.secrets.Load()
	if !cred.Valid {
		c.transition(noSessionSnapshot(cred.Err))
		return
	}
	if !c.transport.IsAvailable(ctx) {
		c.transition(relayDownSnapshot())
		return
	}
	c.transition(readySnapshot())
}

// Refresh recomputes the state for a newly opened document: duplicate cache
// first (cheapest), then credential. Refresh never touches the transport.
// While a submission is in flight the refresh is skipped.
func (c *Coordinator) Refresh(documentPath string) {
	c.mu.Lock()
	if c.closed || c.snapshot.State == StateChecking || c.snapshot.State == StateSubmitting {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	filename := filepath.Base(documentPath)

	check := c.cache.Check(filename)
	switch check.Status {
	case model.StatusAlreadySubmitted:
		c.transition(alreadySubmittedSnapshot(check.Entry))
		return
	case model.StatusCacheUnavailable:
		slog.Warn("Duplicate cache unavailable during refresh", "filename", filename)
	case model.StatusNotSubmitted:
	}

	if !c.secrets.HasValid() {
		c.transition(noSessionSnapshot(""))
		return
	}
	c.transition(readySnapshot())
}

// Submit starts the asynchronous submit pipeline for the document. It
// reports whether the request was accepted: a submission already in flight,
// or a state that has nothing to submit, declines the request.
func (c *Coordinator) Submit(documentPath string) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	switch c.snapshot.State {
	case StateReady, StateNoSession, StateRelayDown:
		// Accepted. NoSession and RelayDown act as prompts to resolve the
		// prerequisite; the pipeline re-checks and reports the blocker.
	default:
		c.mu.Unlock()
		slog.Debug("Submit ignored", "state", c.State().State.String())
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.inflight = cancel
	c.inflightID++
	id := c.inflightID

	snap := checkingSnapshot()
	observers := c.applyLocked(snap)
	c.mu.Unlock()
	notify(observers, snap)

	go c.runSubmission(ctx, id, documentPath)
	return true
}

// Cancel abandons the in-flight submission, if any, and returns the machine
// to StateReady.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	cancel := c.inflight
	c.inflight = nil

	var observers []Observer
	var snap Snapshot
	if cancel != nil && (c.snapshot.State == StateChecking || c.snapshot.State == StateSubmitting) {
		snap = readySnapshot()
		observers = c.applyLocked(snap)
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if observers != nil {
		notify(observers, snap)
		slog.Info("In-flight submission abandoned")
	}
}

// Close stops timers and abandons any in-flight submission. The coordinator
// must not be used afterwards.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	cancel := c.inflight
	c.inflight = nil
	if c.revertTimer != nil {
		c.revertTimer.Stop()
		c.revertTimer = nil
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// runSubmission is the pipeline for one accepted submit request. id names
// the in-flight slot this worker owns; an abandoned worker must not clear a
// successor's slot.
func (c *Coordinator) runSubmission(ctx context.Context, id uint64, documentPath string) {
	filename := filepath.Base(documentPath)

	cred := c.secrets.Load()
	if !cred.Valid {
		c.clearInflight(id)
		c.transitionIfCurrent(ctx, noSessionSnapshot(cred.Err))
		return
	}

	check := c.cache.Check(filename)
	switch check.Status {
	case model.StatusAlreadySubmitted:
		c.clearInflight(id)
		c.transitionIfCurrent(ctx, alreadySubmittedSnapshot(check.Entry))
		return
	case model.StatusCacheUnavailable:
		slog.Warn("Duplicate cache unavailable, deferring to relay", "filename", filename)
	case model.StatusNotSubmitted:
	}

	if !c.transitionIfCurrent(ctx, submittingSnapshot()) {
		return
	}

	sctx, cancelTimeout := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancelTimeout()

	receipt, err := c.transport.Submit(sctx, documentPath, cred.Username, cred.Token)
	c.clearInflight(id)

	if ctx.Err() != nil {
		// Abandoned via Cancel or Close; state was already handled there.
		return
	}

	if err != nil {
		slog.Warn("Submission failed", "filename", filename, "error", err)
		c.transitionThenRevert(ctx, errorSnapshot(err.Error()), c.cfg.ErrorRevert, readySnapshot())
		return
	}

	if addErr := c.cache.AddEntry(filename, receipt.Reference, cred.Username); addErr != nil {
		// The submission itself succeeded; a cache write failure only costs
		// duplicate detection until the next sync.
		slog.Warn("Failed to record submission in cache", "filename", filename, "error", addErr)
	}

	slog.Info("Invoice submitted", "filename", filename, "reference", receipt.Reference)

	c.transitionThenRevert(ctx,
		successSnapshot(receipt.Reference, cred.Username),
		c.cfg.SuccessRevert,
		alreadySubmittedSnapshot(model.CacheEntry{
			Filename:  filename,
			Reference: receipt.Reference,
			Submitter: cred.Username,
		}))
}

// transition applies a snapshot unconditionally and notifies observers.
func (c *Coordinator) transition(snap Snapshot) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	observers := c.applyLocked(snap)
	c.mu.Unlock()
	notify(observers, snap)
}

// transitionIfCurrent applies a snapshot unless the submission's context was
// canceled, reporting whether it was applied.
func (c *Coordinator) transitionIfCurrent(ctx context.Context, snap Snapshot) bool {
	c.mu.Lock()
	if c.closed || ctx.Err() != nil {
		c.mu.Unlock()
		return false
	}
	observers := c.applyLocked(snap)
	c.mu.Unlock()
	notify(observers, snap)
	return true
}

// applyLocked records a transition and returns the observers to notify.
// A pending timed revert is discarded: a newer transition always wins.
// Caller holds c.mu.
func (c *Coordinator) applyLocked(snap Snapshot) []Observer {
	c.gen++
	if c.revertTimer != nil {
		c.revertTimer.Stop()
		c.revertTimer = nil
	}
	slog.Debug("State transition",
		"from", c.snapshot.State.String(),
		"to", snap.State.String())
	c.snapshot = snap

	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	return observers
}

// transitionThenRevert applies a snapshot and, atomically with it, arms a
// timed auto-transition to next. The generation captured while holding the
// lock guards against a stale timer overriding a newer transition.
func (c *Coordinator) transitionThenRevert(ctx context.Context, snap Snapshot, after time.Duration, next Snapshot) {
	c.mu.Lock()
	if c.closed || ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	observers := c.applyLocked(snap)

	gen := c.gen
	c.revertTimer = time.AfterFunc(after, func() {
		c.mu.Lock()
		if c.closed || c.gen != gen {
			c.mu.Unlock()
			return
		}
		timerObservers := c.applyLocked(next)
		c.mu.Unlock()
		notify(timerObservers, next)
	})
	c.mu.Unlock()

	notify(observers, snap)
}

// clearInflight releases the in-flight slot, but only if the worker
// identified by id still owns it: a newer submission may have been accepted
// after this worker was abandoned via Cancel.
func (c *Coordinator) clearInflight(id uint64) {
	c.mu.Lock()
	if c.inflightID == id {
		c.inflight = nil
	}
	c.mu.Unlock()
}

func notify(observers []Observer, snap Snapshot) {
	for _, obs := range observers {
		obs(snap)
	}
}
