// Package coordinator implements the submission state machine that drives
// the asynchronous submit pipeline and publishes observable states.
package coordinator

import (
	"fmt"

	"github.com/transformahq/transforma-agent/internal/model"
)

// State is an observable submission state. The machine has no terminal
// state; it runs for the coordinator's lifetime.
type State int

const (
	// StateInitializing is the state before Init completes.
	StateInitializing State = iota
	// StateNoSession means no valid credential is present; submitting
	// prompts re-authentication.
	StateNoSession
	// StateRelayDown means the relay did not answer its health check.
	StateRelayDown
	// StateReady accepts a submit request.
	StateReady
	// StateChecking means a submission was accepted and prerequisites are
	// being verified.
	StateChecking
	// StateSubmitting means the document is being sent to the relay.
	StateSubmitting
	// StateSuccess is shown briefly after a successful submission, then
	// auto-transitions to StateAlreadySubmitted.
	StateSuccess
	// StateAlreadySubmitted means the duplicate cache has a record for the
	// current document.
	StateAlreadySubmitted
	// StateError is shown after a failed submission, then auto-reverts to
	// StateReady so the user can retry.
	StateError
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateNoSession:
		return "no_session"
	case StateRelayDown:
		return "relay_down"
	case StateReady:
		return "ready"
	case StateChecking:
		return "checking"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	case StateAlreadySubmitted:
		return "already_submitted"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is an immutable view of the machine published to observers.
type Snapshot struct {
	Label     string
	Tooltip   string
	Reference string
	Submitter string
	State     State
}

func initializingSnapshot() Snapshot {
	return Snapshot{
		State:   StateInitializing,
		Label:   "Checking...",
		Tooltip: "Verifying session and connection",
	}
}

func noSessionSnapshot(cause string) Snapshot {
	if cause == "" {
		cause = "Open Float to sign in to your Helium account"
	}
	return Snapshot{
		State:   StateNoSession,
		Label:   "Sign In Required",
		Tooltip: cause,
	}
}

func relayDownSnapshot() Snapshot {
	return Snapshot{
		State:   StateRelayDown,
		Label:   "Start Float",
		Tooltip: "Helium Float must be running to submit invoices",
	}
}

func readySnapshot() Snapshot {
	return Snapshot{
		State:   StateReady,
		Label:   "Submit to FIRS",
		Tooltip: "Send this invoice to FIRS for processing",
	}
}

func checkingSnapshot() Snapshot {
	return Snapshot{
		State:   StateChecking,
		Label:   "Checking...",
		Tooltip: "Verifying session and prior submissions",
	}
}

func submittingSnapshot() Snapshot {
	return Snapshot{
		State:   StateSubmitting,
		Label:   "Submitting...",
		Tooltip: "Sending to Helium Relay for FIRS processing",
	}
}

func successSnapshot(reference, submitter string) Snapshot {
	return Snapshot{
		State:     StateSuccess,
		Label:     "Submitted!",
		Tooltip:   "FIRS Reference: " + reference,
		Reference: reference,
		Submitter: submitter,
	}
}

func alreadySubmittedSnapshot(entry model.CacheEntry) Snapshot {
	tooltip := "FIRS Reference: " + entry.Reference
	if entry.Submitter != "" {
		tooltip = fmt.Sprintf("Submitted by %s (Ref: %s)", entry.Submitter, entry.Reference)
	}
	return Snapshot{
		State:     StateAlreadySubmitted,
		Label:     "Already Submitted",
		Tooltip:   tooltip,
		Reference: entry.Reference,
		Submitter: entry.Submitter,
	}
}

func errorSnapshot(cause string) Snapshot {
	return Snapshot{
		State:   StateError,
		Label:   "Submit Failed",
		Tooltip: cause,
	}
}
