// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/transformahq/transforma-agent/internal/model"
)

// SecretStore manages the per-user session credential. The encryption
// mechanism behind the store is a platform concern outside this boundary.
type SecretStore interface {
	// Load returns the stored credential. On any failure it returns a
	// credential with Valid=false and Err describing the cause; it never
	// returns an error.
	Load() model.Credential
	Save(cred model.Credential) error
	HasValid() bool
	Clear() error
}

// Transport submits documents to the remote relay service.
type Transport interface {
	// Submit uploads the document with the given identity. Duplicate and
	// rate-limit outcomes are reported as wrapped sentinel errors
	// (common.ErrDuplicateSubmission, common.ErrRateLimited).
	Submit(ctx context.Context, documentPath, user, token string) (model.SubmitReceipt, error)
	IsAvailable(ctx context.Context) bool
}

// Extractor produces a bounded text snippet from a document's first page.
type Extractor interface {
	// ExtractFirstPage is best-effort: it returns an empty string on any
	// failure and never errors.
	ExtractFirstPage(documentPath string, maxChars int) string
}

// DuplicateStore is the duplicate cache surface the coordinator depends on.
type DuplicateStore interface {
	Check(filename string) model.DuplicateCheckResult
	AddEntry(filename, reference, submitter string) error
}

// Router classifies an opened document.
type Router interface {
	Route(documentPath string) model.RouteResult
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
