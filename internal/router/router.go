// Package router implements the two-tier routing decision for opened
// documents: filename patterns first, content marker scoring as fallback.
package router

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/transformahq/transforma-agent/internal/model"
	"github.com/transformahq/transforma-agent/internal/service"
)

// invoiceThreshold is the minimum content score that routes to invoice
// handling.
const invoiceThreshold = 0.30

// filenameConfidence is the fixed confidence for a tier-1 filename match.
const filenameConfidence = 0.95

// Config holds configuration options for the router.
type Config struct {
	// MaxChars bounds the first-page text snippet used for content scoring.
	MaxChars int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{MaxChars: 500}
}

// Router decides whether a document routes to invoice handling. Pattern
// replacement is atomic with respect to concurrent Route calls.
type Router struct {
	extractor service.Extractor
	patterns  []model.RoutingPattern
	maxChars  int
	mu        sync.RWMutex
}

// New creates a router with the default patterns and configuration.
func New(extractor service.Extractor) *Router {
	return NewWithConfig(extractor, DefaultConfig())
}

// NewWithConfig creates a router with the default patterns and a custom
// configuration.
func NewWithConfig(extractor service.Extractor, cfg Config) *Router {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultConfig().MaxChars
	}
	return &Router{
		extractor: extractor,
		patterns:  DefaultPatterns(),
		maxChars:  cfg.MaxChars,
	}
}

// Route classifies the document at documentPath. Tier 1 matches the filename
// against the configured patterns in order; tier 2 scores first-page content
// markers. An unreadable document is Unknown, never an error: an undecidable
// document is still offered for viewing.
func (r *Router) Route(documentPath string) model.RouteResult {
	filename := filepath.Base(documentPath)

	if result, ok := r.matchFilename(filename); ok {
		slog.Debug("Routed by filename pattern",
			"filename", filename,
			"client", result.ClientHint)
		return result
	}

	return r.analyzeContent(documentPath)
}

// ReloadPatterns atomically replaces the pattern list. Readers never observe
// a partially updated list.
func (r *Router) ReloadPatterns(patterns []model.RoutingPattern) {
	next := make([]model.RoutingPattern, len(patterns))
	copy(next, patterns)

	r.mu.Lock()
	r.patterns = next
	r.mu.Unlock()

	slog.Info("Routing patterns reloaded", "count", len(next))
}

// Patterns returns a snapshot copy of the configured patterns.
func (r *Router) Patterns() []model.RoutingPattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]model.RoutingPattern, len(r.patterns))
	copy(snapshot, r.patterns)
	return snapshot
}

// matchFilename is tier 1: first pattern match wins, no scoring.
func (r *Router) matchFilename(filename string) (model.RouteResult, bool) {
	r.mu.RLock()
	patterns := r.patterns
	r.mu.RUnlock()

	for _, p := range patterns {
		if p.Regex.MatchString(filename) {
			return model.RouteResult{
				Decision:    model.RouteInvoice,
				MatchedRule: p.Description,
				ClientHint:  p.Name,
				Confidence:  filenameConfidence,
			}, true
		}
	}

	return model.RouteResult{}, false
}

// analyzeContent is tier 2: weighted marker scoring over the first-page text.
func (r *Router) analyzeContent(documentPath string) model.RouteResult {
	text := r.extractor.ExtractFirstPage(documentPath, r.maxChars)
	if text == "" {
		// Fail open: cannot read content, show the document anyway.
		return model.RouteResult{Decision: model.RouteUnknown}
	}

	score, matched := scoreMarkers(strings.ToUpper(text))

	if score >= invoiceThreshold {
		return model.RouteResult{
			Decision:    model.RouteInvoice,
			MatchedRule: "Content analysis: " + firstByTableOrder(matched),
			Confidence:  score,
		}
	}

	return model.RouteResult{
		Decision:   model.RouteNotInvoice,
		Confidence: 1.0 - score,
	}
}
