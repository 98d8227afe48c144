// Package model defines the core domain types shared across the application.
package model

import (
	"fmt"
	"regexp"
)

// RouteDecision is the outcome of classifying an opened document.
type RouteDecision string

const (
	// RouteInvoice routes the document to invoice handling.
	RouteInvoice RouteDecision = "invoice"
	// RouteNotInvoice routes the document to the fallback handler.
	RouteNotInvoice RouteDecision = "not_invoice"
	// RouteUnknown means the document could not be classified; it is still
	// shown rather than redirected.
	RouteUnknown RouteDecision = "unknown"
)

// RouteResult is produced fresh for every classification call.
type RouteResult struct {
	Decision    RouteDecision
	MatchedRule string
	ClientHint  string
	Confidence  float64
}

// RoutingPattern is a tier-1 filename rule. Patterns are evaluated in list
// order and the first match wins.
type RoutingPattern struct {
	Regex       *regexp.Regexp
	Name        string
	Description string
}

// NewRoutingPattern compiles expr case-insensitively into a RoutingPattern.
func NewRoutingPattern(name, expr, description string) (RoutingPattern, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return RoutingPattern{}, fmt.Errorf("invalid routing pattern %q: %w", name, err)
	}
	return RoutingPattern{
		Name:        name,
		Regex:       re,
		Description: description,
	}, nil
}
