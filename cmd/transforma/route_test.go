package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transformahq/transforma-agent/internal/model"
)

func TestToRouteOutput(t *testing.T) {
	result := model.RouteResult{
		Decision:    model.RouteInvoice,
		MatchedRule: "GTBank",
		ClientHint:  "GTBank",
		Confidence:  0.95,
	}

	out := toRouteOutput("/docs/GTBank_invoice.pdf", result)
	assert.Equal(t, "/docs/GTBank_invoice.pdf", out.File)
	assert.Equal(t, "invoice", out.Decision)
	assert.Equal(t, "GTBank", out.MatchedRule)
	assert.InDelta(t, 0.95, out.Confidence, 0.001)
}

func TestBuildRouterWithPatternsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.json")
	payload := `[{"name": "Acme", "pattern": "ACME[\\-_]\\d+", "description": "Acme invoices"}]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	r, err := buildRouter(path, 0)
	require.NoError(t, err)

	// File patterns are prepended to the built-in set.
	patterns := r.Patterns()
	require.NotEmpty(t, patterns)
	assert.Equal(t, "Acme", patterns[0].Name)
	assert.True(t, patterns[0].Regex.MatchString("acme-1234.pdf"), "patterns match case-insensitively")

	result := r.Route("/docs/ACME-0042.pdf")
	assert.Equal(t, model.RouteInvoice, result.Decision)
	assert.Equal(t, "Acme", result.ClientHint)
	assert.Equal(t, "Acme invoices", result.MatchedRule)
}

func TestBuildRouterRejectsBadPatternsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := buildRouter(path, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patterns file")
}
