package router

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/transformahq/transforma-agent/internal/model"
)

// DefaultPatterns returns the built-in filename patterns, evaluated in order.
func DefaultPatterns() []model.RoutingPattern {
	specs := []struct {
		name        string
		expr        string
		description string
	}{
		{"GTBank", `GT[_\-\s]?(Bank|B).*inv`, "GTBank invoice filenames"},
		{"MTN", `MTN.*(?:invoice|bill|statement)`, "MTN billing documents"},
		{"Airtel", `Airtel.*(?:invoice|bill|statement)`, "Airtel billing documents"},
		{"ExecuJet", `WN\d{4,6}\.pdf`, "ExecuJet work order / invoice"},
		{"Generic", `(?:INV|INVOICE|BILL|RECEIPT|TAX[_\-\s]?INV)[\-_\s]?\d`, "Generic invoice filenames"},
		{"FIRS", `(?:FIRS|TIN|VAT)[\-_\s]`, "FIRS / tax-related documents"},
	}

	patterns := make([]model.RoutingPattern, 0, len(specs))
	for _, s := range specs {
		p, err := model.NewRoutingPattern(s.name, s.expr, s.description)
		if err != nil {
			// Built-in patterns are static; a failure here is a programming
			// error caught by tests.
			panic(err)
		}
		patterns = append(patterns, p)
	}
	return patterns
}

// patternSpec is the JSON shape of a custom pattern file entry.
type patternSpec struct {
	Name        string `json:"name"`
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
}

// LoadPatternsFile reads custom routing patterns from a JSON file of the form
// [{"name": "ClientX", "pattern": "CLX.*inv", "description": "..."}].
func LoadPatternsFile(path string) ([]model.RoutingPattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read patterns file: %w", err)
	}

	var specs []patternSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse patterns file: %w", err)
	}

	patterns := make([]model.RoutingPattern, 0, len(specs))
	for _, s := range specs {
		if s.Name == "" || s.Pattern == "" {
			return nil, fmt.Errorf("pattern entry missing name or pattern")
		}
		p, err := model.NewRoutingPattern(s.Name, s.Pattern, s.Description)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}
