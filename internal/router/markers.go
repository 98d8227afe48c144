package router

import (
	"sort"
	"strings"
)

// marker is a weighted content keyword. Weights are additive over distinct
// markers and the sum is clamped at 1.0.
type marker struct {
	text   string
	weight float64
}

// markerTable in priority order: the first matched marker in this order names
// the decision.
var markerTable = []marker{
	{"TAX INVOICE", 0.40},
	{"INVOICE", 0.25},
	{"BILL TO", 0.20},
	{"SHIP TO", 0.15},
	{"TIN:", 0.30},
	{"VAT:", 0.20},
	{"TOTAL AMOUNT", 0.15},
	{"SUBTOTAL", 0.15},
	{"DUE DATE", 0.15},
	{"INVOICE NO", 0.30},
	{"INVOICE NUMBER", 0.30},
	{"INV NO", 0.25},
	{"PURCHASE ORDER", 0.20},
	{"ACCOUNT NO", 0.10},
	{"FIRS", 0.25},
}

// markersByLength evaluates longer markers first so a nested marker is
// counted once: text containing "TAX INVOICE" scores it alone, not also
// "INVOICE".
var markersByLength = func() []marker {
	sorted := make([]marker, len(markerTable))
	copy(sorted, markerTable)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].text) > len(sorted[j].text)
	})
	return sorted
}()

// scoreMarkers sums the weights of distinct markers found in upper (already
// uppercased). Matched spans are masked before shorter markers are tried.
func scoreMarkers(upper string) (float64, map[string]bool) {
	matched := make(map[string]bool)
	score := 0.0

	for _, m := range markersByLength {
		if strings.Contains(upper, m.text) {
			score += m.weight
			matched[m.text] = true
			upper = strings.ReplaceAll(upper, m.text, strings.Repeat("\x00", len(m.text)))
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, matched
}

// firstByTableOrder returns the highest-priority matched marker.
func firstByTableOrder(matched map[string]bool) string {
	for _, m := range markerTable {
		if matched[m.text] {
			return m.text
		}
	}
	return ""
}
