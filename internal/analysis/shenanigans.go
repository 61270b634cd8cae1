package analysis

import (
	"context"
	"math"
	"strings"
)

var shenanigansPatterns = map[string][]string{
	"premature_revenue_recognition": {"bill and hold", "bill-and-hold", "channel stuffing", "recognized revenue in advance", "premature revenue"},
	"fictitious_revenue":            {"round-trip", "round trip transaction", "sham sale", "fictitious"},
	"one_time_gains":                {"one-time gain", "non-recurring gain", "gain on sale", "gain on disposal"},
	"shifting_expenses":             {"capitalized expenses", "capitalised expenses", "deferred costs", "extended useful life"},
	"hidden_liabilities":            {"off-balance sheet", "special purpose entit", "unconsolidated entit"},
	"cash_flow_manipulation":        {"factoring", "sale of receivables", "reclassified to operating", "supplier finance"},
	"metric_manipulation":           {"adjusted ebitda", "non-gaap", "pro forma", "excluding one-off"},
	"restatement":                   {"restatement", "restated", "prior period error"},
}

// PatternShenanigans flags accounting red-flag phrasing.
type PatternShenanigans struct{}

// NewPatternShenanigans creates the deterministic red-flag detector.
func NewPatternShenanigans() *PatternShenanigans { return &PatternShenanigans{} }

// Detect implements interfaces.ShenanigansDetector. Only patterns with a hit are returned, scored
// min(1, 0.5+0.25*hits).
func (p *PatternShenanigans) Detect(_ context.Context, text string) (map[string]float64, error) {
	lower := strings.ToLower(text)
	out := make(map[string]float64)
	for label, phrases := range shenanigansPatterns {
		hits := 0
		for _, phrase := range phrases {
			hits += strings.Count(lower, phrase)
		}
		if hits > 0 {
			out[label] = math.Min(1, 0.5+0.25*float64(hits))
		}
	}
	return out, nil
}
