package analysis

import (
	"context"
	"math"
	"strings"
)

// RiskLabels are the risk categories every classifier scores.
var RiskLabels = []string{
	"market_risk",
	"credit_risk",
	"liquidity_risk",
	"operational_risk",
	"compliance_risk",
	"legal_risk",
	"reputational_risk",
	"strategic_risk",
	"cybersecurity_risk",
}

var riskKeywords = map[string][]string{
	"market_risk":        {"market volatility", "interest rate", "exchange rate", "currency", "commodity price", "demand"},
	"credit_risk":        {"credit", "counterparty", "default", "bad debt", "receivable"},
	"liquidity_risk":     {"liquidity", "cash flow", "refinancing", "funding", "working capital"},
	"operational_risk":   {"disruption", "outage", "supply chain", "incident", "breakdown", "failure"},
	"compliance_risk":    {"regulatory", "non-compliance", "violation", "sanction", "regulation"},
	"legal_risk":         {"litigation", "lawsuit", "legal proceedings", "claim", "settlement"},
	"reputational_risk":  {"reputation", "scandal", "controversy", "negative publicity", "brand"},
	"strategic_risk":     {"competition", "competitor", "market share", "obsolescence", "strategy"},
	"cybersecurity_risk": {"cyber", "ransomware", "data breach", "hack", "phishing"},
}

// KeywordRiskClassifier scores each risk label by keyword hits.
type KeywordRiskClassifier struct{}

// NewKeywordRiskClassifier creates the deterministic risk classifier.
func NewKeywordRiskClassifier() *KeywordRiskClassifier { return &KeywordRiskClassifier{} }

// Classify implements interfaces.RiskClassifier. Every label is present; score = min(1, 0.35*hits).
func (k *KeywordRiskClassifier) Classify(_ context.Context, text string) (map[string]float64, error) {
	lower := strings.ToLower(text)
	scores := make(map[string]float64, len(RiskLabels))
	for _, label := range RiskLabels {
		hits := 0
		for _, kw := range riskKeywords[label] {
			hits += strings.Count(lower, kw)
		}
		scores[label] = math.Min(1, 0.35*float64(hits))
	}
	return scores, nil
}
