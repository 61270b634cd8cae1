// Package analysis scores passages for sentiment, risk and accounting red flags, either through a
// hosted inference endpoint or through deterministic keyword scorers.
package analysis

import (
	"context"
	"regexp"
	"strings"

	"report-analyzer/pkg/interfaces"
)

var wordPattern = regexp.MustCompile(`[a-z][a-z'\-]*`)

var positiveWords = map[string]bool{
	"growth": true, "grew": true, "increase": true, "increased": true, "improved": true,
	"improvement": true, "record": true, "strong": true, "stronger": true, "profitable": true,
	"profitability": true, "resilient": true, "positive": true, "expansion": true, "expanded": true,
	"innovation": true, "opportunity": true, "opportunities": true, "beat": true, "exceeded": true,
	"surpassed": true, "gain": true, "gains": true, "robust": true, "outperformed": true,
	"success": true, "successful": true, "momentum": true, "confident": true, "upgrade": true,
}

var negativeWords = map[string]bool{
	"decline": true, "declined": true, "decrease": true, "decreased": true, "loss": true,
	"losses": true, "risk": true, "risks": true, "fraud": true, "weakness": true, "weak": true,
	"litigation": true, "inquiry": true, "investigation": true, "non-compliance": true,
	"violation": true, "breach": true, "impairment": true, "downgrade": true, "uncertainty": true,
	"challenging": true, "headwinds": true, "shortfall": true, "default": true, "restatement": true,
	"adverse": true, "deteriorated": true, "volatility": true, "penalty": true, "lawsuit": true,
}

// LexiconSentiment scores tone by counting positive and negative words.
type LexiconSentiment struct{}

// NewLexiconSentiment creates the keyword sentiment scorer.
func NewLexiconSentiment() *LexiconSentiment { return &LexiconSentiment{} }

// Analyze implements interfaces.SentimentAnalyzer.
func (l *LexiconSentiment) Analyze(_ context.Context, text string) (interfaces.Sentiment, error) {
	p, n := l.Count(text)
	return Distribution(p, n), nil
}

// Count returns the positive and negative word hits in text.
func (l *LexiconSentiment) Count(text string) (positive, negative int) {
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		switch {
		case positiveWords[w]:
			positive++
		case negativeWords[w]:
			negative++
		}
	}
	return positive, negative
}

// Distribution turns p positive and n negative hits into a sentiment that sums to one. The neutral
// share is one pseudo-count, so a lone hit does not beat neutral.
func Distribution(p, n int) interfaces.Sentiment {
	total := float64(p + n + 1)
	s := interfaces.Sentiment{
		Positive: float64(p) / total,
		Negative: float64(n) / total,
		Neutral:  1 / total,
	}
	s.Label = Label(s)
	return s
}

// Label returns the argmax label; ties go to neutral.
func Label(s interfaces.Sentiment) string {
	switch {
	case s.Positive > s.Neutral && s.Positive > s.Negative:
		return "positive"
	case s.Negative > s.Neutral && s.Negative > s.Positive:
		return "negative"
	default:
		return "neutral"
	}
}
