package analysis

import (
	"context"
	"fmt"
	"reflect"

	"report-analyzer/internal/config"
	"report-analyzer/internal/transport"
	"report-analyzer/pkg/interfaces"
)

// WithFallback runs primary and, when it is nil or fails, runs fallback instead. The returned note
// is empty unless the fallback was used.
func WithFallback[T any](ctx context.Context, name string, primary, fallback func(context.Context) (T, error)) (T, string, error) {
	var note string
	if primary != nil {
		out, err := primary(ctx)
		if err == nil {
			return out, "", nil
		}
		if ctx.Err() != nil {
			var zero T
			return zero, "", ctx.Err()
		}
		note = fmt.Sprintf("%s model failed, using fallback: %v", name, err)
	} else {
		note = fmt.Sprintf("%s model unavailable, using fallback", name)
	}

	out, err := fallback(ctx)
	if err != nil {
		var zero T
		return zero, note, fmt.Errorf("%s fallback failed: %w", name, err)
	}
	return out, note, nil
}

// Suite bundles the model-backed analyzers with their deterministic fallbacks. Any primary may be nil.
type Suite struct {
	Sentiment   interfaces.SentimentAnalyzer
	Risk        interfaces.RiskClassifier
	Shenanigans interfaces.ShenanigansDetector

	fallbackSentiment   interfaces.SentimentAnalyzer
	fallbackRisk        interfaces.RiskClassifier
	fallbackShenanigans interfaces.ShenanigansDetector
}

// NewDeterministicSuite returns a suite that only uses the keyword scorers.
func NewDeterministicSuite() *Suite {
	return &Suite{
		fallbackSentiment:   NewLexiconSentiment(),
		fallbackRisk:        NewKeywordRiskClassifier(),
		fallbackShenanigans: NewPatternShenanigans(),
	}
}

// NewSuite builds the suite from configuration. Inference is used only when enabled.
func NewSuite(cfg *config.InferenceConfig, limiter *transport.Limiter) (*Suite, error) {
	s := NewDeterministicSuite()
	if cfg == nil || !cfg.Enabled {
		return s, nil
	}

	client, err := NewInferenceClient(cfg, limiter)
	if err != nil {
		return nil, err
	}
	s.Sentiment = client
	s.Risk = client
	s.Shenanigans = client
	return s, nil
}

// AnalyzeSentiment scores text, falling back to the lexicon.
func (s *Suite) AnalyzeSentiment(ctx context.Context, text string) (interfaces.Sentiment, string, error) {
	var primary func(context.Context) (interfaces.Sentiment, error)
	if !isNil(s.Sentiment) {
		primary = func(ctx context.Context) (interfaces.Sentiment, error) { return s.Sentiment.Analyze(ctx, text) }
	}
	return WithFallback(ctx, "sentiment", primary, func(ctx context.Context) (interfaces.Sentiment, error) {
		return s.fallbackSentiment.Analyze(ctx, text)
	})
}

// ClassifyRisk scores risk labels, falling back to keywords.
func (s *Suite) ClassifyRisk(ctx context.Context, text string) (map[string]float64, string, error) {
	var primary func(context.Context) (map[string]float64, error)
	if !isNil(s.Risk) {
		primary = func(ctx context.Context) (map[string]float64, error) { return s.Risk.Classify(ctx, text) }
	}
	return WithFallback(ctx, "risk", primary, func(ctx context.Context) (map[string]float64, error) {
		return s.fallbackRisk.Classify(ctx, text)
	})
}

// DetectShenanigans scores red-flag patterns, falling back to phrase matching.
func (s *Suite) DetectShenanigans(ctx context.Context, text string) (map[string]float64, string, error) {
	var primary func(context.Context) (map[string]float64, error)
	if !isNil(s.Shenanigans) {
		primary = func(ctx context.Context) (map[string]float64, error) { return s.Shenanigans.Detect(ctx, text) }
	}
	return WithFallback(ctx, "shenanigans", primary, func(ctx context.Context) (map[string]float64, error) {
		return s.fallbackShenanigans.Detect(ctx, text)
	})
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
