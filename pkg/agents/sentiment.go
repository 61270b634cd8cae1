package agents

import (
	"context"
	"fmt"
	"time"

	"report-analyzer/pkg/interfaces"
	"report-analyzer/pkg/state"
)

const highRiskPatternScore = 0.7

// SentimentOutput is the result of the sentiment sub-agent
type SentimentOutput struct {
	Sentiment           interfaces.Sentiment `json:"sentiment"`
	SentimentScore      float64              `json:"sentiment_score"`
	ShenanigansPatterns map[string]float64   `json:"shenanigans_patterns"`
	HighRiskPatterns    []string             `json:"high_risk_patterns"`
	OverallAssessment   string               `json:"overall_assessment"`
}

// SentimentAgent scores tone and accounting red flags.
type SentimentAgent struct {
	base
}

// NewSentimentAgent creates the sentiment sub-agent of a section.
func NewSentimentAgent(section interfaces.SectionName, parent string, deps *Deps) *SentimentAgent {
	return &SentimentAgent{base: newBase(section, KindSentiment, parent, deps)}
}

// Process scores content and records a sentiment finding for the section.
func (a *SentimentAgent) Process(ctx context.Context, content string, c Context) (*Result, error) {
	start := time.Now()
	var errs []string

	sentiment, note, err := a.deps.Analysis.AnalyzeSentiment(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}
	if note != "" {
		errs = append(errs, note)
	}

	patterns, note, err := a.deps.Analysis.DetectShenanigans(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}
	if note != "" {
		errs = append(errs, note)
	}

	highRisk := []string{}
	for _, name := range sortedKeys(patterns) {
		if patterns[name] > highRiskPatternScore {
			highRisk = append(highRisk, name)
		}
	}

	score := sentiment.Positive + 0.5*sentiment.Neutral
	if len(highRisk) > 0 {
		score *= 0.7
	}

	out := &SentimentOutput{
		Sentiment:           sentiment,
		SentimentScore:      score,
		ShenanigansPatterns: patterns,
		HighRiskPatterns:    highRisk,
		OverallAssessment:   assessSentiment(sentiment.Label, len(highRisk) > 0),
	}

	s := sentiment
	a.deps.Board.AddSectionFinding(c.Section, state.Finding{
		Type:      "sentiment_analysis",
		ChunkID:   c.ChunkID,
		Sentiment: &s,
		Data: map[string]any{
			"sentiment_score":    score,
			"high_risk_patterns": highRisk,
			"overall_assessment": out.OverallAssessment,
		},
	})

	confidence := 0.9
	if len(errs) > 0 {
		confidence = 0.6
	}
	return a.finish(c, start, out, confidence, errs), nil
}

func assessSentiment(label string, flagged bool) string {
	if flagged {
		return fmt.Sprintf("CAUTION: %s sentiment with potential financial manipulation indicators detected", label)
	}
	switch label {
	case "positive":
		return "Positive sentiment indicating healthy outlook"
	case "negative":
		return "Negative sentiment suggesting concerns or challenges"
	default:
		return "Neutral sentiment with balanced tone"
	}
}
