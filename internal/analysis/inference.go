package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"report-analyzer/internal/config"
	"report-analyzer/internal/transport"
	"report-analyzer/pkg/interfaces"
)

// MaxInferenceChars truncates text sent to hosted models.
const MaxInferenceChars = 2048

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type zeroShotResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// InferenceClient calls a HuggingFace-style hosted inference API.
type InferenceClient struct {
	cfg    *config.InferenceConfig
	client *transport.Client
}

// NewInferenceClient creates a client for the configured models.
func NewInferenceClient(cfg *config.InferenceConfig, limiter *transport.Limiter) (*InferenceClient, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: inference base_url is empty", interfaces.ErrProviderNotConfigured)
	}

	timeout := time.Duration(cfg.Timeout * float64(time.Second))
	return &InferenceClient{
		cfg: cfg,
		client: transport.NewClient(transport.Options{
			Timeout:     timeout,
			BearerToken: cfg.APIKey,
			Limiter:     limiter,
		}),
	}, nil
}

func (c *InferenceClient) modelURL(model string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(model, "/")
}

// Analyze implements interfaces.SentimentAnalyzer against a text-classification model.
func (c *InferenceClient) Analyze(ctx context.Context, text string) (interfaces.Sentiment, error) {
	scores, err := c.classify(ctx, c.cfg.SentimentModel, text)
	if err != nil {
		return interfaces.Sentiment{}, fmt.Errorf("sentiment inference failed: %w", err)
	}

	var s interfaces.Sentiment
	for _, ls := range scores {
		label := strings.ToLower(ls.Label)
		switch {
		case strings.Contains(label, "pos"):
			s.Positive += ls.Score
		case strings.Contains(label, "neg"):
			s.Negative += ls.Score
		case strings.Contains(label, "neu"):
			s.Neutral += ls.Score
		}
	}

	total := s.Positive + s.Negative + s.Neutral
	if total <= 0 {
		return interfaces.Sentiment{}, &transport.ProviderError{
			Code:    transport.ErrBadResponse,
			Message: "sentiment response carried no positive, negative or neutral label",
		}
	}
	s.Positive /= total
	s.Negative /= total
	s.Neutral /= total
	s.Label = Label(s)
	return s, nil
}

// Detect implements interfaces.ShenanigansDetector.
func (c *InferenceClient) Detect(ctx context.Context, text string) (map[string]float64, error) {
	scores, err := c.classify(ctx, c.cfg.ShenanigansModel, text)
	if err != nil {
		return nil, fmt.Errorf("shenanigans inference failed: %w", err)
	}
	out := make(map[string]float64, len(scores))
	for _, ls := range scores {
		out[strings.ToLower(ls.Label)] = ls.Score
	}
	return out, nil
}

// Classify implements interfaces.RiskClassifier with a zero-shot model.
func (c *InferenceClient) Classify(ctx context.Context, text string) (map[string]float64, error) {
	candidates := make([]string, len(RiskLabels))
	for i, l := range RiskLabels {
		candidates[i] = strings.ReplaceAll(l, "_", " ")
	}

	req := map[string]any{
		"inputs": truncate(text),
		"parameters": map[string]any{
			"candidate_labels": candidates,
			"multi_label":      true,
		},
	}

	var resp zeroShotResponse
	if err := c.client.PostJSON(ctx, c.modelURL(c.cfg.ZeroShotModel), req, &resp); err != nil {
		return nil, fmt.Errorf("risk inference failed: %w", err)
	}
	if len(resp.Labels) == 0 || len(resp.Labels) != len(resp.Scores) {
		return nil, &transport.ProviderError{Code: transport.ErrBadResponse, Message: "zero-shot response has mismatched labels and scores"}
	}

	out := make(map[string]float64, len(resp.Labels))
	for i, label := range resp.Labels {
		out[strings.ReplaceAll(strings.ToLower(label), " ", "_")] = resp.Scores[i]
	}
	return out, nil
}

// classify posts to a text-classification model. The API answers either [[{label,score}]] or
// [{label,score}]; both are accepted.
func (c *InferenceClient) classify(ctx context.Context, model, text string) ([]labelScore, error) {
	if model == "" {
		return nil, fmt.Errorf("%w: model name is empty", interfaces.ErrProviderNotConfigured)
	}

	var raw json.RawMessage
	req := map[string]any{
		"inputs":  truncate(text),
		"options": map[string]any{"wait_for_model": true},
	}
	if err := c.client.PostJSON(ctx, c.modelURL(model), req, &raw); err != nil {
		return nil, err
	}

	var nested [][]labelScore
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 {
		return nested[0], nil
	}
	var flat []labelScore
	if err := json.Unmarshal(raw, &flat); err == nil && len(flat) > 0 {
		return flat, nil
	}
	return nil, &transport.ProviderError{Code: transport.ErrBadResponse, Message: "unexpected classification payload"}
}

func truncate(text string) string {
	r := []rune(text)
	if len(r) <= MaxInferenceChars {
		return text
	}
	return string(r[:MaxInferenceChars])
}
