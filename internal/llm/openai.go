package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"report-analyzer/internal/config"
	"report-analyzer/internal/transport"
	"report-analyzer/pkg/interfaces"
)

// OpenAISummarizer calls an OpenAI-compatible chat completion endpoint.
type OpenAISummarizer struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	limiter     *transport.Limiter
}

// NewOpenAISummarizer creates a summarizer. BaseURL may point at any OpenAI-compatible server.
func NewOpenAISummarizer(cfg *config.LLMConfig, limiter *transport.Limiter) (*OpenAISummarizer, error) {
	if cfg == nil || cfg.Model == "" {
		return nil, fmt.Errorf("%w: openai model is empty", interfaces.ErrProviderNotConfigured)
	}

	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		openaiConfig.HTTPClient = &http.Client{Timeout: time.Duration(cfg.Timeout * float64(time.Second))}
	}

	return &OpenAISummarizer{
		client:      openai.NewClientWithConfig(openaiConfig),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		limiter:     limiter,
	}, nil
}

// Name returns the provider name
func (s *OpenAISummarizer) Name() string { return "openai" }

// Summarize sends a system and user message and returns the first choice.
func (s *OpenAISummarizer) Summarize(ctx context.Context, system, prompt string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", NormalizeOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &transport.ProviderError{Code: transport.ErrBadResponse, Message: "no choices returned"}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// NormalizeOpenAIError converts go-openai errors into ProviderErrors using the HTTP status.
func NormalizeOpenAIError(err error) *transport.ProviderError {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		if pe := transport.Classify(apiErr.HTTPStatusCode, apiErr.Message); pe != nil {
			return pe
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		if pe := transport.Classify(reqErr.HTTPStatusCode, reqErr.Error()); pe != nil {
			return pe
		}
	}
	return transport.NormalizeError(err)
}
