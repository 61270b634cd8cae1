package llm

import (
	"context"
	"strings"
	"time"

	"report-analyzer/internal/config"
	"report-analyzer/internal/transport"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://localhost:11434"

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// OllamaSummarizer calls the Ollama /api/chat endpoint without streaming.
type OllamaSummarizer struct {
	baseURL string
	model   string
	options map[string]any
	client  *transport.Client
}

// NewOllamaSummarizer creates a summarizer for a local Ollama server.
func NewOllamaSummarizer(cfg *config.LLMConfig, limiter *transport.Limiter) *OllamaSummarizer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}

	options := map[string]any{"temperature": cfg.Temperature}
	if cfg.MaxTokens > 0 {
		options["num_predict"] = cfg.MaxTokens
	}

	return &OllamaSummarizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   cfg.Model,
		options: options,
		client: transport.NewClient(transport.Options{
			Timeout: time.Duration(cfg.Timeout * float64(time.Second)),
			Limiter: limiter,
		}),
	}
}

// Name returns the provider name
func (s *OllamaSummarizer) Name() string { return "ollama" }

// Summarize sends the prompt pair to /api/chat.
func (s *OllamaSummarizer) Summarize(ctx context.Context, system, prompt string) (string, error) {
	req := ollamaChatRequest{
		Model: s.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Stream:  false,
		Options: s.options,
	}

	var resp ollamaChatResponse
	if err := s.client.PostJSON(ctx, s.baseURL+"/api/chat", req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &transport.ProviderError{Code: transport.ErrBadResponse, Message: resp.Error}
	}
	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return "", &transport.ProviderError{Code: transport.ErrBadResponse, Message: "empty completion"}
	}
	return content, nil
}
