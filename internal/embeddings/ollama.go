package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"report-analyzer/internal/config"
	"report-analyzer/internal/transport"
)

// OllamaEmbedder implements the Embedder interface for Ollama
type OllamaEmbedder struct {
	baseURL   string
	model     string
	client    *transport.Client
	dimension int
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaEmbedder creates an embedder. Without a configured dimension one test embedding is made.
func NewOllamaEmbedder(cfg *config.EmbedderConfig) (*OllamaEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required for Ollama embedder")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required for Ollama embedder")
	}

	e := &OllamaEmbedder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  transport.NewClient(transport.Options{Timeout: 300 * time.Second}),
	}

	if cfg.Dimension != nil {
		e.dimension = *cfg.Dimension
		return e, nil
	}
	dim, err := detectDimension(e)
	if err != nil {
		return nil, err
	}
	e.dimension = dim
	return e, nil
}

// Embed generates the embedding for a single text
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp ollamaEmbedResponse
	req := ollamaEmbedRequest{Model: o.model, Prompt: text}
	if err := o.client.PostJSON(ctx, o.baseURL+"/api/embeddings", req, &resp); err != nil {
		return nil, fmt.Errorf("ollama embedding: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("received empty embedding for text: %s", prefix(text, 50))
	}
	return resp.Embedding, nil
}

// EmbedBatch embeds texts one request at a time, since /api/embeddings takes a single prompt.
func (o *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v, err := o.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// GetDimension returns the dimension of the embeddings
func (o *OllamaEmbedder) GetDimension() int {
	return o.dimension
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
