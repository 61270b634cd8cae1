package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"report-analyzer/internal/config"
)

var knownDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// OpenAIEmbedder implements the Embedder interface for OpenAI-compatible embedding endpoints
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewOpenAIEmbedder creates an embedder. Known models get their dimension without a request.
func NewOpenAIEmbedder(cfg *config.EmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for OpenAI embedder")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required for OpenAI embedder")
	}

	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	e := &OpenAIEmbedder{
		client: openai.NewClientWithConfig(openaiConfig),
		model:  cfg.Model,
	}

	switch {
	case cfg.Dimension != nil:
		e.dimension = *cfg.Dimension
	case knownDimensions[cfg.Model] > 0:
		e.dimension = knownDimensions[cfg.Model]
	default:
		dim, err := detectDimension(e)
		if err != nil {
			return nil, err
		}
		e.dimension = dim
	}
	return e, nil
}

// Embed generates the embedding for a single text
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds all texts in one request.
func (o *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("received %d embeddings but expected %d", len(resp.Data), len(texts))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		v := make([]float64, len(d.Embedding))
		for i, f := range d.Embedding {
			v[i] = float64(f)
		}
		out[d.Index] = v
	}
	return out, nil
}

// GetDimension returns the dimension of the embeddings
func (o *OpenAIEmbedder) GetDimension() int {
	return o.dimension
}
