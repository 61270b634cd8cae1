// Package embeddings turns analyzed chunk text into vectors for the chunk index.
package embeddings

import (
	"context"
	"fmt"

	"report-analyzer/internal/config"
	"report-analyzer/pkg/interfaces"
)

// Factory creates embedder instances based on configuration
type Factory struct{}

// NewFactory creates a new embedder factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create creates an embedder instance based on the configuration
func (f *Factory) Create(cfg *config.EmbedderConfig) (interfaces.Embedder, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaEmbedder(cfg)
	case "openai":
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", cfg.Provider)
	}
}

// detectDimension embeds a short text to learn the vector size.
func detectDimension(e interfaces.Embedder) (int, error) {
	v, err := e.Embed(context.Background(), "dimension check")
	if err != nil {
		return 0, fmt.Errorf("failed to determine embedding dimension: %w", err)
	}
	return len(v), nil
}
