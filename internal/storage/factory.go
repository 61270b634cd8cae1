package storage

import (
	"context"
	"time"

	"report-analyzer/internal/config"
	"report-analyzer/pkg/interfaces"
)

const connectTimeout = 30 * time.Second

// Factory creates database client instances based on configuration
type Factory struct{}

// NewFactory creates a new storage factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create connects to the configured Milvus instance.
func (f *Factory) Create(cfg *config.DatabaseConfig, embeddingDim int) (interfaces.DatabaseClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	c, err := NewMilvusClient(ctx, cfg, embeddingDim)
	if err != nil {
		return nil, err
	}
	return c, nil
}
