package interfaces

import (
	"context"
	"time"

	"report-analyzer/internal/config"
)

// SentimentAnalyzer scores the tone of a passage
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, text string) (Sentiment, error)
}

// RiskClassifier scores a passage against the risk labels
type RiskClassifier interface {
	Classify(ctx context.Context, text string) (map[string]float64, error)
}

// ShenanigansDetector scores accounting red-flag patterns
type ShenanigansDetector interface {
	Detect(ctx context.Context, text string) (map[string]float64, error)
}

// Summarizer produces prose from a system prompt and user prompt
type Summarizer interface {
	Summarize(ctx context.Context, system, prompt string) (string, error)
	Name() string
}

// Embedder generates vector embeddings for text
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	GetDimension() int
}

// DatabaseClient provides vector database operations for analyzed chunks
type DatabaseClient interface {
	CreateCollection(ctx context.Context, recreate bool) error
	InsertChunks(ctx context.Context, chunks []IndexedChunk) error
	CheckDuplicate(ctx context.Context, source string, chunkIndex int) (bool, error)
	Search(ctx context.Context, vector []float64, limit int, section string) ([]SearchResult, error)
	Close() error
}

// WebSearcher runs web searches for an entity
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// FinanceProvider fetches company ratios
type FinanceProvider interface {
	Overview(ctx context.Context, symbol string) (*FinanceOverview, error)
}

// NewsProvider fetches recent headlines
type NewsProvider interface {
	Headlines(ctx context.Context, query string, since time.Time, limit int) ([]NewsArticle, error)
}

// MemoryStore is long-term agent memory keyed by agent and section
type MemoryStore interface {
	Upsert(ctx context.Context, agent, section, key string, value MemoryValue) error
	QueryAll(ctx context.Context, agent, section string) ([]MemoryRecord, error)
	Close() error
}

// Factory interfaces for creating components

// SummarizerFactory creates summarizers
type SummarizerFactory interface {
	Create(cfg *config.LLMConfig) (Summarizer, error)
}

// EmbedderFactory creates embedders
type EmbedderFactory interface {
	Create(cfg *config.EmbedderConfig) (Embedder, error)
}

// DatabaseFactory creates database clients
type DatabaseFactory interface {
	Create(cfg *config.DatabaseConfig, embeddingDim int) (DatabaseClient, error)
}

// MemoryFactory creates long-term memory stores
type MemoryFactory interface {
	Create(cfg *config.MemoryConfig) (MemoryStore, error)
}

// ComponentRegistry manages all component factories
type ComponentRegistry struct {
	Summarizers SummarizerFactory
	Embedders   EmbedderFactory
	Databases   DatabaseFactory
	Memories    MemoryFactory
}
