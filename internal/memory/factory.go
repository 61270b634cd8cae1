package memory

import (
	"fmt"

	"report-analyzer/internal/config"
	"report-analyzer/pkg/interfaces"
)

// Factory creates long-term stores from configuration
type Factory struct{}

// NewFactory creates a new memory store factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create returns the store selected by cfg.Backend.
func (f *Factory) Create(cfg *config.MemoryConfig) (interfaces.MemoryStore, error) {
	switch cfg.Backend {
	case "file", "":
		store, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		store, err := OpenSQLStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported memory backend: %s", cfg.Backend)
	}
}
