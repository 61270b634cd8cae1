// Package llm provides the section summarizers used by the llm runtime.
package llm

import (
	"fmt"

	"report-analyzer/internal/config"
	"report-analyzer/internal/transport"
	"report-analyzer/pkg/interfaces"
)

// Factory implements interfaces.SummarizerFactory
type Factory struct {
	limiter *transport.Limiter
}

// NewFactory creates a summarizer factory. Every summarizer it creates shares limiter.
func NewFactory(limiter *transport.Limiter) *Factory {
	return &Factory{limiter: limiter}
}

// Create creates a summarizer for the configured provider.
func (f *Factory) Create(cfg *config.LLMConfig) (interfaces.Summarizer, error) {
	if cfg == nil || cfg.Provider == "" {
		return nil, interfaces.ErrProviderNotConfigured
	}

	limiter := f.limiter
	if limiter == nil {
		limiter = transport.NewLimiter(cfg.RequestsPerSecond, 0)
	}

	switch cfg.Provider {
	case "openai":
		s, err := NewOpenAISummarizer(cfg, limiter)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "ollama":
		return NewOllamaSummarizer(cfg, limiter), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// UseLLM reports whether section summaries should come from the summarizer for this configuration.
func UseLLM(cfg *config.AnalyzerConfig) bool {
	switch cfg.Runtime {
	case config.RuntimeLLM:
		return true
	case config.RuntimeDeterministic:
		return false
	default:
		return cfg.LLM.Provider != ""
	}
}
