package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Overrides are the environment switches layered on top of the file configuration.
type Overrides struct {
	ForceLLM       bool    `env:"ANNUAL_FORCE_LLM"`
	ForceFallback  bool    `env:"ANNUAL_FORCE_FALLBACK"`
	WebSearch      *bool   `env:"ANNUAL_ENABLE_WEB_SEARCH"`
	Finance        *bool   `env:"ANNUAL_ENABLE_FINANCE"`
	News           *bool   `env:"ANNUAL_ENABLE_NEWS"`
	LLMAPIKey      string  `env:"ANNUAL_LLM_API_KEY"`
	InferenceKey   string  `env:"ANNUAL_INFERENCE_API_KEY"`
	SerpAPIKey     string  `env:"SERPAPI_KEY"`
	AlphaVantage   string  `env:"ALPHAVANTAGE_KEY"`
	NewsAPIKey     string  `env:"NEWSAPI_KEY"`
	LogLevel       string  `env:"ANNUAL_LOG_LEVEL"`
	MaxConcurrency *int    `env:"ANNUAL_MAX_CONCURRENCY"`
	OutputDir      string  `env:"ANNUAL_OUTPUT_DIR"`
	LLMRate        float64 `env:"ANNUAL_LLM_RPS"`
}

// ParseEnv loads the overrides from environment variables.
func ParseEnv() (Overrides, error) {
	var o Overrides
	if err := env.Parse(&o); err != nil {
		return o, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// ApplyEnv layers environment overrides onto cfg.
func ApplyEnv(cfg *AnalyzerConfig) error {
	o, err := ParseEnv()
	if err != nil {
		return err
	}
	o.Apply(cfg)
	return nil
}

// Apply copies every set override into cfg. ForceFallback wins over ForceLLM.
func (o Overrides) Apply(cfg *AnalyzerConfig) {
	if o.ForceLLM {
		cfg.Runtime = RuntimeLLM
	}
	if o.ForceFallback {
		cfg.Runtime = RuntimeDeterministic
	}
	if o.WebSearch != nil {
		cfg.External.WebSearch.Enabled = *o.WebSearch
	}
	if o.Finance != nil {
		cfg.External.Finance.Enabled = *o.Finance
	}
	if o.News != nil {
		cfg.External.News.Enabled = *o.News
	}
	if o.LLMAPIKey != "" {
		cfg.LLM.APIKey = o.LLMAPIKey
	}
	if o.InferenceKey != "" {
		cfg.Inference.APIKey = o.InferenceKey
	}
	if o.SerpAPIKey != "" {
		cfg.External.WebSearch.APIKey = o.SerpAPIKey
	}
	if o.AlphaVantage != "" {
		cfg.External.Finance.APIKey = o.AlphaVantage
	}
	if o.NewsAPIKey != "" {
		cfg.External.News.APIKey = o.NewsAPIKey
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.MaxConcurrency != nil {
		cfg.MaxConcurrency = *o.MaxConcurrency
	}
	if o.OutputDir != "" {
		cfg.OutputDir = o.OutputDir
	}
	if o.LLMRate > 0 {
		cfg.LLM.RequestsPerSecond = o.LLMRate
	}
}
