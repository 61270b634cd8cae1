package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Runtime values select how section summaries are produced.
const (
	RuntimeAuto          = "auto"
	RuntimeLLM           = "llm"
	RuntimeDeterministic = "deterministic"
)

// AnalyzerConfig contains all configuration for the analysis pipeline
type AnalyzerConfig struct {
	// Output locations
	OutputDir    string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir" validate:"required"`
	KnowledgeDir string `json:"knowledge_dir" yaml:"knowledge_dir" mapstructure:"knowledge_dir"`

	// Processing settings
	MaxChunkChars   int    `json:"max_chunk_chars" yaml:"max_chunk_chars" mapstructure:"max_chunk_chars" validate:"min=100,max=100000"`
	MaxConcurrency  int    `json:"max_concurrency" yaml:"max_concurrency" mapstructure:"max_concurrency" validate:"min=1,max=64"`
	CheckpointEvery int    `json:"checkpoint_every" yaml:"checkpoint_every" mapstructure:"checkpoint_every" validate:"min=0"`
	Runtime         string `json:"runtime" yaml:"runtime" mapstructure:"runtime" validate:"required,oneof=auto llm deterministic"`

	// Components
	LLM       LLMConfig       `json:"llm" yaml:"llm" mapstructure:"llm"`
	Inference InferenceConfig `json:"inference" yaml:"inference" mapstructure:"inference"`
	External  ExternalConfig  `json:"external" yaml:"external" mapstructure:"external"`
	Memory    MemoryConfig    `json:"memory" yaml:"memory" mapstructure:"memory" validate:"required"`
	Index     IndexConfig     `json:"index" yaml:"index" mapstructure:"index"`
	Server    ServerConfig    `json:"server" yaml:"server" mapstructure:"server"`

	// Logging
	LogLevel  string `json:"log_level" yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	LogFormat string `json:"log_format" yaml:"log_format" mapstructure:"log_format" validate:"omitempty,oneof=console json"`
}

// LLMConfig configuration for the language model used by the llm runtime
type LLMConfig struct {
	Provider          string  `json:"provider" yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=openai ollama"`
	Model             string  `json:"model" yaml:"model" mapstructure:"model"`
	BaseURL           string  `json:"base_url" yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	APIKey            string  `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	Temperature       float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature" validate:"min=0,max=2"`
	MaxTokens         int     `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens" validate:"min=0,max=32000"`
	Timeout           float64 `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"min=0,max=3600"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"min=0"`
}

// InferenceConfig points the sentiment, shenanigans and risk analyzers at a hosted model endpoint.
type InferenceConfig struct {
	Enabled           bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	BaseURL           string  `json:"base_url" yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	APIKey            string  `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	SentimentModel    string  `json:"sentiment_model" yaml:"sentiment_model" mapstructure:"sentiment_model"`
	ShenanigansModel  string  `json:"shenanigans_model" yaml:"shenanigans_model" mapstructure:"shenanigans_model"`
	ZeroShotModel     string  `json:"zero_shot_model" yaml:"zero_shot_model" mapstructure:"zero_shot_model"`
	Timeout           float64 `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"min=0,max=3600"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"min=0"`
}

// EndpointConfig is a toggleable third-party API.
type EndpointConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// ExternalConfig groups the external intelligence sources
type ExternalConfig struct {
	WebSearch         EndpointConfig `json:"web_search" yaml:"web_search" mapstructure:"web_search"`
	Finance           EndpointConfig `json:"finance" yaml:"finance" mapstructure:"finance"`
	News              EndpointConfig `json:"news" yaml:"news" mapstructure:"news"`
	NewsWindowDays    int            `json:"news_window_days" yaml:"news_window_days" mapstructure:"news_window_days" validate:"min=1,max=365"`
	RequestsPerSecond float64        `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"min=0"`
}

// MemoryConfig configuration for long-term agent memory
type MemoryConfig struct {
	Backend    string `json:"backend" yaml:"backend" mapstructure:"backend" validate:"required,oneof=file sqlite"`
	Dir        string `json:"dir" yaml:"dir" mapstructure:"dir"`
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// EmbedderConfig configuration for the embedding model used by the chunk index
type EmbedderConfig struct {
	Provider  string `json:"provider" yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=ollama openai"`
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	Model     string `json:"model" yaml:"model" mapstructure:"model"`
	BaseURL   string `json:"base_url" yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	Dimension *int   `json:"dimension,omitempty" yaml:"dimension,omitempty" mapstructure:"dimension" validate:"omitempty,min=1,max=4096"`
}

// DatabaseConfig configuration for the vector database
type DatabaseConfig struct {
	Host       string `json:"host" yaml:"host" mapstructure:"host"`
	Port       int    `json:"port" yaml:"port" mapstructure:"port" validate:"min=0,max=65535"`
	Username   string `json:"username" yaml:"username" mapstructure:"username"`
	Password   string `json:"password" yaml:"password" mapstructure:"password"`
	Collection string `json:"collection" yaml:"collection" mapstructure:"collection"`
	Recreate   bool   `json:"recreate" yaml:"recreate" mapstructure:"recreate"`
}

// IndexConfig enables pushing analyzed chunks into the vector database
type IndexConfig struct {
	Enabled    bool           `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Embeddings EmbedderConfig `json:"embeddings" yaml:"embeddings" mapstructure:"embeddings"`
	Database   DatabaseConfig `json:"database" yaml:"database" mapstructure:"database"`
}

// ServerConfig configuration for the HTTP API
type ServerConfig struct {
	Addr         string  `json:"addr" yaml:"addr" mapstructure:"addr"`
	ReadTimeout  float64 `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout" validate:"min=0"`
	WriteTimeout float64 `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout" validate:"min=0"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *AnalyzerConfig {
	return &AnalyzerConfig{
		OutputDir:       "output",
		KnowledgeDir:    "",
		MaxChunkChars:   3000,
		MaxConcurrency:  4,
		CheckpointEvery: 10,
		Runtime:         RuntimeAuto,
		LLM: LLMConfig{
			Provider:          "",
			Model:             "gpt-4o-mini",
			Temperature:       0.2,
			MaxTokens:         600,
			Timeout:           120,
			RequestsPerSecond: 2,
		},
		Inference: InferenceConfig{
			Enabled:           false,
			BaseURL:           "https://api-inference.huggingface.co/models",
			SentimentModel:    "ProsusAI/finbert",
			ShenanigansModel:  "harikrushna2272/finbert-shenanigans",
			ZeroShotModel:     "facebook/bart-large-mnli",
			Timeout:           60,
			RequestsPerSecond: 2,
		},
		External: ExternalConfig{
			WebSearch: EndpointConfig{BaseURL: "https://serpapi.com"},
			Finance:   EndpointConfig{BaseURL: "https://www.alphavantage.co"},
			News:      EndpointConfig{BaseURL: "https://newsapi.org"},

			NewsWindowDays:    7,
			RequestsPerSecond: 1,
		},
		Memory: MemoryConfig{
			Backend:    "file",
			Dir:        "memory_store",
			SQLitePath: "memory_store/memory.db",
		},
		Index: IndexConfig{
			Enabled: false,
			Embeddings: EmbedderConfig{
				Provider: "ollama",
				Model:    "all-minilm:v2",
				BaseURL:  "http://localhost:11434",
			},
			Database: DatabaseConfig{
				Host:       "localhost",
				Port:       19530,
				Username:   "root",
				Password:   "Milvus",
				Collection: "report_chunks",
			},
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30,
			WriteTimeout: 300,
		},
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// LoadConfigFromFile loads configuration from a JSON or YAML file
func LoadConfigFromFile(path string) (*AnalyzerConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Load resolves the configuration file to use. An empty path searches the working directory and
// falls back to defaults when nothing is found.
func Load(path string) (*AnalyzerConfig, string, error) {
	if path == "" {
		for _, candidate := range []string{
			"analyzer-config.json",
			"analyzer-config.yaml",
			"analyzer-config.yml",
		} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path == "" {
		cfg := DefaultConfig()
		if err := ApplyEnv(cfg); err != nil {
			return nil, "", err
		}
		if err := cfg.Validate(); err != nil {
			return nil, "", fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, "", nil
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, "", fmt.Errorf("unsupported config file format: %s", ext)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Validate validates the configuration
func (c *AnalyzerConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Runtime == RuntimeLLM && c.LLM.Provider == "" {
		return fmt.Errorf("runtime %q requires llm.provider", RuntimeLLM)
	}
	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.api_key is required for the openai provider")
	}
	if c.LLM.Provider == "ollama" && c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required for the ollama provider")
	}
	if c.Memory.Backend == "file" && c.Memory.Dir == "" {
		return fmt.Errorf("memory.dir is required for the file backend")
	}
	if c.Memory.Backend == "sqlite" && c.Memory.SQLitePath == "" {
		return fmt.Errorf("memory.sqlite_path is required for the sqlite backend")
	}
	if c.Index.Enabled {
		if c.Index.Database.Collection == "" {
			return fmt.Errorf("index.database.collection is required when the index is enabled")
		}
		if c.Index.Embeddings.Model == "" {
			return fmt.Errorf("index.embeddings.model is required when the index is enabled")
		}
		if c.Index.Embeddings.Provider == "openai" && c.Index.Embeddings.APIKey == "" {
			return fmt.Errorf("index.embeddings.api_key is required for the openai provider")
		}
		if c.Index.Embeddings.Provider != "openai" && c.Index.Embeddings.BaseURL == "" {
			return fmt.Errorf("index.embeddings.base_url is required for the ollama provider")
		}
	}

	return nil
}

// KnowledgeStoreDir returns where the knowledge graph is persisted.
func (c *AnalyzerConfig) KnowledgeStoreDir() string {
	if c.KnowledgeDir != "" {
		return c.KnowledgeDir
	}
	return filepath.Join(c.OutputDir, "knowledge_store")
}

// SaveToFile saves the configuration to a file, as YAML when the extension asks for it
func (c *AnalyzerConfig) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// String returns a string representation of the config (with sensitive data masked)
func (c *AnalyzerConfig) String() string {
	configCopy := *c

	configCopy.LLM.APIKey = mask(configCopy.LLM.APIKey)
	configCopy.Inference.APIKey = mask(configCopy.Inference.APIKey)
	configCopy.External.WebSearch.APIKey = mask(configCopy.External.WebSearch.APIKey)
	configCopy.External.Finance.APIKey = mask(configCopy.External.Finance.APIKey)
	configCopy.External.News.APIKey = mask(configCopy.External.News.APIKey)
	configCopy.Index.Embeddings.APIKey = mask(configCopy.Index.Embeddings.APIKey)
	configCopy.Index.Database.Password = mask(configCopy.Index.Database.Password)

	data, _ := json.MarshalIndent(configCopy, "", "  ")
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return strings.Repeat("*", len(secret))
}

// GetURI returns the database connection URI
func (d *DatabaseConfig) GetURI() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}
