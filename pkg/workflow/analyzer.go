// Package workflow drives documents through the load, chunk, knowledge graph, analyze and report
// stages.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"report-analyzer/internal/analysis"
	"report-analyzer/internal/config"
	"report-analyzer/internal/embeddings"
	"report-analyzer/internal/external"
	"report-analyzer/internal/knowledge"
	"report-analyzer/internal/llm"
	"report-analyzer/internal/logging"
	"report-analyzer/internal/memory"
	"report-analyzer/internal/storage"
	"report-analyzer/internal/transport"
	"report-analyzer/pkg/agents"
	"report-analyzer/pkg/interfaces"
	"report-analyzer/pkg/state"
)

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

// WithRegistry replaces the component factories.
func WithRegistry(registry *interfaces.ComponentRegistry) Option {
	return func(a *Analyzer) { a.registry = registry }
}

// WithSummarizer sets the section summarizer instead of creating one from the llm configuration.
func WithSummarizer(s interfaces.Summarizer) Option {
	return func(a *Analyzer) { a.summarizer = s }
}

// WithSuite sets the sentiment, risk and shenanigans analyzers.
func WithSuite(s *analysis.Suite) Option {
	return func(a *Analyzer) { a.suite = s }
}

// WithSources sets the external intelligence sources.
func WithSources(s *external.Sources) Option {
	return func(a *Analyzer) { a.sources = s }
}

// WithMemoryStore sets the long-term memory store.
func WithMemoryStore(m interfaces.MemoryStore) Option {
	return func(a *Analyzer) { a.memory = m }
}

// WithIndex sets the embedder and vector database used to index analyzed chunks.
func WithIndex(embedder interfaces.Embedder, database interfaces.DatabaseClient) Option {
	return func(a *Analyzer) {
		a.embedder = embedder
		a.database = database
	}
}

// Analyzer is the main orchestrator for report analysis
type Analyzer struct {
	config   *config.AnalyzerConfig
	logger   zerolog.Logger
	registry *interfaces.ComponentRegistry
	limiters *transport.Registry

	summarizer interfaces.Summarizer
	suite      *analysis.Suite
	sources    *external.Sources
	memory     interfaces.MemoryStore
	embedder   interfaces.Embedder
	database   interfaces.DatabaseClient
	useLLM     bool

	// Stats
	stats      interfaces.AnalyzerStats
	statsMutex sync.RWMutex

	// One run at a time
	runMutex sync.Mutex

	latest      *Result
	latestMutex sync.RWMutex
}

// New creates a new analyzer instance
func New(cfg *config.AnalyzerConfig, opts ...Option) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &Analyzer{
		config:   cfg,
		logger:   logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}),
		limiters: transport.NewRegistry(),
		useLLM:   llm.UseLLM(cfg),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.Component(a.logger, "workflow")

	if err := a.initializeComponents(); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return a, nil
}

// initializeComponents creates every component not supplied as an option
func (a *Analyzer) initializeComponents() error {
	if a.registry == nil {
		a.registry = &interfaces.ComponentRegistry{
			Summarizers: llm.NewFactory(a.limiters.Get("llm", a.config.LLM.RequestsPerSecond)),
			Embedders:   embeddings.NewFactory(),
			Databases:   storage.NewFactory(),
			Memories:    memory.NewFactory(),
		}
	}

	// Analyzers
	if a.suite == nil {
		suite, err := analysis.NewSuite(&a.config.Inference, a.limiters.Get("inference", a.config.Inference.RequestsPerSecond))
		if err != nil {
			return fmt.Errorf("failed to create analysis suite: %w", err)
		}
		a.suite = suite
	}

	// Summarizer
	if a.summarizer == nil && a.useLLM {
		s, err := a.registry.Summarizers.Create(&a.config.LLM)
		if err != nil {
			return fmt.Errorf("failed to create summarizer: %w", err)
		}
		a.summarizer = s
	}

	// External sources
	if a.sources == nil {
		sources, err := external.NewSources(&a.config.External, a.limiters.Get("external", a.config.External.RequestsPerSecond))
		if err != nil {
			return fmt.Errorf("failed to create external sources: %w", err)
		}
		a.sources = sources
	}

	// Long-term memory
	if a.memory == nil {
		store, err := a.registry.Memories.Create(&a.config.Memory)
		if err != nil {
			return fmt.Errorf("failed to create memory store: %w", err)
		}
		a.memory = store
	}

	// Chunk index
	if a.config.Index.Enabled && a.database == nil {
		if a.embedder == nil {
			embedder, err := a.registry.Embedders.Create(&a.config.Index.Embeddings)
			if err != nil {
				return fmt.Errorf("failed to create embedder: %w", err)
			}
			a.embedder = embedder
		}
		database, err := a.registry.Databases.Create(&a.config.Index.Database, a.embedder.GetDimension())
		if err != nil {
			return fmt.Errorf("failed to create database client: %w", err)
		}
		a.database = database

		if err := a.database.CreateCollection(context.Background(), a.config.Index.Database.Recreate); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}

	a.logger.Debug().
		Bool("llm", a.useLLM).
		Bool("external", a.sources.Enabled()).
		Bool("index", a.database != nil).
		Msg("components initialized")
	return nil
}

// Run analyzes the document or directory at path and writes the outputs.
func (a *Analyzer) Run(ctx context.Context, path string) (*Result, error) {
	a.runMutex.Lock()
	defer a.runMutex.Unlock()

	start := time.Now()
	r := a.newRun(path)
	a.logger.Info().Str("input", path).Str("run_id", r.board.ID()).Msg("analysis started")

	if err := a.execute(ctx, r); err != nil {
		a.logger.Error().Err(err).Str("run_id", r.board.ID()).Msg("analysis failed")
		return nil, err
	}

	a.statsMutex.Lock()
	a.stats.ProcessingTime += time.Since(start)
	if a.stats.ProcessedChunks > 0 {
		a.stats.AverageChunkTime = a.stats.ProcessingTime / time.Duration(a.stats.ProcessedChunks)
	}
	a.stats.TasksCompleted += r.board.CompletedTaskCount()
	a.statsMutex.Unlock()

	res := r.result()
	a.latestMutex.Lock()
	a.latest = res
	a.latestMutex.Unlock()
	a.logger.Info().
		Str("run_id", res.RunID).
		Int("chunks", res.Summary.ChunksProcessed).
		Strs("sections", sectionStrings(res.Summary.SectionsAnalyzed)).
		Dur("elapsed", time.Since(start)).
		Msg("analysis finished")
	return res, nil
}

// Latest returns the result of the last successful run, or nil. It does not wait for a run in progress.
func (a *Analyzer) Latest() *Result {
	a.latestMutex.RLock()
	defer a.latestMutex.RUnlock()
	return a.latest
}

// Stats returns current analyzer statistics
func (a *Analyzer) Stats() interfaces.AnalyzerStats {
	a.statsMutex.RLock()
	defer a.statsMutex.RUnlock()
	return a.stats
}

// Config returns the configuration the analyzer was built with.
func (a *Analyzer) Config() *config.AnalyzerConfig {
	return a.config
}

// Close closes all resources
func (a *Analyzer) Close() error {
	var firstErr error
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			firstErr = err
		}
	}
	if a.memory != nil {
		if err := a.memory.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *Analyzer) newRun(path string) *run {
	board := state.New()
	kg := knowledge.New()
	board.SetMetadata("input", path)
	board.SetMetadata("runtime", a.config.Runtime)
	board.SetMetadata("use_llm", a.useLLM)
	board.SetMetadata("max_concurrency", a.config.MaxConcurrency)

	logger := a.logger.With().Str("run_id", board.ID()).Logger()
	deps := &agents.Deps{
		Board:         board,
		Knowledge:     kg,
		Analysis:      a.suite,
		Memory:        a.memory,
		Collaborative: memory.NewCollaborative(),
		External:      a.sources,
		Summarizer:    a.summarizer,
		UseLLM:        a.useLLM,
		Logger:        &logger,
	}
	return &run{
		input:      path,
		board:      board,
		kg:         kg,
		supervisor: agents.NewSupervisor(deps),
		logger:     logger,
	}
}

func sectionStrings(sections []interfaces.SectionName) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = string(s)
	}
	return out
}
