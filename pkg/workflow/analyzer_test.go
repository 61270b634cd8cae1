package workflow

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-analyzer/internal/config"
	"report-analyzer/internal/knowledge"
	"report-analyzer/internal/llm"
	"report-analyzer/internal/memory"
	"report-analyzer/pkg/interfaces"
	"report-analyzer/pkg/state"
)

const fixtureReport = `# Letter to Shareholders

Dear shareholders, Acme Corp delivered record growth this year and we remain confident in our strategy.
Revenue grew to $5 billion in revenue on strong demand across every region we serve.

# Management's Discussion and Analysis

Management's discussion and analysis: revenue growth of 12% increase was driven by strong demand.
Litigation risk remains and the regulatory investigation into our pricing is ongoing.

# Financial Statements

The balance sheet and income statement show $2 billion in profit and a 15% margin for the year.

# Corporate Governance

Corporate governance: Director Jane Smith chairs the audit committee. Our code of conduct applies to all.

# ESG

Sustainability report: emissions fell and SDG 13 climate action remains a priority for the board.
`

func testConfig(t *testing.T) *config.AnalyzerConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.Memory.Dir = filepath.Join(dir, "memory")
	cfg.Runtime = config.RuntimeDeterministic
	cfg.MaxChunkChars = 200
	cfg.MaxConcurrency = 3
	cfg.CheckpointEvery = 2
	return cfg
}

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.md"), []byte(fixtureReport), 0o644))
	return dir
}

func newAnalyzer(t *testing.T, cfg *config.AnalyzerConfig, opts ...Option) *Analyzer {
	t.Helper()
	a, err := New(cfg, append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConcurrency = 0
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	a := newAnalyzer(t, cfg)

	res, err := a.Run(context.Background(), writeFixture(t))
	require.NoError(t, err)
	require.NotNil(t, res.Report)

	sum := res.Summary
	assert.Greater(t, sum.TotalChunks, 4)
	assert.Equal(t, sum.TotalChunks, sum.ChunksProcessed)
	assert.Equal(t, 5, sum.NodesCompleted)
	for _, section := range []interfaces.SectionName{
		interfaces.SectionLetterToShareholders,
		interfaces.SectionMDNA,
		interfaces.SectionFinancialStatements,
		interfaces.SectionCorporateGovernance,
		interfaces.SectionESG,
	} {
		assert.Contains(t, sum.SectionsAnalyzed, section)
		assert.Contains(t, res.Report.SectionAnalyses, section)
	}
	assert.True(t, strings.HasPrefix(res.Report.GlobalReport, "## letter_to_shareholders\n"))
	assert.True(t, res.Board.IsComplete())
	assert.Empty(t, res.Board.Errors())

	stats := a.Stats()
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, sum.TotalChunks, stats.ProcessedChunks)
	assert.Zero(t, stats.FailedChunks)
	assert.Positive(t, stats.TasksCompleted)
	assert.Same(t, res, a.Latest())
	assert.NotEmpty(t, res.AgentStats)

	// Outputs
	assert.FileExists(t, filepath.Join(cfg.OutputDir, SummaryFile))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, StateFile))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "checkpoint_2.json"))
	assert.FileExists(t, filepath.Join(cfg.KnowledgeStoreDir(), knowledge.GEXFFile))
	assert.Len(t, res.Outputs.Checkpoints, sum.TotalChunks/cfg.CheckpointEvery)

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, SummaryFile))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "executive_summary")
	assert.Contains(t, decoded, "recommendations")

	restored := state.New()
	require.NoError(t, restored.LoadCheckpoint(filepath.Join(cfg.OutputDir, StateFile)))
	assert.Equal(t, res.Board.GlobalReport(), restored.GlobalReport())

	loaded, err := knowledge.Load(cfg.KnowledgeStoreDir())
	require.NoError(t, err)
	assert.Equal(t, res.Knowledge.Len(), loaded.Len())
}

func TestRunKeepsSummariesInChunkOrder(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConcurrency = 8
	cfg.CheckpointEvery = 0
	a := newAnalyzer(t, cfg)

	res, err := a.Run(context.Background(), writeFixture(t))
	require.NoError(t, err)
	assert.Empty(t, res.Outputs.Checkpoints)

	for section, parts := range res.Board.Snapshot().SectionSummaries {
		assert.True(t, sort.SliceIsSorted(parts, func(i, j int) bool {
			return parts[i].ChunkIndex < parts[j].ChunkIndex
		}), "section %s", section)
	}
}

func TestRunMemoryPersistsAcrossRuns(t *testing.T) {
	cfg := testConfig(t)
	store, err := memory.NewFileStore(cfg.Memory.Dir)
	require.NoError(t, err)
	a := newAnalyzer(t, cfg, WithMemoryStore(store))

	input := writeFixture(t)
	_, err = a.Run(context.Background(), input)
	require.NoError(t, err)
	first, err := store.QueryAll(context.Background(), "esg_agent", "esg")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	_, err = a.Run(context.Background(), input)
	require.NoError(t, err)
	second, err := store.QueryAll(context.Background(), "esg_agent", "esg")
	require.NoError(t, err)
	assert.Len(t, second, 2*len(first))
	assert.Equal(t, 2, a.Stats().TotalDocuments)
}

func TestRunWithSummarizer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Runtime = config.RuntimeLLM
	cfg.LLM.Provider = "ollama"
	cfg.LLM.BaseURL = "http://localhost:11434"
	a := newAnalyzer(t, cfg, WithSummarizer(llm.NewFakeSummarizer("model summary")))

	res, err := a.Run(context.Background(), writeFixture(t))
	require.NoError(t, err)
	assert.Contains(t, res.Report.GlobalReport, "## esg\nmodel summary")
}

func TestStageFailureSkipsRemainingStages(t *testing.T) {
	a := newAnalyzer(t, testConfig(t))

	r := a.newRun(filepath.Join(t.TempDir(), "missing.md"))
	err := a.execute(context.Background(), r)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "stage load failed")

	status, _ := r.board.NodeStatus(NodeLoad)
	assert.Equal(t, state.NodeFailed, status)
	for _, id := range []string{NodeChunk, NodeKnowledgeGraph, NodeAnalyze, NodeReport} {
		status, ok := r.board.NodeStatus(id)
		require.True(t, ok)
		assert.Equal(t, state.NodeSkipped, status, id)

		skipped, ok := r.board.NodeResult(id)
		require.True(t, ok)
		require.Len(t, skipped.Errors, 1)
		assert.True(t, strings.HasPrefix(skipped.Errors[0], "load: failed to stat input"), skipped.Errors[0])
	}
	assert.Len(t, r.board.Errors(), 1)
	assert.True(t, r.board.IsComplete())
}

func TestRunEmptyDirectory(t *testing.T) {
	a := newAnalyzer(t, testConfig(t))
	_, err := a.Run(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, interfaces.ErrNoInput)
	assert.Nil(t, a.Latest())
}

func TestRunCancelled(t *testing.T) {
	a := newAnalyzer(t, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Run(ctx, writeFixture(t))
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	return []float64{float64(len(text)), 1, 0}, nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i], _ = f.Embed(ctx, text)
	}
	return out, nil
}

func (fakeEmbedder) GetDimension() int { return 3 }

type fakeDatabase struct {
	mu        sync.Mutex
	created   bool
	inserted  []interfaces.IndexedChunk
	closed    bool
	dimension int
}

func (d *fakeDatabase) CreateCollection(context.Context, bool) error {
	d.created = true
	return nil
}

func (d *fakeDatabase) InsertChunks(_ context.Context, chunks []interfaces.IndexedChunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inserted = append(d.inserted, chunks...)
	return nil
}

// CheckDuplicate treats the first chunk of every source as already indexed.
func (d *fakeDatabase) CheckDuplicate(_ context.Context, _ string, chunkIndex int) (bool, error) {
	return chunkIndex == 0, nil
}

func (d *fakeDatabase) Search(context.Context, []float64, int, string) ([]interfaces.SearchResult, error) {
	return nil, nil
}

func (d *fakeDatabase) Close() error {
	d.closed = true
	return nil
}

type fakeEmbedderFactory struct{}

func (fakeEmbedderFactory) Create(*config.EmbedderConfig) (interfaces.Embedder, error) {
	return fakeEmbedder{}, nil
}

type fakeDatabaseFactory struct{ db *fakeDatabase }

func (f fakeDatabaseFactory) Create(_ *config.DatabaseConfig, dim int) (interfaces.DatabaseClient, error) {
	f.db.dimension = dim
	return f.db, nil
}

func TestRunIndexesChunks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.Enabled = true
	db := &fakeDatabase{}
	registry := &interfaces.ComponentRegistry{
		Summarizers: llm.NewFactory(nil),
		Embedders:   fakeEmbedderFactory{},
		Databases:   fakeDatabaseFactory{db: db},
		Memories:    memory.NewFactory(),
	}
	a, err := New(cfg, WithLogger(zerolog.Nop()), WithRegistry(registry))
	require.NoError(t, err)
	assert.True(t, db.created)
	assert.Equal(t, 3, db.dimension)

	res, err := a.Run(context.Background(), writeFixture(t))
	require.NoError(t, err)

	require.Len(t, db.inserted, res.Summary.TotalChunks-1)
	for _, c := range db.inserted {
		assert.NotZero(t, c.ChunkIndex)
		assert.Len(t, c.TextEmbedding, 3)
		assert.NotEmpty(t, c.Section)
		assert.NotEmpty(t, c.Sentiment)
		assert.True(t, strings.HasSuffix(c.Source, "report.md"))
	}
	assert.Equal(t, len(db.inserted), a.Stats().IndexedChunks)

	require.NoError(t, a.Close())
	assert.True(t, db.closed)
}

// gatedStore is a file store whose QueryAll blocks while gated.
type gatedStore struct {
	*memory.FileStore

	mu      sync.Mutex
	gated   bool
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) gate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gated = true
	s.entered = make(chan struct{})
	s.release = make(chan struct{})
}

func (s *gatedStore) QueryAll(ctx context.Context, agent, section string) ([]interfaces.MemoryRecord, error) {
	s.mu.Lock()
	gated, entered, release := s.gated, s.entered, s.release
	s.gated = false
	s.mu.Unlock()

	if gated {
		close(entered)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.FileStore.QueryAll(ctx, agent, section)
}

func TestLatestDoesNotWaitForRun(t *testing.T) {
	cfg := testConfig(t)
	fileStore, err := memory.NewFileStore(cfg.Memory.Dir)
	require.NoError(t, err)
	store := &gatedStore{FileStore: fileStore}
	a := newAnalyzer(t, cfg, WithMemoryStore(store))

	input := writeFixture(t)
	first, err := a.Run(context.Background(), input)
	require.NoError(t, err)

	store.gate()
	done := make(chan error, 1)
	go func() {
		_, err := a.Run(context.Background(), input)
		done <- err
	}()
	<-store.entered

	latest := make(chan *Result, 1)
	go func() { latest <- a.Latest() }()
	select {
	case res := <-latest:
		assert.Same(t, first, res)
	case <-time.After(5 * time.Second):
		t.Fatal("Latest blocked on the running analysis")
	}

	close(store.release)
	require.NoError(t, <-done)
	assert.NotSame(t, first, a.Latest())
}

func TestStatsAccumulateAcrossRuns(t *testing.T) {
	a := newAnalyzer(t, testConfig(t))
	input := writeFixture(t)

	_, err := a.Run(context.Background(), input)
	require.NoError(t, err)
	once := a.Stats()

	_, err = a.Run(context.Background(), input)
	require.NoError(t, err)
	twice := a.Stats()

	assert.Equal(t, 2*once.ProcessedChunks, twice.ProcessedChunks)
	assert.Equal(t, 2*once.TasksCompleted, twice.TasksCompleted)
	assert.Greater(t, twice.ProcessingTime, once.ProcessingTime)
	assert.Equal(t, twice.ProcessingTime/time.Duration(twice.ProcessedChunks), twice.AverageChunkTime)
}
