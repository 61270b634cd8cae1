package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"report-analyzer/internal/document"
	"report-analyzer/internal/knowledge"
	"report-analyzer/pkg/agents"
	"report-analyzer/pkg/interfaces"
	"report-analyzer/pkg/state"
	"report-analyzer/pkg/tasks"
)

// Stage node ids, registered in execution order.
const (
	NodeLoad           = "load"
	NodeChunk          = "chunk"
	NodeKnowledgeGraph = "knowledge_graph"
	NodeAnalyze        = "analyze"
	NodeReport         = "report"
)

// Output file names.
const (
	SummaryFile = "analysis_summary.json"
	StateFile   = "final_state.json"
)

// Outputs lists the files written by a run
type Outputs struct {
	Summary        string   `json:"summary"`
	State          string   `json:"state"`
	KnowledgeStore string   `json:"knowledge_store"`
	Checkpoints    []string `json:"checkpoints,omitempty"`
}

// Result is the outcome of a successful run
type Result struct {
	RunID      string                  `json:"run_id"`
	Report     *agents.Report          `json:"report"`
	Summary    state.Summary           `json:"summary"`
	AgentStats map[string]agents.Stats `json:"agent_stats"`
	Outputs    Outputs                 `json:"outputs"`

	Board     *state.Graph     `json:"-"`
	Knowledge *knowledge.Graph `json:"-"`
}

type stageFunc func(ctx context.Context, r *run) (any, error)

// run holds the state of one Run call.
type run struct {
	input      string
	board      *state.Graph
	kg         *knowledge.Graph
	supervisor *agents.Supervisor
	logger     zerolog.Logger

	docs    []interfaces.Document
	chunks  []interfaces.Chunk
	results []*agents.ChunkResult
	report  *agents.Report
	outputs Outputs
}

func (r *run) result() *Result {
	return &Result{
		RunID:      r.board.ID(),
		Report:     r.report,
		Summary:    r.board.Summary(),
		AgentStats: r.supervisor.Stats(),
		Outputs:    r.outputs,
		Board:      r.board,
		Knowledge:  r.kg,
	}
}

// execute registers the stage nodes and runs them until none is ready. A failed stage broadcasts its
// error, skips the remaining stages with that error attached, and its error is returned.
func (a *Analyzer) execute(ctx context.Context, r *run) error {
	stages := map[string]stageFunc{
		NodeLoad:           a.load,
		NodeChunk:          a.chunk,
		NodeKnowledgeGraph: a.buildKnowledgeGraph,
		NodeAnalyze:        a.analyze,
		NodeReport:         a.writeReport,
	}
	r.board.AddNode(NodeLoad)
	r.board.AddNode(NodeChunk, NodeLoad)
	r.board.AddNode(NodeKnowledgeGraph, NodeChunk)
	r.board.AddNode(NodeAnalyze, NodeKnowledgeGraph)
	r.board.AddNode(NodeReport, NodeAnalyze)

	for {
		id, ok := r.board.NextPendingNode()
		if !ok {
			break
		}
		if err := a.runStage(ctx, r, id, stages[id]); err != nil {
			r.board.Broadcast(id, state.MessageError, err.Error())
			for _, pending := range r.board.PendingNodes() {
				skipped := state.NodeResult{NodeID: pending, Status: state.NodeSkipped}
				for _, m := range r.board.Receive(pending) {
					skipped.Errors = append(skipped.Errors, fmt.Sprintf("%s: %v", m.Sender, m.Content))
				}
				_ = r.board.AddNodeResult(skipped)
			}
			return fmt.Errorf("stage %s failed: %w", id, err)
		}
	}
	return nil
}

func (a *Analyzer) runStage(ctx context.Context, r *run, id string, fn stageFunc) error {
	log := r.logger.With().Str("stage", id).Logger()
	if err := r.board.UpdateNodeStatus(id, state.NodeRunning); err != nil {
		return err
	}
	log.Debug().Msg("stage started")

	start := time.Now()
	var out any
	err := ctx.Err()
	if err == nil {
		out, err = fn(ctx, r)
	}

	res := state.NodeResult{
		NodeID:        id,
		Status:        state.NodeCompleted,
		Output:        out,
		ExecutionTime: time.Since(start),
	}
	if err != nil {
		res.Status = state.NodeFailed
		res.Errors = []string{err.Error()}
		r.board.AddError(fmt.Sprintf("%s: %v", id, err))
	}
	if setErr := r.board.AddNodeResult(res); setErr != nil {
		return setErr
	}

	if err != nil {
		log.Warn().Err(err).Msg("stage failed")
		return err
	}
	log.Debug().Dur("elapsed", res.ExecutionTime).Msg("stage completed")
	return nil
}

func (a *Analyzer) load(_ context.Context, r *run) (any, error) {
	docs, err := document.Load(r.input)
	if err != nil {
		return nil, err
	}
	r.docs = docs

	a.statsMutex.Lock()
	a.stats.TotalDocuments += len(docs)
	a.statsMutex.Unlock()
	return map[string]any{"documents": len(docs)}, nil
}

func (a *Analyzer) chunk(_ context.Context, r *run) (any, error) {
	chunks := document.ChunkDocuments(r.docs, a.config.MaxChunkChars)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNoChunks, r.input)
	}
	for _, c := range chunks {
		r.board.AddChunk(c)
	}
	r.chunks = chunks

	a.statsMutex.Lock()
	a.stats.TotalChunks += len(chunks)
	a.statsMutex.Unlock()
	return map[string]any{"chunks": len(chunks)}, nil
}

// buildKnowledgeGraph extracts entities chunk by chunk in document order, so entity insertion order
// does not depend on scheduling.
func (a *Analyzer) buildKnowledgeGraph(ctx context.Context, r *run) (any, error) {
	for _, c := range r.chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := r.kg.ExtractAndAdd(c.Content, c.ID)
		r.logger.Trace().
			Str("chunk_id", c.ID).
			Int("entities", res.EntitiesExtracted).
			Int("relationships", res.RelationshipsExtracted).
			Msg("chunk extracted")
	}

	// Ids are collected once every merge has happened.
	relsByChunk := make(map[string][]string)
	for _, rel := range r.kg.Relationships() {
		for _, ref := range rel.References {
			relsByChunk[ref] = append(relsByChunk[ref], rel.ID)
		}
	}
	for _, c := range r.chunks {
		var ids []string
		for _, e := range r.kg.EntitiesByChunk(c.ID) {
			ids = append(ids, e.ID)
		}
		if len(ids) > 0 {
			r.board.AddKGEntities(c.ID, ids)
		}
		if rels := relsByChunk[c.ID]; len(rels) > 0 {
			r.board.AddKGRelationships(c.ID, rels)
		}
	}

	stats := r.kg.Stats()
	summary := map[string]any{
		"total_entities":       stats.TotalEntities,
		"total_relationships":  stats.TotalRelationships,
		"entity_types":         stats.EntityTypes,
		"connected_components": stats.ConnectedComponents,
	}
	r.board.UpdateKGSummary(summary)
	return summary, nil
}

type job struct {
	chunk interfaces.Chunk
	tasks []interfaces.Task
}

// ChunkOutcome is the result of analyzing a single chunk
type ChunkOutcome struct {
	Chunk  interfaces.Chunk
	Result *agents.ChunkResult
	Error  error
}

// analyze fans the chunks out over MaxConcurrency workers. Results are collected on the calling
// goroutine, which also writes the periodic checkpoints.
func (a *Analyzer) analyze(ctx context.Context, r *run) (any, error) {
	decomposer := tasks.NewDecomposer()
	jobs := make([]job, len(r.chunks))
	for i, c := range r.chunks {
		assigned := decomposer.DecomposeChunk(c)
		for _, t := range assigned {
			r.board.AddTask(t)
		}
		jobs[i] = job{chunk: c, tasks: assigned}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobChan := make(chan job, len(jobs))
	resultChan := make(chan ChunkOutcome, len(jobs))

	// Start workers
	var wg sync.WaitGroup
	workers := min(a.config.MaxConcurrency, len(jobs))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go a.worker(ctx, r, jobChan, resultChan, &wg)
	}

	// Send chunks to workers
	go func() {
		defer close(jobChan)
		for _, j := range jobs {
			select {
			case jobChan <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Wait for all workers to finish
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// Collect results
	var processed, failed int
	for outcome := range resultChan {
		if outcome.Error != nil {
			failed++
			if errors.Is(outcome.Error, context.Canceled) || errors.Is(outcome.Error, context.DeadlineExceeded) {
				cancel()
				continue
			}
			r.board.AddError(outcome.Error.Error())
			r.logger.Warn().Err(outcome.Error).Str("chunk_id", outcome.Chunk.ID).Msg("chunk failed")
			continue
		}

		processed++
		r.board.MarkChunkProcessed(outcome.Chunk.Index)
		r.results = append(r.results, outcome.Result)

		if every := a.config.CheckpointEvery; every > 0 && processed%every == 0 {
			path := filepath.Join(a.config.OutputDir, fmt.Sprintf("checkpoint_%d.json", processed))
			if err := r.board.SaveCheckpoint(path); err != nil {
				r.board.AddWarning(fmt.Sprintf("checkpoint %d: %v", processed, err))
			} else {
				r.outputs.Checkpoints = append(r.outputs.Checkpoints, path)
			}
		}
	}

	a.statsMutex.Lock()
	a.stats.ProcessedChunks += processed
	a.stats.FailedChunks += failed
	a.statsMutex.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if processed == 0 {
		return nil, fmt.Errorf("all %d chunks failed", len(jobs))
	}

	indexed := a.indexChunks(ctx, r)
	return map[string]any{
		"processed": processed,
		"failed":    failed,
		"indexed":   indexed,
	}, nil
}

// worker analyzes chunks from the channel
func (a *Analyzer) worker(ctx context.Context, r *run, jobChan <-chan job, resultChan chan<- ChunkOutcome, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case j, ok := <-jobChan:
			if !ok {
				return
			}

			res, err := r.supervisor.Dispatch(ctx, j.chunk, j.tasks)
			select {
			case resultChan <- ChunkOutcome{Chunk: j.chunk, Result: res, Error: err}:
			case <-ctx.Done():
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// indexChunks embeds the analyzed chunks and stores them in the vector database. Failures are
// warnings; the analysis does not depend on the index.
func (a *Analyzer) indexChunks(ctx context.Context, r *run) int {
	if a.database == nil || a.embedder == nil || len(r.results) == 0 {
		return 0
	}

	byID := make(map[string]interfaces.Chunk, len(r.chunks))
	for _, c := range r.chunks {
		byID[c.ID] = c
	}

	var pending []interfaces.IndexedChunk
	for _, res := range r.results {
		c := byID[res.ChunkID]
		source, _ := c.Meta["source"].(string)
		dup, err := a.database.CheckDuplicate(ctx, source, c.Index)
		if err != nil {
			r.board.AddWarning(fmt.Sprintf("index duplicate check failed for %s: %v", c.ID, err))
			return 0
		}
		if dup {
			continue
		}
		pending = append(pending, interfaces.IndexedChunk{
			Text:       c.Content,
			ChunkIndex: c.Index,
			Source:     source,
			Section:    string(res.Section),
			Sentiment:  res.Sentiment.Label,
		})
	}
	if len(pending) == 0 {
		return 0
	}

	texts := make([]string, len(pending))
	for i, p := range pending {
		texts[i] = p.Text
	}
	vectors, err := a.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		r.board.AddWarning(fmt.Sprintf("failed to embed chunks: %v", err))
		return 0
	}
	if len(vectors) != len(pending) {
		r.board.AddWarning(fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(pending)))
		return 0
	}
	for i := range pending {
		pending[i].TextEmbedding = vectors[i]
	}

	if err := a.database.InsertChunks(ctx, pending); err != nil {
		r.board.AddWarning(fmt.Sprintf("failed to store chunks: %v", err))
		return 0
	}

	a.statsMutex.Lock()
	a.stats.IndexedChunks += len(pending)
	a.statsMutex.Unlock()
	return len(pending)
}

// writeReport compiles the final report and writes the summary, final state and knowledge store.
func (a *Analyzer) writeReport(_ context.Context, r *run) (any, error) {
	r.report = agents.NewFinalGenerator(r.board, r.kg).Generate()

	dir := a.config.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	r.outputs.Summary = filepath.Join(dir, SummaryFile)
	if err := writeJSON(r.outputs.Summary, r.report); err != nil {
		return nil, err
	}

	r.outputs.KnowledgeStore = a.config.KnowledgeStoreDir()
	if err := r.kg.Save(r.outputs.KnowledgeStore); err != nil {
		return nil, err
	}

	// The report node is still running while the final state is written.
	r.outputs.State = filepath.Join(dir, StateFile)
	if err := r.board.SaveCheckpoint(r.outputs.State); err != nil {
		return nil, err
	}

	return map[string]any{
		"summary":         r.outputs.Summary,
		"state":           r.outputs.State,
		"knowledge_store": r.outputs.KnowledgeStore,
	}, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
