package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-analyzer/internal/config"
	"report-analyzer/internal/knowledge"
	"report-analyzer/pkg/interfaces"
	"report-analyzer/pkg/state"
)

func TestApplyAnalyzeFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "analyze"}
	addAnalyzeFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{
		"--output", "reports/out", "--max-chars", "500", "--concurrency", "2", "--news",
	}))

	cfg := config.DefaultConfig()
	cfg.MaxConcurrency = 9
	require.NoError(t, applyAnalyzeFlags(cmd, cfg))

	assert.Equal(t, "reports/out", cfg.OutputDir)
	assert.Equal(t, 500, cfg.MaxChunkChars)
	assert.Equal(t, 2, cfg.MaxConcurrency)
	assert.True(t, cfg.External.News.Enabled)
	assert.False(t, cfg.External.Finance.Enabled)
	assert.Equal(t, config.DefaultConfig().Runtime, cfg.Runtime)
}

func TestApplyAnalyzeFlagsValidates(t *testing.T) {
	cmd := &cobra.Command{Use: "analyze"}
	addAnalyzeFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--runtime", "quantum"}))

	assert.Error(t, applyAnalyzeFlags(cmd, config.DefaultConfig()))
}

func TestTriggersAnalysis(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "output")

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"markdown write", fsnotify.Event{Name: filepath.Join(dir, "report.md"), Op: fsnotify.Write}, true},
		{"json create", fsnotify.Event{Name: filepath.Join(dir, "report.json"), Op: fsnotify.Create}, true},
		{"unsupported extension", fsnotify.Event{Name: filepath.Join(dir, "report.pdf"), Op: fsnotify.Write}, false},
		{"remove", fsnotify.Event{Name: filepath.Join(dir, "report.md"), Op: fsnotify.Remove}, false},
		{"own output", fsnotify.Event{Name: filepath.Join(out, "analysis_summary.json"), Op: fsnotify.Write}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, triggersAnalysis(tt.event, out))
		})
	}
}

func testGraph(t *testing.T) *knowledge.Graph {
	t.Helper()
	kg := knowledge.New()
	acme := kg.AddEntity(knowledge.Entity{ID: "COMPANY_acme", Type: knowledge.TypeCompany, Name: "Acme Corp"})
	cloud := kg.AddEntity(knowledge.Entity{ID: "OPPORTUNITY_cloud", Type: knowledge.TypeOpportunity, Name: "Cloud expansion"})
	risk := kg.AddEntity(knowledge.Entity{ID: "RISK_supply", Type: knowledge.TypeRisk, Name: "Supply chain risk"})
	for _, edge := range [][3]string{{acme, "PURSUES", cloud}, {cloud, "EXPOSED_TO", risk}, {acme, "FACES", risk}} {
		_, err := kg.AddRelationship(knowledge.Relationship{
			ID:       knowledge.RelationshipID(edge[0], edge[1], edge[2]),
			SourceID: edge[0],
			Type:     edge[1],
			TargetID: edge[2],
		})
		require.NoError(t, err)
	}
	return kg
}

func TestPrintPaths(t *testing.T) {
	kg := testGraph(t)

	var out bytes.Buffer
	require.NoError(t, printPaths(&out, kg, "acme corp", "RISK_supply", 3))
	assert.Equal(t, "Acme Corp -> Cloud expansion -> Supply chain risk\nAcme Corp -> Supply chain risk\n", out.String())

	out.Reset()
	require.NoError(t, printPaths(&out, kg, "Acme Corp", "Supply chain risk", 1))
	assert.Equal(t, "Acme Corp -> Supply chain risk\n", out.String())

	out.Reset()
	require.NoError(t, printPaths(&out, kg, "Supply chain risk", "Acme Corp", 3))
	assert.Contains(t, out.String(), "No path")

	assert.Error(t, printPaths(&out, kg, "Globex", "Acme Corp", 3))
}

func TestPrintGraphStats(t *testing.T) {
	kg := testGraph(t)

	var out bytes.Buffer
	require.NoError(t, printGraphStats(&out, kg, knowledge.CentralityDegree, 2))
	text := out.String()
	assert.Contains(t, text, "Entities: 3\n")
	assert.Contains(t, text, "Relationships: 3\n")
	company := strings.Index(text, "  COMPANY: 1")
	opportunity := strings.Index(text, "  OPPORTUNITY: 1")
	risk := strings.Index(text, "  RISK: 1")
	require.True(t, company >= 0 && opportunity >= 0 && risk >= 0)
	assert.Less(t, company, opportunity)
	assert.Less(t, opportunity, risk)
	assert.Contains(t, text, "Most central entities (degree):")

	for _, kind := range []string{knowledge.CentralityCloseness, knowledge.CentralityBetweenness} {
		out.Reset()
		require.NoError(t, printGraphStats(&out, kg, kind, 1))
		assert.Contains(t, out.String(), "Most central entities ("+kind+"):")
	}

	assert.Error(t, printGraphStats(&out, kg, "eigenvector", 1))
}

func TestStatusFromCheckpoint(t *testing.T) {
	board := state.New()
	for _, id := range []string{"chunk_0", "chunk_1", "chunk_2"} {
		board.AddChunk(interfaces.Chunk{ID: id, Content: "text"})
	}
	board.MarkChunkProcessed(0)
	board.AddError("analyze: chunk_1 timed out")
	path := filepath.Join(t.TempDir(), "checkpoint_1.json")
	require.NoError(t, board.SaveCheckpoint(path))

	restored := state.New()
	require.NoError(t, restored.LoadCheckpoint(path))

	var out bytes.Buffer
	printStatus(&out, restored)
	text := out.String()
	assert.Contains(t, text, "Run: "+board.ID())
	assert.Contains(t, text, "Chunks processed: 1/3")
	assert.Contains(t, text, "Next chunk: 1 (chunk_1)")
	assert.Contains(t, text, "analyze: chunk_1 timed out")

	restored.MarkChunkProcessed(1)
	restored.MarkChunkProcessed(2)
	out.Reset()
	printStatus(&out, restored)
	assert.Contains(t, out.String(), "Next chunk: none")

	assert.Error(t, runStatus(nil, []string{filepath.Join(t.TempDir(), "missing.json")}))
}
