package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"report-analyzer/pkg/interfaces"
)

// Checkpoint is the serialized form of the blackboard
type Checkpoint struct {
	GraphID              string                                              `json:"graph_id"`
	CreatedAt            time.Time                                           `json:"created_at"`
	Chunks               []ChunkEntry                                        `json:"chunks"`
	CurrentChunkIndex    int                                                 `json:"current_chunk_index"`
	SectionSummaries     map[interfaces.SectionName][]SummaryPart            `json:"section_summaries"`
	SectionFindings      map[interfaces.SectionName]map[string][]Finding     `json:"section_findings"`
	SectionMetrics       map[interfaces.SectionName][]interfaces.Metric      `json:"section_metrics"`
	SectionRisks         map[interfaces.SectionName][]interfaces.Risk        `json:"section_risks"`
	SectionOpportunities map[interfaces.SectionName][]interfaces.Opportunity `json:"section_opportunities"`
	CrossReferences      map[interfaces.SectionName][]interfaces.SectionName `json:"cross_references"`
	Insights             []Insight                                           `json:"collaborative_insights"`
	KGEntities           map[string][]string                                 `json:"kg_entities"`
	KGRelationships      map[string][]string                                 `json:"kg_relationships"`
	KGSummary            map[string]any                                      `json:"kg_summary"`
	Tasks                []interfaces.Task                                   `json:"tasks"`
	GlobalReport         string                                              `json:"global_report,omitempty"`
	ExecutiveSummary     string                                              `json:"executive_summary,omitempty"`
	Recommendations      []string                                            `json:"recommendations,omitempty"`
	Metadata             map[string]any                                      `json:"metadata"`
	Errors               []string                                            `json:"errors,omitempty"`
	Warnings             []string                                            `json:"warnings,omitempty"`
}

// Snapshot copies the blackboard into a Checkpoint.
func (g *Graph) Snapshot() Checkpoint {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cp := Checkpoint{
		GraphID:              g.id,
		CreatedAt:            g.createdAt,
		Chunks:               append([]ChunkEntry(nil), g.chunks...),
		CurrentChunkIndex:    g.currentChunk,
		SectionSummaries:     make(map[interfaces.SectionName][]SummaryPart, len(g.summaries)),
		SectionFindings:      make(map[interfaces.SectionName]map[string][]Finding, len(g.findings)),
		SectionMetrics:       make(map[interfaces.SectionName][]interfaces.Metric, len(g.metrics)),
		SectionRisks:         make(map[interfaces.SectionName][]interfaces.Risk, len(g.risks)),
		SectionOpportunities: make(map[interfaces.SectionName][]interfaces.Opportunity, len(g.opportunities)),
		CrossReferences:      make(map[interfaces.SectionName][]interfaces.SectionName, len(g.crossRefs)),
		Insights:             append([]Insight(nil), g.insights...),
		KGEntities:           copyRefs(g.kgEntities),
		KGRelationships:      copyRefs(g.kgRelationships),
		KGSummary:            copyAny(g.kgSummary),
		Tasks:                append([]interfaces.Task(nil), g.tasks...),
		GlobalReport:         g.globalReport,
		ExecutiveSummary:     g.executiveSummary,
		Recommendations:      append([]string(nil), g.recommendations...),
		Metadata:             copyAny(g.metadata),
		Errors:               append([]string(nil), g.errors...),
		Warnings:             append([]string(nil), g.warnings...),
	}
	for k, v := range g.summaries {
		cp.SectionSummaries[k] = append([]SummaryPart(nil), v...)
	}
	for k, v := range g.findings {
		inner := make(map[string][]Finding, len(v))
		for t, f := range v {
			inner[t] = append([]Finding(nil), f...)
		}
		cp.SectionFindings[k] = inner
	}
	for k, v := range g.metrics {
		cp.SectionMetrics[k] = append([]interfaces.Metric(nil), v...)
	}
	for k, v := range g.risks {
		cp.SectionRisks[k] = append([]interfaces.Risk(nil), v...)
	}
	for k, v := range g.opportunities {
		cp.SectionOpportunities[k] = append([]interfaces.Opportunity(nil), v...)
	}
	for k, v := range g.crossRefs {
		cp.CrossReferences[k] = append([]interfaces.SectionName(nil), v...)
	}
	return cp
}

// SaveCheckpoint writes the blackboard as indented JSON.
func (g *Graph) SaveCheckpoint(path string) error {
	data, err := json.MarshalIndent(g.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores chunk, section and report state from path. Nodes and messages are not
// part of a checkpoint and are left untouched.
func (g *Graph) LoadCheckpoint(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("failed to parse checkpoint: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if cp.GraphID != "" {
		g.id = cp.GraphID
	}
	if !cp.CreatedAt.IsZero() {
		g.createdAt = cp.CreatedAt
	}
	g.chunks = cp.Chunks
	g.currentChunk = cp.CurrentChunkIndex
	g.summaries = orEmpty(cp.SectionSummaries)
	g.findings = orEmpty(cp.SectionFindings)
	g.metrics = orEmpty(cp.SectionMetrics)
	g.risks = orEmpty(cp.SectionRisks)
	g.opportunities = orEmpty(cp.SectionOpportunities)
	g.crossRefs = orEmpty(cp.CrossReferences)
	g.insights = cp.Insights
	g.kgEntities = orEmpty(cp.KGEntities)
	g.kgRelationships = orEmpty(cp.KGRelationships)
	g.kgSummary = orEmpty(cp.KGSummary)
	g.globalReport = cp.GlobalReport
	g.executiveSummary = cp.ExecutiveSummary
	g.recommendations = cp.Recommendations
	g.metadata = orEmpty(cp.Metadata)
	g.errors = cp.Errors
	g.warnings = cp.Warnings

	g.tasks = cp.Tasks
	g.taskQueue = nil
	g.completed = make(map[string]struct{})
	for _, t := range g.tasks {
		if t.Status == interfaces.TaskCompleted {
			g.completed[t.ID] = struct{}{}
		} else {
			g.taskQueue = append(g.taskQueue, t.ID)
		}
	}
	return nil
}

func orEmpty[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return make(map[K]V)
	}
	return m
}

func copyAny(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
