package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"report-analyzer/internal/memory"
	"report-analyzer/pkg/interfaces"
	"report-analyzer/pkg/state"
)

const (
	relevantMemoryLimit   = 10
	memorySummaryChars    = 200
	dominantSentimentMin  = 5
	sentimentInsightConf  = 0.7
	crossSectionLinkConf  = 0.6
	memoryCoordinatorConf = 0.9
)

var sectionKeywords = map[interfaces.SectionName][]string{
	interfaces.SectionLetterToShareholders: {"letter", "shareholders", "ceo message"},
	interfaces.SectionMDNA:                 {"md&a", "management discussion", "analysis"},
	interfaces.SectionFinancialStatements:  {"financial statements", "balance sheet", "income statement"},
	interfaces.SectionAuditReport:          {"audit", "auditor", "opinion"},
	interfaces.SectionCorporateGovernance:  {"governance", "board", "directors"},
	interfaces.SectionESG:                  {"esg", "sustainability", "environmental"},
	interfaces.SectionSDG17:                {"sdg", "sustainable development", "partnership"},
}

// RelevantMemory is a condensed long-term memory entry
type RelevantMemory struct {
	Key       string `json:"key"`
	Summary   string `json:"summary"`
	Sentiment string `json:"sentiment,omitempty"`
}

// MemoryOutput is the result of the memory coordinator
type MemoryOutput struct {
	RelevantMemories      []RelevantMemory         `json:"relevant_memories"`
	CrossReferences       []interfaces.SectionName `json:"cross_references"`
	CollaborativeInsights []state.Insight          `json:"collaborative_insights"`
	RelatedInsights       int                      `json:"related_insights"`
	MemorySummary         string                   `json:"memory_summary"`
}

// MemoryCoordinator links a chunk to earlier memories of its section and to other sections.
type MemoryCoordinator struct {
	base
	agent string
}

// NewMemoryCoordinator creates the memory sub-agent. Long-term records are kept under the parent
// section agent's name.
func NewMemoryCoordinator(section interfaces.SectionName, parent string, deps *Deps) *MemoryCoordinator {
	return &MemoryCoordinator{base: newBase(section, KindMemory, parent, deps), agent: parent}
}

// ReferencedSections returns the sections other than current whose keywords appear in content, in
// report order.
func ReferencedSections(content string, current interfaces.SectionName) []interfaces.SectionName {
	lower := strings.ToLower(content)
	out := []interfaces.SectionName{}
	for _, s := range interfaces.AllSections() {
		if s == current {
			continue
		}
		for _, kw := range sectionKeywords[s] {
			if strings.Contains(lower, kw) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Process reads earlier memories, records cross references and insights, and persists c.Memory.
func (a *MemoryCoordinator) Process(ctx context.Context, content string, c Context) (*Result, error) {
	start := time.Now()
	var errs []string
	out := &MemoryOutput{
		RelevantMemories:      []RelevantMemory{},
		CollaborativeInsights: []state.Insight{},
	}

	var records []interfaces.MemoryRecord
	if a.deps.Memory != nil {
		var err error
		records, err = a.deps.Memory.QueryAll(ctx, a.agent, string(c.Section))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Sprintf("memory query failed: %v", err))
		}
	}
	if len(records) > relevantMemoryLimit {
		records = records[len(records)-relevantMemoryLimit:]
	}
	for _, r := range records {
		m := RelevantMemory{Key: r.Key, Summary: truncate(r.Value.Summary, memorySummaryChars)}
		if r.Value.Sentiment != nil {
			m.Sentiment = r.Value.Sentiment.Label
		}
		out.RelevantMemories = append(out.RelevantMemories, m)
	}

	out.CrossReferences = ReferencedSections(content, c.Section)
	for _, target := range out.CrossReferences {
		a.deps.Board.AddCrossReference(c.Section, target)
		a.deps.Collaborative.AddCrossReference(string(c.Section), string(target))
		out.RelatedInsights += len(a.deps.Collaborative.SectionInsights(string(target)))
	}

	if len(out.RelevantMemories) > dominantSentimentMin {
		if label, n := dominantSentiment(out.RelevantMemories); n > 0 {
			out.CollaborativeInsights = append(out.CollaborativeInsights, state.Insight{
				Source:     a.name,
				Type:       "sentiment_pattern",
				Content:    fmt.Sprintf("Dominant sentiment in %s across %d recent chunks: %s", c.Section, len(out.RelevantMemories), label),
				Sections:   []interfaces.SectionName{c.Section},
				Confidence: sentimentInsightConf,
			})
		}
	}
	for _, target := range out.CrossReferences {
		out.CollaborativeInsights = append(out.CollaborativeInsights, state.Insight{
			Source:     a.name,
			Type:       "cross_section_link",
			Content:    fmt.Sprintf("%s content references %s", c.Section, target),
			Sections:   []interfaces.SectionName{c.Section, target},
			Confidence: crossSectionLinkConf,
		})
	}

	for _, in := range out.CollaborativeInsights {
		a.deps.Board.AddCollaborativeInsight(in)
		related := make([]string, 0, len(in.Sections))
		for _, s := range in.Sections {
			if s != c.Section {
				related = append(related, string(s))
			}
		}
		a.deps.Collaborative.Share(memory.SharedInsight{
			Agent:           a.agent,
			Section:         string(c.Section),
			Type:            in.Type,
			Content:         in.Content,
			Confidence:      in.Confidence,
			RelatedSections: related,
			References:      []string{c.ChunkID},
		})
	}

	if a.deps.Memory != nil && c.Memory != nil {
		if err := a.deps.Memory.Upsert(ctx, a.agent, string(c.Section), c.ChunkID, *c.Memory); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Sprintf("memory update failed: %v", err))
		}
	}

	out.MemorySummary = fmt.Sprintf("Retrieved %d memories, found %d cross-section references",
		len(out.RelevantMemories), len(out.CrossReferences))
	return a.finish(c, start, out, memoryCoordinatorConf, errs), nil
}

// dominantSentiment returns the most frequent label, ties broken alphabetically.
func dominantSentiment(memories []RelevantMemory) (string, int) {
	counts := make(map[string]int)
	for _, m := range memories {
		if m.Sentiment != "" {
			counts[m.Sentiment]++
		}
	}
	best, bestN := "", 0
	for _, label := range sortedKeys(counts) {
		if counts[label] > bestN {
			best, bestN = label, counts[label]
		}
	}
	return best, bestN
}
