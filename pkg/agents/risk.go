package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"report-analyzer/internal/analysis"
	"report-analyzer/internal/knowledge"
	"report-analyzer/pkg/interfaces"
)

const modelRiskThreshold = 0.3

var riskPatterns = []struct {
	category string
	keywords []string
}{
	{"compliance", []string{"violation", "non-compliance", "breach", "regulatory action"}},
	{"financial", []string{"loss", "impairment", "write-off", "default", "liquidity crisis"}},
	{"operational", []string{"disruption", "failure", "outage", "incident", "breakdown"}},
	{"strategic", []string{"competition", "market share loss", "obsolescence", "disruption"}},
	{"reputational", []string{"scandal", "controversy", "investigation", "lawsuit"}},
	{"cyber", []string{"breach", "hack", "ransomware", "data theft", "cyber attack"}},
}

// RiskOutput is the result of the risk sub-agent
type RiskOutput struct {
	RiskCategories       map[string][]interfaces.Risk `json:"risk_categories"`
	HighPriorityRisks    []interfaces.Risk            `json:"high_priority_risks"`
	TotalRisksIdentified int                          `json:"total_risks_identified"`
	RiskSummary          string                       `json:"risk_summary"`
}

// RiskAgent combines model risk scores, keyword patterns and knowledge graph risks.
type RiskAgent struct {
	base
}

// NewRiskAgent creates the risk sub-agent of a section.
func NewRiskAgent(section interfaces.SectionName, parent string, deps *Deps) *RiskAgent {
	return &RiskAgent{base: newBase(section, KindRisk, parent, deps)}
}

// RiskPriority buckets a model score.
func RiskPriority(score float64) interfaces.RiskPriority {
	switch {
	case score > 0.7:
		return interfaces.PriorityHigh
	case score > 0.5:
		return interfaces.PriorityMedium
	default:
		return interfaces.PriorityLow
	}
}

// Process identifies risks in content and records them for the section.
func (a *RiskAgent) Process(ctx context.Context, content string, c Context) (*Result, error) {
	start := time.Now()
	var errs []string

	scores, note, err := a.deps.Analysis.ClassifyRisk(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}
	if note != "" {
		errs = append(errs, note)
	}

	var found []interfaces.Risk
	for _, label := range analysis.RiskLabels {
		score, ok := scores[label]
		if !ok || score <= modelRiskThreshold {
			continue
		}
		found = append(found, interfaces.Risk{
			Type:        label,
			Description: fmt.Sprintf("%s detected by classifier", strings.ReplaceAll(label, "_", " ")),
			Score:       score,
			Priority:    RiskPriority(score),
			Source:      interfaces.SourceModel,
		})
	}

	found = append(found, patternRisks(content)...)

	for _, e := range chunkEntities(a.deps.Knowledge, c.ChunkID, knowledge.TypeRisk) {
		found = append(found, interfaces.Risk{
			Type:        "kg_identified",
			Description: e.Name,
			Priority:    interfaces.PriorityMedium,
			Source:      interfaces.SourceKnowledgeGraph,
			EntityID:    e.ID,
		})
	}

	risks := dedupRisks(found)
	out := &RiskOutput{
		RiskCategories:    make(map[string][]interfaces.Risk),
		HighPriorityRisks: []interfaces.Risk{},
	}
	for _, r := range risks {
		r.Section = c.Section
		out.RiskCategories[r.Type] = append(out.RiskCategories[r.Type], r)
		if r.Priority == interfaces.PriorityHigh {
			out.HighPriorityRisks = append(out.HighPriorityRisks, r)
		}
		a.deps.Board.AddRisk(c.Section, r)
	}
	out.TotalRisksIdentified = len(risks)
	out.RiskSummary = riskSummary(out)

	confidence := 0.85
	if len(errs) > 0 {
		confidence = 0.7
	}
	return a.finish(c, start, out, confidence, errs), nil
}

func patternRisks(content string) []interfaces.Risk {
	lower := strings.ToLower(content)
	var out []interfaces.Risk
	for _, p := range riskPatterns {
		for _, kw := range p.keywords {
			if !strings.Contains(lower, kw) {
				continue
			}
			out = append(out, interfaces.Risk{
				Type:        p.category,
				Keyword:     kw,
				Description: fmt.Sprintf("%s risk indicated by %q", p.category, kw),
				Priority:    interfaces.PriorityMedium,
				Source:      interfaces.SourcePattern,
			})
		}
	}
	return out
}

// dedupRisks keeps the first risk of each (type, source) pair.
func dedupRisks(risks []interfaces.Risk) []interfaces.Risk {
	seen := make(map[string]struct{}, len(risks))
	out := make([]interfaces.Risk, 0, len(risks))
	for _, r := range risks {
		key := r.Type + "_" + string(r.Source)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func riskSummary(out *RiskOutput) string {
	if out.TotalRisksIdentified == 0 {
		return "No significant risks identified."
	}
	summary := fmt.Sprintf("Identified %d total risks across %d categories. ", out.TotalRisksIdentified, len(out.RiskCategories))
	if n := len(out.HighPriorityRisks); n > 0 {
		summary += fmt.Sprintf("%d high-priority risks require immediate attention.", n)
	}
	return strings.TrimSpace(summary)
}
