// Package tasks turns chunk text into typed analysis tasks and orders them by dependency.
package tasks

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"report-analyzer/pkg/interfaces"
)

var taskPatterns = map[interfaces.TaskType][]string{
	interfaces.TaskFinancialAnalysis:      {"financial statements", "balance sheet", "income statement", "cash flow", "ratios", "metrics"},
	interfaces.TaskRiskAssessment:         {"risk factors", "uncertainties", "challenges", "threats", "mitigation"},
	interfaces.TaskPerformanceMetrics:     {"kpi", "performance indicator", "benchmark", "growth rate", "market share"},
	interfaces.TaskGovernanceReview:       {"board", "directors", "committees", "governance structure", "policies"},
	interfaces.TaskSustainabilityAnalysis: {"esg", "sustainable", "environmental", "social responsibility", "carbon"},
	interfaces.TaskMarketAnalysis:         {"market conditions", "competition", "industry trends", "market share", "competitive advantage"},
	interfaces.TaskStrategyReview:         {"strategic initiatives", "objectives", "future plans", "expansion", "development"},
	interfaces.TaskComplianceCheck:        {"regulatory", "compliance", "legal requirements", "standards", "regulations"},
}

var priorities = map[interfaces.TaskType]int{
	interfaces.TaskFinancialAnalysis:      5,
	interfaces.TaskRiskAssessment:         4,
	interfaces.TaskPerformanceMetrics:     4,
	interfaces.TaskGovernanceReview:       3,
	interfaces.TaskSustainabilityAnalysis: 3,
	interfaces.TaskMarketAnalysis:         3,
	interfaces.TaskStrategyReview:         4,
	interfaces.TaskComplianceCheck:        3,
}

var dependencies = map[interfaces.TaskType][]interfaces.TaskType{
	interfaces.TaskRiskAssessment:     {interfaces.TaskFinancialAnalysis},
	interfaces.TaskPerformanceMetrics: {interfaces.TaskFinancialAnalysis},
	interfaces.TaskMarketAnalysis:     {interfaces.TaskFinancialAnalysis},
	interfaces.TaskStrategyReview:     {interfaces.TaskMarketAnalysis, interfaces.TaskFinancialAnalysis},
	interfaces.TaskComplianceCheck:    {interfaces.TaskGovernanceReview},
}

var targetSections = map[interfaces.TaskType][]interfaces.SectionName{
	interfaces.TaskFinancialAnalysis:      {interfaces.SectionFinancialStatements, interfaces.SectionMDNA},
	interfaces.TaskRiskAssessment:         {interfaces.SectionMDNA, interfaces.SectionAuditReport},
	interfaces.TaskPerformanceMetrics:     {interfaces.SectionMDNA, interfaces.SectionFinancialStatements},
	interfaces.TaskGovernanceReview:       {interfaces.SectionCorporateGovernance},
	interfaces.TaskSustainabilityAnalysis: {interfaces.SectionESG, interfaces.SectionSDG17},
	interfaces.TaskMarketAnalysis:         {interfaces.SectionMDNA, interfaces.SectionLetterToShareholders},
	interfaces.TaskStrategyReview:         {interfaces.SectionLetterToShareholders, interfaces.SectionMDNA},
	interfaces.TaskComplianceCheck:        {interfaces.SectionAuditReport, interfaces.SectionCorporateGovernance},
}

var keyEntityPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)

const maxKeyEntities = 5

// Priority returns the scheduling weight of a task type. Unknown types get 2.
func Priority(t interfaces.TaskType) int {
	if p, ok := priorities[t]; ok {
		return p
	}
	return 2
}

// Dependencies returns the task types that must run before t.
func Dependencies(t interfaces.TaskType) []interfaces.TaskType {
	return append([]interfaces.TaskType{}, dependencies[t]...)
}

// TargetSections returns the report sections a task type is most relevant to.
func TargetSections(t interfaces.TaskType) []interfaces.SectionName {
	return append([]interfaces.SectionName(nil), targetSections[t]...)
}

// Decomposer matches chunk text against per-type keyword patterns
type Decomposer struct {
	patterns map[interfaces.TaskType][]string
}

// NewDecomposer creates a decomposer with the built-in patterns.
func NewDecomposer() *Decomposer {
	return &Decomposer{patterns: taskPatterns}
}

// Decompose returns one task per matching task type, sorted by descending priority and then by
// dependency count.
func (d *Decomposer) Decompose(content string) []interfaces.Task {
	lower := strings.ToLower(content)
	entities := keyEntities(content)

	var out []interfaces.Task
	for _, tt := range interfaces.AllTaskTypes() {
		if !matchesAny(lower, d.patterns[tt]) {
			continue
		}
		out = append(out, interfaces.Task{
			Type:         tt,
			Content:      content,
			Priority:     Priority(tt),
			Dependencies: Dependencies(tt),
			Metadata: map[string]any{
				"content_length":     len([]rune(content)),
				"task_type":          string(tt),
				"extracted_entities": entities,
			},
			TargetSections: TargetSections(tt),
			Status:         interfaces.TaskPending,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return len(out[i].Dependencies) < len(out[j].Dependencies)
	})
	return out
}

// DecomposeChunk decomposes a chunk and gives each task an id derived from the chunk id.
func (d *Decomposer) DecomposeChunk(c interfaces.Chunk) []interfaces.Task {
	tasks := d.Decompose(c.Content)
	for i := range tasks {
		tasks[i].ID = fmt.Sprintf("%s_%s", c.ID, tasks[i].Type)
		tasks[i].Metadata["chunk_id"] = c.ID
	}
	return tasks
}

func matchesAny(lower string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func keyEntities(content string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, m := range keyEntityPattern.FindAllString(content, -1) {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
		if len(out) == maxKeyEntities {
			break
		}
	}
	return out
}

// Order returns tasks in an order where every task follows the tasks of the types it depends on.
// Dependencies on types absent from tasks are ignored. Among ready tasks the higher priority runs
// first, then the earlier one. A dependency cycle is reported as an error.
func Order(tasks []interfaces.Task) ([]interfaces.Task, error) {
	present := make(map[interfaces.TaskType]int)
	for _, t := range tasks {
		present[t.Type]++
	}

	remaining := make(map[interfaces.TaskType]int, len(present))
	for k, v := range present {
		remaining[k] = v
	}

	placed := make([]bool, len(tasks))
	out := make([]interfaces.Task, 0, len(tasks))
	for len(out) < len(tasks) {
		best := -1
		for i, t := range tasks {
			if placed[i] || !ready(t, present, remaining) {
				continue
			}
			if best < 0 || t.Priority > tasks[best].Priority {
				best = i
			}
		}
		if best < 0 {
			return nil, fmt.Errorf("task dependency cycle among %d tasks", len(tasks)-len(out))
		}
		placed[best] = true
		remaining[tasks[best].Type]--
		out = append(out, tasks[best])
	}
	return out, nil
}

func ready(t interfaces.Task, present, remaining map[interfaces.TaskType]int) bool {
	for _, dep := range t.Dependencies {
		if dep == t.Type {
			continue
		}
		if present[dep] > 0 && remaining[dep] > 0 {
			return false
		}
	}
	return true
}
