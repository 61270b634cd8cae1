package agents

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"report-analyzer/internal/knowledge"
	"report-analyzer/pkg/interfaces"
	"report-analyzer/pkg/state"
)

const (
	maxReportKeyMetrics    = 20
	maxFinancialHighlights = 5
	maxKeyEntities         = 5
)

// Financial health statuses.
const (
	HealthHealthy    = "Healthy"
	HealthConcerning = "Concerning"
	HealthStable     = "Stable"
)

// SectionAnalysis gathers everything recorded for one section
type SectionAnalysis struct {
	Summary       string                     `json:"summary"`
	Findings      map[string][]state.Finding `json:"findings"`
	Metrics       []interfaces.Metric        `json:"metrics"`
	Risks         []interfaces.Risk          `json:"risks"`
	Opportunities []interfaces.Opportunity   `json:"opportunities"`
}

// RiskAssessment groups every risk by priority
type RiskAssessment struct {
	TotalRisks     int               `json:"total_risks"`
	HighPriority   []interfaces.Risk `json:"high_priority"`
	MediumPriority []interfaces.Risk `json:"medium_priority"`
	LowPriority    []interfaces.Risk `json:"low_priority"`
	RiskSummary    string            `json:"risk_summary"`
}

// FinancialHealth is a coarse verdict over the financial statement metrics
type FinancialHealth struct {
	Status     string   `json:"status"`
	Indicators []string `json:"indicators"`
	Concerns   []string `json:"concerns"`
	Strengths  []string `json:"strengths"`
}

// GovernanceSummary merges the governance_esg findings of every section
type GovernanceSummary struct {
	Governance                 interfaces.Governance `json:"governance"`
	ESG                        interfaces.ESG        `json:"esg"`
	SDG                        []string              `json:"sdg"`
	AverageComplianceScore     float64               `json:"average_compliance_score"`
	AverageSustainabilityScore float64               `json:"average_sustainability_score"`
}

func (g GovernanceSummary) hasGovernance() bool {
	gov := g.Governance
	return len(gov.BoardMembers)+len(gov.Committees)+len(gov.Policies)+len(gov.IndependenceIndicators) > 0
}

// KeyEntity is a highly connected knowledge graph entity
type KeyEntity struct {
	ID         string           `json:"id"`
	Centrality float64          `json:"centrality"`
	Entity     knowledge.Entity `json:"entity"`
}

// KnowledgeGraphInsights summarizes the knowledge graph
type KnowledgeGraphInsights struct {
	Statistics         knowledge.Stats `json:"statistics"`
	KeyEntities        []KeyEntity     `json:"key_entities"`
	TotalEntities      int             `json:"total_entities"`
	TotalRelationships int             `json:"total_relationships"`
}

// Appendices hold the detailed data behind the report
type Appendices struct {
	DetailedMetrics             map[interfaces.SectionName][]interfaces.Metric `json:"detailed_metrics"`
	KnowledgeGraphEntities      map[string][]string                            `json:"knowledge_graph_entities"`
	KnowledgeGraphRelationships map[string][]string                            `json:"knowledge_graph_relationships"`
	ProcessingMetadata          state.Summary                                  `json:"processing_metadata"`
}

// Report is the final analysis of a document
type Report struct {
	ExecutiveSummary     string                                     `json:"executive_summary"`
	SectionAnalyses      map[interfaces.SectionName]SectionAnalysis `json:"section_analyses"`
	KeyMetrics           []interfaces.Metric                        `json:"key_metrics"`
	RiskAssessment       RiskAssessment                             `json:"risk_assessment"`
	Opportunities        []interfaces.Opportunity                   `json:"opportunities"`
	FinancialHealth      FinancialHealth                            `json:"financial_health"`
	GovernanceESG        GovernanceSummary                          `json:"governance_esg_summary"`
	KnowledgeGraph       KnowledgeGraphInsights                     `json:"knowledge_graph_insights"`
	CrossSectionInsights []state.Insight                            `json:"cross_section_insights"`
	Recommendations      []string                                   `json:"recommendations"`
	Appendices           Appendices                                 `json:"appendices"`
	GlobalReport         string                                     `json:"global_report"`
	GeneratedAt          time.Time                                  `json:"generated_at"`
}

// FinalGenerator compiles the blackboard and knowledge graph into a Report.
type FinalGenerator struct {
	board *state.Graph
	kg    *knowledge.Graph
	now   func() time.Time
}

// NewFinalGenerator creates a generator over board and kg.
func NewFinalGenerator(board *state.Graph, kg *knowledge.Graph) *FinalGenerator {
	if kg == nil {
		kg = knowledge.New()
	}
	return &FinalGenerator{board: board, kg: kg, now: time.Now}
}

// Generate builds the report and stores the global report, executive summary and recommendations
// on the blackboard.
func (f *FinalGenerator) Generate() *Report {
	sections := interfaces.AllSections()
	r := &Report{
		SectionAnalyses: make(map[interfaces.SectionName]SectionAnalysis),
		GeneratedAt:     f.now(),
	}

	summaries := f.board.SectionSummaries()
	for _, s := range sections {
		summary, ok := summaries[s]
		if !ok {
			continue
		}
		r.SectionAnalyses[s] = SectionAnalysis{
			Summary:       summary,
			Findings:      f.board.SectionFindings(s),
			Metrics:       f.board.SectionMetrics(s),
			Risks:         f.board.SectionRisks(s),
			Opportunities: f.board.SectionOpportunities(s),
		}
	}

	r.KeyMetrics = f.keyMetrics(sections)
	r.RiskAssessment = f.riskAssessment(sections)
	r.Opportunities = []interfaces.Opportunity{}
	for _, s := range sections {
		r.Opportunities = append(r.Opportunities, f.board.SectionOpportunities(s)...)
	}
	r.FinancialHealth = FinancialHealthOf(f.board.SectionMetrics(interfaces.SectionFinancialStatements))
	r.GovernanceESG = f.governance(sections)
	r.KnowledgeGraph = f.kgInsights()
	r.CrossSectionInsights = f.board.CollaborativeInsights()
	if r.CrossSectionInsights == nil {
		r.CrossSectionInsights = []state.Insight{}
	}
	r.ExecutiveSummary = f.executiveSummary(sections, r)
	r.Recommendations = Recommendations(r)

	detailed := make(map[interfaces.SectionName][]interfaces.Metric)
	for _, s := range sections {
		if m := f.board.SectionMetrics(s); len(m) > 0 {
			detailed[s] = m
		}
	}
	r.Appendices = Appendices{
		DetailedMetrics:             detailed,
		KnowledgeGraphEntities:      f.board.KGEntities(),
		KnowledgeGraphRelationships: f.board.KGRelationships(),
		ProcessingMetadata:          f.board.Summary(),
	}

	r.GlobalReport = GlobalReport(summaries)
	f.board.SetReport(r.GlobalReport, r.ExecutiveSummary, r.Recommendations)
	return r
}

func (f *FinalGenerator) executiveSummary(sections []interfaces.SectionName, r *Report) string {
	var parts []string
	if companies := f.kg.EntitiesByType(knowledge.TypeCompany); len(companies) > 0 {
		parts = append(parts, fmt.Sprintf("Analysis of %s Annual Report", companies[0].Name))
	}

	parts = append(parts, "\nKey Findings:")
	parts = append(parts, fmt.Sprintf("- Identified %d risks across all sections", r.RiskAssessment.TotalRisks))
	parts = append(parts, fmt.Sprintf("- Found %d opportunities for growth", len(r.Opportunities)))

	counts := make(map[string]int)
	for _, s := range sections {
		for _, finding := range f.board.SectionFindings(s)["sentiment_analysis"] {
			label := "neutral"
			if finding.Sentiment != nil && finding.Sentiment.Label != "" {
				label = finding.Sentiment.Label
			}
			counts[label]++
		}
	}
	if label, n := mostCommon(counts); n > 0 {
		parts = append(parts, fmt.Sprintf("- Overall sentiment: %s", label))
	}

	if metrics := f.board.SectionMetrics(interfaces.SectionFinancialStatements); len(metrics) > 0 {
		parts = append(parts, "\nFinancial Highlights:")
		for _, m := range head(metrics, maxFinancialHighlights) {
			parts = append(parts, fmt.Sprintf("- %s: %s", m.Type, m.Value))
		}
	}
	return strings.Join(parts, "\n")
}

func (f *FinalGenerator) keyMetrics(sections []interfaces.SectionName) []interfaces.Metric {
	var all []interfaces.Metric
	for _, s := range sections {
		all = append(all, f.board.SectionMetrics(s)...)
	}
	out := dedupMetrics(all)
	if len(out) > maxReportKeyMetrics {
		out = out[:maxReportKeyMetrics]
	}
	return out
}

func (f *FinalGenerator) riskAssessment(sections []interfaces.SectionName) RiskAssessment {
	ra := RiskAssessment{
		HighPriority:   []interfaces.Risk{},
		MediumPriority: []interfaces.Risk{},
		LowPriority:    []interfaces.Risk{},
	}
	for _, s := range sections {
		for _, r := range f.board.SectionRisks(s) {
			r.Section = s
			ra.TotalRisks++
			switch r.Priority {
			case interfaces.PriorityHigh:
				ra.HighPriority = append(ra.HighPriority, r)
			case interfaces.PriorityMedium:
				ra.MediumPriority = append(ra.MediumPriority, r)
			case interfaces.PriorityLow:
				ra.LowPriority = append(ra.LowPriority, r)
			}
		}
	}
	ra.RiskSummary = fmt.Sprintf("Identified %d total risks: %d high, %d medium, %d low priority",
		ra.TotalRisks, len(ra.HighPriority), len(ra.MediumPriority), len(ra.LowPriority))
	return ra
}

// FinancialHealthOf judges financial statement metrics: growth that increases is a strength, a loss
// or a decrease is a concern.
func FinancialHealthOf(metrics []interfaces.Metric) FinancialHealth {
	h := FinancialHealth{Indicators: []string{}, Concerns: []string{}, Strengths: []string{}}
	for _, m := range metrics {
		t := strings.ToLower(m.Type)
		detail := strings.ToLower(m.Value + " " + m.Unit)
		if m.Value != "" {
			h.Indicators = append(h.Indicators, fmt.Sprintf("%s: %s", t, strings.TrimSpace(m.Value+" "+m.Unit)))
		}
		switch {
		case strings.Contains(t, "growth") && strings.Contains(detail, "increase"):
			h.Strengths = append(h.Strengths, fmt.Sprintf("Positive growth in %s", t))
		case strings.Contains(t, "loss") || strings.Contains(detail, "decrease"):
			h.Concerns = append(h.Concerns, fmt.Sprintf("Negative trend in %s", t))
		}
	}
	switch {
	case len(h.Strengths) > len(h.Concerns):
		h.Status = HealthHealthy
	case len(h.Concerns) > len(h.Strengths):
		h.Status = HealthConcerning
	default:
		h.Status = HealthStable
	}
	return h
}

func (f *FinalGenerator) governance(sections []interfaces.SectionName) GovernanceSummary {
	g := GovernanceSummary{
		Governance: interfaces.Governance{
			BoardMembers:           []string{},
			Committees:             []string{},
			Policies:               []string{},
			IndependenceIndicators: []string{},
		},
		ESG: interfaces.ESG{Environmental: []string{}, Social: []string{}, Governance: []string{}},
		SDG: []string{},
	}
	var n int
	var compliance, sustainability float64
	for _, s := range sections {
		for _, finding := range f.board.SectionFindings(s)["governance_esg"] {
			ge := finding.GovernanceESG
			if ge == nil {
				continue
			}
			n++
			compliance += ge.ComplianceScore
			sustainability += ge.SustainabilityScore
			g.Governance.BoardMembers = union(g.Governance.BoardMembers, ge.Governance.BoardMembers)
			g.Governance.Committees = union(g.Governance.Committees, ge.Governance.Committees)
			g.Governance.Policies = union(g.Governance.Policies, ge.Governance.Policies)
			g.Governance.IndependenceIndicators = union(g.Governance.IndependenceIndicators, ge.Governance.IndependenceIndicators)
			g.ESG.Environmental = union(g.ESG.Environmental, ge.ESG.Environmental)
			g.ESG.Social = union(g.ESG.Social, ge.ESG.Social)
			g.ESG.Governance = union(g.ESG.Governance, ge.ESG.Governance)
			g.SDG = union(g.SDG, ge.SDG)
		}
	}
	sortSDG(g.SDG)
	if n > 0 {
		g.AverageComplianceScore = round2(compliance / float64(n))
		g.AverageSustainabilityScore = round2(sustainability / float64(n))
	}
	return g
}

func (f *FinalGenerator) kgInsights() KnowledgeGraphInsights {
	stats := f.kg.Stats()
	out := KnowledgeGraphInsights{
		Statistics:         stats,
		KeyEntities:        []KeyEntity{},
		TotalEntities:      stats.TotalEntities,
		TotalRelationships: stats.TotalRelationships,
	}
	scores, err := f.kg.Centrality(knowledge.CentralityDegree)
	if err != nil {
		return out
	}
	for _, id := range knowledge.TopCentral(scores, maxKeyEntities) {
		e, _ := f.kg.Entity(id)
		out.KeyEntities = append(out.KeyEntities, KeyEntity{ID: id, Centrality: scores[id], Entity: e})
	}
	return out
}

// Recommendations derives actions from the risk, financial health and governance parts of r.
func Recommendations(r *Report) []string {
	out := []string{}
	if n := len(r.RiskAssessment.HighPriority); n > 0 {
		out = append(out, fmt.Sprintf("Address %d high-priority risks immediately", n))
	}
	if r.FinancialHealth.Status == HealthConcerning {
		out = append(out, "Review financial strategy and cost structure")
	}
	if !r.GovernanceESG.hasGovernance() {
		out = append(out, "Enhance governance disclosure and transparency")
	}
	if n := len(r.GovernanceESG.SDG); n > 0 {
		out = append(out, fmt.Sprintf("Continue focus on %d SDG goals", n))
	} else {
		out = append(out, "Consider adopting SDG framework for sustainability reporting")
	}
	return out
}

func mostCommon(counts map[string]int) (string, int) {
	best, bestN := "", 0
	for _, k := range sortedKeys(counts) {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best, bestN
}

func union(base, extra []string) []string {
	for _, v := range extra {
		base = appendUnique(base, v)
	}
	return base
}

func sortSDG(goals []string) {
	num := func(s string) int {
		n, _ := strconv.Atoi(strings.TrimPrefix(s, "SDG "))
		return n
	}
	sort.SliceStable(goals, func(i, j int) bool { return num(goals[i]) < num(goals[j]) })
}
