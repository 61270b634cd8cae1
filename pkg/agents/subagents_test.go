package agents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-analyzer/internal/external"
	"report-analyzer/internal/knowledge"
	"report-analyzer/internal/memory"
	"report-analyzer/pkg/interfaces"
	"report-analyzer/pkg/state"
)

func testDeps(t *testing.T) *Deps {
	t.Helper()
	store, err := memory.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return (&Deps{Memory: store}).withDefaults()
}

func mdnaContext(taskID string) Context {
	return Context{TaskID: taskID, ChunkID: "chunk_0", Section: interfaces.SectionMDNA}
}

func TestSentimentAgent(t *testing.T) {
	deps := testDeps(t)
	agent := NewSentimentAgent(interfaces.SectionMDNA, "mdna_agent", deps)
	assert.Equal(t, "mdna_sentiment", agent.Name())

	text := "Revenue grew with record growth. Channel stuffing and bill and hold were noted."
	res, err := agent.Process(context.Background(), text, mdnaContext("t1"))
	require.NoError(t, err)

	out, ok := res.Output.(*SentimentOutput)
	require.True(t, ok)
	assert.Equal(t, "positive", out.Sentiment.Label)
	assert.InDelta(t, 1.0, out.Sentiment.Positive+out.Sentiment.Neutral+out.Sentiment.Negative, 1e-9)
	assert.Equal(t, []string{"premature_revenue_recognition"}, out.HighRiskPatterns)
	assert.InDelta(t, (0.75+0.125)*0.7, out.SentimentScore, 1e-9)
	assert.Equal(t, "CAUTION: positive sentiment with potential financial manipulation indicators detected", out.OverallAssessment)

	// Keyword scorers stand in for the models, so the result is marked degraded.
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
	assert.NotEmpty(t, res.Errors)
	assert.Equal(t, "t1", res.TaskID)

	findings := deps.Board.SectionFindings(interfaces.SectionMDNA)["sentiment_analysis"]
	require.Len(t, findings, 1)
	assert.Equal(t, "chunk_0", findings[0].ChunkID)
	require.NotNil(t, findings[0].Sentiment)

	msgs := deps.Board.Receive("mdna_agent")
	require.Len(t, msgs, 1)
	assert.Equal(t, state.MessageResult, msgs[0].Type)
	assert.Len(t, agent.Recent(), 1)
}

func TestAssessSentiment(t *testing.T) {
	assert.Equal(t, "Positive sentiment indicating healthy outlook", assessSentiment("positive", false))
	assert.Equal(t, "Negative sentiment suggesting concerns or challenges", assessSentiment("negative", false))
	assert.Equal(t, "Neutral sentiment with balanced tone", assessSentiment("neutral", false))
}

func TestRiskPriority(t *testing.T) {
	assert.Equal(t, interfaces.PriorityHigh, RiskPriority(0.71))
	assert.Equal(t, interfaces.PriorityMedium, RiskPriority(0.7))
	assert.Equal(t, interfaces.PriorityMedium, RiskPriority(0.51))
	assert.Equal(t, interfaces.PriorityLow, RiskPriority(0.5))
}

func TestRiskAgent(t *testing.T) {
	deps := testDeps(t)
	deps.Knowledge.AddEntity(knowledge.Entity{ID: "risk_a", Type: knowledge.TypeRisk, Name: "Supply shortage", References: []string{"chunk_0"}})
	deps.Knowledge.AddEntity(knowledge.Entity{ID: "risk_b", Type: knowledge.TypeRisk, Name: "Other chunk", References: []string{"chunk_9"}})
	agent := NewRiskAgent(interfaces.SectionMDNA, "", deps)

	text := "A data breach caused an outage. Litigation, a lawsuit and a settlement followed."
	res, err := agent.Process(context.Background(), text, mdnaContext("t1"))
	require.NoError(t, err)

	out := res.Output.(*RiskOutput)
	// 3 model risks, 4 pattern risks and 1 knowledge graph risk.
	assert.Equal(t, 8, out.TotalRisksIdentified)
	assert.Len(t, out.RiskCategories, 8)
	require.Len(t, out.HighPriorityRisks, 1)
	assert.Equal(t, "legal_risk", out.HighPriorityRisks[0].Type)
	assert.Equal(t, "Identified 8 total risks across 8 categories. 1 high-priority risks require immediate attention.", out.RiskSummary)

	cyber := out.RiskCategories["cyber"]
	require.Len(t, cyber, 1)
	assert.Equal(t, "breach", cyber[0].Keyword)
	assert.Equal(t, interfaces.SourcePattern, cyber[0].Source)

	kg := out.RiskCategories["kg_identified"]
	require.Len(t, kg, 1)
	assert.Equal(t, "Supply shortage", kg[0].Description)
	assert.Equal(t, "risk_a", kg[0].EntityID)

	stored := deps.Board.SectionRisks(interfaces.SectionMDNA)
	assert.Len(t, stored, 8)
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
}

func TestDedupRisks(t *testing.T) {
	in := []interfaces.Risk{
		{Type: "operational", Keyword: "outage", Source: interfaces.SourcePattern},
		{Type: "operational", Keyword: "failure", Source: interfaces.SourcePattern},
		{Type: "operational", Source: interfaces.SourceModel},
	}
	out := dedupRisks(in)
	require.Len(t, out, 2)
	assert.Equal(t, "outage", out[0].Keyword)
}

func TestMetricsAgent(t *testing.T) {
	deps := testDeps(t)
	deps.Knowledge.AddEntity(knowledge.Entity{
		ID: "kpi_1", Type: knowledge.TypeKPI, Name: "NPS 45",
		Properties: map[string]any{"value": "45"}, References: []string{"chunk_0"},
	})
	agent := NewMetricsAgent(interfaces.SectionFinancialStatements, "", deps)

	text := "The company reported $5.2 billion in revenue and 12% growth. Operating margin hit 18.5% margin."
	c := Context{TaskID: "t1", ChunkID: "chunk_0", Section: interfaces.SectionFinancialStatements}
	res, err := agent.Process(context.Background(), text, c)
	require.NoError(t, err)

	out := res.Output.(*MetricsOutput)
	assert.Equal(t, 4, out.TotalMetrics)
	assert.Equal(t, "Extracted 4 metrics: 1 financial, 1 growth, 1 efficiency, 1 other", out.MetricSummary)
	require.Len(t, out.KeyMetrics, 3)

	revenue := out.MetricsByCategory["financial"][0]
	assert.Equal(t, "revenue", revenue.Type)
	assert.Equal(t, "5.2", revenue.Value)
	assert.Equal(t, "billion", revenue.Unit)
	assert.Contains(t, revenue.Context, "$5.2 billion in revenue")

	kpi := out.MetricsByCategory["other"][0]
	assert.Equal(t, "kpi", kpi.Type)
	assert.Equal(t, "45", kpi.Value)
	assert.Equal(t, "kpi_1", kpi.EntityID)

	assert.Len(t, deps.Board.SectionMetrics(interfaces.SectionFinancialStatements), 4)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)

	_, err = agent.Process(cancelled(), text, c)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractMetricsDedup(t *testing.T) {
	got := dedupMetrics(ExtractMetrics("5% growth here and 5% growth there, then 7% decrease."))
	require.Len(t, got, 2)
	assert.Equal(t, "5", got[0].Value)
	assert.Equal(t, "growth", got[0].Unit)
	assert.Equal(t, "decrease", got[1].Unit)
}

func TestMetricCategory(t *testing.T) {
	tests := map[string]string{
		"revenue":          "financial",
		"growth_rate":      "growth",
		"pe_ratio":         "efficiency",
		"margin":           "efficiency",
		"output_volume":    "operational",
		"financial_metric": "other",
	}
	for in, want := range tests {
		assert.Equal(t, want, metricCategory(in), in)
	}
}

func TestContextWindowKeepsRunes(t *testing.T) {
	text := "ééééé 10% growth ééééé"
	start := len("ééééé ")
	got := contextWindow(text, start, start+len("10% growth"), 3)
	assert.True(t, len(got) > 0)
	assert.NotContains(t, got, "�")
	assert.Equal(t, got, string([]rune(got)))
}

func TestGovernanceAgent(t *testing.T) {
	deps := testDeps(t)
	agent := NewGovernanceAgent(interfaces.SectionCorporateGovernance, "", deps)

	text := "Chairman: John Smith leads the board. The Audit Committee and the Risk Committee met. " +
		"Two independent directors joined. We cut carbon emissions and improved diversity and safety. " +
		"Our ethics code of conduct supports SDG 13 and SDG-7 and Sustainable Development Goal 13, not SDG 18."
	c := Context{TaskID: "t1", ChunkID: "chunk_3", Section: interfaces.SectionCorporateGovernance}
	res, err := agent.Process(context.Background(), text, c)
	require.NoError(t, err)

	g := res.Output.(*interfaces.GovernanceESG)
	assert.Equal(t, []string{"John Smith"}, g.Governance.BoardMembers)
	assert.Equal(t, []string{"Audit Committee", "Risk Committee"}, g.Governance.Committees)
	assert.Equal(t, []string{"code of conduct"}, g.Governance.Policies)
	assert.Equal(t, []string{"Independent directors mentioned"}, g.Governance.IndependenceIndicators)
	assert.Equal(t, []string{"carbon", "emissions"}, g.ESG.Environmental)
	assert.Equal(t, []string{"diversity", "safety"}, g.ESG.Social)
	assert.Equal(t, []string{"ethics"}, g.ESG.Governance)
	assert.Equal(t, []string{"SDG 7", "SDG 13"}, g.SDG)
	assert.InDelta(t, 1.0, g.ComplianceScore, 1e-9)
	assert.InDelta(t, 0.9, g.SustainabilityScore, 1e-9)

	findings := deps.Board.SectionFindings(interfaces.SectionCorporateGovernance)["governance_esg"]
	require.Len(t, findings, 1)
	assert.Equal(t, "chunk_3", findings[0].ChunkID)
	assert.InDelta(t, 0.85, res.Confidence, 1e-9)
}

func TestGovernanceScoresFloor(t *testing.T) {
	g := AssessGovernanceESG("Nothing to see.")
	assert.InDelta(t, 0.5, g.ComplianceScore, 1e-9)
	assert.InDelta(t, 0.3, g.SustainabilityScore, 1e-9)
	assert.Empty(t, g.SDG)
	assert.NotNil(t, g.Governance.BoardMembers)
}

func TestSDGGoals(t *testing.T) {
	assert.Equal(t, []string{"SDG 1", "SDG 17"}, SDGGoals("sdg17, SDG 0, SDG-1 and SDG 99"))
	assert.Empty(t, SDGGoals("no goals"))
}

type fakeSearch struct{}

func (fakeSearch) Search(_ context.Context, query string, limit int) ([]interfaces.SearchHit, error) {
	return []interfaces.SearchHit{{Title: query + " 1"}, {Title: query + " 2"}}, nil
}

type fakeFinance struct{}

func (fakeFinance) Overview(_ context.Context, symbol string) (*interfaces.FinanceOverview, error) {
	if symbol == "Acme Corp" {
		return &interfaces.FinanceOverview{Symbol: "ACME", PERatio: 15.5}, nil
	}
	return nil, errors.New("no overview")
}

type fakeNews struct {
	mu    sync.Mutex
	since []time.Time
}

func (f *fakeNews) Headlines(_ context.Context, query string, since time.Time, limit int) ([]interfaces.NewsArticle, error) {
	f.mu.Lock()
	f.since = append(f.since, since)
	f.mu.Unlock()
	return []interfaces.NewsArticle{{Title: query + " news"}}, nil
}

func TestCapitalizedEntities(t *testing.T) {
	got := CapitalizedEntities("Acme Corp met Acme Corp and Globex Industries in Paris with Initech, Umbrella and Hooli.")
	assert.Equal(t, []string{"Acme Corp", "Globex Industries", "Paris", "Initech", "Umbrella"}, got)

	assert.Equal(t, []string{"Acme", "Globex"}, CapitalizedEntities("Acme and Acme and Acme and Acme and Acme met Globex."))
}

func TestExternalAgent(t *testing.T) {
	deps := testDeps(t)
	news := &fakeNews{}
	deps.External = &external.Sources{Search: fakeSearch{}, Finance: fakeFinance{}, News: news}
	agent := NewExternalAgent(interfaces.SectionMDNA, "", deps)
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	agent.now = func() time.Time { return fixed }

	res, err := agent.Process(context.Background(), "Acme Corp partnered with Globex Industries and Initech.", mdnaContext("t1"))
	require.NoError(t, err)

	out := res.Output.(*ExternalOutput)
	assert.Equal(t, []string{"Acme Corp", "Globex Industries", "Initech"}, out.EntitiesSearched)
	assert.Len(t, out.WebResults, 3)
	assert.Len(t, out.FinancialData, 1)
	assert.Len(t, out.News, 2)
	assert.Equal(t, []string{
		"Found 6 web references for mentioned entities",
		"Acme Corp P/E ratio: 15.5",
		"Found 2 recent news articles",
	}, out.Insights)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Globex Industries")
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)

	require.Len(t, news.since, 2)
	assert.Equal(t, fixed.Add(-7*24*time.Hour), news.since[0])
	assert.Len(t, deps.Board.Warnings(), 1)
}

func TestExternalAgentWithoutSources(t *testing.T) {
	deps := testDeps(t)
	agent := NewExternalAgent(interfaces.SectionMDNA, "", deps)
	res, err := agent.Process(context.Background(), "Acme Corp grew.", mdnaContext("t1"))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, res.Confidence, 1e-9)
	assert.Empty(t, res.Output.(*ExternalOutput).Insights)
}

func TestReferencedSections(t *testing.T) {
	got := ReferencedSections("The Board reviewed the auditor opinion and the balance sheet.", interfaces.SectionCorporateGovernance)
	assert.Equal(t, []interfaces.SectionName{interfaces.SectionFinancialStatements, interfaces.SectionAuditReport}, got)
	assert.Empty(t, ReferencedSections("plain words", interfaces.SectionMDNA))
}

func TestMemoryCoordinator(t *testing.T) {
	deps := testDeps(t)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		require.NoError(t, deps.Memory.Upsert(ctx, "mdna_agent", "mdna", "old", interfaces.MemoryValue{
			Summary:   "earlier chunk",
			Sentiment: &interfaces.Sentiment{Positive: 1, Label: "positive"},
		}))
	}
	agent := NewMemoryCoordinator(interfaces.SectionMDNA, "mdna_agent", deps)
	assert.Equal(t, "mdna_memory", agent.Name())

	value := interfaces.MemoryValue{Summary: "this chunk"}
	c := mdnaContext("t1")
	c.Memory = &value
	res, err := agent.Process(ctx, "The board reviewed the audit opinion.", c)
	require.NoError(t, err)

	out := res.Output.(*MemoryOutput)
	assert.Len(t, out.RelevantMemories, 6)
	assert.Equal(t, []interfaces.SectionName{interfaces.SectionAuditReport, interfaces.SectionCorporateGovernance}, out.CrossReferences)
	require.Len(t, out.CollaborativeInsights, 3)
	assert.Equal(t, "sentiment_pattern", out.CollaborativeInsights[0].Type)
	assert.Contains(t, out.CollaborativeInsights[0].Content, "positive")
	assert.Equal(t, "cross_section_link", out.CollaborativeInsights[1].Type)
	assert.Equal(t, "Retrieved 6 memories, found 2 cross-section references", out.MemorySummary)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)

	recs, err := deps.Memory.QueryAll(ctx, "mdna_agent", "mdna")
	require.NoError(t, err)
	require.Len(t, recs, 7)
	assert.Equal(t, "chunk_0", recs[6].Key)

	assert.Equal(t, out.CrossReferences, deps.Board.CrossReferences()[interfaces.SectionMDNA])
	assert.Len(t, deps.Board.CollaborativeInsights(), 3)
	assert.Equal(t, 3, deps.Collaborative.Len())
	assert.Equal(t, []string{"mdna"}, deps.Collaborative.RelatedSections("audit_report"))
	assert.Len(t, deps.Collaborative.SectionInsights("corporate_governance"), 1)
}

func TestMemoryCoordinatorLimitsRecords(t *testing.T) {
	deps := testDeps(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		require.NoError(t, deps.Memory.Upsert(ctx, "esg_agent", "esg", "k", interfaces.MemoryValue{Summary: string(make([]byte, 300))}))
	}
	agent := NewMemoryCoordinator(interfaces.SectionESG, "esg_agent", deps)
	res, err := agent.Process(ctx, "nothing related", Context{ChunkID: "chunk_1", Section: interfaces.SectionESG})
	require.NoError(t, err)

	out := res.Output.(*MemoryOutput)
	require.Len(t, out.RelevantMemories, 10)
	assert.Len(t, out.RelevantMemories[0].Summary, 200)
	assert.Empty(t, out.CollaborativeInsights)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	deps := testDeps(t)
	r.Register(KindRisk, NewRiskAgent(interfaces.SectionESG, "", deps))
	got, err := r.Get(KindRisk)
	require.NoError(t, err)
	assert.Equal(t, "esg_risk", got.Name())
	_, err = r.Get(KindMetrics)
	assert.Error(t, err)
	assert.Equal(t, []string{KindRisk}, r.Kinds())
}

func cancelled() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
