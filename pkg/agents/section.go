package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"report-analyzer/internal/document"
	"report-analyzer/internal/knowledge"
	"report-analyzer/internal/llm"
	"report-analyzer/internal/memory"
	"report-analyzer/pkg/interfaces"
	"report-analyzer/pkg/state"
	"report-analyzer/pkg/tasks"
)

const (
	summaryExcerptChars = 800
	priorRecordWindow   = 20
	priorPointsPerEntry = 3
	maxPriorPoints      = 5
	inboxCapacity       = 20
	sectionPointsConf   = 0.8
)

// relatedSections are the sections whose agents a section agent follows.
var relatedSections = map[interfaces.SectionName][]interfaces.SectionName{
	interfaces.SectionLetterToShareholders: {interfaces.SectionMDNA, interfaces.SectionFinancialStatements},
	interfaces.SectionMDNA:                 {interfaces.SectionFinancialStatements, interfaces.SectionLetterToShareholders},
	interfaces.SectionFinancialStatements:  {interfaces.SectionMDNA, interfaces.SectionAuditReport},
	interfaces.SectionAuditReport:          {interfaces.SectionFinancialStatements, interfaces.SectionCorporateGovernance},
	interfaces.SectionCorporateGovernance:  {interfaces.SectionESG, interfaces.SectionAuditReport},
	interfaces.SectionSDG17:                {interfaces.SectionESG},
	interfaces.SectionESG:                  {interfaces.SectionCorporateGovernance, interfaces.SectionSDG17},
	interfaces.SectionOther:                {interfaces.SectionLetterToShareholders, interfaces.SectionMDNA, interfaces.SectionFinancialStatements},
}

// relevanceKeywords decide which points shared by a related section matter to a section.
var relevanceKeywords = map[interfaces.SectionName][]string{
	interfaces.SectionLetterToShareholders: {"strategy", "vision", "outlook", "leadership"},
	interfaces.SectionMDNA:                 {"performance", "operations", "results", "trends"},
	interfaces.SectionFinancialStatements:  {"revenue", "profit", "assets", "liabilities"},
	interfaces.SectionAuditReport:          {"opinion", "compliance", "controls", "procedures"},
	interfaces.SectionCorporateGovernance:  {"board", "committee", "policies", "oversight"},
	interfaces.SectionSDG17:                {"sustainability", "partnership", "development", "goals"},
	interfaces.SectionESG:                  {"environmental", "social", "governance", "sustainability"},
}

var taskSubAgents = map[interfaces.TaskType][]string{
	interfaces.TaskFinancialAnalysis:      {KindMetrics, KindSentiment},
	interfaces.TaskRiskAssessment:         {KindRisk, KindSentiment},
	interfaces.TaskPerformanceMetrics:     {KindMetrics},
	interfaces.TaskGovernanceReview:       {KindGovernanceESG},
	interfaces.TaskSustainabilityAnalysis: {KindGovernanceESG},
	interfaces.TaskMarketAnalysis:         {KindExternal, KindMetrics},
	interfaces.TaskStrategyReview:         {KindSentiment, KindMemory},
	interfaces.TaskComplianceCheck:        {KindGovernanceESG, KindRisk},
}

// SubAgentsFor returns the sub-agent kinds a task type is mapped to. Unknown types get sentiment.
func SubAgentsFor(t interfaces.TaskType) []string {
	if kinds, ok := taskSubAgents[t]; ok {
		return append([]string(nil), kinds...)
	}
	return []string{KindSentiment}
}

// SubAgentResult is one entry of a task result
type SubAgentResult struct {
	Agent      string   `json:"agent"`
	Success    bool     `json:"success"`
	Result     any      `json:"result,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// TaskResult is what a section agent records when it completes a task
type TaskResult struct {
	TaskID          string              `json:"task_id"`
	TaskType        interfaces.TaskType `json:"task_type"`
	SubAgentResults []SubAgentResult    `json:"sub_agent_results"`
	Timestamp       time.Time           `json:"timestamp"`
}

func (r TaskResult) asMap() map[string]any {
	return map[string]any{
		"task_id":           r.TaskID,
		"task_type":         string(r.TaskType),
		"sub_agent_results": r.SubAgentResults,
		"timestamp":         r.Timestamp,
	}
}

// ChunkResult is the outcome of one chunk handled by a section agent
type ChunkResult struct {
	ChunkID   string                 `json:"chunk_id"`
	Section   interfaces.SectionName `json:"section"`
	Summary   string                 `json:"summary"`
	Tasks     []TaskResult           `json:"tasks"`
	Memory    *Result                `json:"memory,omitempty"`
	Sentiment interfaces.Sentiment   `json:"sentiment"`
}

// SectionAgent analyzes the chunks routed to one report section.
type SectionAgent struct {
	name     string
	section  interfaces.SectionName
	deps     *Deps
	registry *Registry
	memory   *MemoryCoordinator
	inbox    *memory.ShortTermMemory[state.GraphMessage]

	mu    sync.Mutex
	stats Stats
}

// NewSectionAgent creates a section agent with its six sub-agents.
func NewSectionAgent(section interfaces.SectionName, deps *Deps) *SectionAgent {
	d := deps.withDefaults()
	name := agentName(section)
	a := &SectionAgent{
		name:     name,
		section:  section,
		deps:     d,
		registry: NewRegistry(),
		memory:   NewMemoryCoordinator(section, name, d),
		inbox:    memory.NewShortTermMemory[state.GraphMessage](inboxCapacity),
	}
	a.registry.Register(KindSentiment, NewSentimentAgent(section, name, d))
	a.registry.Register(KindRisk, NewRiskAgent(section, name, d))
	a.registry.Register(KindMetrics, NewMetricsAgent(section, name, d))
	a.registry.Register(KindExternal, NewExternalAgent(section, name, d))
	a.registry.Register(KindGovernanceESG, NewGovernanceAgent(section, name, d))
	a.registry.Register(KindMemory, a.memory)

	for _, related := range relatedSections[section] {
		d.Collaborative.Subscribe(name, agentName(related), a.notify)
	}
	return a
}

func agentName(section interfaces.SectionName) string {
	return fmt.Sprintf("%s_agent", section)
}

// notify puts an insight shared by a followed agent into the inbox.
func (a *SectionAgent) notify(subscriber string, in memory.SharedInsight) {
	a.inbox.Add(state.GraphMessage{
		Type:      state.MessageInsight,
		Sender:    in.Agent,
		Recipient: subscriber,
		Content:   in,
		Timestamp: in.Timestamp,
	})
}

// Name returns the agent name, <section>_agent.
func (a *SectionAgent) Name() string { return a.name }

// Section returns the section the agent covers.
func (a *SectionAgent) Section() interfaces.SectionName { return a.section }

// Registry exposes the sub-agents, mainly so callers can replace one.
func (a *SectionAgent) Registry() *Registry { return a.registry }

// Inbox returns the latest messages the agent received from its sub-agents.
func (a *SectionAgent) Inbox() []state.GraphMessage { return a.inbox.Items() }

// Stats returns the sub-agent execution counters.
func (a *SectionAgent) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *SectionAgent) record(d time.Duration, failed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Executions++
	a.stats.TotalDuration += d
	if failed {
		a.stats.Failures++
	}
}

// Handle runs the sub-agents for every task of a chunk, writes the section summary and updates
// long-term memory. Only context cancellation is returned as an error; sub-agent failures are
// recorded in the task results.
func (a *SectionAgent) Handle(ctx context.Context, chunk interfaces.Chunk, assigned []interfaces.Task) (*ChunkResult, error) {
	log := a.deps.Logger.With().Str("agent", a.name).Str("chunk_id", chunk.ID).Logger()

	prior := a.priorRecords(ctx)

	ordered, err := tasks.Order(assigned)
	if err != nil {
		a.deps.Board.AddWarning(fmt.Sprintf("%s: %v", a.name, err))
		ordered = assigned
	}

	out := &ChunkResult{ChunkID: chunk.ID, Section: a.section}
	var collected []*Result
	for _, t := range ordered {
		kinds := SubAgentsFor(t.Type)
		c := Context{TaskID: t.ID, ChunkID: chunk.ID, ChunkIndex: chunk.Index, Section: a.section}
		entries, results, err := a.runSubAgents(ctx, chunk.Content, c, kinds)
		if err != nil {
			return nil, err
		}
		collected = append(collected, results...)
		out.Tasks = append(out.Tasks, TaskResult{TaskID: t.ID, TaskType: t.Type, SubAgentResults: entries})
	}
	if len(ordered) == 0 {
		c := Context{TaskID: chunk.ID + "_default", ChunkID: chunk.ID, ChunkIndex: chunk.Index, Section: a.section}
		_, results, err := a.runSubAgents(ctx, chunk.Content, c, []string{KindSentiment})
		if err != nil {
			return nil, err
		}
		collected = append(collected, results...)
	}

	for _, m := range a.deps.Board.Receive(a.name) {
		a.inbox.Add(m)
	}

	good, bad := priorPoints(prior)
	relatedGood, relatedBad := a.relatedPoints()
	good = append(good, relatedGood...)
	bad = append(bad, relatedBad...)
	summary, err := a.summarize(ctx, chunk.Content, good, bad)
	if err != nil {
		return nil, err
	}
	out.Summary = summary
	a.deps.Board.AddSectionSummary(a.section, chunk.Index, summary)

	a.recordOpportunities(chunk.ID)

	sentiment, risks, err := a.memoryFacts(ctx, chunk.Content, collected)
	if err != nil {
		return nil, err
	}
	out.Sentiment = sentiment
	chunkGood, chunkBad := document.ExtractGoodBadPoints(chunk.Content)
	value := interfaces.MemoryValue{
		Summary:    summary,
		Sentiment:  &sentiment,
		Risks:      risks,
		GoodPoints: chunkGood,
		BadPoints:  chunkBad,
	}

	memEntry, memResult, err := a.runOne(ctx, a.memory, chunk.Content, Context{
		TaskID:     chunk.ID + "_memory",
		ChunkID:    chunk.ID,
		ChunkIndex: chunk.Index,
		Section:    a.section,
		Memory:     &value,
	})
	if err != nil {
		return nil, err
	}
	out.Memory = memResult
	a.sharePoints(chunk.ID, chunkGood, chunkBad)

	now := time.Now()
	for i := range out.Tasks {
		tr := &out.Tasks[i]
		tr.Timestamp = now
		for _, k := range SubAgentsFor(tr.TaskType) {
			if k == KindMemory {
				tr.SubAgentResults = append(tr.SubAgentResults, memEntry)
			}
		}
		if err := a.deps.Board.CompleteTask(tr.TaskID, tr.asMap()); err != nil {
			log.Debug().Err(err).Str("task_id", tr.TaskID).Msg("task not completed on blackboard")
		}
	}

	log.Debug().Int("tasks", len(out.Tasks)).Str("sentiment", sentiment.Label).Msg("chunk analyzed")
	return out, nil
}

// runSubAgents runs kinds in parallel. Memory is skipped here; the coordinator runs once per chunk.
func (a *SectionAgent) runSubAgents(ctx context.Context, content string, c Context, kinds []string) ([]SubAgentResult, []*Result, error) {
	var selected []string
	for _, k := range kinds {
		if k != KindMemory {
			selected = append(selected, k)
		}
	}

	entries := make([]SubAgentResult, len(selected))
	results := make([]*Result, len(selected))
	var g errgroup.Group
	for i, kind := range selected {
		g.Go(func() error {
			sub, err := a.registry.Get(kind)
			if err != nil {
				entries[i] = SubAgentResult{Agent: fmt.Sprintf("%s_%s", a.section, kind), Error: err.Error()}
				return nil
			}
			entry, res, err := a.runOne(ctx, sub, content, c)
			entries[i], results[i] = entry, res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var ok []*Result
	for _, r := range results {
		if r != nil {
			ok = append(ok, r)
		}
	}
	return entries, ok, nil
}

// runOne executes a sub-agent. A failure becomes a failed entry; only cancellation is returned.
func (a *SectionAgent) runOne(ctx context.Context, sub SubAgent, content string, c Context) (SubAgentResult, *Result, error) {
	start := time.Now()
	res, err := sub.Process(ctx, content, c)
	a.record(time.Since(start), err != nil)
	if err != nil {
		if ctx.Err() != nil {
			return SubAgentResult{}, nil, ctx.Err()
		}
		a.deps.Board.AddWarning(fmt.Sprintf("%s failed on %s: %v", sub.Name(), c.ChunkID, err))
		a.deps.Logger.Warn().Err(err).Str("agent", sub.Name()).Str("chunk_id", c.ChunkID).Msg("sub-agent failed")
		return SubAgentResult{Agent: sub.Name(), Error: err.Error()}, nil, nil
	}
	return SubAgentResult{
		Agent:      sub.Name(),
		Success:    true,
		Result:     res.Output,
		Confidence: res.Confidence,
		Errors:     res.Errors,
	}, res, nil
}

func (a *SectionAgent) priorRecords(ctx context.Context) []interfaces.MemoryRecord {
	if a.deps.Memory == nil {
		return nil
	}
	recs, err := a.deps.Memory.QueryAll(ctx, a.name, string(a.section))
	if err != nil {
		a.deps.Board.AddWarning(fmt.Sprintf("%s: memory query failed: %v", a.name, err))
		return nil
	}
	return recs
}

// priorPoints collects up to five good and five bad points from the latest records, at most three
// from each record.
func priorPoints(records []interfaces.MemoryRecord) (good, bad []string) {
	if len(records) > priorRecordWindow {
		records = records[len(records)-priorRecordWindow:]
	}
	for _, r := range records {
		good = append(good, head(r.Value.GoodPoints, priorPointsPerEntry)...)
		bad = append(bad, head(r.Value.BadPoints, priorPointsPerEntry)...)
	}
	return head(good, maxPriorPoints), head(bad, maxPriorPoints)
}

// relatedPoints collects the good and bad points shared by the followed agents that mention one of
// this section's keywords, tagged with the section they came from.
func (a *SectionAgent) relatedPoints() (good, bad []string) {
	keywords := relevanceKeywords[a.section]
	if len(keywords) == 0 {
		return nil, nil
	}
	for _, publisher := range a.deps.Collaborative.Publishers(a.name) {
		for _, in := range a.deps.Collaborative.AgentInsights(publisher, time.Time{}) {
			for _, p := range in.GoodPoints {
				if containsKeyword(p, keywords) {
					good = appendUnique(good, fmt.Sprintf("[%s] %s", in.Section, p))
				}
			}
			for _, p := range in.BadPoints {
				if containsKeyword(p, keywords) {
					bad = appendUnique(bad, fmt.Sprintf("[%s] %s", in.Section, p))
				}
			}
		}
	}
	return head(good, maxPriorPoints), head(bad, maxPriorPoints)
}

// sharePoints publishes the chunk's good and bad points to the agents following this one.
func (a *SectionAgent) sharePoints(chunkID string, good, bad []string) {
	if len(good) == 0 && len(bad) == 0 {
		return
	}
	a.deps.Collaborative.Share(memory.SharedInsight{
		Agent:      a.name,
		Section:    string(a.section),
		Type:       "section_points",
		Content:    fmt.Sprintf("%d good and %d bad points in %s", len(good), len(bad), chunkID),
		Confidence: sectionPointsConf,
		References: []string{chunkID},
		GoodPoints: good,
		BadPoints:  bad,
	})
}

func containsKeyword(point string, keywords []string) bool {
	lower := strings.ToLower(point)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (a *SectionAgent) summarize(ctx context.Context, content string, good, bad []string) (string, error) {
	if a.deps.UseLLM && a.deps.Summarizer != nil {
		text, err := a.deps.Summarizer.Summarize(ctx, llm.SystemPrompt(a.section), llm.SummaryPrompt(a.section, content, good, bad))
		if err == nil && text != "" {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err == nil {
			err = fmt.Errorf("empty summary")
		}
		a.deps.Board.AddWarning(fmt.Sprintf("%s: summarizer %s failed, using excerpt: %v", a.name, a.deps.Summarizer.Name(), err))
	}
	return DeterministicSummary(a.section, content, good, bad), nil
}

// DeterministicSummary builds a section summary from the guidance, prior context and an excerpt.
func DeterministicSummary(section interfaces.SectionName, content string, good, bad []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n\n", section, llm.Guidance(section))
	if len(good) > 0 || len(bad) > 0 {
		b.WriteString("Previous decisions context:\n")
		if len(good) > 0 {
			fmt.Fprintf(&b, "- GOOD: %s\n", strings.Join(good, "; "))
		}
		if len(bad) > 0 {
			fmt.Fprintf(&b, "- BAD: %s\n", strings.Join(bad, "; "))
		}
		b.WriteString("\n")
	}
	text := strings.TrimSpace(content)
	excerpt := truncate(text, summaryExcerptChars)
	b.WriteString(excerpt)
	if len(excerpt) < len(text) {
		b.WriteString("...")
	}
	return b.String()
}

func (a *SectionAgent) recordOpportunities(chunkID string) {
	for _, e := range chunkEntities(a.deps.Knowledge, chunkID, knowledge.TypeOpportunity) {
		a.deps.Board.AddOpportunity(a.section, interfaces.Opportunity{
			Description: e.Name,
			Source:      interfaces.SourceKnowledgeGraph,
			EntityID:    e.ID,
			ChunkID:     chunkID,
		})
	}
}

// memoryFacts takes the sentiment and risk types from this chunk's sub-agent results, scoring the
// sentiment directly when no sentiment sub-agent ran.
func (a *SectionAgent) memoryFacts(ctx context.Context, content string, results []*Result) (interfaces.Sentiment, []string, error) {
	var (
		sentiment *interfaces.Sentiment
		risks     = []string{}
	)
	for _, r := range results {
		switch out := r.Output.(type) {
		case *SentimentOutput:
			if sentiment == nil {
				s := out.Sentiment
				sentiment = &s
			}
		case *RiskOutput:
			for _, t := range sortedKeys(out.RiskCategories) {
				risks = appendUnique(risks, t)
			}
		}
	}
	if sentiment != nil {
		return *sentiment, risks, nil
	}
	s, _, err := a.deps.Analysis.AnalyzeSentiment(ctx, content)
	if err != nil {
		if ctx.Err() != nil {
			return interfaces.Sentiment{}, nil, ctx.Err()
		}
		return interfaces.NeutralSentiment(), risks, nil
	}
	return s, risks, nil
}
