package interfaces

import (
	"fmt"
	"strings"
	"time"
)

// SectionName identifies an annual report section
type SectionName string

const (
	SectionLetterToShareholders SectionName = "letter_to_shareholders"
	SectionMDNA                 SectionName = "mdna"
	SectionFinancialStatements  SectionName = "financial_statements"
	SectionAuditReport          SectionName = "audit_report"
	SectionCorporateGovernance  SectionName = "corporate_governance"
	SectionSDG17                SectionName = "sdg_17"
	SectionESG                  SectionName = "esg"
	SectionOther                SectionName = "other"
)

// AllSections lists every section in report order.
func AllSections() []SectionName {
	return []SectionName{
		SectionLetterToShareholders,
		SectionMDNA,
		SectionFinancialStatements,
		SectionAuditReport,
		SectionCorporateGovernance,
		SectionSDG17,
		SectionESG,
		SectionOther,
	}
}

// ParseSection converts a string into a SectionName.
func ParseSection(s string) (SectionName, error) {
	name := SectionName(strings.ToLower(strings.TrimSpace(s)))
	if name.Valid() {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSection, s)
}

// Valid reports whether s is a known section.
func (s SectionName) Valid() bool {
	for _, known := range AllSections() {
		if s == known {
			return true
		}
	}
	return false
}

func (s SectionName) String() string { return string(s) }

// SectionPtr returns a pointer to s, for optional section fields.
func SectionPtr(s SectionName) *SectionName { return &s }

// Heading is a markdown heading found while loading a document
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	Line  int    `json:"line"`
}

// Document is a parsed report ready for chunking
type Document struct {
	Source   string    `json:"source"`
	Format   string    `json:"format"`
	Text     string    `json:"text"`
	Headings []Heading `json:"headings,omitempty"`
}

// Chunk is a bounded slice of document text
type Chunk struct {
	ID          string         `json:"chunk_id"`
	Index       int            `json:"index"`
	SectionHint *SectionName   `json:"section_hint,omitempty"`
	Content     string         `json:"content"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// TaskType is the kind of analysis a task asks for
type TaskType string

const (
	TaskFinancialAnalysis      TaskType = "financial_analysis"
	TaskRiskAssessment         TaskType = "risk_assessment"
	TaskPerformanceMetrics     TaskType = "performance_metrics"
	TaskGovernanceReview       TaskType = "governance_review"
	TaskSustainabilityAnalysis TaskType = "sustainability_analysis"
	TaskMarketAnalysis         TaskType = "market_analysis"
	TaskStrategyReview         TaskType = "strategy_review"
	TaskComplianceCheck        TaskType = "compliance_check"
)

// AllTaskTypes lists task types in declaration order.
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskFinancialAnalysis,
		TaskRiskAssessment,
		TaskPerformanceMetrics,
		TaskGovernanceReview,
		TaskSustainabilityAnalysis,
		TaskMarketAnalysis,
		TaskStrategyReview,
		TaskComplianceCheck,
	}
}

// TaskStatus tracks a task on the blackboard
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is a unit of analysis derived from a chunk
type Task struct {
	ID             string         `json:"task_id"`
	Type           TaskType       `json:"task_type"`
	Content        string         `json:"content"`
	Priority       int            `json:"priority"`
	Dependencies   []TaskType     `json:"dependencies"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	TargetSections []SectionName  `json:"target_sections"`
	Status         TaskStatus     `json:"status"`
	Result         map[string]any `json:"result,omitempty"`
}

// Sentiment is a three-way distribution that sums to one
type Sentiment struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
	Label    string  `json:"label"`
}

// NeutralSentiment is the distribution used when nothing can be scored.
func NeutralSentiment() Sentiment {
	return Sentiment{Neutral: 1, Label: "neutral"}
}

// RiskPriority buckets a risk score
type RiskPriority string

const (
	PriorityHigh   RiskPriority = "high"
	PriorityMedium RiskPriority = "medium"
	PriorityLow    RiskPriority = "low"
)

// RiskSource records which detector found a risk
type RiskSource string

const (
	SourceModel          RiskSource = "model"
	SourcePattern        RiskSource = "pattern_detection"
	SourceKnowledgeGraph RiskSource = "knowledge_graph"
)

// Risk is a detected risk finding
type Risk struct {
	Type        string       `json:"type"`
	Keyword     string       `json:"keyword,omitempty"`
	Description string       `json:"description"`
	Score       float64      `json:"score"`
	Priority    RiskPriority `json:"priority"`
	Source      RiskSource   `json:"source"`
	Section     SectionName  `json:"section,omitempty"`
	EntityID    string       `json:"entity_id,omitempty"`
}

// Opportunity is a growth or improvement prospect found in a chunk
type Opportunity struct {
	Description string      `json:"description"`
	Source      RiskSource  `json:"source"`
	Section     SectionName `json:"section,omitempty"`
	EntityID    string      `json:"entity_id,omitempty"`
	ChunkID     string      `json:"chunk_id,omitempty"`
}

// Metric is an extracted quantitative figure
type Metric struct {
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	Value    string `json:"value"`
	Unit     string `json:"unit,omitempty"`
	Context  string `json:"context,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
}

// Governance holds board and policy indicators
type Governance struct {
	BoardMembers           []string `json:"board_members"`
	Committees             []string `json:"committees"`
	Policies               []string `json:"policies"`
	IndependenceIndicators []string `json:"independence_indicators"`
}

// ESG holds keyword hits per pillar
type ESG struct {
	Environmental []string `json:"environmental"`
	Social        []string `json:"social"`
	Governance    []string `json:"governance"`
}

// GovernanceESG is the governance and sustainability assessment of a chunk
type GovernanceESG struct {
	Governance          Governance `json:"governance"`
	ESG                 ESG        `json:"esg"`
	SDG                 []string   `json:"sdg"`
	ComplianceScore     float64    `json:"compliance_score"`
	SustainabilityScore float64    `json:"sustainability_score"`
}

// MemoryValue is what a section agent remembers about one chunk
type MemoryValue struct {
	Summary    string     `json:"summary"`
	Sentiment  *Sentiment `json:"sentiment,omitempty"`
	Risks      []string   `json:"risks,omitempty"`
	GoodPoints []string   `json:"good_points,omitempty"`
	BadPoints  []string   `json:"bad_points,omitempty"`
}

// MemoryRecord is one long-term memory entry
type MemoryRecord struct {
	Agent     string      `json:"agent"`
	Section   string      `json:"section"`
	Key       string      `json:"key"`
	Value     MemoryValue `json:"value"`
	CreatedAt time.Time   `json:"created_at"`
}

// SearchHit is a web search result
type SearchHit struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// FinanceOverview holds the company ratios pulled from a market data API
type FinanceOverview struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	PERatio      float64 `json:"pe_ratio"`
	EPS          float64 `json:"eps"`
	ProfitMargin float64 `json:"profit_margin"`
	MarketCap    float64 `json:"market_cap"`
}

// NewsArticle is a news headline about an entity
type NewsArticle struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// IndexedChunk is an analyzed chunk stored in the vector database
type IndexedChunk struct {
	Text          string    `json:"text"`
	TextEmbedding []float64 `json:"text_embedding"`
	ChunkIndex    int       `json:"chunk_index"`
	Source        string    `json:"source"`
	Section       string    `json:"section"`
	Sentiment     string    `json:"sentiment"`
}

// SearchResult represents a search result from the database
type SearchResult struct {
	Chunk IndexedChunk `json:"chunk"`
	Score float64      `json:"score"`
}

// AnalyzerStats accumulates statistics across the runs of an analyzer
type AnalyzerStats struct {
	TotalDocuments   int           `json:"total_documents"`
	TotalChunks      int           `json:"total_chunks"`
	ProcessedChunks  int           `json:"processed_chunks"`
	FailedChunks     int           `json:"failed_chunks"`
	TasksCompleted   int           `json:"tasks_completed"`
	IndexedChunks    int           `json:"indexed_chunks"`
	ProcessingTime   time.Duration `json:"processing_time"`
	AverageChunkTime time.Duration `json:"average_chunk_time"`
}
