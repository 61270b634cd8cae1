// Package agents implements the section agents, their sub-agents and the final report generator.
package agents

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"report-analyzer/internal/analysis"
	"report-analyzer/internal/external"
	"report-analyzer/internal/knowledge"
	"report-analyzer/internal/logging"
	"report-analyzer/internal/memory"
	"report-analyzer/pkg/interfaces"
	"report-analyzer/pkg/state"
)

// Sub-agent kinds. A sub-agent is named <section>_<kind>.
const (
	KindSentiment     = "sentiment"
	KindRisk          = "risk"
	KindMetrics       = "metrics"
	KindExternal      = "external"
	KindGovernanceESG = "governance_esg"
	KindMemory        = "memory"
)

// SubAgent is a specialist that a section agent runs for a task.
type SubAgent interface {
	Name() string
	Process(ctx context.Context, content string, c Context) (*Result, error)
}

// Context carries the chunk and task a sub-agent works on
type Context struct {
	TaskID     string
	ChunkID    string
	ChunkIndex int
	Section    interfaces.SectionName
	// Memory is the record the memory coordinator persists for the chunk.
	Memory *interfaces.MemoryValue
}

// Result is the output of one sub-agent call
type Result struct {
	Agent         string         `json:"agent_name"`
	TaskID        string         `json:"task_id"`
	Output        any            `json:"result"`
	Confidence    float64        `json:"confidence"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
	Errors        []string       `json:"errors,omitempty"`
}

// Deps are the shared services every agent reads from and writes to.
type Deps struct {
	Board         *state.Graph
	Knowledge     *knowledge.Graph
	Analysis      *analysis.Suite
	Memory        interfaces.MemoryStore
	Collaborative *memory.Collaborative
	External      *external.Sources
	Summarizer    interfaces.Summarizer
	UseLLM        bool
	Logger        *zerolog.Logger
}

func (d *Deps) withDefaults() *Deps {
	out := *d
	if out.Board == nil {
		out.Board = state.New()
	}
	if out.Knowledge == nil {
		out.Knowledge = knowledge.New()
	}
	if out.Analysis == nil {
		out.Analysis = analysis.NewDeterministicSuite()
	}
	if out.Collaborative == nil {
		out.Collaborative = memory.NewCollaborative()
	}
	if out.Logger == nil {
		out.Logger = logging.Nop()
	}
	return &out
}

// Stats counts sub-agent executions
type Stats struct {
	Executions    int           `json:"executions"`
	Failures      int           `json:"failures"`
	TotalDuration time.Duration `json:"total_duration"`
}

// SuccessRate is the share of executions that did not fail.
func (s Stats) SuccessRate() float64 {
	if s.Executions == 0 {
		return 0
	}
	return float64(s.Executions-s.Failures) / float64(s.Executions)
}

// base is embedded by every sub-agent. It keeps the last results in short-term memory and reports
// them to the parent section agent through the blackboard.
type base struct {
	name    string
	parent  string
	section interfaces.SectionName
	deps    *Deps
	recent  *memory.ShortTermMemory[*Result]
}

func newBase(section interfaces.SectionName, kind, parent string, deps *Deps) base {
	return base{
		name:    fmt.Sprintf("%s_%s", section, kind),
		parent:  parent,
		section: section,
		deps:    deps,
		recent:  memory.NewShortTermMemory[*Result](memory.DefaultShortTermCapacity),
	}
}

func (b *base) Name() string { return b.name }

// Recent returns the latest results of this sub-agent, oldest first.
func (b *base) Recent() []*Result { return b.recent.Items() }

func (b *base) finish(c Context, start time.Time, output any, confidence float64, errs []string) *Result {
	res := &Result{
		Agent:         b.name,
		TaskID:        c.TaskID,
		Output:        output,
		Confidence:    confidence,
		Metadata:      map[string]any{"section": string(b.section), "chunk_id": c.ChunkID},
		ExecutionTime: time.Since(start),
		Errors:        errs,
	}
	b.recent.Add(res)
	if b.parent != "" {
		b.deps.Board.Send(state.GraphMessage{
			Type:      state.MessageResult,
			Sender:    b.name,
			Recipient: b.parent,
			Content:   res,
			Metadata:  map[string]any{"task_id": c.TaskID},
		})
	}
	for _, e := range errs {
		b.deps.Board.AddWarning(fmt.Sprintf("%s: %s", b.name, e))
	}
	return res
}

// chunkEntities returns the knowledge graph entities of the given types referenced by chunkID.
func chunkEntities(kg *knowledge.Graph, chunkID string, types ...string) []knowledge.Entity {
	if kg == nil || chunkID == "" {
		return nil
	}
	var out []knowledge.Entity
	for _, e := range kg.EntitiesByChunk(chunkID) {
		for _, t := range types {
			if e.Type == t {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Registry holds the sub-agents of one section agent by kind.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]SubAgent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]SubAgent)}
}

// Register adds or replaces the sub-agent for kind.
func (r *Registry) Register(kind string, a SubAgent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[kind] = a
}

// Get returns the sub-agent for kind.
func (r *Registry) Get(kind string) (SubAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[kind]
	if !ok {
		return nil, fmt.Errorf("sub-agent not found: %s", kind)
	}
	return a, nil
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.agents)
}
