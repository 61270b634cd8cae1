package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"report-analyzer/internal/document"
	"report-analyzer/pkg/interfaces"
)

// Supervisor routes chunks to section agents, creating each agent on first use.
type Supervisor struct {
	deps *Deps

	mu     sync.Mutex
	agents map[interfaces.SectionName]*SectionAgent
}

// NewSupervisor creates a supervisor sharing deps with every section agent.
func NewSupervisor(deps *Deps) *Supervisor {
	return &Supervisor{
		deps:   deps.withDefaults(),
		agents: make(map[interfaces.SectionName]*SectionAgent),
	}
}

// Route picks the section for a chunk: its hint, then a keyword guess, then other.
func (s *Supervisor) Route(c interfaces.Chunk) interfaces.SectionName {
	if c.SectionHint != nil && c.SectionHint.Valid() {
		return *c.SectionHint
	}
	if guess := document.GuessSection(c.Content); guess != nil {
		return *guess
	}
	return interfaces.SectionOther
}

// Agent returns the section agent for section.
func (s *Supervisor) Agent(section interfaces.SectionName) *SectionAgent {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[section]
	if !ok {
		a = NewSectionAgent(section, s.deps)
		s.agents[section] = a
	}
	return a
}

// Dispatch routes chunk and lets the section agent handle it with its tasks.
func (s *Supervisor) Dispatch(ctx context.Context, chunk interfaces.Chunk, assigned []interfaces.Task) (*ChunkResult, error) {
	section := s.Route(chunk)
	res, err := s.Agent(section).Handle(ctx, chunk, assigned)
	if err != nil {
		return nil, fmt.Errorf("section %s failed on %s: %w", section, chunk.ID, err)
	}
	return res, nil
}

// Agents returns the section agents created so far, in report order.
func (s *Supervisor) Agents() []*SectionAgent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*SectionAgent
	for _, section := range interfaces.AllSections() {
		if a, ok := s.agents[section]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Stats returns the sub-agent counters per section agent.
func (s *Supervisor) Stats() map[string]Stats {
	out := make(map[string]Stats)
	for _, a := range s.Agents() {
		out[a.Name()] = a.Stats()
	}
	return out
}

// GlobalReport joins the section summaries as "## section\nsummary" blocks in report order.
func GlobalReport(summaries map[interfaces.SectionName]string) string {
	var parts []string
	for _, section := range interfaces.AllSections() {
		if text, ok := summaries[section]; ok && text != "" {
			parts = append(parts, fmt.Sprintf("## %s\n%s", section, text))
		}
	}
	return strings.Join(parts, "\n\n")
}
