package memory

import (
	"sync"
	"time"
)

// SharedInsight is an observation one agent publishes for the others
type SharedInsight struct {
	Agent           string    `json:"agent_name"`
	Section         string    `json:"section_name"`
	Type            string    `json:"insight_type"`
	Content         string    `json:"content"`
	Confidence      float64   `json:"confidence"`
	RelatedSections []string  `json:"related_sections,omitempty"`
	References      []string  `json:"references,omitempty"`
	GoodPoints      []string  `json:"good_points,omitempty"`
	BadPoints       []string  `json:"bad_points,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// NotifyFunc receives insights from a subscribed publisher.
type NotifyFunc func(subscriber string, insight SharedInsight)

type subscription struct {
	publisher string
	notify    NotifyFunc
}

// Collaborative is the insight exchange shared by every section agent. It is safe for concurrent use.
type Collaborative struct {
	mu            sync.RWMutex
	insights      []SharedInsight
	subscriptions map[string][]subscription
	crossRefs     map[string][]string
	now           func() time.Time
}

// NewCollaborative creates an empty exchange.
func NewCollaborative() *Collaborative {
	return &Collaborative{
		subscriptions: make(map[string][]subscription),
		crossRefs:     make(map[string][]string),
		now:           time.Now,
	}
}

// Share stores an insight and notifies the agents subscribed to its publisher. Callbacks run on the
// caller's goroutine after the lock is released.
func (c *Collaborative) Share(in SharedInsight) {
	c.mu.Lock()
	if in.Timestamp.IsZero() {
		in.Timestamp = c.now()
	}
	c.insights = append(c.insights, in)

	type target struct {
		subscriber string
		notify     NotifyFunc
	}
	var targets []target
	for subscriber, subs := range c.subscriptions {
		for _, s := range subs {
			if s.publisher == in.Agent && s.notify != nil {
				targets = append(targets, target{subscriber, s.notify})
			}
		}
	}
	c.mu.Unlock()

	for _, t := range targets {
		t.notify(t.subscriber, in)
	}
}

// Subscribe registers subscriber for insights published by publisher. Subscribing twice to the same
// publisher replaces the callback.
func (c *Collaborative) Subscribe(subscriber, publisher string, notify NotifyFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.subscriptions[subscriber]
	for i := range subs {
		if subs[i].publisher == publisher {
			subs[i].notify = notify
			return
		}
	}
	c.subscriptions[subscriber] = append(subs, subscription{publisher: publisher, notify: notify})
}

// Publishers lists the agents subscriber follows.
func (c *Collaborative) Publishers(subscriber string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for _, s := range c.subscriptions[subscriber] {
		out = append(out, s.publisher)
	}
	return out
}

// AgentInsights returns the insights published by agent after since. A zero since returns all.
func (c *Collaborative) AgentInsights(agent string, since time.Time) []SharedInsight {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []SharedInsight
	for _, in := range c.insights {
		if in.Agent != agent {
			continue
		}
		if !since.IsZero() && !in.Timestamp.After(since) {
			continue
		}
		out = append(out, in)
	}
	return out
}

// SectionInsights returns the insights about section, directly or as a related section.
func (c *Collaborative) SectionInsights(section string) []SharedInsight {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sectionInsightsLocked(section)
}

func (c *Collaborative) sectionInsightsLocked(section string) []SharedInsight {
	var out []SharedInsight
	for _, in := range c.insights {
		if in.Section == section || contains(in.RelatedSections, section) {
			out = append(out, in)
		}
	}
	return out
}

// AddCrossReference links two sections in both directions.
func (c *Collaborative) AddCrossReference(a, b string) {
	if a == b {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !contains(c.crossRefs[a], b) {
		c.crossRefs[a] = append(c.crossRefs[a], b)
	}
	if !contains(c.crossRefs[b], a) {
		c.crossRefs[b] = append(c.crossRefs[b], a)
	}
}

// RelatedSections returns the sections cross-referenced with section.
func (c *Collaborative) RelatedSections(section string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.crossRefs[section]...)
}

// CollaborativeInsights gathers the insights of section and of every related section.
func (c *Collaborative) CollaborativeInsights(section string) map[string][]SharedInsight {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := map[string][]SharedInsight{section: c.sectionInsightsLocked(section)}
	for _, related := range c.crossRefs[section] {
		out[related] = c.sectionInsightsLocked(related)
	}
	return out
}

// Len returns the number of shared insights.
func (c *Collaborative) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.insights)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
