// Package knowledge maintains the entity and relationship graph extracted from report chunks.
package knowledge

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
)

// ErrEntityNotFound is returned when a relationship endpoint or query target is unknown.
var ErrEntityNotFound = errors.New("entity not found")

// Direction selects edges relative to an entity.
type Direction string

const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionBoth Direction = "both"
)

// Entity types produced by extraction.
const (
	TypeCompany         = "COMPANY"
	TypePerson          = "PERSON"
	TypeMetric          = "METRIC"
	TypeKPI             = "KPI"
	TypeFinancialMetric = "FINANCIAL_METRIC"
	TypeRisk            = "RISK"
	TypeOpportunity     = "OPPORTUNITY"
	TypeSDGGoal         = "SDG_GOAL"
)

// Entity is a node in the knowledge graph
type Entity struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
	References []string       `json:"references"`
}

// Relationship is a directed edge in the knowledge graph
type Relationship struct {
	ID         string         `json:"id"`
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	References []string       `json:"references"`
	Confidence float64        `json:"confidence"`
}

// ExtractionResult summarizes one ExtractAndAdd call
type ExtractionResult struct {
	EntitiesExtracted      int    `json:"entities_extracted"`
	RelationshipsExtracted int    `json:"relationships_extracted"`
	ChunkID                string `json:"chunk_id"`
}

// Graph is a directed multigraph of entities. All methods are safe for concurrent use.
type Graph struct {
	mu sync.RWMutex

	entities      map[string]*Entity
	relationships map[string]*Relationship
	entityOrder   []string
	relOrder      []string

	byType  map[string]map[string]struct{}
	byChunk map[string]map[string]struct{}
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		entities:      make(map[string]*Entity),
		relationships: make(map[string]*Relationship),
		byType:        make(map[string]map[string]struct{}),
		byChunk:       make(map[string]map[string]struct{}),
	}
}

// EntityID derives a stable id from the entity type and its source text.
func EntityID(entityType, text string) string {
	return fmt.Sprintf("%s_%s", entityType, hashText(text))
}

// RelationshipID derives a stable id for an edge.
func RelationshipID(sourceID, relType, targetID string) string {
	return "REL_" + hashText(sourceID+"_"+relType+"_"+targetID)
}

func hashText(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}

// AddEntity inserts e. Re-adding an id merges references and fills missing properties.
func (g *Graph) AddEntity(e Entity) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addEntityLocked(e)
}

func (g *Graph) addEntityLocked(e Entity) string {
	if existing, ok := g.entities[e.ID]; ok {
		existing.References = mergeRefs(existing.References, e.References)
		for k, v := range e.Properties {
			if _, ok := existing.Properties[k]; !ok {
				existing.Properties[k] = v
			}
		}
		g.indexChunks(existing.ID, e.References)
		return e.ID
	}

	stored := e.clone()
	if stored.Properties == nil {
		stored.Properties = make(map[string]any)
	}
	stored.References = mergeRefs(nil, stored.References)
	g.entities[stored.ID] = &stored
	g.entityOrder = append(g.entityOrder, stored.ID)

	if g.byType[stored.Type] == nil {
		g.byType[stored.Type] = make(map[string]struct{})
	}
	g.byType[stored.Type][stored.ID] = struct{}{}
	g.indexChunks(stored.ID, stored.References)
	return stored.ID
}

func (g *Graph) indexChunks(entityID string, refs []string) {
	for _, ref := range refs {
		if g.byChunk[ref] == nil {
			g.byChunk[ref] = make(map[string]struct{})
		}
		g.byChunk[ref][entityID] = struct{}{}
	}
}

// AddRelationship inserts r. Both endpoints must already exist.
func (g *Graph) AddRelationship(r Relationship) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addRelationshipLocked(r)
}

func (g *Graph) addRelationshipLocked(r Relationship) (string, error) {
	if _, ok := g.entities[r.SourceID]; !ok {
		return "", fmt.Errorf("%w: source %s", ErrEntityNotFound, r.SourceID)
	}
	if _, ok := g.entities[r.TargetID]; !ok {
		return "", fmt.Errorf("%w: target %s", ErrEntityNotFound, r.TargetID)
	}

	if existing, ok := g.relationships[r.ID]; ok {
		existing.References = mergeRefs(existing.References, r.References)
		return r.ID, nil
	}

	stored := r.clone()
	if stored.Properties == nil {
		stored.Properties = make(map[string]any)
	}
	g.relationships[stored.ID] = &stored
	g.relOrder = append(g.relOrder, stored.ID)
	return stored.ID, nil
}

// Entity returns a copy of the entity with the given id.
func (g *Graph) Entity(id string) (Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entities[id]
	if !ok {
		return Entity{}, false
	}
	return e.clone(), true
}

// Entities returns every entity in insertion order.
func (g *Graph) Entities() []Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Entity, 0, len(g.entityOrder))
	for _, id := range g.entityOrder {
		out = append(out, g.entities[id].clone())
	}
	return out
}

// Relationships returns every relationship in insertion order.
func (g *Graph) Relationships() []Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Relationship, 0, len(g.relOrder))
	for _, id := range g.relOrder {
		out = append(out, g.relationships[id].clone())
	}
	return out
}

// EntitiesByType returns the entities of one type in insertion order.
func (g *Graph) EntitiesByType(entityType string) []Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.filterLocked(g.byType[entityType])
}

// EntitiesByChunk returns the entities referenced by a chunk in insertion order.
func (g *Graph) EntitiesByChunk(chunkID string) []Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.filterLocked(g.byChunk[chunkID])
}

func (g *Graph) filterLocked(set map[string]struct{}) []Entity {
	out := make([]Entity, 0, len(set))
	for _, id := range g.entityOrder {
		if _, ok := set[id]; ok {
			out = append(out, g.entities[id].clone())
		}
	}
	return out
}

// RelationshipsByEntity returns the edges touching id in the given direction.
func (g *Graph) RelationshipsByEntity(id string, dir Direction) []Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Relationship
	for _, rid := range g.relOrder {
		r := g.relationships[rid]
		outgoing := (dir == DirectionOut || dir == DirectionBoth) && r.SourceID == id
		incoming := (dir == DirectionIn || dir == DirectionBoth) && r.TargetID == id
		if outgoing || incoming {
			out = append(out, r.clone())
		}
	}
	return out
}

// Len returns the number of entities.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entities)
}

// MergeDuplicates folds entities with the same normalized name into the first one inserted.
// Relationships are re-pointed at the survivor. It returns how many entities were removed.
func (g *Graph) MergeDuplicates() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	masters := make(map[string]string)
	redirect := make(map[string]string)
	for _, id := range g.entityOrder {
		key := strings.ToLower(strings.TrimSpace(g.entities[id].Name))
		if master, ok := masters[key]; ok {
			redirect[id] = master
			continue
		}
		masters[key] = id
	}
	if len(redirect) == 0 {
		return 0
	}

	for _, dupID := range g.entityOrder {
		masterID, ok := redirect[dupID]
		if !ok {
			continue
		}
		dup, master := g.entities[dupID], g.entities[masterID]
		master.References = mergeRefs(master.References, dup.References)
		for k, v := range dup.Properties {
			if _, ok := master.Properties[k]; !ok {
				master.Properties[k] = v
			}
		}
		g.indexChunks(masterID, dup.References)

		delete(g.byType[dup.Type], dupID)
		for _, ref := range dup.References {
			delete(g.byChunk[ref], dupID)
		}
		delete(g.entities, dupID)
	}

	for _, r := range g.relationships {
		if m, ok := redirect[r.SourceID]; ok {
			r.SourceID = m
		}
		if m, ok := redirect[r.TargetID]; ok {
			r.TargetID = m
		}
	}

	kept := g.entityOrder[:0]
	for _, id := range g.entityOrder {
		if _, gone := redirect[id]; !gone {
			kept = append(kept, id)
		}
	}
	g.entityOrder = kept
	return len(redirect)
}

// Subgraph returns a new graph holding ids, optionally their direct neighbours, and the edges
// between the selected entities.
func (g *Graph) Subgraph(ids []string, includeNeighbors bool) *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	selected := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := g.entities[id]; ok {
			selected[id] = struct{}{}
		}
	}
	if includeNeighbors {
		neighbors := make(map[string]struct{})
		for _, rid := range g.relOrder {
			r := g.relationships[rid]
			if _, ok := selected[r.SourceID]; ok {
				neighbors[r.TargetID] = struct{}{}
			}
			if _, ok := selected[r.TargetID]; ok {
				neighbors[r.SourceID] = struct{}{}
			}
		}
		for id := range neighbors {
			selected[id] = struct{}{}
		}
	}

	sub := New()
	for _, id := range g.entityOrder {
		if _, ok := selected[id]; ok {
			sub.addEntityLocked(g.entities[id].clone())
		}
	}
	for _, rid := range g.relOrder {
		r := g.relationships[rid]
		_, src := selected[r.SourceID]
		_, dst := selected[r.TargetID]
		if src && dst {
			_, _ = sub.addRelationshipLocked(r.clone())
		}
	}
	return sub
}

func (e Entity) clone() Entity {
	c := e
	c.Properties = cloneProps(e.Properties)
	c.References = append([]string(nil), e.References...)
	return c
}

func (r Relationship) clone() Relationship {
	c := r
	c.Properties = cloneProps(r.Properties)
	c.References = append([]string(nil), r.References...)
	return c
}

func cloneProps(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func mergeRefs(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, ref := range append(append([]string(nil), base...), extra...) {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
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
