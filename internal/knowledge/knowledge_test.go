package knowledge

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entity(id, typ, name string) Entity {
	return Entity{ID: id, Type: typ, Name: name, References: []string{"chunk_0"}}
}

func edge(src, typ, dst string) Relationship {
	return Relationship{ID: RelationshipID(src, typ, dst), SourceID: src, TargetID: dst, Type: typ, Confidence: 0.5}
}

// chain builds A->B->C.
func chain(t *testing.T) *Graph {
	t.Helper()
	g := New()
	for _, id := range []string{"A", "B", "C"} {
		g.AddEntity(entity(id, TypeCompany, "name "+id))
	}
	_, err := g.AddRelationship(edge("A", "RELATED_TO", "B"))
	require.NoError(t, err)
	_, err = g.AddRelationship(edge("B", "RELATED_TO", "C"))
	require.NoError(t, err)
	return g
}

func TestEntityID(t *testing.T) {
	a := EntityID(TypeKPI, "revenue")
	assert.Equal(t, a, EntityID(TypeKPI, "revenue"))
	assert.NotEqual(t, a, EntityID(TypeKPI, "profit"))
	assert.True(t, strings.HasPrefix(a, "KPI_"))
	assert.Len(t, strings.TrimPrefix(a, "KPI_"), 16)
	assert.True(t, strings.HasPrefix(EntityID(TypeSDGGoal, "SDG 7"), "SDG_GOAL_"))
}

func typesOf(entities []Entity) map[string]int {
	out := make(map[string]int)
	for _, e := range entities {
		out[e.Type]++
	}
	return out
}

func TestExtractEntities(t *testing.T) {
	text := "Acme Corp reported revenue of $5 million. John Smith, CEO sees growth ahead. " +
		"Currency exposure remains. We support SDG 13 and margins rose 4.5% growth."
	entities := ExtractEntities(text, "chunk_3")

	types := typesOf(entities)
	assert.Positive(t, types[TypeFinancialMetric])
	assert.Positive(t, types[TypeKPI])
	assert.Positive(t, types[TypeMetric])
	assert.Positive(t, types[TypeRisk])
	assert.Positive(t, types[TypeOpportunity])
	assert.Equal(t, 1, types[TypePerson])
	assert.Equal(t, 1, types[TypeCompany])
	assert.Equal(t, 1, types[TypeSDGGoal])

	for _, e := range entities {
		assert.Equal(t, []string{"chunk_3"}, e.References)
		if e.Type == TypePerson {
			assert.Equal(t, "Executive", e.Properties["role"])
		}
	}
}

func TestExtractRelationshipsProximity(t *testing.T) {
	text := "Acme Corp is run by John Smith, CEO of the group."
	entities := ExtractEntities(text, "chunk_0")
	rels := ExtractRelationships(text, entities, "chunk_0")

	var leads bool
	for _, r := range rels {
		if r.Type == "LEADS" {
			leads = true
			assert.Equal(t, 0.6, r.Confidence)
		}
	}
	assert.True(t, leads, "expected an executive to lead the company")

	ids := make(map[string]struct{})
	for _, r := range rels {
		_, dup := ids[r.ID]
		assert.False(t, dup)
		ids[r.ID] = struct{}{}
	}
}

func TestExtractRelationshipsPattern(t *testing.T) {
	text := "Revenue increased by 12% this year."
	entities := ExtractEntities(text, "chunk_0")
	rels := ExtractRelationships(text, entities, "chunk_0")

	var found bool
	for _, r := range rels {
		if r.Type == "INCREASED_BY" {
			found = true
			assert.Equal(t, 0.8, r.Confidence)
		}
	}
	assert.True(t, found)
}

func TestAddRelationshipRequiresEndpoints(t *testing.T) {
	g := New()
	g.AddEntity(entity("A", TypeCompany, "Acme"))
	_, err := g.AddRelationship(edge("A", "RELATED_TO", "missing"))
	assert.ErrorIs(t, err, ErrEntityNotFound)
	_, err = g.AddRelationship(edge("missing", "RELATED_TO", "A"))
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestAddEntityMergesReferences(t *testing.T) {
	g := New()
	g.AddEntity(Entity{ID: "A", Type: TypeKPI, Name: "revenue", References: []string{"chunk_0"}, Properties: map[string]any{"value": "x"}})
	g.AddEntity(Entity{ID: "A", Type: TypeKPI, Name: "revenue", References: []string{"chunk_1", "chunk_0"}, Properties: map[string]any{"value": "y", "extra": 1}})

	e, ok := g.Entity("A")
	require.True(t, ok)
	assert.Equal(t, []string{"chunk_0", "chunk_1"}, e.References)
	assert.Equal(t, "x", e.Properties["value"])
	assert.Equal(t, 1, e.Properties["extra"])
	assert.Len(t, g.EntitiesByChunk("chunk_1"), 1)
	assert.Equal(t, 1, g.Len())
}

func TestMergeDuplicates(t *testing.T) {
	g := New()
	g.AddEntity(entity("A", TypeCompany, "Acme"))
	g.AddEntity(Entity{ID: "B", Type: TypeKPI, Name: "  ACME ", References: []string{"chunk_9"}})
	g.AddEntity(entity("C", TypeRisk, "Other"))
	_, err := g.AddRelationship(edge("C", "RELATED_TO", "B"))
	require.NoError(t, err)

	assert.Equal(t, 1, g.MergeDuplicates())
	assert.Equal(t, 2, g.Len())
	assert.Empty(t, g.EntitiesByType(TypeKPI))

	rels := g.Relationships()
	require.Len(t, rels, 1)
	assert.Equal(t, "C", rels[0].SourceID)
	assert.Equal(t, "A", rels[0].TargetID)

	a, _ := g.Entity("A")
	assert.Contains(t, a.References, "chunk_9")
	require.Len(t, g.EntitiesByChunk("chunk_9"), 1)
	assert.Equal(t, "A", g.EntitiesByChunk("chunk_9")[0].ID)

	assert.Zero(t, g.MergeDuplicates())
}

func TestRelationshipsByEntity(t *testing.T) {
	g := chain(t)
	assert.Len(t, g.RelationshipsByEntity("B", DirectionIn), 1)
	assert.Len(t, g.RelationshipsByEntity("B", DirectionOut), 1)
	assert.Len(t, g.RelationshipsByEntity("B", DirectionBoth), 2)
	assert.Empty(t, g.RelationshipsByEntity("A", DirectionIn))
}

func TestFindPaths(t *testing.T) {
	g := chain(t)
	_, err := g.AddRelationship(edge("A", "RELATED_TO", "C"))
	require.NoError(t, err)
	_, err = g.AddRelationship(edge("A", "HAS_METRIC", "C"))
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"A", "C"}}, g.FindPaths("A", "C", 1))
	assert.Equal(t, [][]string{{"A", "B", "C"}, {"A", "C"}}, g.FindPaths("A", "C", 2))
	assert.Empty(t, g.FindPaths("C", "A", 3))
	assert.Empty(t, g.FindPaths("A", "missing", 3))
	assert.Empty(t, g.FindPaths("A", "C", 0))
}

func TestCentrality(t *testing.T) {
	g := chain(t)

	degree, err := g.Centrality(CentralityDegree)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, degree["A"], 1e-9)
	assert.InDelta(t, 1.0, degree["B"], 1e-9)

	between, err := g.Centrality(CentralityBetweenness)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, between["B"], 1e-9)
	assert.Zero(t, between["A"])
	assert.Zero(t, between["C"])

	closeness, err := g.Centrality(CentralityCloseness)
	require.NoError(t, err)
	assert.Zero(t, closeness["A"])
	assert.InDelta(t, 0.5, closeness["B"], 1e-9)
	assert.InDelta(t, 2.0/3.0, closeness["C"], 1e-9)

	_, err = g.Centrality("eigenvector")
	assert.Error(t, err)

	assert.Equal(t, []string{"B", "A"}, TopCentral(degree, 2))
}

func TestCommunitiesAndStats(t *testing.T) {
	g := chain(t)
	g.AddEntity(entity("D", TypeRisk, "lonely"))

	assert.Equal(t, [][]string{{"A", "B", "C"}, {"D"}}, g.Communities())

	st := g.Stats()
	assert.Equal(t, 4, st.TotalEntities)
	assert.Equal(t, 2, st.TotalRelationships)
	assert.Equal(t, 2, st.ConnectedComponents)
	assert.Equal(t, 3, st.EntityTypes[TypeCompany])
	assert.Equal(t, 1, st.EntityTypes[TypeRisk])
	assert.InDelta(t, 1.0, st.AvgDegree, 1e-9)
	assert.InDelta(t, 2.0/12.0, st.Density, 1e-9)

	empty := New().Stats()
	assert.Zero(t, empty.TotalEntities)
	assert.Zero(t, empty.Density)
}

func TestSubgraph(t *testing.T) {
	g := chain(t)

	only := g.Subgraph([]string{"A"}, false)
	assert.Equal(t, 1, only.Len())
	assert.Empty(t, only.Relationships())

	withNeighbors := g.Subgraph([]string{"A"}, true)
	assert.Equal(t, 2, withNeighbors.Len())
	require.Len(t, withNeighbors.Relationships(), 1)
	assert.Equal(t, "B", withNeighbors.Relationships()[0].TargetID)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	g := chain(t)
	dir := filepath.Join(t.TempDir(), "knowledge_store")
	require.NoError(t, g.Save(dir))

	for _, name := range []string{EntitiesFile, RelationshipsFile, GEXFFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, g.Entities(), loaded.Entities())
	assert.Equal(t, len(g.Relationships()), len(loaded.Relationships()))

	_, err = Load(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestWriteGEXF(t *testing.T) {
	g := chain(t)
	var buf bytes.Buffer
	require.NoError(t, g.WriteGEXF(&buf))

	var doc struct {
		Graph struct {
			DefaultEdgeType string `xml:"defaultedgetype,attr"`
			Nodes           []struct {
				ID string `xml:"id,attr"`
			} `xml:"nodes>node"`
			Edges []struct {
				Source string `xml:"source,attr"`
				Target string `xml:"target,attr"`
			} `xml:"edges>edge"`
		} `xml:"graph"`
	}
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "directed", doc.Graph.DefaultEdgeType)
	assert.Len(t, doc.Graph.Nodes, 3)
	require.Len(t, doc.Graph.Edges, 2)
	assert.Equal(t, "A", doc.Graph.Edges[0].Source)
}

func TestExtractAndAddConcurrent(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := fmt.Sprintf("Acme Corp revenue rose 1%d%% growth. Liquidity risk remains.", i)
			res := g.ExtractAndAdd(text, fmt.Sprintf("chunk_%d", i))
			assert.Positive(t, res.EntitiesExtracted)
		}(i)
	}
	wg.Wait()

	companies := g.EntitiesByType(TypeCompany)
	require.Len(t, companies, 1)
	assert.Len(t, companies[0].References, 8)
	assert.Equal(t, 0, g.MergeDuplicates())
}
