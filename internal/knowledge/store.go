package knowledge

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// File names written by Save.
const (
	EntitiesFile      = "entities.json"
	RelationshipsFile = "relationships.json"
	GEXFFile          = "graph.gexf"
)

// Save writes entities, relationships and a GEXF export into dir.
func (g *Graph) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create knowledge store: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, EntitiesFile), g.Entities()); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, RelationshipsFile), g.Relationships()); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, GEXFFile))
	if err != nil {
		return fmt.Errorf("failed to create gexf file: %w", err)
	}
	defer f.Close()
	return g.WriteGEXF(f)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Load reads a graph previously written by Save. Relationships whose endpoints are missing are skipped.
func Load(dir string) (*Graph, error) {
	var entities []Entity
	if err := readJSON(filepath.Join(dir, EntitiesFile), &entities); err != nil {
		return nil, err
	}
	var rels []Relationship
	if err := readJSON(filepath.Join(dir, RelationshipsFile), &rels); err != nil {
		return nil, err
	}

	g := New()
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range entities {
		g.addEntityLocked(e)
	}
	for _, r := range rels {
		_, _ = g.addRelationshipLocked(r)
	}
	return g, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

type gexfDoc struct {
	XMLName xml.Name  `xml:"gexf"`
	XMLNS   string    `xml:"xmlns,attr"`
	Version string    `xml:"version,attr"`
	Graph   gexfGraph `xml:"graph"`
}

type gexfGraph struct {
	DefaultEdgeType string           `xml:"defaultedgetype,attr"`
	Mode            string           `xml:"mode,attr"`
	Attributes      []gexfAttributes `xml:"attributes"`
	Nodes           []gexfNode       `xml:"nodes>node"`
	Edges           []gexfEdge       `xml:"edges>edge"`
}

type gexfAttributes struct {
	Class string          `xml:"class,attr"`
	Attrs []gexfAttribute `xml:"attribute"`
}

type gexfAttribute struct {
	ID    string `xml:"id,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

type gexfNode struct {
	ID     string          `xml:"id,attr"`
	Label  string          `xml:"label,attr"`
	Values []gexfAttrValue `xml:"attvalues>attvalue"`
}

type gexfEdge struct {
	ID     string          `xml:"id,attr"`
	Source string          `xml:"source,attr"`
	Target string          `xml:"target,attr"`
	Label  string          `xml:"label,attr,omitempty"`
	Values []gexfAttrValue `xml:"attvalues>attvalue"`
}

type gexfAttrValue struct {
	For   string `xml:"for,attr"`
	Value string `xml:"value,attr"`
}

// WriteGEXF writes the graph as GEXF 1.2.
func (g *Graph) WriteGEXF(w io.Writer) error {
	doc := gexfDoc{
		XMLNS:   "http://www.gexf.net/1.2draft",
		Version: "1.2",
		Graph: gexfGraph{
			DefaultEdgeType: "directed",
			Mode:            "static",
			Attributes: []gexfAttributes{
				{Class: "node", Attrs: []gexfAttribute{{ID: "0", Title: "type", Type: "string"}}},
				{Class: "edge", Attrs: []gexfAttribute{
					{ID: "0", Title: "type", Type: "string"},
					{ID: "1", Title: "confidence", Type: "double"},
				}},
			},
		},
	}

	for _, e := range g.Entities() {
		doc.Graph.Nodes = append(doc.Graph.Nodes, gexfNode{
			ID:     e.ID,
			Label:  e.Name,
			Values: []gexfAttrValue{{For: "0", Value: e.Type}},
		})
	}
	for _, r := range g.Relationships() {
		doc.Graph.Edges = append(doc.Graph.Edges, gexfEdge{
			ID:     r.ID,
			Source: r.SourceID,
			Target: r.TargetID,
			Label:  r.Type,
			Values: []gexfAttrValue{
				{For: "0", Value: r.Type},
				{For: "1", Value: strconv.FormatFloat(r.Confidence, 'f', -1, 64)},
			},
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write gexf header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode gexf: %w", err)
	}
	return enc.Flush()
}
