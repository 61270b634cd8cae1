package knowledge

import (
	"regexp"
	"strings"
)

type entityPattern struct {
	re         *regexp.Regexp
	entityType string
}

var metricPatterns = []entityPattern{
	{regexp.MustCompile(`(?i)\$[\d,]+\.?\d*\s*(million|billion|M|B)?`), TypeFinancialMetric},
	{regexp.MustCompile(`(?i)\d+\.?\d*%\s*(growth|increase|decrease|margin)?`), TypeMetric},
	{regexp.MustCompile(`(?i)(revenue|profit|EBITDA|cash flow|debt|assets|liabilities)`), TypeKPI},
}

var personPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:Mr\.|Ms\.|Dr\.|Mrs\.)\s+[A-Z][a-z]+\s+[A-Z][a-z]+`),
	regexp.MustCompile(`[A-Z][a-z]+\s+[A-Z][a-z]+,?\s+(?:CEO|CFO|CTO|COO|President|Director|Chairman)`),
}

var executiveTitles = []string{"CEO", "CFO", "CTO", "COO", "President"}

var companyPattern = regexp.MustCompile(`\b(?:[A-Z][A-Za-z&]+\s+){1,3}(?:Inc|Corp|Corporation|Ltd|Limited|PLC|plc|LLC|Group|Holdings)\b\.?`)

var sdgPattern = regexp.MustCompile(`(?i)SDG\s*\d+|Sustainable Development Goal\s*\d+`)

var riskWords = []string{"risk", "threat", "challenge", "uncertainty", "exposure"}

var opportunityWords = []string{"opportunity", "potential", "growth", "expansion", "innovation"}

type relationshipPattern struct {
	re      *regexp.Regexp
	relType string
}

var relationshipPatterns = []relationshipPattern{
	{regexp.MustCompile(`(?i)(\w+)\s+increased\s+by\s+([\d.]+%)`), "INCREASED_BY"},
	{regexp.MustCompile(`(?i)(\w+)\s+decreased\s+by\s+([\d.]+%)`), "DECREASED_BY"},
	{regexp.MustCompile(`(?i)(\w+)\s+led\s+by\s+(\w+)`), "LED_BY"},
	{regexp.MustCompile(`(?i)(\w+)\s+faces?\s+(\w+\s+risk)`), "FACES_RISK"},
	{regexp.MustCompile(`(?i)(\w+)\s+achieved?\s+(\w+)`), "ACHIEVED"},
	{regexp.MustCompile(`(?i)(\w+)\s+targets?\s+(\w+)`), "TARGETS"},
}

// proximityWindow is the character distance under which two entities are linked.
const proximityWindow = 100

// ExtractEntities finds metrics, KPIs, risks, opportunities, people, companies and SDG goals in text.
func ExtractEntities(text, chunkID string) []Entity {
	var entities []Entity
	add := func(entityType, source, name string, props map[string]any) {
		entities = append(entities, Entity{
			ID:         EntityID(entityType, source),
			Type:       entityType,
			Name:       name,
			Properties: props,
			References: []string{chunkID},
		})
	}

	for _, p := range metricPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			match := strings.TrimSpace(text[loc[0]:loc[1]])
			add(p.entityType, match, match, map[string]any{
				"value":   match,
				"context": window(text, loc[0], loc[1], 50),
			})
		}
	}

	for _, sentence := range strings.Split(text, ".") {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if containsAny(lower, riskWords) {
			add(TypeRisk, sentence, prefix(trimmed, 100), map[string]any{"full_text": trimmed})
		}
		if containsAny(lower, opportunityWords) {
			add(TypeOpportunity, sentence, prefix(trimmed, 100), map[string]any{"full_text": trimmed})
		}
	}

	for _, re := range personPatterns {
		for _, match := range re.FindAllString(text, -1) {
			name := strings.Trim(strings.TrimSpace(match), ",")
			role := "Board Member"
			if containsAny(name, executiveTitles) {
				role = "Executive"
			}
			add(TypePerson, name, name, map[string]any{"role": role})
		}
	}

	for _, match := range companyPattern.FindAllString(text, -1) {
		name := strings.TrimSpace(match)
		add(TypeCompany, name, name, map[string]any{})
	}

	for _, loc := range sdgPattern.FindAllStringIndex(text, -1) {
		match := text[loc[0]:loc[1]]
		add(TypeSDGGoal, match, match, map[string]any{"context": window(text, loc[0], loc[1], 100)})
	}

	return entities
}

// ExtractRelationships links extracted entities through verb patterns and textual proximity.
func ExtractRelationships(text string, entities []Entity, chunkID string) []Relationship {
	var rels []Relationship
	seen := make(map[string]struct{})
	add := func(r Relationship) {
		if _, ok := seen[r.ID]; ok {
			return
		}
		seen[r.ID] = struct{}{}
		rels = append(rels, r)
	}

	for _, p := range relationshipPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			for _, e1 := range entities {
				if !strings.Contains(e1.Name, m[1]) {
					continue
				}
				for _, e2 := range entities {
					if e1.ID == e2.ID || !strings.Contains(e2.Name, m[2]) {
						continue
					}
					add(Relationship{
						ID:         RelationshipID(e1.ID, p.relType, e2.ID),
						SourceID:   e1.ID,
						TargetID:   e2.ID,
						Type:       p.relType,
						Properties: map[string]any{"extracted_from": m[0]},
						References: []string{chunkID},
						Confidence: 0.8,
					})
				}
			}
		}
	}

	positions := make(map[string]int, len(entities))
	for _, e := range entities {
		if pos := strings.Index(text, e.Name); pos >= 0 {
			positions[e.ID] = pos
		}
	}

	for i, e1 := range entities {
		p1, ok := positions[e1.ID]
		if !ok {
			continue
		}
		for _, e2 := range entities[i+1:] {
			p2, ok := positions[e2.ID]
			if !ok || e1.ID == e2.ID {
				continue
			}
			distance := p1 - p2
			if distance < 0 {
				distance = -distance
			}
			if distance >= proximityWindow {
				continue
			}
			relType := proximityType(e1, e2)
			add(Relationship{
				ID:         RelationshipID(e1.ID, relType, e2.ID),
				SourceID:   e1.ID,
				TargetID:   e2.ID,
				Type:       relType,
				Properties: map[string]any{"proximity_distance": distance},
				References: []string{chunkID},
				Confidence: 0.6,
			})
		}
	}

	return rels
}

func proximityType(e1, e2 Entity) string {
	switch {
	case e1.Type == TypePerson && e2.Type == TypeCompany:
		if e1.Properties["role"] == "Executive" {
			return "LEADS"
		}
		return "BOARD_MEMBER_OF"
	case e1.Type == TypeCompany && (e2.Type == TypeMetric || e2.Type == TypeKPI || e2.Type == TypeFinancialMetric):
		return "HAS_METRIC"
	case e1.Type == TypeCompany && e2.Type == TypeRisk:
		return "FACES_RISK"
	case e1.Type == TypeCompany && e2.Type == TypeOpportunity:
		return "HAS_OPPORTUNITY"
	default:
		return "RELATED_TO"
	}
}

// ExtractAndAdd extracts entities and relationships from one chunk, adds them and merges duplicates.
func (g *Graph) ExtractAndAdd(text, chunkID string) ExtractionResult {
	entities := ExtractEntities(text, chunkID)
	rels := ExtractRelationships(text, entities, chunkID)

	g.mu.Lock()
	for _, e := range entities {
		g.addEntityLocked(e)
	}
	for _, r := range rels {
		_, _ = g.addRelationshipLocked(r)
	}
	g.mu.Unlock()

	g.MergeDuplicates()

	return ExtractionResult{
		EntitiesExtracted:      len(entities),
		RelationshipsExtracted: len(rels),
		ChunkID:                chunkID,
	}
}

func window(text string, start, end, pad int) string {
	lo := start - pad
	if lo < 0 {
		lo = 0
	}
	hi := end + pad
	if hi > len(text) {
		hi = len(text)
	}
	return strings.ToValidUTF8(text[lo:hi], "")
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
