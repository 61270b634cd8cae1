package agents

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"report-analyzer/pkg/interfaces"
	"report-analyzer/pkg/state"
)

var (
	boardMemberPattern = regexp.MustCompile(`(?i:board member|director|chairman|chairwoman|chairperson)[\s:]+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`)
	committeePattern   = regexp.MustCompile(`(?i)(audit|compensation|nominating|governance|risk|ethics)\s+committee`)
	policyPattern      = regexp.MustCompile(`(?i)\b(code of conduct|whistleblower policy|anti-corruption policy|dividend policy|remuneration policy|insider trading policy)\b`)
	sdgPattern         = regexp.MustCompile(`(?i)SDG[\s-]?(\d{1,2})|Sustainable Development Goal[\s-]?(\d{1,2})`)
)

var esgKeywords = struct {
	environmental, social, governance []string
}{
	environmental: []string{"carbon", "emissions", "renewable", "sustainability", "climate", "energy"},
	social:        []string{"diversity", "inclusion", "community", "safety", "human rights"},
	governance:    []string{"ethics", "transparency", "accountability", "compliance", "integrity"},
}

// GovernanceAgent scores governance disclosures, ESG coverage and SDG references.
type GovernanceAgent struct {
	base
}

// NewGovernanceAgent creates the governance and ESG sub-agent of a section.
func NewGovernanceAgent(section interfaces.SectionName, parent string, deps *Deps) *GovernanceAgent {
	return &GovernanceAgent{base: newBase(section, KindGovernanceESG, parent, deps)}
}

// Process assesses content and records a governance_esg finding for the section.
func (a *GovernanceAgent) Process(ctx context.Context, content string, c Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	g := AssessGovernanceESG(content)
	a.deps.Board.AddSectionFinding(c.Section, state.Finding{
		Type:          "governance_esg",
		ChunkID:       c.ChunkID,
		GovernanceESG: &g,
	})
	return a.finish(c, start, &g, 0.85, nil), nil
}

// AssessGovernanceESG extracts governance indicators, ESG keyword hits and SDG goals from text and
// scores them.
func AssessGovernanceESG(text string) interfaces.GovernanceESG {
	lower := strings.ToLower(text)

	gov := interfaces.Governance{
		BoardMembers:           []string{},
		Committees:             []string{},
		Policies:               []string{},
		IndependenceIndicators: []string{},
	}
	for _, m := range boardMemberPattern.FindAllStringSubmatch(text, -1) {
		gov.BoardMembers = appendUnique(gov.BoardMembers, m[1])
	}
	for _, m := range committeePattern.FindAllString(text, -1) {
		gov.Committees = appendUnique(gov.Committees, m)
	}
	for _, m := range policyPattern.FindAllString(text, -1) {
		gov.Policies = appendUnique(gov.Policies, strings.ToLower(m))
	}
	if strings.Contains(lower, "independent director") {
		gov.IndependenceIndicators = append(gov.IndependenceIndicators, "Independent directors mentioned")
	}

	esg := interfaces.ESG{
		Environmental: keywordHits(lower, esgKeywords.environmental),
		Social:        keywordHits(lower, esgKeywords.social),
		Governance:    keywordHits(lower, esgKeywords.governance),
	}

	out := interfaces.GovernanceESG{
		Governance: gov,
		ESG:        esg,
		SDG:        SDGGoals(text),
	}
	out.ComplianceScore = complianceScore(out)
	out.SustainabilityScore = sustainabilityScore(out)
	return out
}

// SDGGoals returns the distinct goals 1..17 mentioned in text as "SDG n", in numeric order.
func SDGGoals(text string) []string {
	seen := make(map[int]struct{})
	for _, m := range sdgPattern.FindAllStringSubmatch(text, -1) {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 17 {
			continue
		}
		seen[n] = struct{}{}
	}
	nums := make([]int, 0, len(seen))
	for n := range seen {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	out := make([]string, len(nums))
	for i, n := range nums {
		out[i] = fmt.Sprintf("SDG %d", n)
	}
	return out
}

func complianceScore(g interfaces.GovernanceESG) float64 {
	score := 0.5
	if len(g.Governance.BoardMembers) > 0 {
		score += 0.1
	}
	score += 0.1 * float64(min(len(g.Governance.Committees), 3))
	if len(g.Governance.IndependenceIndicators) > 0 {
		score += 0.1
	}
	if len(g.ESG.Governance) > 0 {
		score += 0.1
	}
	return round2(math.Min(score, 1))
}

func sustainabilityScore(g interfaces.GovernanceESG) float64 {
	score := 0.3
	if len(g.ESG.Environmental) > 0 {
		score += 0.2
	}
	if len(g.ESG.Social) > 0 {
		score += 0.2
	}
	score += 0.1 * float64(min(len(g.SDG), 3))
	return round2(math.Min(score, 1))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func keywordHits(lower string, keywords []string) []string {
	out := []string{}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			out = append(out, kw)
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
