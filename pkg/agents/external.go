package agents

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"report-analyzer/pkg/interfaces"
)

const (
	maxExternalEntities = 5
	maxSearchEntities   = 3
	maxFinanceEntities  = 2
	maxNewsEntities     = 2
	searchResultLimit   = 5
	newsResultLimit     = 5
	defaultNewsWindow   = 7 * 24 * time.Hour
)

var capitalizedPhrase = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)

// ExternalOutput is the result of the external intelligence sub-agent
type ExternalOutput struct {
	EntitiesSearched []string                               `json:"entities_searched"`
	WebResults       map[string][]interfaces.SearchHit      `json:"web_results,omitempty"`
	FinancialData    map[string]*interfaces.FinanceOverview `json:"financial_data,omitempty"`
	News             map[string][]interfaces.NewsArticle    `json:"news,omitempty"`
	Insights         []string                               `json:"insights"`
}

func (o *ExternalOutput) hasData() bool {
	return len(o.WebResults) > 0 || len(o.FinancialData) > 0 || len(o.News) > 0
}

// ExternalAgent enriches a chunk with web search, market data and news about the entities it names.
type ExternalAgent struct {
	base
	now func() time.Time
}

// NewExternalAgent creates the external intelligence sub-agent of a section.
func NewExternalAgent(section interfaces.SectionName, parent string, deps *Deps) *ExternalAgent {
	return &ExternalAgent{base: newBase(section, KindExternal, parent, deps), now: time.Now}
}

// CapitalizedEntities returns up to five distinct capitalized phrases in text order.
func CapitalizedEntities(text string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, m := range capitalizedPhrase.FindAllString(text, -1) {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
		if len(out) == maxExternalEntities {
			break
		}
	}
	return out
}

// Process queries the enabled external sources. A failing source is reported in Errors and does
// not fail the call.
func (a *ExternalAgent) Process(ctx context.Context, content string, c Context) (*Result, error) {
	start := time.Now()
	var errs []string

	entities := CapitalizedEntities(content)
	out := &ExternalOutput{EntitiesSearched: entities, Insights: []string{}}
	src := a.deps.External

	if src != nil && src.Search != nil {
		out.WebResults = make(map[string][]interfaces.SearchHit)
		total := 0
		for _, e := range head(entities, maxSearchEntities) {
			hits, err := src.Search.Search(ctx, e, searchResultLimit)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				errs = append(errs, fmt.Sprintf("Web search failed for %s: %v", e, err))
				continue
			}
			if len(hits) > 0 {
				out.WebResults[e] = hits
				total += len(hits)
			}
		}
		if total > 0 {
			out.Insights = append(out.Insights, fmt.Sprintf("Found %d web references for mentioned entities", total))
		}
	}

	if src != nil && src.Finance != nil {
		out.FinancialData = make(map[string]*interfaces.FinanceOverview)
		for _, e := range head(entities, maxFinanceEntities) {
			overview, err := src.Finance.Overview(ctx, e)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				errs = append(errs, fmt.Sprintf("Financial data fetch failed for %s: %v", e, err))
				continue
			}
			out.FinancialData[e] = overview
			if overview.PERatio > 0 {
				out.Insights = append(out.Insights, fmt.Sprintf("%s P/E ratio: %g", e, overview.PERatio))
			}
		}
	}

	if src != nil && src.News != nil {
		window := src.NewsWindow
		if window <= 0 {
			window = defaultNewsWindow
		}
		since := a.now().Add(-window)
		out.News = make(map[string][]interfaces.NewsArticle)
		total := 0
		for _, e := range head(entities, maxNewsEntities) {
			articles, err := src.News.Headlines(ctx, e, since, newsResultLimit)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				errs = append(errs, fmt.Sprintf("News fetch failed for %s: %v", e, err))
				continue
			}
			if len(articles) > 0 {
				out.News[e] = articles
				total += len(articles)
			}
		}
		if total > 0 {
			out.Insights = append(out.Insights, fmt.Sprintf("Found %d recent news articles", total))
		}
	}

	confidence := 0.3
	if out.hasData() {
		confidence = 0.7
	}
	return a.finish(c, start, out, confidence, errs), nil
}

func head[T any](list []T, n int) []T {
	if len(list) > n {
		return list[:n]
	}
	return list
}
