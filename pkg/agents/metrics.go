package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"report-analyzer/internal/knowledge"
	"report-analyzer/pkg/interfaces"
)

const (
	metricContextChars = 30
	maxKeyMetrics      = 10
)

var metricPatterns = []struct {
	metricType string
	re         *regexp.Regexp
}{
	{"revenue", regexp.MustCompile(`(?i)\$?([\d,]+\.?\d*)\s*(million|billion|M|B)?\s*(?:in\s+)?(revenue|sales)`)},
	{"profit", regexp.MustCompile(`(?i)\$?([\d,]+\.?\d*)\s*(million|billion|M|B)?\s*(?:in\s+)?(profit|earnings)`)},
	{"growth_rate", regexp.MustCompile(`(?i)([\d.]+)%\s*(growth|increase|decrease)`)},
	{"margin", regexp.MustCompile(`(?i)([\d.]+)%\s*(margin)`)},
	{"pe_ratio", regexp.MustCompile(`(?i)([\d.]+)[x\s]*(P/E|PE)`)},
}

var metricCategories = []struct {
	name     string
	keywords []string
}{
	{"financial", []string{"revenue", "profit", "earnings", "cash"}},
	{"growth", []string{"growth", "increase", "decrease"}},
	{"efficiency", []string{"margin", "ratio", "efficiency"}},
	{"operational", []string{"production", "output", "volume"}},
}

var keyMetricTypes = []string{"revenue", "profit", "growth_rate", "margin"}

// MetricsOutput is the result of the metrics sub-agent
type MetricsOutput struct {
	MetricsByCategory map[string][]interfaces.Metric `json:"metrics_by_category"`
	KeyMetrics        []interfaces.Metric            `json:"key_metrics"`
	TotalMetrics      int                            `json:"total_metrics"`
	MetricSummary     string                         `json:"metric_summary"`
}

// MetricsAgent extracts quantitative figures from text and the knowledge graph.
type MetricsAgent struct {
	base
}

// NewMetricsAgent creates the metrics sub-agent of a section.
func NewMetricsAgent(section interfaces.SectionName, parent string, deps *Deps) *MetricsAgent {
	return &MetricsAgent{base: newBase(section, KindMetrics, parent, deps)}
}

// Process extracts metrics from content and records them for the section.
func (a *MetricsAgent) Process(ctx context.Context, content string, c Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	found := ExtractMetrics(content)
	for _, e := range chunkEntities(a.deps.Knowledge, c.ChunkID, knowledge.TypeMetric, knowledge.TypeKPI, knowledge.TypeFinancialMetric) {
		value, _ := e.Properties["value"].(string)
		found = append(found, interfaces.Metric{
			Type:     strings.ToLower(e.Type),
			Name:     e.Name,
			Value:    value,
			EntityID: e.ID,
		})
	}

	metrics := dedupMetrics(found)
	out := &MetricsOutput{
		MetricsByCategory: make(map[string][]interfaces.Metric),
		KeyMetrics:        []interfaces.Metric{},
		TotalMetrics:      len(metrics),
	}
	for _, m := range metrics {
		cat := metricCategory(m.Type)
		out.MetricsByCategory[cat] = append(out.MetricsByCategory[cat], m)
		if len(out.KeyMetrics) < maxKeyMetrics && isKeyMetric(m.Type) {
			out.KeyMetrics = append(out.KeyMetrics, m)
		}
		a.deps.Board.AddMetric(c.Section, m)
	}
	out.MetricSummary = metricSummary(out)

	return a.finish(c, start, out, 0.9, nil), nil
}

// ExtractMetrics finds pattern metrics in text with surrounding context.
func ExtractMetrics(text string) []interfaces.Metric {
	var out []interfaces.Metric
	for _, p := range metricPatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			metric := interfaces.Metric{
				Type:    p.metricType,
				Value:   text[m[2]:m[3]],
				Context: strings.TrimSpace(contextWindow(text, m[0], m[1], metricContextChars)),
			}
			if len(m) > 5 && m[4] >= 0 {
				metric.Unit = text[m[4]:m[5]]
			}
			out = append(out, metric)
		}
	}
	return out
}

// contextWindow returns text[start-pad:end+pad] widened to rune boundaries.
func contextWindow(text string, start, end, pad int) string {
	lo := start - pad
	if lo < 0 {
		lo = 0
	}
	hi := end + pad
	if hi > len(text) {
		hi = len(text)
	}
	for lo > 0 && !isRuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !isRuneStart(text[hi]) {
		hi++
	}
	return text[lo:hi]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// dedupMetrics keeps the first metric of each (type, value) pair.
func dedupMetrics(metrics []interfaces.Metric) []interfaces.Metric {
	seen := make(map[string]struct{}, len(metrics))
	out := make([]interfaces.Metric, 0, len(metrics))
	for _, m := range metrics {
		key := m.Type + "_" + m.Value
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

func metricCategory(metricType string) string {
	lower := strings.ToLower(metricType)
	for _, c := range metricCategories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.name
			}
		}
	}
	return "other"
}

func isKeyMetric(metricType string) bool {
	for _, k := range keyMetricTypes {
		if strings.Contains(metricType, k) {
			return true
		}
	}
	return false
}

func metricSummary(out *MetricsOutput) string {
	if out.TotalMetrics == 0 {
		return "No quantitative metrics extracted."
	}
	var parts []string
	for _, c := range metricCategories {
		if n := len(out.MetricsByCategory[c.name]); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, c.name))
		}
	}
	if n := len(out.MetricsByCategory["other"]); n > 0 {
		parts = append(parts, fmt.Sprintf("%d other", n))
	}
	return fmt.Sprintf("Extracted %d metrics: %s", out.TotalMetrics, strings.Join(parts, ", "))
}
