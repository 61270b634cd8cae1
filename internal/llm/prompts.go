package llm

import (
	"fmt"
	"strings"

	"report-analyzer/pkg/interfaces"
)

var sectionGuidance = map[interfaces.SectionName]string{
	interfaces.SectionLetterToShareholders: "Summarize themes, tone, outlook; include sentiment.",
	interfaces.SectionMDNA:                 "Extract performance drivers, risks, forward-looking statements, KPIs.",
	interfaces.SectionFinancialStatements:  "Extract metrics, anomalies, noteworthy accounting notes.",
	interfaces.SectionAuditReport:          "Identify opinion, material weaknesses, emphasis of matter.",
	interfaces.SectionCorporateGovernance:  "Board composition, independence, committees, policies.",
	interfaces.SectionSDG17:                "Partnerships, collaborations, alignment with SDG 17.",
	interfaces.SectionESG:                  "Environmental, social, governance initiatives, targets, progress.",
	interfaces.SectionOther:                "Provide a neutral summary and guess section if possible.",
}

var systemPrompts = map[interfaces.SectionName]string{
	interfaces.SectionLetterToShareholders: "You analyze Letters to Shareholders. Summarize themes, tone, outlook. " +
		"Capture sentiment and notable achievements or concerns.",
	interfaces.SectionMDNA: "You analyze MD&A sections. Extract performance drivers, risks, " +
		"forward-looking statements, and KPIs.",
	interfaces.SectionFinancialStatements: "You analyze Financial Statements and notes. Extract key metrics, " +
		"anomalies, and accounting highlights.",
	interfaces.SectionAuditReport: "You analyze Audit Reports. Identify opinion type, material weaknesses, " +
		"and emphasis of matter.",
	interfaces.SectionCorporateGovernance: "You analyze Corporate Governance disclosures. Summarize board " +
		"structure, independence, committees, and policies.",
	interfaces.SectionSDG17: "You analyze SDG 17 content. Identify partnerships, collaborations, and " +
		"alignment with the goal.",
	interfaces.SectionESG: "You analyze ESG sections. Summarize initiatives, targets, and progress across " +
		"E, S, and G.",
	interfaces.SectionOther: "You are a neutral analyst. Provide a succinct summary and infer the most " +
		"relevant section if possible.",
}

// SupervisorPrompt is the system prompt for routing and aggregation.
const SupervisorPrompt = "You are the supervisor coordinating a team of section-specific analysts. " +
	"For each chunk, determine the correct section and delegate. Ensure summaries capture key themes, " +
	"sentiment, and risks, and keep outputs concise."

// Guidance returns the one-line instruction for a section. Unknown sections get the "other" text.
func Guidance(section interfaces.SectionName) string {
	if g, ok := sectionGuidance[section]; ok {
		return g
	}
	return sectionGuidance[interfaces.SectionOther]
}

// SystemPrompt returns the summarizer system prompt for a section.
func SystemPrompt(section interfaces.SectionName) string {
	if p, ok := systemPrompts[section]; ok {
		return p
	}
	return systemPrompts[interfaces.SectionOther]
}

// SummaryPrompt builds the user prompt for one chunk. Prior good and bad points are included as
// context when present.
func SummaryPrompt(section interfaces.SectionName, content string, priorGood, priorBad []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Section: %s\nTask: %s\n\n", section, Guidance(section))
	if len(priorGood) > 0 || len(priorBad) > 0 {
		b.WriteString("Previous decisions context:\n")
		fmt.Fprintf(&b, "- GOOD: %s\n", strings.Join(priorGood, "; "))
		fmt.Fprintf(&b, "- BAD: %s\n\n", strings.Join(priorBad, "; "))
	}
	b.WriteString("Text:\n")
	b.WriteString(strings.TrimSpace(content))
	b.WriteString("\n\nRespond with a concise summary of at most 150 words.")
	return b.String()
}
