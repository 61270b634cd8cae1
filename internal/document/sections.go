package document

import (
	"strings"

	"report-analyzer/pkg/interfaces"
)

type sectionRule struct {
	section  interfaces.SectionName
	keywords []string
}

// sectionRules are checked in order; the first hit wins.
var sectionRules = []sectionRule{
	{interfaces.SectionLetterToShareholders, []string{"letter to shareholders", "letter from the ceo"}},
	{interfaces.SectionMDNA, []string{"management's discussion", "md&a", "mdna"}},
	{interfaces.SectionFinancialStatements, []string{"financial statements", "balance sheet", "income statement"}},
	{interfaces.SectionAuditReport, []string{"audit report", "auditors' report"}},
	{interfaces.SectionCorporateGovernance, []string{"corporate governance"}},
	{interfaces.SectionSDG17, []string{"sdg 17", "partnerships for the goals"}},
	{interfaces.SectionESG, []string{"esg", "sustainability"}},
}

// GuessSection returns the section the text most likely belongs to, or nil.
func GuessSection(text string) *interfaces.SectionName {
	lower := strings.ToLower(text)
	for _, rule := range sectionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return interfaces.SectionPtr(rule.section)
			}
		}
	}
	return nil
}
