package document

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"report-analyzer/pkg/interfaces"
)

func TestGuessSection(t *testing.T) {
	tests := []struct {
		name string
		text string
		want interfaces.SectionName
	}{
		{"letter", "A Letter to Shareholders from our chair", interfaces.SectionLetterToShareholders},
		{"ceo letter", "Letter from the CEO", interfaces.SectionLetterToShareholders},
		{"mdna", "Management's Discussion and Analysis", interfaces.SectionMDNA},
		{"mdna abbrev", "see MD&A below", interfaces.SectionMDNA},
		{"financial statements", "Consolidated Balance Sheet", interfaces.SectionFinancialStatements},
		{"audit", "Independent Auditors' Report", interfaces.SectionAuditReport},
		{"governance", "Corporate Governance Report", interfaces.SectionCorporateGovernance},
		{"sdg", "Partnerships for the Goals", interfaces.SectionSDG17},
		{"esg", "Our sustainability journey", interfaces.SectionESG},
		// letter outranks everything that follows it
		{"precedence letter", "letter to shareholders on sustainability and the balance sheet", interfaces.SectionLetterToShareholders},
		// financial statements outrank audit and esg
		{"precedence fs", "audit report on the income statement and ESG", interfaces.SectionFinancialStatements},
		// sdg 17 outranks the esg keyword
		{"precedence sdg", "SDG 17 within our ESG framework", interfaces.SectionSDG17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GuessSection(tt.text)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}

	assert.Nil(t, GuessSection("Quarterly numbers were flat."))
}

func TestChunkTextBounds(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, strings.Repeat("x", 40))
	}
	text := strings.Join(lines, "\n")

	chunks := ChunkText(text, 500, "report.md")
	require.NotEmpty(t, chunks)

	var rebuilt []string
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "chunk_"+strconv.Itoa(i), c.ID)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content)+1, 500)
		assert.Equal(t, "report.md", c.Meta["source"])
		rebuilt = append(rebuilt, c.Content)
	}
	assert.Equal(t, text, strings.Join(rebuilt, "\n"))
}

func TestChunkTextOversizeLine(t *testing.T) {
	long := strings.Repeat("y", 120)
	text := "short line\n" + long + "\nanother"

	chunks := ChunkText(text, 50, "")
	require.Len(t, chunks, 3)
	assert.Equal(t, "short line", chunks[0].Content)
	assert.Equal(t, long, chunks[1].Content)
	assert.Equal(t, "another", chunks[2].Content)
	assert.Equal(t, "unknown", chunks[0].Meta["source"])
}

func TestChunkTextDropsBlankAndDefaults(t *testing.T) {
	assert.Empty(t, ChunkText("\n\n   \n", 10, "x"))

	text := strings.Repeat("z", 2000) + "\n" + strings.Repeat("z", 998)
	chunks := ChunkText(text, 0, "x")
	assert.Len(t, chunks, 1, "default bound is 3000 characters")
}

func TestChunkTextSectionHint(t *testing.T) {
	chunks := ChunkText("Corporate Governance\nThe board met nine times.", 1000, "r")
	require.Len(t, chunks, 1)
	require.NotNil(t, chunks[0].SectionHint)
	assert.Equal(t, interfaces.SectionCorporateGovernance, *chunks[0].SectionHint)
}

func TestMarkdownText(t *testing.T) {
	src := "# Annual Report 2024\r\n\r\n## Letter to *Shareholders*\r\n\r\nDear owners,\r\n\r\nSetext Heading\r\n---\r\n"
	text, headings := MarkdownText([]byte(src))

	assert.NotContains(t, text, "\r")
	require.Len(t, headings, 3)
	assert.Equal(t, 1, headings[0].Level)
	assert.Equal(t, "Annual Report 2024", headings[0].Text)
	assert.Equal(t, 0, headings[0].Line)
	assert.Equal(t, "Letter to Shareholders", headings[1].Text)
	assert.Equal(t, 2, headings[1].Line)
	assert.Equal(t, 2, headings[2].Level)
	assert.Equal(t, "Setext Heading", headings[2].Text)
}

func TestChunkDocumentsInheritsHeadingSection(t *testing.T) {
	body := strings.Repeat("Revenue grew across all regions this year.\n", 10)
	src := "# Management's Discussion and Analysis\n\n" + body
	text, headings := MarkdownText([]byte(src))
	docs := []interfaces.Document{
		{Source: "a.md", Text: text, Headings: headings},
		{Source: "b.txt", Text: "Plain trailing note."},
	}

	chunks := ChunkDocuments(docs, 120)
	require.Greater(t, len(chunks), 2)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
	last := chunks[len(chunks)-1]
	assert.Equal(t, "b.txt", last.Meta["source"])
	assert.Nil(t, last.SectionHint)

	// a body chunk far below the heading still carries the mdna hint
	mid := chunks[len(chunks)-2]
	require.NotNil(t, mid.SectionHint)
	assert.Equal(t, interfaces.SectionMDNA, *mid.SectionHint)
	assert.Equal(t, "Management's Discussion and Analysis", mid.Meta["heading"])
}

func TestJSONText(t *testing.T) {
	data := []byte(`{"b": "second", "a": {"z": "third line", "y": ["first\nsplit", 3, true]}, "c": ""}`)
	text, err := JSONText(data)
	require.NoError(t, err)
	assert.Equal(t, "first\nsplit\nthird line\nsecond", text)

	_, err = JSONText([]byte("{"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("Plain text report."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("# Corporate Governance\nBoard."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.json"), []byte(`{"text": "From JSON"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.pdf"), []byte("%PDF"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "e.txt"), []byte("   "), 0644))

	docs, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "markdown", docs[0].Format)
	assert.Len(t, docs[0].Headings, 1)
	assert.Equal(t, "text", docs[1].Format)
	assert.Equal(t, "From JSON", docs[2].Text)

	single, err := Load(filepath.Join(dir, "b.txt"))
	require.NoError(t, err)
	assert.Len(t, single, 1)

	_, err = Load(filepath.Join(dir, "d.pdf"))
	assert.Error(t, err)

	empty := t.TempDir()
	_, err = Load(empty)
	assert.ErrorIs(t, err, interfaces.ErrNoInput)

	_, err = Load(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Revenue rose. Costs fell!\nWhy? Because  ")
	assert.Equal(t, []string{"Revenue rose.", "Costs fell!", "Why?", "Because"}, got)
	assert.Empty(t, SplitSentences("   "))
}

func TestExtractGoodBadPoints(t *testing.T) {
	text := "Revenue growth was strong. A material weakness was found. " +
		"Record profits despite litigation. The office moved."
	good, bad := ExtractGoodBadPoints(text)
	assert.Equal(t, []string{"Revenue growth was strong."}, good)
	assert.Equal(t, []string{"A material weakness was found.", "Record profits despite litigation."}, bad)

	many := strings.Repeat("Strong growth. ", 30) + strings.Repeat("A loss. ", 30)
	good, bad = ExtractGoodBadPoints(many)
	assert.Len(t, good, MaxPoints)
	assert.Len(t, bad, MaxPoints)
}
