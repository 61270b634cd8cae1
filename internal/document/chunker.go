package document

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"report-analyzer/pkg/interfaces"
)

// DefaultMaxChunkChars bounds a chunk when the caller passes a non-positive size.
const DefaultMaxChunkChars = 3000

type span struct {
	content   string
	startLine int
}

// ChunkText splits text on line boundaries. Lines are appended while the chunk stays within maxChars
// characters (newline included); a single longer line becomes its own chunk. Blank chunks are dropped.
func ChunkText(text string, maxChars int, source string) []interfaces.Chunk {
	chunks := make([]interfaces.Chunk, 0)
	for _, sp := range splitLines(text, maxChars) {
		chunks = append(chunks, newChunk(len(chunks), sp, source))
	}
	return chunks
}

// ChunkDocuments chunks every document with ids numbered across the whole set. A chunk whose own
// text names no section inherits the section of the closest heading above it.
func ChunkDocuments(docs []interfaces.Document, maxChars int) []interfaces.Chunk {
	chunks := make([]interfaces.Chunk, 0)
	for _, doc := range docs {
		for _, sp := range splitLines(doc.Text, maxChars) {
			chunk := newChunk(len(chunks), sp, doc.Source)
			if h, ok := headingAbove(doc.Headings, sp.startLine); ok {
				chunk.Meta["heading"] = h.Text
				if chunk.SectionHint == nil {
					chunk.SectionHint = GuessSection(h.Text)
				}
			}
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

func newChunk(index int, sp span, source string) interfaces.Chunk {
	if source == "" {
		source = "unknown"
	}
	return interfaces.Chunk{
		ID:          fmt.Sprintf("chunk_%d", index),
		Index:       index,
		SectionHint: GuessSection(sp.content),
		Content:     sp.content,
		Meta: map[string]any{
			"source":     source,
			"start_line": sp.startLine,
		},
	}
}

func splitLines(text string, maxChars int) []span {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}

	var (
		spans      []span
		current    []string
		currentLen int
		start      int
	)
	flush := func() {
		content := strings.Join(current, "\n")
		if strings.TrimSpace(content) != "" {
			spans = append(spans, span{content: content, startLine: start})
		}
		current = current[:0]
		currentLen = 0
	}

	for i, line := range strings.Split(text, "\n") {
		lineLen := utf8.RuneCountInString(line) + 1
		if currentLen+lineLen > maxChars && len(current) > 0 {
			flush()
		}
		if len(current) == 0 {
			start = i
		}
		current = append(current, line)
		currentLen += lineLen
	}
	if len(current) > 0 {
		flush()
	}
	return spans
}

func headingAbove(headings []interfaces.Heading, line int) (interfaces.Heading, bool) {
	var (
		found interfaces.Heading
		ok    bool
	)
	for _, h := range headings {
		if h.Line > line {
			break
		}
		if GuessSection(h.Text) != nil || !ok {
			found, ok = h, true
		}
	}
	return found, ok
}
