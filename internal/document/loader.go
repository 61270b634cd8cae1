// Package document loads parsed annual reports and splits them into chunks.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"report-analyzer/pkg/interfaces"
)

// SupportedExtensions are the parsed-report formats Load accepts.
var SupportedExtensions = map[string]string{
	".md":       "markdown",
	".markdown": "markdown",
	".json":     "json",
	".txt":      "text",
}

// IsSupported reports whether path has a loadable extension.
func IsSupported(path string) bool {
	_, ok := SupportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Load reads a single document or every supported document in a directory, in lexical order.
func Load(path string) ([]interfaces.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input: %w", err)
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !IsSupported(entry.Name()) {
				continue
			}
			files = append(files, filepath.Join(path, entry.Name()))
		}
		sort.Strings(files)
	} else {
		if !IsSupported(path) {
			return nil, fmt.Errorf("unsupported document format: %s", filepath.Ext(path))
		}
		files = []string{path}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNoInput, path)
	}

	docs := make([]interfaces.Document, 0, len(files))
	for _, file := range files {
		doc, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: every document under %s is empty", interfaces.ErrNoInput, path)
	}
	return docs, nil
}

// LoadFile reads and normalizes one document.
func LoadFile(path string) (interfaces.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return interfaces.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	format := SupportedExtensions[strings.ToLower(filepath.Ext(path))]
	doc := interfaces.Document{Source: path, Format: format}

	switch format {
	case "markdown":
		doc.Text, doc.Headings = MarkdownText(data)
	case "json":
		doc.Text, err = JSONText(data)
		if err != nil {
			return interfaces.Document{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		doc.Text = normalizeNewlines(string(data))
	}
	return doc, nil
}

// MarkdownText returns the markdown source with normalized newlines and the headings it contains.
// Headings stay in the text so the chunker and section guesser see them.
func MarkdownText(src []byte) (string, []interfaces.Heading) {
	source := []byte(normalizeNewlines(string(src)))

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var headings []interfaces.Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}

		line := 0
		if lines := heading.Lines(); lines.Len() > 0 {
			line = bytes.Count(source[:lines.At(0).Start], []byte("\n"))
		}
		headings = append(headings, interfaces.Heading{
			Level: heading.Level,
			Text:  strings.TrimSpace(inlineText(heading, source)),
			Line:  line,
		})
		return ast.WalkSkipChildren, nil
	})

	return string(source), headings
}

func inlineText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

// JSONText flattens a JSON document into one line per string value, visiting object keys in sorted order.
func JSONText(data []byte) (string, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	var lines []string
	flatten(v, &lines)
	return strings.Join(lines, "\n"), nil
}

func flatten(v any, lines *[]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flatten(t[k], lines)
		}
	case []any:
		for _, item := range t {
			flatten(item, lines)
		}
	case string:
		for _, line := range strings.Split(normalizeNewlines(t), "\n") {
			if strings.TrimSpace(line) != "" {
				*lines = append(*lines, line)
			}
		}
	}
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
