package document

import "strings"

// MaxPoints caps each side of ExtractGoodBadPoints.
const MaxPoints = 20

var goodKeywords = []string{
	"growth", "increase", "improved", "record", "strong", "profitable", "resilient",
	"positive", "expansion", "innovation", "opportunity", "beat", "exceeded", "surpassed",
}

var badKeywords = []string{
	"decline", "decrease", "loss", "risk", "fraud", "weakness", "material weakness",
	"litigation", "inquiry", "investigation", "non-compliance", "violation", "breach",
	"impairment", "downgrade",
}

// SplitSentences breaks text after '.', '!', '?' and newlines, dropping blank pieces.
func SplitSentences(text string) []string {
	var (
		parts []string
		buf   strings.Builder
	)
	for _, r := range text {
		buf.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(buf.String()); s != "" {
				parts = append(parts, s)
			}
			buf.Reset()
		}
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		parts = append(parts, s)
	}
	return parts
}

// ExtractGoodBadPoints sorts sentences into achievements and concerns. A sentence with both kinds of
// keyword counts as a concern.
func ExtractGoodBadPoints(text string) (good, bad []string) {
	good, bad = []string{}, []string{}
	for _, s := range SplitSentences(text) {
		lower := strings.ToLower(s)
		goodHit := containsAny(lower, goodKeywords)
		badHit := containsAny(lower, badKeywords)
		switch {
		case badHit:
			if len(bad) < MaxPoints {
				bad = append(bad, s)
			}
		case goodHit:
			if len(good) < MaxPoints {
				good = append(good, s)
			}
		}
	}
	return good, bad
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
