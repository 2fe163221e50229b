// Package retrieve ranks corpus pages against a user query by keyword
// occurrence counts.
package retrieve

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/telco-assist/internal/model"
)

// MatchMode selects how query words are counted in page text.
type MatchMode string

const (
	// MatchSubstring counts every occurrence of the word inside the text,
	// including inside longer words ("cost" matches "costs").
	MatchSubstring MatchMode = "substring"
	// MatchWord counts only whole tokens equal to the word.
	MatchWord MatchMode = "word"
)

// ParseMatchMode maps a config value onto a MatchMode. Empty means substring.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(s)) {
	case MatchSubstring, "":
		return MatchSubstring, nil
	case MatchWord:
		return MatchWord, nil
	default:
		return "", eris.Errorf("retrieve: unknown match mode %q", s)
	}
}

// Score returns how many times the words of query occur in rec. Repeated
// query words are counted once per repetition.
func Score(query string, rec model.PageRecord, mode MatchMode) int {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return 0
	}

	text := strings.ToLower(rec.Text)
	if len(rec.OCRImages) > 0 {
		text += " " + strings.ToLower(rec.OCRText())
	}

	if mode == MatchWord {
		return countTokens(words, text)
	}

	score := 0
	for _, w := range words {
		score += strings.Count(text, w)
	}
	return score
}

func countTokens(words []string, text string) int {
	freq := make(map[string]int)
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		freq[tok]++
	}
	score := 0
	for _, w := range words {
		score += freq[w]
	}
	return score
}
