package search

import "strings"

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {},
	"how": {}, "what": {}, "when": {}, "where": {}, "why": {}, "which": {},
}

const trimSet = ".,;:!?\"'()[]{}"

// ExtractKeywords lowercases query, splits on whitespace, strips edge
// punctuation, and discards stop words and tokens shorter than 3 runes.
func ExtractKeywords(query string) []string {
	var out []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, trimSet)
		if word == "" {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		if len([]rune(word)) < 3 {
			continue
		}
		out = append(out, word)
	}
	return out
}

// NormalizeErrorKeyword strips a trailing "Error"/"error" suffix used by
// Tier 1 filename matching.
func NormalizeErrorKeyword(keyword string) string {
	keyword = strings.TrimSuffix(keyword, "Error")
	keyword = strings.TrimSuffix(keyword, "error")
	return keyword
}
