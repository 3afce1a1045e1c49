// Package resolution implements the past-solution cache (C6): a Tier-1 +
// Tier-2 specialization of the search engine keyed by an error "kind"
// extracted from a raw error string.
package resolution

import (
	"regexp"
	"strings"

	"github.com/positivef/udo-sync/internal/domain"
)

// DefaultMinScore is the relevance floor below which resolve_error_tier1
// reports no match.
const DefaultMinScore = 5.0

var httpStatusPattern = regexp.MustCompile(`^\d{3}$`)

// Searcher is the subset of the search engine's surface this package needs.
// Resolution scopes lookups to tier1+tier2 per spec.md §4.6, so it calls
// SearchTier12 rather than the full tier1+tier2+tier3 Search.
type Searcher interface {
	SearchTier12(query, errorType string, maxResults int, minScore float64) ([]domain.SearchResult, error)
}

// NoteReader reads a note's frontmatter and body by path, as a
// *vault.Store does.
type NoteReader interface {
	ReadNote(path string) (domain.FrontMatter, string, error)
}

// Sink accepts a derived error_resolution event, as a *queue.Queue does.
type Sink interface {
	SyncEvent(eventType string, data domain.EventData) error
}

// Cache is the C6 error-resolution lookup.
type Cache struct {
	search   Searcher
	notes    NoteReader
	sink     Sink
	minScore float64
}

// Options configures a new Cache.
type Options struct {
	Search   Searcher
	Notes    NoteReader
	Sink     Sink
	MinScore float64 // defaults to DefaultMinScore
}

// New constructs a Cache per Options.
func New(opts Options) *Cache {
	minScore := opts.MinScore
	if minScore == 0 {
		minScore = DefaultMinScore
	}
	return &Cache{search: opts.Search, notes: opts.Notes, sink: opts.Sink, minScore: minScore}
}

// ExtractKind derives an error "kind" from a raw error string: the word
// before the first ':' if one exists, else the first whitespace-delimited
// token; a bare three-digit token is rendered as "HTTP-<code>".
func ExtractKind(errText string) string {
	errText = strings.TrimSpace(errText)
	if errText == "" {
		return ""
	}

	var token string
	if idx := strings.Index(errText, ":"); idx >= 0 {
		token = strings.TrimSpace(errText[:idx])
	} else {
		fields := strings.Fields(errText)
		if len(fields) == 0 {
			return ""
		}
		token = fields[0]
	}

	if httpStatusPattern.MatchString(token) {
		return "HTTP-" + token
	}
	return token
}

// Resolve looks up a solution for a raw error string via Tier-1 + Tier-2
// search scoped to the error's extracted kind. Returns ("", false) if no
// result clears MinScore or the top note has no Solution section.
func (c *Cache) Resolve(errText string) (string, bool, error) {
	kind := ExtractKind(errText)
	remainder := remainderAfterKind(errText, kind)

	results, err := c.search.SearchTier12(remainder, kind, 1, c.minScore)
	if err != nil {
		return "", false, err
	}
	if len(results) == 0 {
		return "", false, nil
	}

	_, body, err := c.notes.ReadNote(results[0].DocumentPath)
	if err != nil {
		return "", false, err
	}

	solution, ok := extractSolution(body)
	return solution, ok, nil
}

func remainderAfterKind(errText, kind string) string {
	if idx := strings.Index(errText, ":"); idx >= 0 && strings.TrimSpace(errText[:idx]) == kind {
		return strings.TrimSpace(errText[idx+1:])
	}
	return strings.TrimPrefix(strings.TrimSpace(errText), kind)
}

// extractSolution pulls the body text following a "## Solution" heading.
func extractSolution(body string) (string, bool) {
	const marker = "## Solution"
	idx := strings.Index(body, marker)
	if idx < 0 {
		return "", false
	}
	rest := body[idx+len(marker):]
	rest = strings.TrimLeft(rest, "\n")
	if next := strings.Index(rest, "\n## "); next >= 0 {
		rest = rest[:next]
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", false
	}
	return rest, true
}

// Save enqueues an error_resolution event so a future flush persists a note
// carrying error_type = kind and a Solution section, making it reachable by
// a subsequent Resolve.
func (c *Cache) Save(errText, solution, context string) error {
	kind := ExtractKind(errText)
	return c.sink.SyncEvent(domain.EventErrorResolution, domain.ErrorResolutionData{
		Error:    errText,
		Solution: solution,
		Context:  context,
		Kind:     kind,
	})
}
