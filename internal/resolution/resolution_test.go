package resolution_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/positivef/udo-sync/internal/domain"
	"github.com/positivef/udo-sync/internal/resolution"
)

func TestExtractKind(t *testing.T) {
	cases := map[string]string{
		"ModuleNotFoundError: No module named 'pandas'": "ModuleNotFoundError",
		"PermissionError denied":                         "PermissionError",
		"401 Unauthorized":                               "HTTP-401",
	}
	for in, want := range cases {
		require.Equal(t, want, resolution.ExtractKind(in))
	}
}

type fakeSearcher struct {
	results []domain.SearchResult
}

func (f *fakeSearcher) SearchTier12(query, errorType string, maxResults int, minScore float64) ([]domain.SearchResult, error) {
	return f.results, nil
}

type fakeNotes struct {
	body string
}

func (f *fakeNotes) ReadNote(path string) (domain.FrontMatter, string, error) {
	return nil, f.body, nil
}

func TestResolveExtractsSolutionSection(t *testing.T) {
	searcher := &fakeSearcher{results: []domain.SearchResult{{DocumentPath: "note.md", RelevanceScore: 20}}}
	notes := &fakeNotes{body: "error: ModuleNotFoundError: No module named 'pandas'\n\n## Solution\n\npip install pandas"}

	cache := resolution.New(resolution.Options{Search: searcher, Notes: notes})
	solution, ok, err := cache.Resolve("ModuleNotFoundError: No module named 'pandas'")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "pip install pandas", solution)
}

func TestResolveNoMatch(t *testing.T) {
	searcher := &fakeSearcher{}
	cache := resolution.New(resolution.Options{Search: searcher, Notes: &fakeNotes{}})
	_, ok, err := cache.Resolve("anything")
	require.NoError(t, err)
	require.False(t, ok)
}
