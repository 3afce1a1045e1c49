// Package search implements the three-tier retrieval pipeline: filename
// pattern matching, frontmatter predicate matching, and full-text content
// search, aggregated into a single weighted relevance score per document.
package search

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"github.com/positivef/udo-sync/internal/domain"
	"github.com/positivef/udo-sync/internal/metrics"
	"github.com/positivef/udo-sync/internal/vault"
)

// UsefulnessLookup resolves a document's aggregated feedback score, in
// [-5, 5]. The search core has no feedback ingest path (spec open
// question); callers inject one, defaulting to DefaultUsefulness when
// absent.
type UsefulnessLookup func(documentID string) float64

// DefaultUsefulness always returns 0, used when no lookup is injected.
func DefaultUsefulness(string) float64 { return 0 }

// filenameIndexSize and bodyBloomSize bound the two auxiliary caches: a
// count-based LRU memoizing Tier 1 filename matches per normalized keyword,
// and an LRU of per-note bloom filters used to skip a full substring scan
// of notes that provably do not contain any query token.
const (
	filenameIndexSize = 2048
	bodyBloomSize     = 4096
	bloomFPRate       = 0.01
)

// Engine runs the three-tier search pipeline against a vault Store.
type Engine struct {
	store      *vault.Store
	usefulness UsefulnessLookup
	now        func() time.Time

	filenameIdx *lru.Cache[string, []string]
	bodyBloom   *lru.Cache[string, *bitsbloom.BloomFilter]
	metrics     *metrics.Registry
}

// Options configures a new Engine.
type Options struct {
	Store      *vault.Store
	Usefulness UsefulnessLookup
	Now        func() time.Time
	// Metrics receives per-tier latency and result-count observations. A
	// nil Registry (the default) is a no-op.
	Metrics *metrics.Registry
}

// New constructs an Engine per Options.
func New(opts Options) *Engine {
	usefulness := opts.Usefulness
	if usefulness == nil {
		usefulness = DefaultUsefulness
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	filenameIdx, _ := lru.New[string, []string](filenameIndexSize)
	bodyBloom, _ := lru.New[string, *bitsbloom.BloomFilter](bodyBloomSize)
	return &Engine{
		store:       opts.Store,
		usefulness:  usefulness,
		now:         now,
		filenameIdx: filenameIdx,
		bodyBloom:   bodyBloom,
		metrics:     opts.Metrics,
	}
}

// tierScores accumulates per-document contributions across tiers before the
// final relevance score is computed.
type tierScores struct {
	tier1, tier2, tier3 float64
	snippet             string
	dateDir             string
}

// Search runs the full tier1+tier2+tier3 pipeline, filters by minScore,
// sorts descending by relevance, and returns at most maxResults.
func (e *Engine) Search(query string, errorType string, maxResults int, minScore float64) ([]domain.SearchResult, error) {
	return e.search(query, errorType, maxResults, minScore, true)
}

// SearchTier12 runs only the filename (tier 1) and frontmatter (tier 2)
// stages, skipping the content scan. This is the search_knowledge engine's
// specialization the past-solution cache (C6) uses per spec.md §4.6, which
// restricts error resolution lookups to tier1+tier2.
func (e *Engine) SearchTier12(query string, errorType string, maxResults int, minScore float64) ([]domain.SearchResult, error) {
	return e.search(query, errorType, maxResults, minScore, false)
}

func (e *Engine) search(query string, errorType string, maxResults int, minScore float64, withTier3 bool) ([]domain.SearchResult, error) {
	if e.store == nil || !e.store.Available() {
		return nil, nil
	}
	notes, err := e.store.AllNotes()
	if err != nil {
		return nil, err
	}

	keywords := ExtractKeywords(query)
	scores := make(map[string]*tierScores)

	// Tier 1 filenames embed the error type itself (Debug-{Error}-*.md), so
	// its keyword set folds in errorType alongside the query's — a lookup
	// scoped entirely by error type with no further query text must still
	// be able to hit a filename pattern built from that type alone.
	tier1Keywords := keywords
	if errorType != "" {
		tier1Keywords = append(append([]string{}, keywords...), ExtractKeywords(errorType)...)
	}

	t1 := e.now()
	e.tier1Filenames(tier1Keywords, notes, scores)
	t2 := e.now()
	e.tier2Frontmatter(keywords, errorType, notes, scores)
	t3 := e.now()
	if withTier3 {
		e.tier3Content(query, keywords, notes, scores)
	}
	t4 := e.now()

	results := e.rank(scores, maxResults, minScore)
	e.metrics.ObserveSearch(t2.Sub(t1).Seconds(), t3.Sub(t2).Seconds(), t4.Sub(t3).Seconds(), len(results))
	return results, nil
}

// tier1Filenames matches lowercased note filenames against
// *debug-<normalized keyword>-*.md, contributing weight 10 per keyword match.
func (e *Engine) tier1Filenames(keywords []string, notes []vault.NoteRecord, scores map[string]*tierScores) {
	for _, kw := range keywords {
		normalized := NormalizeErrorKeyword(kw)
		if len(normalized) < 3 {
			continue
		}
		paths, ok := e.filenameIdx.Get(normalized)
		if !ok {
			paths = matchFilenames(normalized, notes)
			e.filenameIdx.Add(normalized, paths)
		}
		for _, p := range paths {
			entryFor(scores, p, notes).tier1 += domain.Tier1Weight
		}
	}
}

func matchFilenames(normalized string, notes []vault.NoteRecord) []string {
	pattern := "*debug-" + strings.ToLower(normalized) + "-*.md"
	var out []string
	for _, n := range notes {
		base := strings.ToLower(filepath.Base(n.Path))
		if ok, _ := filepath.Match(pattern, base); ok {
			out = append(out, n.Path)
		}
	}
	return out
}

// tier2Frontmatter evaluates the predicate language over each note's
// frontmatter, contributing weight 5 once per matching note (any keyword
// matching a tag or the error_category, or errorType alone with no keywords).
func (e *Engine) tier2Frontmatter(keywords []string, errorType string, notes []vault.NoteRecord, scores map[string]*tierScores) {
	for _, n := range notes {
		if errorType != "" && !strings.EqualFold(n.FrontMatter.GetString("error_type"), errorType) {
			continue
		}
		tags := n.FrontMatter.GetList("tags")
		category := n.FrontMatter.GetString("error_category")
		matched := false
		for _, kw := range keywords {
			if containsFold(tags, kw) || strings.EqualFold(category, kw) {
				matched = true
				break
			}
		}
		if errorType != "" && len(keywords) == 0 {
			matched = true // error_type alone is a sufficient predicate
		}
		if matched {
			entryFor(scores, n.Path, notes).tier2 += domain.Tier2Weight
		}
	}
}

func containsFold(list []string, target string) bool {
	for _, v := range list {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

// tier3Content substring-searches note bodies for the query or its
// keywords, scaling the base weight by match count and capturing a
// snippet. A per-note bloom filter over body tokens short-circuits notes
// that provably contain none of the search tokens.
func (e *Engine) tier3Content(query string, keywords []string, notes []vault.NoteRecord, scores map[string]*tierScores) {
	needles := searchTerms(query, keywords)
	if len(needles) == 0 {
		return
	}
	for _, n := range notes {
		filter := e.bloomFor(n)
		possible := false
		for _, needle := range needles {
			if filter.TestString(needle) {
				possible = true
				break
			}
		}
		if !possible {
			continue
		}

		lowerBody := strings.ToLower(n.Body)
		matchCount := 0
		var firstIdx = -1
		for _, needle := range needles {
			c := strings.Count(lowerBody, needle)
			matchCount += c
			if c > 0 && firstIdx < 0 {
				firstIdx = strings.Index(lowerBody, needle)
			}
		}
		if matchCount == 0 {
			continue
		}

		s := entryFor(scores, n.Path, notes)
		s.tier3 += 1 + 0.1*float64(matchCount)
		if s.snippet == "" {
			s.snippet = snippetAround(n.Body, firstIdx)
		}
	}
}

func searchTerms(query string, keywords []string) []string {
	var out []string
	q := strings.ToLower(strings.TrimSpace(query))
	if q != "" {
		out = append(out, q)
	}
	out = append(out, keywords...)
	return out
}

func snippetAround(body string, idx int) string {
	if idx < 0 {
		if len(body) > 200 {
			return body[:200]
		}
		return body
	}
	start := idx - 50
	if start < 0 {
		start = 0
	}
	end := start + 200
	if end > len(body) {
		end = len(body)
	}
	return body[start:end]
}

// bloomFor returns the cached per-note bloom filter over lowercased
// whitespace-split body tokens, building and caching it on first use.
func (e *Engine) bloomFor(n vault.NoteRecord) *bitsbloom.BloomFilter {
	if f, ok := e.bodyBloom.Get(n.Path); ok {
		return f
	}
	tokens := strings.Fields(strings.ToLower(n.Body))
	capacity := uint(len(tokens))
	if capacity == 0 {
		capacity = 1
	}
	f := bitsbloom.NewWithEstimates(capacity, bloomFPRate)
	for _, t := range tokens {
		f.AddString(t)
	}
	// A token-level filter misses substrings spanning multiple tokens or
	// punctuation-joined phrases; also index the raw lowercased body as a
	// single entry so multi-word needles still pass the prefilter.
	f.AddString(strings.ToLower(n.Body))
	e.bodyBloom.Add(n.Path, f)
	return f
}

func entryFor(scores map[string]*tierScores, path string, notes []vault.NoteRecord) *tierScores {
	s, ok := scores[path]
	if !ok {
		s = &tierScores{dateDir: dateDirFor(path, notes)}
		scores[path] = s
	}
	return s
}

func dateDirFor(path string, notes []vault.NoteRecord) string {
	for _, n := range notes {
		if n.Path == path {
			return n.DateDir
		}
	}
	return ""
}

// rank computes freshness and usefulness contributions, applies minScore,
// sorts descending by relevance, and truncates to maxResults.
func (e *Engine) rank(scores map[string]*tierScores, maxResults int, minScore float64) []domain.SearchResult {
	now := e.now()
	var out []domain.SearchResult
	for path, s := range scores {
		freshnessDays := freshnessDaysFor(s.dateDir, now)
		freshness := domain.FreshnessBonus(freshnessDays)
		docID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()
		usefulness := e.usefulness(docID)
		relevance := domain.ComputeRelevance(s.tier1, s.tier2, s.tier3, freshness, usefulness)
		if relevance < minScore {
			continue
		}
		out = append(out, domain.SearchResult{
			DocumentID:      docID,
			DocumentPath:    path,
			Tier1Score:      s.tier1,
			Tier2Score:      s.tier2,
			Tier3Score:      s.tier3,
			FreshnessBonus:  freshness,
			UsefulnessScore: usefulness,
			RelevanceScore:  relevance,
			Snippet:         s.snippet,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RelevanceScore > out[j].RelevanceScore })

	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

func freshnessDaysFor(dateDir string, now time.Time) float64 {
	if dateDir == "" {
		return 9999
	}
	d, err := time.Parse("2006-01-02", dateDir)
	if err != nil {
		return 9999
	}
	return now.Sub(d).Hours() / 24
}
