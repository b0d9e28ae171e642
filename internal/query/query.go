// Package query implements the query engine (component C5): Smart,
// Exact, and Fuzzy search modes over an index.Reader, abbreviation scoring
// via internal/abbrev, substring scoring for the Exact-mode fallback, and
// the ContextFeatures (scope boost, demote penalty, path depth, mtime) that
// make up the non-Fuzzy sort key. Grounded on the teacher's
// internal/semantic/fuzzy_matcher.go for the go-edlib-backed Fuzzy mode,
// and on internal/core/postings.go for the candidate-set-then-rank shape of
// a search call.
package query

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/lci/internal/abbrev"
	"github.com/standardbeagle/lci/internal/errors"
	"github.com/standardbeagle/lci/internal/index"
	"github.com/standardbeagle/lci/internal/pathmatch"
	"github.com/standardbeagle/lci/internal/trigram"
	"github.com/standardbeagle/lci/internal/types"
)

// Mode selects the matching strategy.
type Mode int

const (
	// ModeSmart tries abbreviation matching first, falling back to
	// substring scoring on the basename.
	ModeSmart Mode = iota
	// ModeExact skips abbreviation matching entirely and scores purely by
	// substring containment.
	ModeExact
	// ModeFuzzy uses a go-edlib similarity scorer and sorts results only
	// by its own score, ignoring ContextFeatures.
	ModeFuzzy
)

// linearScanBailout bounds how many files a short (<3 rune) query will
// scan before giving up, per the worst-case latency note: rather
// than walk the whole index for a query too short to trigram-index, stop
// once this many files have been examined with no match found.
const linearScanBailout = 1000

// shortQueryRunes is the rune-length threshold below which queries bypass
// the trigram index (a query under 3 runes cannot form a single trigram)
// in favor of the bounded linear scan above.
const shortQueryRunes = 3

// abbreviationMaxRunes mirrors the abbreviation matcher's "≤ 8 characters
// typical" note: only queries at or under this length trigger
// the abbreviation fallback scan below.
const abbreviationMaxRunes = 8

// Request is a single search call.
type Request struct {
	Query string
	Limit int
	Scope string // optional path prefix; empty means unscoped
	Mode  Mode
}

// Result is one ranked match.
type Result struct {
	FileID   types.FileID
	Path     string
	Score    float64
	Context  float64
	Strategy string
	Mtime    int64
	Size     uint64
	depth    int
}

// Weights carries the ContextFeatures coefficients, sourced from
// config.Config.
type Weights struct {
	ScopeBoost    float64
	DemotePenalty float64
	DepthWeight   float64
	DemotePaths   []string
}

// Engine answers search requests against a single index.Reader.
type Engine struct {
	reader  index.Reader
	weights Weights
}

// New builds an Engine over reader using weights for ContextFeatures.
func New(reader index.Reader, weights Weights) *Engine {
	return &Engine{reader: reader, weights: weights}
}

// Search executes req and returns at most req.Limit results, ranked
// according to req.Mode. An empty query returns an empty slice, not an
// error.
func (e *Engine) Search(req Request) ([]Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	var results []Result
	if req.Mode == ModeFuzzy {
		results = e.searchFuzzy(query, limit)
		return e.truncate(results, limit), nil
	}

	candidates, err := e.candidates(query)
	if err != nil {
		return nil, err
	}
	// Trigram candidate generation only ever admits files whose basename
	// literally contains the query as a substring (the trigram index's
	// query contract). An abbreviation query by construction usually does not
	// appear as a contiguous substring of anything, so a query short
	// enough to plausibly be an abbreviation that produced zero
	// candidates this way falls back to a bounded abbreviation-only scan
	// before giving up.
	if len(candidates) == 0 && req.Mode == ModeSmart && len([]rune(query)) <= abbreviationMaxRunes {
		candidates = e.abbreviationFallbackScan(query)
	}

	for _, id := range candidates {
		meta, ok := e.reader.Get(id)
		if !ok || meta.Tombstoned {
			continue
		}
		path, err := e.reader.Resolve(meta.Path)
		if err != nil {
			continue
		}
		name, err := e.reader.Resolve(meta.Name)
		if err != nil {
			continue
		}
		score, strategy, ok := e.matchScore(req.Mode, query, path, name)
		if !ok {
			continue
		}
		ctx, depth := e.contextScore(path, req.Scope)
		results = append(results, Result{
			FileID:   id,
			Path:     path,
			Score:    score,
			Context:  ctx,
			Strategy: strategy,
			Mtime:    meta.Mtime,
			Size:     meta.Size,
			depth:    depth,
		})
	}

	sortRanked(results)
	return e.truncate(results, limit), nil
}

// candidates returns the FileIds worth scoring: either the trigram
// intersection for queries long enough to extract a trigram, or a
// bounded linear scan over every live record for shorter queries.
func (e *Engine) candidates(query string) ([]types.FileID, error) {
	if len([]rune(query)) < shortQueryRunes {
		return e.linearScanCandidates(query), nil
	}
	trigrams := trigram.Extract(strings.ToLower(query))
	if len(trigrams) == 0 {
		return e.linearScanCandidates(query), nil
	}
	return e.materializeCandidates(trigrams)
}

// materializeCandidates guards the posting-list intersection: a panic
// here (observed in practice only as an out-of-memory allocation failure
// assembling a huge materialized posting list) is reported as
// ResourceExhausted rather than crashing the resident process.
func (e *Engine) materializeCandidates(trigrams []types.Trigram) (ids []types.FileID, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.ResourceExhausted("query.candidates", nil)
		}
	}()
	return e.reader.Candidates(trigrams), nil
}

// abbreviationFallbackScan scans up to linearScanBailout live records,
// collecting ids whose full path scores under abbrev.Match against query.
// Used only when strict trigram filtering found nothing for a short
// enough query to plausibly be an abbreviation.
func (e *Engine) abbreviationFallbackScan(query string) []types.FileID {
	var out []types.FileID
	scanned := 0
	e.reader.IterLive(func(id types.FileID, meta *types.FileMeta) bool {
		scanned++
		path, err := e.reader.Resolve(meta.Path)
		if err == nil {
			if _, ok := abbrev.Match(query, path); ok {
				out = append(out, id)
			}
		}
		return scanned < linearScanBailout
	})
	return out
}

func (e *Engine) linearScanCandidates(query string) []types.FileID {
	lowerQuery := strings.ToLower(query)
	var out []types.FileID
	scanned := 0
	e.reader.IterLive(func(id types.FileID, meta *types.FileMeta) bool {
		scanned++
		name, err := e.reader.Resolve(meta.Name)
		if err == nil && strings.Contains(strings.ToLower(name), lowerQuery) {
			out = append(out, id)
		}
		if scanned >= linearScanBailout && len(out) == 0 {
			return false
		}
		return true
	})
	return out
}

// matchScore computes a match score for path/name against query under
// mode. Smart mode tries abbreviation matching first; Exact mode skips
// straight to substring scoring.
func (e *Engine) matchScore(mode Mode, query, path, name string) (float64, string, bool) {
	if mode == ModeSmart {
		if r, ok := abbrev.Match(query, path); ok {
			return r.Score, r.Strategy.String(), true
		}
	}
	return substringScore(query, name)
}

// substringScore scores a query against a basename by containment class:
// exact match, prefix, word-boundary-bounded contains, or bare contains.
// Anything else is rejected (not a match).
func substringScore(query, name string) (float64, string, bool) {
	q := strings.ToLower(query)
	n := strings.ToLower(name)

	switch {
	case n == q:
		return 1.0, "exact", true
	case strings.HasPrefix(n, q):
		frac := float64(len(q)) / float64(len(n))
		score := 0.90 + 0.09*frac
		if score > 0.99 {
			score = 0.99
		}
		return score, "prefix", true
	case containsAtWordBoundary(n, q):
		return 0.7, "word-boundary", true
	case strings.Contains(n, q):
		return 0.5, "contains", true
	default:
		return 0, "", false
	}
}

func containsAtWordBoundary(name, query string) bool {
	idx := strings.Index(name, query)
	for idx >= 0 {
		before := idx == 0 || isWordBoundary(name[idx-1])
		after := idx+len(query) == len(name) || isWordBoundary(name[idx+len(query)])
		if before && after {
			return true
		}
		next := strings.Index(name[idx+1:], query)
		if next < 0 {
			break
		}
		idx = idx + 1 + next
	}
	return false
}

func isWordBoundary(b byte) bool {
	return b == '.' || b == '-' || b == '_' || b == '/' || b == '\\' || b == ' '
}

// contextScore computes ContextFeatures' scalar for path under scope: a
// positive scope boost (the shallower relative to scope, the larger),
// scaled down by overall depth, minus a demote penalty when path matches
// one of the configured demote patterns.
func (e *Engine) contextScore(path, scope string) (score float64, depth int) {
	clean := filepath.ToSlash(path)
	depth = strings.Count(strings.Trim(clean, "/"), "/")

	if scope != "" && withinScope(clean, filepath.ToSlash(scope)) {
		rel := strings.TrimPrefix(strings.TrimPrefix(clean, filepath.ToSlash(scope)), "/")
		relDepth := strings.Count(rel, "/")
		score += e.weights.ScopeBoost / float64(1+relDepth)
	}
	if pathmatch.MatchesAny(clean, e.weights.DemotePaths) {
		score -= e.weights.DemotePenalty
	}
	score -= e.weights.DepthWeight * float64(depth)
	return score, depth
}

func withinScope(path, scope string) bool {
	if scope == "" {
		return false
	}
	if path == scope {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(scope, "/")+"/")
}

// searchFuzzy scores every live record's basename against query using
// go-edlib's Jaro-Winkler similarity and sorts purely by that score,
// bypassing trigram candidate generation and ContextFeatures entirely
// only by its own score, never by ContextFeatures.
func (e *Engine) searchFuzzy(query string, limit int) []Result {
	var results []Result
	e.reader.IterLive(func(id types.FileID, meta *types.FileMeta) bool {
		name, err := e.reader.Resolve(meta.Name)
		if err != nil {
			return true
		}
		sim, err := edlib.StringsSimilarity(strings.ToLower(query), strings.ToLower(name), edlib.JaroWinkler)
		if err != nil {
			return true
		}
		if float64(sim) <= 0 {
			return true
		}
		path, err := e.reader.Resolve(meta.Path)
		if err != nil {
			return true
		}
		results = append(results, Result{
			FileID:   id,
			Path:     path,
			Score:    float64(sim),
			Strategy: "fuzzy",
			Mtime:    meta.Mtime,
			Size:     meta.Size,
		})
		return true
	})
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// sortRanked orders by the exact sort key: match score,
// then context score, then mtime, all descending, then path depth
// ascending (shallower first), then path ascending for a fully
// deterministic tie-break.
func sortRanked(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Context != b.Context {
			return a.Context > b.Context
		}
		if a.Mtime != b.Mtime {
			return a.Mtime > b.Mtime
		}
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		return a.Path < b.Path
	})
}

func (e *Engine) truncate(results []Result, limit int) []Result {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}
