// Package abbrev implements the abbreviation matcher (component C4):
// scoring a short query against a candidate path using four strategies of
// descending priority. This scoring scheme is original to this module —
// go-edlib (used elsewhere in this repo for Fuzzy-mode distance scoring) has
// no notion of path components or camel-case boundaries — but it follows
// the teacher's pattern of a thin, single-purpose scorer package, the way
// internal/semantic/fuzzy_matcher.go wraps edlib for its own narrow need.
package abbrev

import (
	"strings"
	"unicode"
)

// Strategy identifies which of the four matching rules produced a result.
type Strategy int

const (
	ExactPrefix Strategy = iota
	ComponentFirst
	CamelCase
	Sequential
)

func (s Strategy) String() string {
	switch s {
	case ExactPrefix:
		return "ExactPrefix"
	case ComponentFirst:
		return "ComponentFirst"
	case CamelCase:
		return "CamelCase"
	case Sequential:
		return "Sequential"
	default:
		return "Unknown"
	}
}

// Result is a successful match: which strategy fired, its clamped score,
// and the byte offsets within path that the query characters matched.
type Result struct {
	Strategy  Strategy
	Score     float64
	Positions []int
}

// componentSeparators delimits ComponentFirst's path components: actual
// directory boundaries and word-joining hyphens/underscores. It
// deliberately excludes '.', so a bare "name.ext" file is one component
// for ComponentFirst purposes — the dot boundary belongs to CamelCase,
// which is how "CT" against "Cargo.toml" resolves to CamelCase rather
// than a same-scoring ComponentFirst hit on "Cargo"/"toml".
const componentSeparators = "/\\-_"

// camelSeparators is the full boundary set CamelCase recognizes, adding
// '.' on top of componentSeparators.
const camelSeparators = "/\\.-_"

func isComponentSeparator(b byte) bool {
	return strings.IndexByte(componentSeparators, b) >= 0
}

func isCamelSeparator(b byte) bool {
	return strings.IndexByte(camelSeparators, b) >= 0
}

// Match scores query against path, trying strategies in priority order.
// The first strategy to succeed produces the result; no later strategy is
// consulted. The shared tie-break modifiers are applied and the score is
// clamped to [0,1] before returning. Returns false if no strategy matches.
func Match(query, path string) (Result, bool) {
	if query == "" || path == "" {
		return Result{}, false
	}
	r, ok := matchExactPrefix(query, path)
	if !ok {
		r, ok = matchComponentFirst(query, path)
	}
	if !ok {
		r, ok = matchCamelCase(query, path)
	}
	if !ok {
		r, ok = matchSequential(query, path)
	}
	if !ok {
		return Result{}, false
	}
	r.Score = applyModifiers(r.Score, query, path, r.Positions)
	return r, true
}

func basename(path string) (name string, start int) {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:], i + 1
	}
	return path, 0
}

func matchExactPrefix(query, path string) (Result, bool) {
	name, start := basename(path)
	if len(query) > len(name) {
		return Result{}, false
	}
	if !strings.EqualFold(name[:len(query)], query) {
		return Result{}, false
	}
	positions := make([]int, len(query))
	for i := range query {
		positions[i] = start + i
	}
	return Result{Strategy: ExactPrefix, Score: 1.0, Positions: positions}, true
}

// componentStarts returns the byte offset of the first character of every
// path component: offset 0, and the offset immediately following every
// separator byte, skipping empty components produced by adjacent
// separators.
func componentStarts(path string) []int {
	starts := []int{0}
	for i := 0; i < len(path); i++ {
		if isComponentSeparator(path[i]) && i+1 < len(path) && !isComponentSeparator(path[i+1]) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func matchComponentFirst(query, path string) (Result, bool) {
	starts := componentStarts(path)
	positions := make([]int, 0, len(query))
	qi := 0
	for _, s := range starts {
		if qi >= len(query) {
			break
		}
		if sameLetterFold(path[s], query[qi]) {
			positions = append(positions, s)
			qi++
		}
	}
	if qi != len(query) {
		return Result{}, false
	}
	return Result{Strategy: ComponentFirst, Score: 0.95, Positions: positions}, true
}

// boundaryLetters returns the unique, sorted byte offsets of every
// "boundary letter": an upper-case letter, or any letter immediately
// following a separator byte.
func boundaryLetters(path string) []int {
	var out []int
	seen := make(map[int]bool)
	add := func(i int) {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	for i := 0; i < len(path); i++ {
		b := path[i]
		if !isLetter(b) {
			continue
		}
		if isUpperByte(b) || i == 0 || isCamelSeparator(path[i-1]) {
			add(i)
		}
	}
	return out
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func sameLetterFold(a, b byte) bool {
	return toLower(a) == toLower(b)
}

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func matchCamelCase(query, path string) (Result, bool) {
	boundaries := boundaryLetters(path)
	positions := make([]int, 0, len(query))
	qi := 0
	caseMismatch := false
	for _, b := range boundaries {
		if qi >= len(query) {
			break
		}
		if sameLetterFold(path[b], query[qi]) {
			if isUpperByte(path[b]) != isUpperByte(query[qi]) {
				caseMismatch = true
			}
			positions = append(positions, b)
			qi++
		}
	}
	if qi != len(query) {
		return Result{}, false
	}
	score := 0.90
	if caseMismatch {
		score -= 0.05
	}
	return Result{Strategy: CamelCase, Score: score, Positions: positions}, true
}

func isUpperByte(b byte) bool {
	return b >= 'A' && b <= 'Z'
}

func matchSequential(query, path string) (Result, bool) {
	positions := make([]int, 0, len(query))
	qi := 0
	for i := 0; i < len(path) && qi < len(query); i++ {
		if sameLetterFold(path[i], query[qi]) {
			positions = append(positions, i)
			qi++
		}
	}
	if qi != len(query) {
		return Result{}, false
	}
	gapSum := 0
	for i := 1; i < len(positions); i++ {
		gapSum += positions[i] - positions[i-1] - 1
	}
	score := 0.70 - 0.01*float64(gapSum)/float64(len(path))
	return Result{Strategy: Sequential, Score: score, Positions: positions}, true
}

func applyModifiers(score float64, query, path string, positions []int) float64 {
	if len(positions) == 0 || len(path) == 0 {
		return clamp(score)
	}
	maxRun := 1
	run := 1
	for i := 1; i < len(positions); i++ {
		if positions[i] == positions[i-1]+1 {
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 1
		}
	}
	score += 0.05 * float64(maxRun) / float64(len(query))

	matchStart := positions[0]
	score += 0.10 * (1 - float64(matchStart)/float64(len(path)))

	if allUpper(query) {
		allUpperAtPositions := true
		for _, p := range positions {
			if !isUpperByte(path[p]) {
				allUpperAtPositions = false
				break
			}
		}
		if allUpperAtPositions {
			score += 0.05
		}
	}
	return clamp(score)
}

func allUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
