// Package pathmatch implements the component-based (never substring)
// exclusion/demotion matching the scanner requires, reused by the query
// engine's context features for demote_paths:
// a pattern matches a path only if it matches one of the path's
// slash-separated components or a contiguous run of them, never an arbitrary
// substring. Grounded on the teacher's internal/config/gitignore.go, which
// does the same component-aware matching for its own exclusion list, using
// github.com/bmatcuk/doublestar/v4 for the glob semantics.
package pathmatch

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchesAny reports whether path contains any component, or any
// contiguous run of components, matched by one of patterns. A plain
// name pattern ("node_modules") matches a single component; a pattern
// containing "/" or glob metacharacters is matched against every
// consecutive-component window the same length as the pattern, so
// "pkg/mod" matches ".../pkg/mod/..." anywhere in the path (not only
// when it is a trailing suffix) but not "pkg/modules".
func MatchesAny(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	clean := filepath.ToSlash(path)
	parts := strings.Split(strings.Trim(clean, "/"), "/")

	for _, pat := range patterns {
		pat = filepath.ToSlash(pat)
		patParts := strings.Split(pat, "/")

		if len(patParts) == 1 {
			for _, part := range parts {
				if ok, _ := doublestar.Match(pat, part); ok {
					return true
				}
			}
			continue
		}

		for start := 0; start+len(patParts) <= len(parts); start++ {
			window := strings.Join(parts[start:start+len(patParts)], "/")
			if ok, _ := doublestar.Match(pat, window); ok {
				return true
			}
		}
	}
	return false
}
