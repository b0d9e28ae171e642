package abbrev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExactPrefix(t *testing.T) {
	r, ok := Match("serv", "/home/me/server.go")
	require.True(t, ok)
	assert.Equal(t, ExactPrefix, r.Strategy)
	assert.InDelta(t, 1.0, r.Score, 0.001)
}

func TestComponentFirstVicayaCore(t *testing.T) {
	r, ok := Match("vcs", "vicaya-core/src/main.rs")
	require.True(t, ok)
	assert.Equal(t, ComponentFirst, r.Strategy)
	assert.GreaterOrEqual(t, r.Score, 0.95)
}

func TestCamelCaseCargoToml(t *testing.T) {
	r, ok := Match("CT", "Cargo.toml")
	require.True(t, ok)
	assert.Equal(t, CamelCase, r.Strategy)
	assert.GreaterOrEqual(t, r.Score, 0.90)
}

func TestSequentialFallback(t *testing.T) {
	// "ain" has no exact-prefix, no consecutive component-first or
	// camel-case boundary sequence against "main.go", but is a valid
	// in-order subsequence: a-i-n.
	r, ok := Match("ain", "/a/b/main.go")
	require.True(t, ok)
	assert.Contains(t, []Strategy{ComponentFirst, CamelCase, Sequential}, r.Strategy)
}

func TestNoMatchReturnsFalse(t *testing.T) {
	_, ok := Match("zzz", "/a/b/main.go")
	assert.False(t, ok)
}

func TestScoreNeverExceedsOne(t *testing.T) {
	r, ok := Match("M", "/m.go")
	require.True(t, ok)
	assert.LessOrEqual(t, r.Score, 1.0)
}

func TestEmptyQueryOrPathNoMatch(t *testing.T) {
	_, ok := Match("", "/a/b.go")
	assert.False(t, ok)
	_, ok = Match("a", "")
	assert.False(t, ok)
}
