package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lci/internal/index"
)

func noWeights() Weights {
	return Weights{ScopeBoost: 0.10, DemotePenalty: 0.20, DepthWeight: 0.01}
}

func TestSearchEmptyQueryReturnsEmptyNotError(t *testing.T) {
	idx := index.New()
	e := New(idx, noWeights())

	got, err := e.Search(Request{Query: "   ", Mode: ModeSmart})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchExactBasenameWins(t *testing.T) {
	idx := index.New()
	_, err := idx.Insert("/home/me/proj/server.go", "server.go", 1, 100, 0, 1, false)
	require.NoError(t, err)
	_, err = idx.Insert("/home/me/proj/otherserver.go", "otherserver.go", 1, 100, 0, 2, false)
	require.NoError(t, err)

	e := New(idx, noWeights())
	got, err := e.Search(Request{Query: "server.go", Mode: ModeSmart, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "/home/me/proj/server.go", got[0].Path)
	assert.Equal(t, 1.0, got[0].Score)
}

func TestSearchScopeBoostAndDemotePenaltyOrderCorrectly(t *testing.T) {
	idx := index.New()
	_, err := idx.Insert("/home/me/proj/server.go", "server.go", 1, 200, 0, 1, false)
	require.NoError(t, err)
	_, err = idx.Insert("/a/b/server.go", "server.go", 1, 100, 0, 2, false)
	require.NoError(t, err)
	_, err = idx.Insert("/cache/pkg/mod/x/server.go", "server.go", 1, 50, 0, 3, false)
	require.NoError(t, err)

	w := noWeights()
	w.DemotePaths = []string{"pkg/mod"}
	e := New(idx, w)

	got, err := e.Search(Request{Query: "server.go", Mode: ModeSmart, Scope: "/home/me", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "/home/me/proj/server.go", got[0].Path)
	assert.Equal(t, "/a/b/server.go", got[1].Path)
	assert.Equal(t, "/cache/pkg/mod/x/server.go", got[2].Path)
}

func TestExactModeSkipsAbbreviationMatching(t *testing.T) {
	idx := index.New()
	_, err := idx.Insert("/vicaya-core/src/main.rs", "main.rs", 1, 1, 0, 1, false)
	require.NoError(t, err)

	e := New(idx, noWeights())

	got, err := e.Search(Request{Query: "vcs", Mode: ModeExact, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = e.Search(Request{Query: "vcs", Mode: ModeSmart, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ComponentFirst", got[0].Strategy)
	assert.True(t, got[0].Score >= 0.95)
}

func TestShortQueryLinearScanBailsOutWithoutMatch(t *testing.T) {
	idx := index.New()
	for i := 0; i < 1500; i++ {
		idx.Insert("/x/file.go", "file.go", 1, 1, 0, uint64(i+1), false)
	}
	e := New(idx, noWeights())

	got, err := e.Search(Request{Query: "$", Mode: ModeSmart, Limit: 100})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFuzzyModeSortsByOwnScoreOnly(t *testing.T) {
	idx := index.New()
	_, err := idx.Insert("/a/servur.go", "servur.go", 1, 1, 0, 1, false)
	require.NoError(t, err)
	_, err = idx.Insert("/a/server.go", "server.go", 1, 1, 0, 2, false)
	require.NoError(t, err)

	e := New(idx, noWeights())
	got, err := e.Search(Request{Query: "server.go", Mode: ModeFuzzy, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "/a/server.go", got[0].Path)
}

func TestSubstringScoreClasses(t *testing.T) {
	score, strategy, ok := substringScore("server", "server")
	require.True(t, ok)
	assert.Equal(t, "exact", strategy)
	assert.Equal(t, 1.0, score)

	score, strategy, ok = substringScore("serv", "server.go")
	require.True(t, ok)
	assert.Equal(t, "prefix", strategy)
	assert.True(t, score >= 0.90 && score <= 0.99)

	_, _, ok = substringScore("zzz", "server.go")
	assert.False(t, ok)
}
