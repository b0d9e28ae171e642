package pathmatch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchesAnySingleComponent(t *testing.T) {
	require.True(t, MatchesAny("src/node_modules/left-pad/index.js", []string{"node_modules"}))
	require.False(t, MatchesAny("src/node_modules_vendored/index.js", []string{"node_modules"}))
}

func TestMatchesAnyMultiComponentMidPath(t *testing.T) {
	require.True(t, MatchesAny("cache/pkg/mod/github.com/foo/bar@v1/file.go", []string{"pkg/mod"}))
	require.True(t, MatchesAny("pkg/mod/file.go", []string{"pkg/mod"}))
	require.False(t, MatchesAny("pkg/modules/file.go", []string{"pkg/mod"}))
}

func TestMatchesAnyMultiComponentTrailing(t *testing.T) {
	require.True(t, MatchesAny("a/b/pkg/mod", []string{"pkg/mod"}))
}

func TestMatchesAnyNoPatterns(t *testing.T) {
	require.False(t, MatchesAny("anything/at/all", nil))
}
