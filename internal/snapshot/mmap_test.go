package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadMmapMatchesRead(t *testing.T) {
	idx := buildIndex(t)
	path := filepath.Join(t.TempDir(), "snapshot.vcy")
	require.NoError(t, Write(idx, path))

	mapped, err := ReadMmap(path)
	require.NoError(t, err)
	defer mapped.Close()

	plain, err := Read(path)
	require.NoError(t, err)

	require.Equal(t, collectLivePaths(t, plain), collectLivePaths(t, mapped))
	require.Equal(t, plain.Generation(), mapped.Generation())
	require.Equal(t, plain.LastEventToken(), mapped.LastEventToken())
}

func TestReadMmapRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.vcy")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot"), 0o644))

	_, err := ReadMmap(path)
	require.Error(t, err)
}
