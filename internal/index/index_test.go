package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lci/internal/trigram"
)

func TestInsertAndCandidates(t *testing.T) {
	idx := New()
	id, err := idx.Insert("/home/me/server.go", "server.go", 100, 1000, 1, 42, false)
	require.NoError(t, err)

	got := idx.Candidates(trigram.Extract("server"))
	assert.Contains(t, got, id)

	meta, ok := idx.Get(id)
	require.True(t, ok)
	assert.False(t, meta.Tombstoned)
	assert.Equal(t, uint64(100), meta.Size)
}

func TestTombstoneRemovesFromCandidatesNotFromTable(t *testing.T) {
	idx := New()
	id, _ := idx.Insert("/a/b.go", "b.go", 1, 1, 0, 0, false)

	ok := idx.Tombstone(id)
	require.True(t, ok)

	assert.Empty(t, idx.Candidates(trigram.Extract("b.go")))
	meta, exists := idx.Get(id)
	require.True(t, exists)
	assert.True(t, meta.Tombstoned)
}

func TestRenameReindexesTrigrams(t *testing.T) {
	idx := New()
	id, _ := idx.Insert("/x/y.txt", "y.txt", 1, 1, 1, 42, false)

	require.NoError(t, idx.Rename(id, "/x/z.txt", "z.txt"))

	assert.Empty(t, idx.Candidates(trigram.Extract("y.txt")))
	got := idx.Candidates(trigram.Extract("z.txt"))
	assert.Contains(t, got, id)
}

func TestFindByDevInoTracksIdentityAcrossMove(t *testing.T) {
	idx := New()
	id, _ := idx.Insert("/x/y.txt", "y.txt", 1, 1, 1, 42, false)

	found, ok := idx.FindByDevIno(1, 42)
	require.True(t, ok)
	assert.Equal(t, id, found)

	require.NoError(t, idx.Rename(id, "/x/z.txt", "z.txt"))
	found, ok = idx.FindByDevIno(1, 42)
	require.True(t, ok)
	assert.Equal(t, id, found)
}

func TestCompactRemovesTombstonesAndRebuildsTrigrams(t *testing.T) {
	idx := New()
	idx.Insert("/a/keep.go", "keep.go", 1, 1, 0, 0, false)
	gone, _ := idx.Insert("/a/gone.go", "gone.go", 1, 1, 0, 0, false)
	idx.Tombstone(gone)

	require.NoError(t, idx.Compact())

	got := idx.Candidates(trigram.Extract("keep"))
	require.Len(t, got, 1)
	meta, ok := idx.Get(got[0])
	require.True(t, ok)
	name, err := idx.Resolve(meta.Name)
	require.NoError(t, err)
	assert.Equal(t, "keep.go", name)
}
