package trigram

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lci/internal/types"
)

func TestExtractShortNamesProduceNone(t *testing.T) {
	assert.Empty(t, Extract(""))
	assert.Empty(t, Extract("a"))
	assert.Empty(t, Extract("ab"))
}

func TestExtractLowercases(t *testing.T) {
	lower := Extract("abc")
	upper := Extract("ABC")
	require.Len(t, lower, 1)
	require.Len(t, upper, 1)
	assert.Equal(t, lower[0], upper[0])
}

func TestAddQueryFindsExactSubstring(t *testing.T) {
	idx := New()
	idx.Add(1, "server.go")
	idx.Add(2, "client.go")

	got := idx.Query(Extract("server"))
	assert.Equal(t, []types.FileID{1}, got)
}

func TestQueryAbsentTrigramIsEmptyNotError(t *testing.T) {
	idx := New()
	idx.Add(1, "server.go")

	got := idx.Query(Extract("zzz"))
	assert.Empty(t, got)
}

func TestQueryDuplicateTrigramsDeduped(t *testing.T) {
	idx := New()
	idx.Add(1, "aaaa")
	got := idx.Query([]types.Trigram{Extract("aaaa")[0], Extract("aaaa")[0]})
	assert.Equal(t, []types.FileID{1}, got)
}

func TestRemoveDropsFromPostingList(t *testing.T) {
	idx := New()
	idx.Add(1, "server.go")
	idx.Remove(1, "server.go")
	assert.Empty(t, idx.Query(Extract("server")))
	assert.Equal(t, 0, idx.TrigramCount())
}

func TestPromotionToRoaringPreservesMembership(t *testing.T) {
	idx := New()
	const n = promoteThreshold + 20
	for i := 1; i <= n; i++ {
		idx.Add(types.FileID(i), "commonname.go")
	}
	got := idx.Query(Extract("commonname"))
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Len(t, got, n)
	for i := 1; i <= n; i++ {
		assert.Equal(t, types.FileID(i), got[i-1])
	}
}

func TestNoDuplicateEntryPerFilePerTrigram(t *testing.T) {
	idx := New()
	idx.Add(1, "aaa")
	idx.Add(1, "aaa") // same file, same name, indexed twice
	tg := Extract("aaa")[0]
	assert.Equal(t, 1, idx.PostingListLen(tg))
}

func TestForEachPostingAndLoadPostingRoundTrip(t *testing.T) {
	idx := New()
	idx.Add(1, "server.go")
	idx.Add(2, "service.go")

	snapshot := map[types.Trigram][]types.FileID{}
	idx.ForEachPosting(func(tg types.Trigram, ids []types.FileID) {
		cp := append([]types.FileID(nil), ids...)
		sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
		snapshot[tg] = cp
	})

	fresh := New()
	for tg, ids := range snapshot {
		fresh.LoadPosting(tg, ids)
	}
	got := fresh.Query(Extract("server"))
	assert.Equal(t, []types.FileID{1}, got)
}
