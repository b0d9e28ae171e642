// Package trigram implements the trigram inverted index (component
// C3). It is grounded on the teacher's internal/core/trigram.go: the same
// add/remove/query shape, the same ASCII-fast-path-with-Unicode-fallback
// trigram extraction (extractSimpleTrigrams / extractUnicodeTrigrams there),
// and the same pool-backed posting-list growth (TrigramTierConfigs there,
// alloc.PostingTierConfigs here). It resolves the posting-list
// representation open question as a hybrid: small lists are plain
// []types.FileID slices; lists that grow past a threshold are promoted to
// github.com/RoaringBitmap/roaring/v2 bitmaps.
package trigram

import (
	"unicode"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/standardbeagle/lci/internal/alloc"
	"github.com/standardbeagle/lci/internal/types"
)

// promoteThreshold is the largest posting-list length kept as a plain
// slice; a list that grows past it is promoted to a roaring bitmap. It matches the largest tier in
// alloc.PostingTierConfigs, so lists that would spill past pool reuse
// anyway get the denser representation instead.
const promoteThreshold = 64

// postingList holds the ids for one trigram, in one of two
// representations. Exactly one of small/big is active at a time.
type postingList struct {
	small []types.FileID
	big   *roaring.Bitmap
}

func (p *postingList) add(id types.FileID) {
	if p.big != nil {
		p.big.Add(uint32(id))
		return
	}
	for _, existing := range p.small {
		if existing == id {
			return // each file contributes at most one entry per trigram
		}
	}
	p.small = append(p.small, id)
	if len(p.small) > promoteThreshold {
		p.promote()
	}
}

func (p *postingList) promote() {
	b := roaring.New()
	for _, id := range p.small {
		b.Add(uint32(id))
	}
	p.big = b
	p.small = nil
}

func (p *postingList) remove(id types.FileID) {
	if p.big != nil {
		p.big.Remove(uint32(id))
		return
	}
	for i, existing := range p.small {
		if existing == id {
			p.small = append(p.small[:i], p.small[i+1:]...)
			return
		}
	}
}

func (p *postingList) contains(id types.FileID) bool {
	if p.big != nil {
		return p.big.Contains(uint32(id))
	}
	for _, existing := range p.small {
		if existing == id {
			return true
		}
	}
	return false
}

func (p *postingList) len() int {
	if p.big != nil {
		return int(p.big.GetCardinality())
	}
	return len(p.small)
}

func (p *postingList) materialize() []types.FileID {
	if p.big != nil {
		out := make([]types.FileID, 0, p.big.GetCardinality())
		it := p.big.Iterator()
		for it.HasNext() {
			out = append(out, types.FileID(it.Next()))
		}
		return out
	}
	out := make([]types.FileID, len(p.small))
	copy(out, p.small)
	return out
}

func (p *postingList) empty() bool {
	if p.big != nil {
		return p.big.IsEmpty()
	}
	return len(p.small) == 0
}

// Index is the trigram -> posting-list map. It does not lock; callers
// synchronize access via the index's single RW lock, same as filetable.Table.
type Index struct {
	postings map[types.Trigram]*postingList
	pool     *alloc.SlabAllocator[types.FileID]
}

// New returns an empty trigram index.
func New() *Index {
	return &Index{
		postings: make(map[types.Trigram]*postingList),
		pool:     alloc.NewSlabAllocator[types.FileID](alloc.PostingTierConfigs),
	}
}

// Add indexes id under every trigram of the lowercased name.
func (idx *Index) Add(id types.FileID, name string) {
	for _, tg := range Extract(name) {
		pl, ok := idx.postings[tg]
		if !ok {
			pl = &postingList{small: idx.pool.Get(4)}
			idx.postings[tg] = pl
		}
		pl.add(id)
	}
}

// Remove de-indexes id from every trigram of the lowercased name.
func (idx *Index) Remove(id types.FileID, name string) {
	for _, tg := range Extract(name) {
		pl, ok := idx.postings[tg]
		if !ok {
			continue
		}
		pl.remove(id)
		if pl.empty() {
			delete(idx.postings, tg)
		}
	}
}

// Query returns ids whose indexed basename contains every one of the given
// trigrams. Duplicate trigrams are deduplicated first. A trigram absent
// from the map makes the whole result empty (never an error), since it
// proves no file contains it.
func (idx *Index) Query(trigrams []types.Trigram) []types.FileID {
	seen := make(map[types.Trigram]struct{}, len(trigrams))
	unique := make([]types.Trigram, 0, len(trigrams))
	for _, tg := range trigrams {
		if _, dup := seen[tg]; dup {
			continue
		}
		seen[tg] = struct{}{}
		unique = append(unique, tg)
	}
	if len(unique) == 0 {
		return nil
	}

	lists := make([]*postingList, 0, len(unique))
	var smallest *postingList
	for _, tg := range unique {
		pl, ok := idx.postings[tg]
		if !ok {
			return nil // absent trigram: no file can satisfy the query
		}
		lists = append(lists, pl)
		if smallest == nil || pl.len() < smallest.len() {
			smallest = pl
		}
	}

	candidates := smallest.materialize()
	if len(lists) == 1 {
		return candidates
	}
	out := make([]types.FileID, 0, len(candidates))
	for _, id := range candidates {
		match := true
		for _, pl := range lists {
			if pl == smallest {
				continue
			}
			if !pl.contains(id) {
				match = false
				break
			}
		}
		if match {
			out = append(out, id)
		}
	}
	return out
}

// PostingListLen reports the current length of the posting list for tg, or
// 0 if the trigram is unindexed. Exposed for tests.
func (idx *Index) PostingListLen(tg types.Trigram) int {
	pl, ok := idx.postings[tg]
	if !ok {
		return 0
	}
	return pl.len()
}

// ForEachPosting calls fn once per indexed trigram, with its posting list
// fully materialized, in no particular order. Used by the snapshot codec
// to serialize the index; it never observes the internal slice/bitmap
// representation.
func (idx *Index) ForEachPosting(fn func(tg types.Trigram, ids []types.FileID)) {
	for tg, pl := range idx.postings {
		fn(tg, pl.materialize())
	}
}

// LoadPosting installs a posting list for tg directly, bypassing per-id
// duplicate checks. Used by the snapshot codec when deserializing, where
// the on-disk format already guarantees no duplicates within a list.
func (idx *Index) LoadPosting(tg types.Trigram, ids []types.FileID) {
	pl := &postingList{}
	if len(ids) > promoteThreshold {
		b := roaring.New()
		for _, id := range ids {
			b.Add(uint32(id))
		}
		pl.big = b
	} else {
		pl.small = append([]types.FileID(nil), ids...)
	}
	idx.postings[tg] = pl
}

// TrigramCount returns the number of distinct indexed trigrams, for status
// reporting.
func (idx *Index) TrigramCount() int {
	return len(idx.postings)
}

// Extract lowercases name and produces its trigrams. Names shorter than
// three bytes produce none. ASCII names use a fast byte-shift path;
// non-ASCII names fall back to rune-based extraction, mirroring the
// teacher's isPureASCII/extractSimpleTrigrams/extractUnicodeTrigrams split.
func Extract(name string) []types.Trigram {
	if isPureASCII(name) {
		return extractASCII(name)
	}
	return extractUnicode(name)
}

func isPureASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8RuneSelf {
			return false
		}
	}
	return true
}

const utf8RuneSelf = 0x80

func toLowerASCII(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func extractASCII(name string) []types.Trigram {
	n := len(name)
	if n < 3 {
		return nil
	}
	out := make([]types.Trigram, 0, n-2)
	for i := 0; i+2 < n; i++ {
		a := toLowerASCII(name[i])
		b := toLowerASCII(name[i+1])
		c := toLowerASCII(name[i+2])
		out = append(out, types.PackTrigram(a, b, c))
	}
	return out
}

func extractUnicode(name string) []types.Trigram {
	runes := []rune(name)
	if len(runes) < 3 {
		return nil
	}
	lowered := make([]rune, len(runes))
	for i, r := range runes {
		lowered[i] = unicode.ToLower(r)
	}
	out := make([]types.Trigram, 0, len(lowered)-2)
	for i := 0; i+2 < len(lowered); i++ {
		// Unicode trigrams pack the low byte of each rune; full-fidelity
		// multi-byte trigram keys are out of scope for the 24-bit key
		// space, matching the module's ASCII-oriented trigram encoding.
		a := byte(lowered[i])
		b := byte(lowered[i+1])
		c := byte(lowered[i+2])
		out = append(out, types.PackTrigram(a, b, c))
	}
	return out
}
