// Package filetable implements the file table (component C2): a dense
// array of FileMeta records keyed by FileID, with a secondary (dev,ino)
// index for move/identity tracking. Grounded on the teacher's
// internal/core/trigram.go FileLocation/bucket-map idiom for the secondary
// index, generalized from (FileID,Offset) pairs to a (dev,ino)->FileID map.
package filetable

import (
	"github.com/standardbeagle/lci/internal/types"
)

// Table owns FileMeta records. It does not lock; callers (the index's
// single RW lock) are responsible for synchronizing access.
type Table struct {
	records []types.FileMeta // index 0 is unused; FileID 0 means "none"
	byDevIno map[types.DevIno]types.FileID
	liveCount int
}

// New returns an empty file table.
func New() *Table {
	return &Table{
		records:  make([]types.FileMeta, 1, 1024), // records[0] is the unused sentinel slot
		byDevIno: make(map[types.DevIno]types.FileID),
	}
}

// Insert assigns the next free id and stores meta. Tombstoned ids are never
// recycled until compaction rebuilds the table.
func (t *Table) Insert(meta types.FileMeta) types.FileID {
	id := types.FileID(len(t.records))
	t.records = append(t.records, meta)
	t.liveCount++
	if !meta.Tombstoned {
		di := types.DevIno{Dev: meta.Dev, Ino: meta.Ino}
		if !di.Zero() {
			t.byDevIno[di] = id
		}
	}
	return id
}

// Get returns the record for id, and whether it exists at all (tombstoned
// records still "exist" until compaction; callers check Tombstoned
// themselves, matching invariant 2's "non-tombstoned" qualifier being the
// caller's concern, not Get's).
func (t *Table) Get(id types.FileID) (*types.FileMeta, bool) {
	if id == types.NoFileID || int(id) >= len(t.records) {
		return nil, false
	}
	return &t.records[id], true
}

// Update replaces fields of an existing record via patch, keeping the
// (dev,ino) index consistent if identity fields change.
func (t *Table) Update(id types.FileID, patch func(*types.FileMeta)) bool {
	m, ok := t.Get(id)
	if !ok {
		return false
	}
	oldDi := types.DevIno{Dev: m.Dev, Ino: m.Ino}
	patch(m)
	newDi := types.DevIno{Dev: m.Dev, Ino: m.Ino}
	if oldDi != newDi {
		if !oldDi.Zero() {
			delete(t.byDevIno, oldDi)
		}
		if !newDi.Zero() && !m.Tombstoned {
			t.byDevIno[newDi] = id
		}
	}
	return true
}

// Tombstone soft-deletes id: it remains in the table (so in-flight readers
// holding a stale FileID see a consistent "gone" record) until the next
// compaction physically removes it.
func (t *Table) Tombstone(id types.FileID) bool {
	m, ok := t.Get(id)
	if !ok || m.Tombstoned {
		return false
	}
	di := types.DevIno{Dev: m.Dev, Ino: m.Ino}
	if !di.Zero() {
		delete(t.byDevIno, di)
	}
	m.Tombstoned = true
	t.liveCount--
	return true
}

// FindByDevIno returns the live FileID for a (dev,ino) pair, if any.
func (t *Table) FindByDevIno(di types.DevIno) (types.FileID, bool) {
	id, ok := t.byDevIno[di]
	return id, ok
}

// IterLive calls fn for every non-tombstoned record, in FileID order.
// Iteration stops early if fn returns false.
func (t *Table) IterLive(fn func(id types.FileID, meta *types.FileMeta) bool) {
	for i := 1; i < len(t.records); i++ {
		if t.records[i].Tombstoned {
			continue
		}
		if !fn(types.FileID(i), &t.records[i]) {
			return
		}
	}
}

// LiveCount returns the number of non-tombstoned records.
func (t *Table) LiveCount() int {
	return t.liveCount
}

// Len returns the total number of records including tombstones and the
// unused sentinel slot at index 0.
func (t *Table) Len() int {
	return len(t.records)
}

// AllRecords returns the table's raw record slice, index 0 the unused
// sentinel, for snapshot serialization. The returned slice aliases the
// table's storage and must not be mutated.
func (t *Table) AllRecords() []types.FileMeta {
	return t.records
}

// NewFromRecords builds a table directly from a previously-serialized
// record slice (records[0] the unused sentinel, as produced by
// AllRecords), rebuilding the (dev,ino) index and live count. Used when
// loading a snapshot, where FileIds must match the posting lists exactly.
func NewFromRecords(records []types.FileMeta) *Table {
	t := &Table{
		records:  records,
		byDevIno: make(map[types.DevIno]types.FileID),
	}
	for i := 1; i < len(records); i++ {
		m := &records[i]
		if m.Tombstoned {
			continue
		}
		t.liveCount++
		di := types.DevIno{Dev: m.Dev, Ino: m.Ino}
		if !di.Zero() {
			t.byDevIno[di] = types.FileID(i)
		}
	}
	return t
}

// Compact rebuilds the table with tombstoned records physically removed and
// ids reassigned densely starting at 1. remap receives the mapping from old
// to new FileID so callers (the trigram index, the arena) can update their
// own references.
func (t *Table) Compact() (remap map[types.FileID]types.FileID) {
	fresh := New()
	remap = make(map[types.FileID]types.FileID, t.liveCount)
	t.IterLive(func(oldID types.FileID, meta *types.FileMeta) bool {
		newID := fresh.Insert(*meta)
		remap[oldID] = newID
		return true
	})
	*t = *fresh
	return remap
}
