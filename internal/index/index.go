// Package index ties the string arena (C1), file table (C2), and trigram
// index (C3) together behind a single readers-writer lock, and exposes a
// narrow capability set: insert/update/tombstone/search/iter_live,
// behind an interface so alternate implementations (the mmap-backed reader
// in internal/snapshot) can stand in for it.
package index

import (
	"sync"

	"github.com/standardbeagle/lci/internal/arena"
	"github.com/standardbeagle/lci/internal/filetable"
	"github.com/standardbeagle/lci/internal/trigram"
	"github.com/standardbeagle/lci/internal/types"
)

// Reader is the read-only subset of the capability set: search (via the
// trigram candidate set) and iteration. The mmap-backed loader in
// internal/snapshot implements only this.
type Reader interface {
	Candidates(trigrams []types.Trigram) []types.FileID
	Get(id types.FileID) (*types.FileMeta, bool)
	Resolve(h types.StringHandle) (string, error)
	IterLive(fn func(id types.FileID, meta *types.FileMeta) bool)
	Generation() uint64
	LastEventToken() uint64
}

// Index is the full read-write capability set. *Index is the only
// implementation that also mutates.
type Index struct {
	mu sync.RWMutex

	arena    *arena.Arena
	table    *filetable.Table
	trigrams *trigram.Index

	generation     uint64
	lastEventToken uint64
}

// New returns an empty, writable index at generation 0.
func New() *Index {
	return &Index{
		arena:    arena.New(),
		table:    filetable.New(),
		trigrams: trigram.New(),
	}
}

// Load builds an Index directly from previously-serialized components,
// preserving FileIds and string handles exactly as they were written, for
// the snapshot codec's read path. postings may be loaded incrementally
// via LoadPosting before the index is used for queries.
func Load(arenaBuf []byte, records []types.FileMeta, generation, lastEventToken uint64) *Index {
	return &Index{
		arena:          arena.NewFromBytes(arenaBuf),
		table:          filetable.NewFromRecords(records),
		trigrams:       trigram.New(),
		generation:     generation,
		lastEventToken: lastEventToken,
	}
}

// LoadPosting installs a previously-serialized posting list verbatim,
// bypassing per-id duplicate checks. Used only while populating an index
// built with Load, before any concurrent access begins.
func (idx *Index) LoadPosting(tg types.Trigram, ids []types.FileID) {
	idx.trigrams.LoadPosting(tg, ids)
}

// ArenaBytes returns a copy of the arena's contents, for snapshot
// serialization.
func (idx *Index) ArenaBytes() []byte {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.arena.Bytes()
}

// AllRecords returns the raw file-table record slice (index 0 the unused
// sentinel), for snapshot serialization.
func (idx *Index) AllRecords() []types.FileMeta {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.table.AllRecords()
}

// Insert adds a new file, interning its path and name and indexing its
// basename's trigrams, under the write lock. It is the caller's
// responsibility to have already checked (dev,ino) identity for Move
// semantics; Insert always creates a new FileID.
func (idx *Index) Insert(path, name string, size uint64, mtime int64, dev, ino uint64, isDir bool) (types.FileID, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	pathHandle, err := idx.arena.Intern(path)
	if err != nil {
		return types.NoFileID, err
	}
	nameHandle, err := idx.arena.Intern(name)
	if err != nil {
		return types.NoFileID, err
	}
	id := idx.table.Insert(types.FileMeta{
		Path:  pathHandle,
		Name:  nameHandle,
		Size:  size,
		Mtime: mtime,
		Dev:   dev,
		Ino:   ino,
		IsDir: isDir,
	})
	idx.trigrams.Add(id, name)
	return id, nil
}

// UpdateMeta mutates an existing record's non-identity metadata (size,
// mtime) in place. It does not touch the trigram index since the name is
// unchanged.
func (idx *Index) UpdateMeta(id types.FileID, size uint64, mtime int64) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.table.Update(id, func(m *types.FileMeta) {
		m.Size = size
		m.Mtime = mtime
	})
}

// Rename changes a record's path/name (a Move), re-interning the new
// strings and re-indexing the new basename's trigrams, removing the old
// ones.
func (idx *Index) Rename(id types.FileID, newPath, newName string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	m, ok := idx.table.Get(id)
	if !ok {
		return nil
	}
	oldName, err := idx.arena.ResolveString(m.Name)
	if err != nil {
		return err
	}
	pathHandle, err := idx.arena.Intern(newPath)
	if err != nil {
		return err
	}
	nameHandle, err := idx.arena.Intern(newName)
	if err != nil {
		return err
	}
	idx.trigrams.Remove(id, oldName)
	idx.table.Update(id, func(m *types.FileMeta) {
		m.Path = pathHandle
		m.Name = nameHandle
	})
	idx.trigrams.Add(id, newName)
	return nil
}

// Tombstone soft-deletes id and removes it from the trigram index (so the
// posting lists never reference a tombstoned record, satisfying invariant
// 2), but leaves the FileMeta record in place until compaction.
func (idx *Index) Tombstone(id types.FileID) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	m, ok := idx.table.Get(id)
	if !ok || m.Tombstoned {
		return false
	}
	name, err := idx.arena.ResolveString(m.Name)
	if err == nil {
		idx.trigrams.Remove(id, name)
	}
	return idx.table.Tombstone(id)
}

// FindByDevIno resolves a (dev,ino) pair to a live FileID, used by Create
// updates to decide whether they are actually a Move.
func (idx *Index) FindByDevIno(dev, ino uint64) (types.FileID, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.table.FindByDevIno(types.DevIno{Dev: dev, Ino: ino})
}

// Candidates returns the FileIds whose basename contains every given
// trigram. Read-locked; concurrent searches do not block each other.
func (idx *Index) Candidates(trigrams []types.Trigram) []types.FileID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.trigrams.Query(trigrams)
}

// Get returns the record for id.
func (idx *Index) Get(id types.FileID) (*types.FileMeta, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	m, ok := idx.table.Get(id)
	if !ok {
		return nil, false
	}
	cp := *m
	return &cp, true
}

// Resolve returns the string referenced by h.
func (idx *Index) Resolve(h types.StringHandle) (string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.arena.ResolveString(h)
}

// IterLive calls fn for every non-tombstoned record.
func (idx *Index) IterLive(fn func(id types.FileID, meta *types.FileMeta) bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	idx.table.IterLive(fn)
}

// Generation returns the current snapshot generation.
func (idx *Index) Generation() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.generation
}

// LastEventToken returns the last observed watcher event token persisted
// for resumption.
func (idx *Index) LastEventToken() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.lastEventToken
}

// SetLastEventToken records the watcher's resumption token.
func (idx *Index) SetLastEventToken(tok uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.lastEventToken = tok
}

// BumpGeneration increments and returns the new generation number, called
// by the snapshot codec after a successful atomic write (generation must
// strictly increase across successful writes).
func (idx *Index) BumpGeneration() uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.generation++
	return idx.generation
}

// ForEachPosting exposes the trigram index's postings for the snapshot
// codec, under the read lock.
func (idx *Index) ForEachPosting(fn func(tg types.Trigram, ids []types.FileID)) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	idx.trigrams.ForEachPosting(fn)
}

// ArenaLen returns the current arena size in bytes, for status reporting.
func (idx *Index) ArenaLen() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.arena.Len()
}

// TrigramCount returns the number of distinct indexed trigrams.
func (idx *Index) TrigramCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.trigrams.TrigramCount()
}

// Compact rebuilds the arena and file table with tombstones physically
// removed, reassigning dense FileIds and rebuilding the trigram index
// against the new ids. It is the only operation that invalidates
// previously returned FileIds.
func (idx *Index) Compact() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.table.Compact()
	freshTrigrams := trigram.New()
	idx.table.IterLive(func(newID types.FileID, meta *types.FileMeta) bool {
		name, err := idx.arena.ResolveString(meta.Name)
		if err != nil {
			return true
		}
		freshTrigrams.Add(newID, name)
		return true
	})
	idx.trigrams = freshTrigrams

	return idx.arena.Rebuild(func(intern func(s string) (types.StringHandle, error)) error {
		var rebuildErr error
		idx.table.IterLive(func(id types.FileID, meta *types.FileMeta) bool {
			p, err := idx.arena.ResolveString(meta.Path)
			if err != nil {
				rebuildErr = err
				return false
			}
			n, err := idx.arena.ResolveString(meta.Name)
			if err != nil {
				rebuildErr = err
				return false
			}
			ph, err := intern(p)
			if err != nil {
				rebuildErr = err
				return false
			}
			nh, err := intern(n)
			if err != nil {
				rebuildErr = err
				return false
			}
			meta.Path = ph
			meta.Name = nh
			return true
		})
		return rebuildErr
	})
}

var _ Reader = (*Index)(nil)
