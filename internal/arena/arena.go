// Package arena implements the append-only string store (component C1).
// It is grounded on the teacher's internal/core/string_pool.go pool-of-strings
// idiom and internal/types/string_ref_zero_alloc.go's offset/length byte-view
// pattern, generalized to a single growing byte buffer addressed by
// (offset, len) handles instead of a map of separately-allocated strings.
package arena

import (
	"fmt"
	"sync"

	"github.com/standardbeagle/lci/internal/alloc"
	"github.com/standardbeagle/lci/internal/types"
)

// OutOfBoundsError is returned by Resolve when a handle does not refer to a
// byte range contained within the arena.
type OutOfBoundsError struct {
	Handle types.StringHandle
	Size   int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("arena: handle offset=%d len=%d out of bounds (size=%d)", e.Handle.Offset, e.Handle.Len, e.Size)
}

// Arena is an append-only UTF-8 byte store. Strings are stored once and are
// immutable once written; intern never deduplicates (callers de-duplicate
// at the FileMeta level). Removal does not reclaim bytes within a
// generation; reclamation only happens at compaction.
type Arena struct {
	mu   sync.RWMutex
	buf  []byte
	pool *alloc.SlabAllocator[byte]
}

// New returns an empty arena.
func New() *Arena {
	return &Arena{
		buf:  make([]byte, 0, 4096),
		pool: alloc.NewSlabAllocator[byte](alloc.ArenaTierConfigs),
	}
}

// Intern appends s to the arena and returns a handle to it. It always
// appends; it never deduplicates.
func (a *Arena) Intern(s string) (types.StringHandle, error) {
	if len(s) > 1<<16-1 {
		return types.StringHandle{}, fmt.Errorf("arena: string of %d bytes exceeds max handle length", len(s))
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	offset := len(a.buf)
	a.buf = a.growAndAppend(a.buf, s)
	return types.StringHandle{Offset: uint32(offset), Len: uint16(len(s))}, nil
}

// growAndAppend appends s to buf, using the slab allocator to size the next
// growth step when buf's capacity is exhausted, instead of relying solely
// on Go's default append growth curve.
func (a *Arena) growAndAppend(buf []byte, s string) []byte {
	need := len(buf) + len(s)
	if cap(buf) >= need {
		return append(buf, s...)
	}
	grown := a.pool.GrowSlice(buf, need-len(buf))
	return append(grown, s...)
}

// Resolve returns the bytes referenced by handle. The returned slice aliases
// the arena's backing buffer and must not be mutated or retained across an
// Intern/Rebuild call, which may reallocate the buffer.
func (a *Arena) Resolve(h types.StringHandle) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	end := int(h.Offset) + int(h.Len)
	if int(h.Offset) < 0 || end > len(a.buf) {
		return nil, &OutOfBoundsError{Handle: h, Size: len(a.buf)}
	}
	return a.buf[h.Offset:end], nil
}

// ResolveString is a convenience over Resolve that allocates a string copy;
// prefer Resolve on hot paths.
func (a *Arena) ResolveString(h types.StringHandle) (string, error) {
	b, err := a.Resolve(h)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Len returns the current size of the backing buffer in bytes.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.buf)
}

// Bytes returns a copy of the arena's backing buffer, for snapshot
// serialization.
func (a *Arena) Bytes() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]byte, len(a.buf))
	copy(out, a.buf)
	return out
}

// NewFromBytes builds an arena whose backing buffer is buf directly,
// without copying, for loading a just-read snapshot. The caller must not
// mutate buf afterward.
func NewFromBytes(buf []byte) *Arena {
	return &Arena{
		buf:  buf,
		pool: alloc.NewSlabAllocator[byte](alloc.ArenaTierConfigs),
	}
}

// Rebuild replaces the arena's contents with only the strings produced by
// walking live file-table records, reclaiming bytes belonging to
// tombstoned or removed entries. It is used during compaction.
func (a *Arena) Rebuild(walk func(intern func(s string) (types.StringHandle, error)) error) error {
	fresh := New()
	if err := walk(fresh.Intern); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf = fresh.buf
	return nil
}
