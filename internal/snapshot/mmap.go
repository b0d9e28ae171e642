// Mmap-backed alternate snapshot reader. Grounded on spec.md §9's note
// that an mmap-backed reader is a valid alternate implementation of the
// snapshot load path, and on AKJUS-bsc-erigon's go.mod dependency on
// github.com/edsrzf/mmap-go (no call site was retrieved from that repo,
// so this wraps the library's documented Map/Unmap API directly). Parses
// the same record/posting layout as Read through its own cursor-based
// routines; the string arena's backing buffer aliases the mapped pages
// directly instead of a freshly allocated copy, so opening a large
// snapshot no longer costs a full read(2) plus a second allocation for
// the arena.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/standardbeagle/lci/internal/errors"
	"github.com/standardbeagle/lci/internal/index"
	"github.com/standardbeagle/lci/internal/types"
)

// MappedIndex is an index.Reader backed by a memory-mapped snapshot
// file. Close unmaps the pages; the Reader must not be used afterward.
type MappedIndex struct {
	index.Reader
	mapping mmap.MMap
	file    *os.File
}

// Close unmaps the snapshot file and closes its file descriptor. Safe to
// call once; a second call returns the underlying unmap/close error.
func (m *MappedIndex) Close() error {
	if err := m.mapping.Unmap(); err != nil {
		return errors.IoFatal("snapshot.mmap.unmap", err)
	}
	if err := m.file.Close(); err != nil {
		return errors.IoFatal("snapshot.mmap.close", err)
	}
	return nil
}

// ReadMmap opens the snapshot at path and maps it read-only, returning an
// index.Reader whose string arena aliases the mapped pages directly. The
// caller must call Close when done to release the mapping. Validation
// (magic, version, CRC) is identical to Read; a short or corrupt file
// fails the same way.
func ReadMmap(path string) (*MappedIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IoFatal("snapshot.mmap.open", err)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errors.IoFatal("snapshot.mmap.map", err)
	}

	idx, err := decodeMapped([]byte(m))
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, err
	}

	return &MappedIndex{Reader: idx, mapping: m, file: f}, nil
}

// decodeMapped validates data's framing exactly as Read does, then
// parses its body with the arena slice left aliasing data rather than
// copied into a new allocation.
func decodeMapped(data []byte) (*index.Index, error) {
	if len(data) < len(Magic)+4 {
		return nil, errors.Corrupt("snapshot.mmap.truncated", fmt.Errorf("snapshot: file too short (%d bytes)", len(data)))
	}
	if !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, errors.Corrupt("snapshot.mmap.magic", fmt.Errorf("snapshot: bad magic"))
	}
	body := data[:len(data)-4]
	wantSum := binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != wantSum {
		return nil, errors.Corrupt("snapshot.mmap.crc", fmt.Errorf("snapshot: crc mismatch"))
	}

	c := &cursor{buf: data[len(Magic) : len(data)-4]}

	version := c.uint32()
	if c.err != nil {
		return nil, errors.Corrupt("snapshot.mmap.header", c.err)
	}
	if version != Version {
		return nil, errors.IncompatibleVersion("snapshot.mmap.version", fmt.Errorf("snapshot: version %d, want %d", version, Version))
	}

	generation := c.uint64()
	recordCount := c.uint32()
	lastEventToken := c.uint64()
	arenaLen := c.uint64()
	if c.err != nil {
		return nil, errors.Corrupt("snapshot.mmap.header", c.err)
	}
	arenaBuf := c.slice(int(arenaLen))
	if c.err != nil {
		return nil, errors.Corrupt("snapshot.mmap.arena", c.err)
	}

	tableLen := c.uint64()
	_ = tableLen
	if c.err != nil {
		return nil, errors.Corrupt("snapshot.mmap.header", c.err)
	}

	records := make([]types.FileMeta, recordCount+1) // +1 for the unused sentinel slot
	for i := uint32(0); i < recordCount; i++ {
		records[i+1] = readRecordCursor(c)
	}
	if c.err != nil {
		return nil, errors.Corrupt("snapshot.mmap.record", c.err)
	}

	postingCount := c.uint32()
	if c.err != nil {
		return nil, errors.Corrupt("snapshot.mmap.header", c.err)
	}

	idx := index.Load(arenaBuf, records, generation, lastEventToken)
	for i := uint32(0); i < postingCount; i++ {
		key := c.uint32()
		n := c.uint32()
		if c.err != nil {
			return nil, errors.Corrupt("snapshot.mmap.posting", c.err)
		}
		ids := make([]types.FileID, n)
		for j := uint32(0); j < n; j++ {
			ids[j] = types.FileID(c.uint32())
		}
		if c.err != nil {
			return nil, errors.Corrupt("snapshot.mmap.posting", c.err)
		}
		idx.LoadPosting(types.Trigram(key), ids)
	}

	return idx, nil
}

// cursor is a minimal little-endian reader over a byte slice that
// latches the first error it hits, so decodeMapped's call sites don't
// need an if-err-return after every field.
type cursor struct {
	buf []byte
	off int
	err error
}

func (c *cursor) need(n int) []byte {
	if c.err != nil {
		return nil
	}
	if c.off+n > len(c.buf) {
		c.err = fmt.Errorf("snapshot: unexpected end of data")
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) uint32() uint32 {
	b := c.need(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (c *cursor) uint64() uint64 {
	b := c.need(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (c *cursor) uint16() uint16 {
	b := c.need(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (c *cursor) byte() byte {
	b := c.need(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// slice returns the next n bytes aliasing the cursor's backing buffer —
// the one place decodeMapped avoids a copy, so the returned arena
// buffer shares memory with the mapped file instead of duplicating it.
func (c *cursor) slice(n int) []byte {
	return c.need(n)
}

func readRecordCursor(c *cursor) types.FileMeta {
	var m types.FileMeta
	m.Path.Offset = c.uint32()
	m.Path.Len = c.uint16()
	m.Name.Offset = c.uint32()
	m.Name.Len = c.uint16()
	m.Size = c.uint64()
	m.Mtime = int64(c.uint64())
	m.Dev = c.uint64()
	m.Ino = c.uint64()
	m.IsDir = c.byte() != 0
	m.Tombstoned = c.byte() != 0
	return m
}
