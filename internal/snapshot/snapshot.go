// Package snapshot implements the versioned binary snapshot codec
// (component C6): the on-disk container for the arena, file table, and
// trigram map, written atomically (temp file + fsync + rename) and read
// back with magic/version/CRC validation. Grounded on the teacher's
// internal/encoding package's binary framing idiom (length-prefixed
// sections, a trailing checksum) generalized to this module's exact
// on-disk layout. The stdlib's encoding/binary and hash/crc32 implement
// the format directly; no pack library offers a closer fit for a
// fixed, versioned binary container than the standard library's own
// binary codec primitives.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/standardbeagle/lci/internal/errors"
	"github.com/standardbeagle/lci/internal/index"
	"github.com/standardbeagle/lci/internal/types"
)

// Magic identifies a vicaya snapshot file.
var Magic = [4]byte{'V', 'C', 'Y', '1'}

// Version is the schema version this codec writes and the only version
// it accepts on read; a mismatch is IncompatibleVersion.
const Version uint32 = 1

// recordSize is the fixed on-disk size of one serialized FileMeta:
// path handle (4+2), name handle (4+2), size (8), mtime (8), dev (8),
// ino (8), is_dir (1), tombstoned (1).
const recordSize = 4 + 2 + 4 + 2 + 8 + 8 + 8 + 8 + 1 + 1

// Write serializes idx to a sibling temp file in path's directory,
// fsyncs it, then renames it over path — the only way a snapshot file is
// ever observed to change, so a reader never sees a partial write.
func Write(idx *index.Index, path string) error {
	buf, err := encode(idx)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return errors.IoFatal("snapshot.write.create_temp", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return errors.IoFatal("snapshot.write.write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.IoFatal("snapshot.write.fsync", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.IoFatal("snapshot.write.close", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.IoFatal("snapshot.write.rename", err)
	}
	return nil
}

func encode(idx *index.Index) ([]byte, error) {
	var body bytes.Buffer

	records := idx.AllRecords()
	recordCount := uint32(0)
	if len(records) > 0 {
		recordCount = uint32(len(records) - 1) // records[0] is the unused sentinel
	}

	binary.Write(&body, binary.LittleEndian, Version)
	binary.Write(&body, binary.LittleEndian, idx.Generation())
	binary.Write(&body, binary.LittleEndian, recordCount)
	binary.Write(&body, binary.LittleEndian, idx.LastEventToken())

	arenaBytes := idx.ArenaBytes()
	binary.Write(&body, binary.LittleEndian, uint64(len(arenaBytes)))
	body.Write(arenaBytes)

	binary.Write(&body, binary.LittleEndian, uint64(recordCount)*recordSize)
	for i := 1; i < len(records); i++ {
		writeRecord(&body, &records[i])
	}

	var postingCount uint32
	var postingBody bytes.Buffer
	idx.ForEachPosting(func(tg types.Trigram, ids []types.FileID) {
		postingCount++
		binary.Write(&postingBody, binary.LittleEndian, uint32(tg))
		binary.Write(&postingBody, binary.LittleEndian, uint32(len(ids)))
		for _, id := range ids {
			binary.Write(&postingBody, binary.LittleEndian, uint32(id))
		}
	})
	binary.Write(&body, binary.LittleEndian, postingCount)
	body.Write(postingBody.Bytes())

	var out bytes.Buffer
	out.Write(Magic[:])
	out.Write(body.Bytes())
	sum := crc32.ChecksumIEEE(out.Bytes())
	binary.Write(&out, binary.LittleEndian, sum)
	return out.Bytes(), nil
}

func writeRecord(w *bytes.Buffer, m *types.FileMeta) {
	binary.Write(w, binary.LittleEndian, m.Path.Offset)
	binary.Write(w, binary.LittleEndian, m.Path.Len)
	binary.Write(w, binary.LittleEndian, m.Name.Offset)
	binary.Write(w, binary.LittleEndian, m.Name.Len)
	binary.Write(w, binary.LittleEndian, m.Size)
	binary.Write(w, binary.LittleEndian, m.Mtime)
	binary.Write(w, binary.LittleEndian, m.Dev)
	binary.Write(w, binary.LittleEndian, m.Ino)
	w.WriteByte(boolByte(m.IsDir))
	w.WriteByte(boolByte(m.Tombstoned))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Read loads and validates the snapshot at path, returning an Index
// ready for use. A short read or a magic mismatch, and any CRC mismatch,
// fails with Corrupt; a recognized magic with an unsupported version
// fails with IncompatibleVersion.
func Read(path string) (*index.Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IoFatal("snapshot.read.open", err)
	}
	if len(data) < len(Magic)+4 {
		return nil, errors.Corrupt("snapshot.read.truncated", fmt.Errorf("snapshot: file too short (%d bytes)", len(data)))
	}
	if !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, errors.Corrupt("snapshot.read.magic", fmt.Errorf("snapshot: bad magic"))
	}
	if len(data) < 4 {
		return nil, errors.Corrupt("snapshot.read.truncated", fmt.Errorf("snapshot: missing crc"))
	}
	body := data[:len(data)-4]
	wantSum := binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != wantSum {
		return nil, errors.Corrupt("snapshot.read.crc", fmt.Errorf("snapshot: crc mismatch"))
	}

	r := bytes.NewReader(data[len(Magic) : len(data)-4])

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, errors.Corrupt("snapshot.read.header", err)
	}
	if version != Version {
		return nil, errors.IncompatibleVersion("snapshot.read.version", fmt.Errorf("snapshot: version %d, want %d", version, Version))
	}

	var generation, lastEventToken, arenaLen, tableLen uint64
	var recordCount, postingCount uint32
	if err := binary.Read(r, binary.LittleEndian, &generation); err != nil {
		return nil, errors.Corrupt("snapshot.read.header", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &recordCount); err != nil {
		return nil, errors.Corrupt("snapshot.read.header", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &lastEventToken); err != nil {
		return nil, errors.Corrupt("snapshot.read.header", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &arenaLen); err != nil {
		return nil, errors.Corrupt("snapshot.read.header", err)
	}
	arenaBuf := make([]byte, arenaLen)
	if _, err := io.ReadFull(r, arenaBuf); err != nil {
		return nil, errors.Corrupt("snapshot.read.arena", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &tableLen); err != nil {
		return nil, errors.Corrupt("snapshot.read.header", err)
	}
	records := make([]types.FileMeta, recordCount+1) // +1 for the unused sentinel slot
	for i := uint32(0); i < recordCount; i++ {
		m, err := readRecord(r)
		if err != nil {
			return nil, errors.Corrupt("snapshot.read.record", err)
		}
		records[i+1] = m
	}
	if err := binary.Read(r, binary.LittleEndian, &postingCount); err != nil {
		return nil, errors.Corrupt("snapshot.read.header", err)
	}

	idx := index.Load(arenaBuf, records, generation, lastEventToken)
	for i := uint32(0); i < postingCount; i++ {
		var key, n uint32
		if err := binary.Read(r, binary.LittleEndian, &key); err != nil {
			return nil, errors.Corrupt("snapshot.read.posting", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, errors.Corrupt("snapshot.read.posting", err)
		}
		ids := make([]types.FileID, n)
		for j := uint32(0); j < n; j++ {
			var id uint32
			if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
				return nil, errors.Corrupt("snapshot.read.posting", err)
			}
			ids[j] = types.FileID(id)
		}
		idx.LoadPosting(types.Trigram(key), ids)
	}

	return idx, nil
}

func readRecord(r *bytes.Reader) (types.FileMeta, error) {
	var m types.FileMeta
	var isDir, tombstoned byte
	fields := []any{
		&m.Path.Offset, &m.Path.Len,
		&m.Name.Offset, &m.Name.Len,
		&m.Size, &m.Mtime, &m.Dev, &m.Ino,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return m, err
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &isDir); err != nil {
		return m, err
	}
	if err := binary.Read(r, binary.LittleEndian, &tombstoned); err != nil {
		return m, err
	}
	m.IsDir = isDir != 0
	m.Tombstoned = tombstoned != 0
	return m, nil
}
