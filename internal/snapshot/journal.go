// Journal framing and replay: the append-only record of updates applied
// on top of the most recent snapshot. Grounded on the same
// length-prefixed-and-checksummed framing idiom as snapshot.go, applied
// per-frame instead of once for the whole file.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/standardbeagle/lci/internal/errors"
	"github.com/standardbeagle/lci/internal/types"
)

func crc32Sum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// Journal is an append-only frame writer over a single open file handle,
// owned exclusively by the journal writer role.
type Journal struct {
	f *os.File
}

// OpenJournal opens (creating if absent) the journal file at path for
// appending.
func OpenJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.IoFatal("journal.open", err)
	}
	return &Journal{f: f}, nil
}

// Close closes the underlying file handle.
func (j *Journal) Close() error {
	return j.f.Close()
}

// Append frames u and writes it, flushing and fsyncing before returning,
// so the caller may acknowledge the external request that produced u only
// once this call succeeds.
func (j *Journal) Append(u types.Update) error {
	payload := encodePayload(u)
	frame := frameBytes(byte(u.Kind), payload)
	if _, err := j.f.Write(frame); err != nil {
		return errors.IoTransient("journal.append.write", err)
	}
	if err := j.f.Sync(); err != nil {
		return errors.IoTransient("journal.append.fsync", err)
	}
	return nil
}

func frameBytes(kind byte, payload []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(len(payload))+1) // +1 for kind byte
	buf.WriteByte(kind)
	buf.Write(payload)
	sum := crc32Sum(buf.Bytes())
	binary.Write(&buf, binary.LittleEndian, sum)
	return buf.Bytes()
}

func encodePayload(u types.Update) []byte {
	var buf bytes.Buffer
	switch u.Kind {
	case types.UpdateCreate:
		writeString(&buf, u.Path)
		binary.Write(&buf, binary.LittleEndian, u.Size)
		binary.Write(&buf, binary.LittleEndian, u.Mtime)
		binary.Write(&buf, binary.LittleEndian, u.Dev)
		binary.Write(&buf, binary.LittleEndian, u.Ino)
		buf.WriteByte(boolByte(u.IsDir))
	case types.UpdateModify:
		writeString(&buf, u.Path)
		binary.Write(&buf, binary.LittleEndian, u.Size)
		binary.Write(&buf, binary.LittleEndian, u.Mtime)
	case types.UpdateDelete:
		binary.Write(&buf, binary.LittleEndian, u.Dev)
		binary.Write(&buf, binary.LittleEndian, u.Ino)
	case types.UpdateMove:
		writeString(&buf, u.OldPath)
		writeString(&buf, u.Path)
		binary.Write(&buf, binary.LittleEndian, u.Dev)
		binary.Write(&buf, binary.LittleEndian, u.Ino)
	}
	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func decodePayload(kind byte, payload []byte) (types.Update, error) {
	r := bytes.NewReader(payload)
	u := types.Update{Kind: types.UpdateKind(kind)}
	switch u.Kind {
	case types.UpdateCreate:
		path, err := readString(r)
		if err != nil {
			return u, err
		}
		u.Path = path
		if err := binary.Read(r, binary.LittleEndian, &u.Size); err != nil {
			return u, err
		}
		if err := binary.Read(r, binary.LittleEndian, &u.Mtime); err != nil {
			return u, err
		}
		if err := binary.Read(r, binary.LittleEndian, &u.Dev); err != nil {
			return u, err
		}
		if err := binary.Read(r, binary.LittleEndian, &u.Ino); err != nil {
			return u, err
		}
		isDir, err := r.ReadByte()
		if err != nil {
			return u, err
		}
		u.IsDir = isDir != 0
	case types.UpdateModify:
		path, err := readString(r)
		if err != nil {
			return u, err
		}
		u.Path = path
		if err := binary.Read(r, binary.LittleEndian, &u.Size); err != nil {
			return u, err
		}
		if err := binary.Read(r, binary.LittleEndian, &u.Mtime); err != nil {
			return u, err
		}
	case types.UpdateDelete:
		if err := binary.Read(r, binary.LittleEndian, &u.Dev); err != nil {
			return u, err
		}
		if err := binary.Read(r, binary.LittleEndian, &u.Ino); err != nil {
			return u, err
		}
	case types.UpdateMove:
		oldPath, err := readString(r)
		if err != nil {
			return u, err
		}
		u.OldPath = oldPath
		newPath, err := readString(r)
		if err != nil {
			return u, err
		}
		u.Path = newPath
		if err := binary.Read(r, binary.LittleEndian, &u.Dev); err != nil {
			return u, err
		}
		if err := binary.Read(r, binary.LittleEndian, &u.Ino); err != nil {
			return u, err
		}
	default:
		return u, fmt.Errorf("journal: unknown frame kind %d", kind)
	}
	return u, nil
}

// ReplayJournal reads every complete frame in path in order, calling
// apply for each. It stops at the first corrupt or truncated frame,
// silently discarding the partial tail — a torn write from a crash
// mid-append, not a condition worth failing startup over.
func ReplayJournal(path string, apply func(types.Update) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.IoFatal("journal.replay.open", err)
	}

	offset := 0
	for offset < len(data) {
		if offset+4 > len(data) {
			break // truncated length prefix
		}
		frameLen := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if frameLen < 1 || offset+frameLen+4 > len(data) {
			break // truncated payload or crc
		}
		body := data[offset : offset+frameLen]
		wantSum := binary.LittleEndian.Uint32(data[offset+frameLen : offset+frameLen+4])
		frameForSum := data[offset-4 : offset+frameLen]
		if crc32Sum(frameForSum) != wantSum {
			break // corrupt frame; discard this and everything after
		}

		kind := body[0]
		payload := body[1:]
		u, err := decodePayload(kind, payload)
		if err != nil {
			break
		}
		if err := apply(u); err != nil {
			return err
		}
		offset += frameLen + 4
	}
	return nil
}
