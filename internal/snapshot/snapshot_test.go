package snapshot

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/standardbeagle/lci/internal/errors"
	"github.com/standardbeagle/lci/internal/index"
	"github.com/standardbeagle/lci/internal/trigram"
	"github.com/standardbeagle/lci/internal/types"
)

func buildIndex(t *testing.T) *index.Index {
	t.Helper()
	idx := index.New()
	if _, err := idx.Insert("vicaya-core/src/main.rs", "main.rs", 128, 1000, 1, 10, false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := idx.Insert("Cargo.toml", "Cargo.toml", 64, 1001, 1, 11, false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	id, err := idx.Insert("vicaya-core/src/lib.rs", "lib.rs", 256, 1002, 1, 12, false)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	idx.Tombstone(id)
	idx.SetLastEventToken(42)
	idx.BumpGeneration()
	return idx
}

func collectLivePaths(t *testing.T, idx index.Reader) map[string]*types.FileMeta {
	t.Helper()
	out := make(map[string]*types.FileMeta)
	idx.IterLive(func(id types.FileID, m *types.FileMeta) bool {
		p, err := idx.Resolve(m.Path)
		if err != nil {
			t.Fatalf("resolve path: %v", err)
		}
		cp := *m
		out[p] = &cp
		return true
	})
	return out
}

func TestWriteReadRoundTrip(t *testing.T) {
	idx := buildIndex(t)
	path := filepath.Join(t.TempDir(), "snapshot.vcy")

	if err := Write(idx, path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if loaded.Generation() != idx.Generation() {
		t.Errorf("generation = %d, want %d", loaded.Generation(), idx.Generation())
	}
	if loaded.LastEventToken() != idx.LastEventToken() {
		t.Errorf("last event token = %d, want %d", loaded.LastEventToken(), idx.LastEventToken())
	}

	want := collectLivePaths(t, idx)
	got := collectLivePaths(t, loaded)
	if len(got) != len(want) {
		t.Fatalf("live record count = %d, want %d", len(got), len(want))
	}
	for p, wm := range want {
		gm, ok := got[p]
		if !ok {
			t.Errorf("missing live record for %q after round-trip", p)
			continue
		}
		if gm.Size != wm.Size || gm.Mtime != wm.Mtime || gm.Dev != wm.Dev || gm.Ino != wm.Ino {
			t.Errorf("record for %q mismatched: got %+v, want %+v", p, gm, wm)
		}
	}

	ids := loaded.Candidates(trigram.Extract("main"))
	if len(ids) == 0 {
		t.Errorf("expected candidates for trigrams of %q after round-trip, got none", "main")
	}
	foundMain := false
	for _, id := range ids {
		m, ok := loaded.Get(id)
		if !ok {
			continue
		}
		name, err := loaded.Resolve(m.Name)
		if err == nil && name == "main.rs" {
			foundMain = true
		}
	}
	if !foundMain {
		t.Errorf("round-tripped trigram index did not surface main.rs as a candidate")
	}

	tombstonedSeen := false
	loaded.IterLive(func(id types.FileID, m *types.FileMeta) bool {
		name, _ := loaded.Resolve(m.Name)
		if name == "lib.rs" {
			tombstonedSeen = true
		}
		return true
	})
	if tombstonedSeen {
		t.Errorf("tombstoned record lib.rs appeared in IterLive after round-trip")
	}
}

func TestWriteEmptyIndex(t *testing.T) {
	idx := index.New()
	path := filepath.Join(t.TempDir(), "empty.vcy")

	if err := Write(idx, path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	count := 0
	loaded.IterLive(func(id types.FileID, m *types.FileMeta) bool {
		count++
		return true
	})
	if count != 0 {
		t.Errorf("expected zero live records, got %d", count)
	}
}

func TestReadTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.vcy")
	if err := os.WriteFile(path, []byte{'V', 'C'}, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	_, err := Read(path)
	if !errors.Is(err, errors.KindCorrupt) {
		t.Fatalf("Read on truncated file: err = %v, want Corrupt", err)
	}
}

func TestReadBadMagic(t *testing.T) {
	idx := buildIndex(t)
	path := filepath.Join(t.TempDir(), "bad-magic.vcy")
	if err := Write(idx, path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	data[0] = 'X'
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("rewrite fixture: %v", err)
	}
	_, err = Read(path)
	if !errors.Is(err, errors.KindCorrupt) {
		t.Fatalf("Read with bad magic: err = %v, want Corrupt", err)
	}
}

func TestReadCorruptedCRC(t *testing.T) {
	idx := buildIndex(t)
	path := filepath.Join(t.TempDir(), "bad-crc.vcy")
	if err := Write(idx, path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	data[len(data)/2] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("rewrite fixture: %v", err)
	}
	_, err = Read(path)
	if !errors.Is(err, errors.KindCorrupt) {
		t.Fatalf("Read with flipped byte: err = %v, want Corrupt", err)
	}
}

func TestReadIncompatibleVersion(t *testing.T) {
	idx := buildIndex(t)
	path := filepath.Join(t.TempDir(), "bad-version.vcy")
	buf, err := encode(idx)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// version is the little-endian uint32 immediately after the magic;
	// bump it and recompute the trailing crc so only the version check
	// trips, not the checksum check.
	versionOffset := len(Magic)
	binary.LittleEndian.PutUint32(buf[versionOffset:versionOffset+4], 99)
	body := buf[:len(buf)-4]
	sum := crc32.ChecksumIEEE(body)
	binary.LittleEndian.PutUint32(buf[len(buf)-4:], sum)

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	_, err = Read(path)
	if !errors.Is(err, errors.KindIncompatibleVersion) {
		t.Fatalf("Read with bumped version: err = %v, want IncompatibleVersion", err)
	}
}
