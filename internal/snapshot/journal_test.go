package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/standardbeagle/lci/internal/types"
)

func TestJournalAppendReplayRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}

	updates := []types.Update{
		{Kind: types.UpdateCreate, Path: "a/b.txt", Size: 10, Mtime: 100, Dev: 1, Ino: 2, IsDir: false},
		{Kind: types.UpdateModify, Path: "a/b.txt", Size: 20, Mtime: 200},
		{Kind: types.UpdateMove, OldPath: "a/b.txt", Path: "a/c.txt", Dev: 1, Ino: 2},
		{Kind: types.UpdateDelete, Dev: 1, Ino: 2},
	}
	for _, u := range updates {
		if err := j.Append(u); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var replayed []types.Update
	err = ReplayJournal(path, func(u types.Update) error {
		replayed = append(replayed, u)
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayJournal: %v", err)
	}
	if len(replayed) != len(updates) {
		t.Fatalf("replayed %d updates, want %d", len(replayed), len(updates))
	}
	for i, want := range updates {
		got := replayed[i]
		if got.Kind != want.Kind || got.Path != want.Path || got.OldPath != want.OldPath ||
			got.Size != want.Size || got.Mtime != want.Mtime || got.Dev != want.Dev || got.Ino != want.Ino || got.IsDir != want.IsDir {
			t.Errorf("frame %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestJournalReplayMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.log")
	called := false
	err := ReplayJournal(path, func(u types.Update) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayJournal on missing file: %v", err)
	}
	if called {
		t.Fatalf("apply callback invoked for a missing journal")
	}
}

func TestJournalReplayDiscardsTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	good := types.Update{Kind: types.UpdateCreate, Path: "a.txt", Size: 1, Mtime: 1, Dev: 1, Ino: 1}
	if err := j.Append(good); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate a crash mid-write of a second frame: append a length
	// prefix claiming more payload than actually follows.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.Write([]byte{0xFF, 0xFF, 0xFF, 0x7F, 1, 2, 3}); err != nil {
		t.Fatalf("write torn frame: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var replayed []types.Update
	err = ReplayJournal(path, func(u types.Update) error {
		replayed = append(replayed, u)
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayJournal: %v", err)
	}
	if len(replayed) != 1 {
		t.Fatalf("replayed %d frames, want 1 (the torn tail frame must be discarded)", len(replayed))
	}
	if replayed[0].Path != good.Path {
		t.Errorf("replayed frame = %+v, want %+v", replayed[0], good)
	}
}
