package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/standardbeagle/lci/internal/types"
)

func newTestWatcher(t *testing.T, pairWindow time.Duration) *Watcher {
	t.Helper()
	w, err := New(Options{PairWindow: pairWindow})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func recvUpdate(t *testing.T, w *Watcher, timeout time.Duration) types.Update {
	t.Helper()
	select {
	case u := <-w.events:
		return u
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for an update")
		return types.Update{}
	}
}

func expectNoUpdate(t *testing.T, w *Watcher, within time.Duration) {
	t.Helper()
	select {
	case u := <-w.events:
		t.Fatalf("unexpected update: %+v", u)
	case <-time.After(within):
	}
}

func TestAddWatchesPopulatesCacheAndSkipsExclusions(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.txt"), "a")
	mustWrite(t, filepath.Join(root, "node_modules", "dep.js"), "x")

	w := newTestWatcher(t, time.Hour)
	w.exclusions = []string{"node_modules"}
	if err := w.addWatches(root); err != nil {
		t.Fatalf("addWatches: %v", err)
	}

	if _, ok := w.devInoCache[filepath.Join(root, "a.txt")]; !ok {
		t.Errorf("expected a.txt to be tracked in devInoCache")
	}
	if _, ok := w.devInoCache[filepath.Join(root, "node_modules", "dep.js")]; ok {
		t.Errorf("expected node_modules/dep.js to be excluded from devInoCache")
	}
}

func TestHandleCreateEmitsCreate(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "new.txt")
	mustWrite(t, path, "hello")

	w := newTestWatcher(t, time.Hour)
	w.handleCreate(path)

	u := recvUpdate(t, w, time.Second)
	if u.Kind != types.UpdateCreate {
		t.Errorf("kind = %v, want Create", u.Kind)
	}
	if u.Path != path {
		t.Errorf("path = %q, want %q", u.Path, path)
	}
	if u.Dev == 0 && u.Ino == 0 {
		t.Errorf("expected non-zero dev/ino")
	}
}

func TestHandleWriteEmitsModify(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "existing.txt")
	mustWrite(t, path, "v1")

	w := newTestWatcher(t, time.Hour)
	mustWrite(t, path, "v2, longer content")
	w.handleWrite(path)

	u := recvUpdate(t, w, time.Second)
	if u.Kind != types.UpdateModify {
		t.Errorf("kind = %v, want Modify", u.Kind)
	}
	if u.Path != path {
		t.Errorf("path = %q, want %q", u.Path, path)
	}
}

func TestRenamePairsIntoMoveWithinWindow(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "old.txt")
	newPath := filepath.Join(root, "new.txt")
	mustWrite(t, oldPath, "content")

	w := newTestWatcher(t, 200*time.Millisecond)
	// Simulate the watcher having previously observed oldPath present.
	w.handleWrite(oldPath)
	recvUpdate(t, w, time.Second) // drain the Modify from handleWrite above

	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatalf("rename: %v", err)
	}
	w.handleDeparture(oldPath)
	w.handleCreate(newPath)

	u := recvUpdate(t, w, time.Second)
	if u.Kind != types.UpdateMove {
		t.Fatalf("kind = %v, want Move", u.Kind)
	}
	if u.OldPath != oldPath || u.Path != newPath {
		t.Errorf("move = {%q -> %q}, want {%q -> %q}", u.OldPath, u.Path, oldPath, newPath)
	}

	expectNoUpdate(t, w, 400*time.Millisecond)
}

func TestDepartureFlushesAsDeleteWithoutMatchingCreate(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.txt")
	mustWrite(t, path, "content")

	w := newTestWatcher(t, 60*time.Millisecond)
	w.handleWrite(path)
	recvUpdate(t, w, time.Second) // drain the Modify

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	w.handleDeparture(path)

	u := recvUpdate(t, w, time.Second)
	if u.Kind != types.UpdateDelete {
		t.Fatalf("kind = %v, want Delete", u.Kind)
	}
	if u.Path != path {
		t.Errorf("path = %q, want %q", u.Path, path)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
