package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeManager struct {
	added   []string
	removed []string
	nextID  int
}

func (f *fakeManager) AddFile(path string) (string, error) {
	f.nextID++
	id := filepath.Base(path)
	f.added = append(f.added, path)
	_ = id
	return path, nil
}

func (f *fakeManager) Remove(token string) error {
	f.removed = append(f.removed, token)
	return nil
}

func TestReconcileDetectsAdd(t *testing.T) {
	dir := t.TempDir()
	mgr := &fakeManager{}
	w := New(dir, time.Hour, mgr, zerolog.Nop())

	torrentPath := filepath.Join(dir, "one.torrent")
	if err := os.WriteFile(torrentPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	w.reconcile()

	if len(mgr.added) != 1 || mgr.added[0] != torrentPath {
		t.Fatalf("got added=%v, want [%s]", mgr.added, torrentPath)
	}
}

func TestReconcileDetectsRemove(t *testing.T) {
	dir := t.TempDir()
	mgr := &fakeManager{}
	w := New(dir, time.Hour, mgr, zerolog.Nop())

	torrentPath := filepath.Join(dir, "one.torrent")
	if err := os.WriteFile(torrentPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	w.reconcile()
	if err := os.Remove(torrentPath); err != nil {
		t.Fatal(err)
	}
	w.reconcile()

	if len(mgr.removed) != 1 || mgr.removed[0] != torrentPath {
		t.Fatalf("got removed=%v, want [%s]", mgr.removed, torrentPath)
	}
}

func TestReconcileIgnoresNonTorrentFiles(t *testing.T) {
	dir := t.TempDir()
	mgr := &fakeManager{}
	w := New(dir, time.Hour, mgr, zerolog.Nop())

	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	w.reconcile()

	if len(mgr.added) != 0 {
		t.Fatalf("got added=%v, want none", mgr.added)
	}
}

func TestReconcileRenameIsRemoveThenAdd(t *testing.T) {
	dir := t.TempDir()
	mgr := &fakeManager{}
	w := New(dir, time.Hour, mgr, zerolog.Nop())

	oldPath := filepath.Join(dir, "old.torrent")
	newPath := filepath.Join(dir, "new.torrent")
	if err := os.WriteFile(oldPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	w.reconcile()

	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}
	w.reconcile()

	if len(mgr.removed) != 1 || mgr.removed[0] != oldPath {
		t.Fatalf("got removed=%v, want [%s]", mgr.removed, oldPath)
	}
	if len(mgr.added) != 2 || mgr.added[1] != newPath {
		t.Fatalf("got added=%v, want old then new", mgr.added)
	}
}

func TestRunStopsCleanly(t *testing.T) {
	dir := t.TempDir()
	mgr := &fakeManager{}
	w := New(dir, 10*time.Millisecond, mgr, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	w.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
