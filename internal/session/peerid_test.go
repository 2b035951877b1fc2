package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetOrCreatePeerIDPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peer-id")

	first, err := GetOrCreatePeerID(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == emptyPeerID {
		t.Fatal("expected a non-zero peer id")
	}

	second, err := GetOrCreatePeerID(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("peer id not stable across calls: %v != %v", first, second)
	}
}

func TestGetOrCreatePeerIDRejectsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peer-id")
	if err := os.WriteFile(path, []byte("short"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	id, err := GetOrCreatePeerID(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == emptyPeerID {
		t.Fatal("expected a regenerated non-zero peer id")
	}
}
