package engine

import (
	"testing"

	"github.com/RetronetBR/torrentfs/internal/pathindex"
)

func buildTestIndex() *pathindex.Index {
	idx := pathindex.New()
	idx.Add(pathindex.FileEntry{Path: "show/s01e01.mkv", Size: 100})
	idx.Add(pathindex.FileEntry{Path: "show/s01e02.mkv", Size: 100})
	idx.Add(pathindex.FileEntry{Path: "show/extras/behind.mkv", Size: 50})
	idx.Add(pathindex.FileEntry{Path: "readme.txt", Size: 1})
	return idx
}

func TestWalkFilesCollectsRecursively(t *testing.T) {
	idx := buildTestIndex()
	files, truncated := walkFiles(idx, "show", 0, 0)
	if truncated {
		t.Fatalf("did not expect truncation")
	}
	if len(files) != 3 {
		t.Fatalf("got %d files, want 3", len(files))
	}
}

func TestWalkFilesRespectsMaxFiles(t *testing.T) {
	idx := buildTestIndex()
	files, truncated := walkFiles(idx, "show", 1, 0)
	if !truncated {
		t.Fatalf("expected truncation when max files is hit")
	}
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1", len(files))
	}
}

func TestWalkFilesMaxDepthExcludesDeeperDirectories(t *testing.T) {
	idx := buildTestIndex()
	idx.Add(pathindex.FileEntry{Path: "show/extras/deleted/bonus.mkv", Size: 10})

	// show/extras is at depth 1 (within bounds); show/extras/deleted is
	// at depth 2 and is excluded when maxDepth is 1.
	files, _ := walkFiles(idx, "show", 0, 1)
	for _, f := range files {
		if f.Path == "show/extras/deleted/bonus.mkv" {
			t.Fatalf("maxDepth=1 should not descend past show/extras, but found %s", f.Path)
		}
	}
	if len(files) != 3 {
		t.Fatalf("got %d files, want 3 (episodes + behind.mkv, not bonus.mkv)", len(files))
	}
}
