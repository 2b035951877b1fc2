package pin

import (
	"path"

	"github.com/RetronetBR/torrentfs/internal/pathindex"
	"github.com/RetronetBR/torrentfs/internal/scheduler"
)

// WalkBounds bounds a directory pin/unpin traversal, mirroring the
// max_files/depth limits pin-dir/unpin-dir share with
// prefetch's directory traversal.
type WalkBounds struct {
	MaxFiles int
	MaxDepth int
}

// collectFiles walks dirPath in idx up to bounds, returning the file
// entries found (and whether the file cap was hit, so the caller can
// report a partial result rather than silently truncating).
func collectFiles(idx *pathindex.Index, dirPath string, bounds WalkBounds) ([]pathindex.FileEntry, bool) {
	var out []pathindex.FileEntry
	truncated := false

	var walk func(p string, depth int)
	walk = func(p string, depth int) {
		if bounds.MaxDepth > 0 && depth > bounds.MaxDepth {
			return
		}
		children, err := idx.List(p)
		if err != nil {
			return
		}
		for _, c := range children {
			if bounds.MaxFiles > 0 && len(out) >= bounds.MaxFiles {
				truncated = true
				return
			}
			childPath := path.Join(p, c.Name)
			if c.Type == pathindex.TypeDir {
				walk(childPath, depth+1)
				continue
			}
			if e, err := idx.Lookup(childPath); err == nil {
				out = append(out, e)
			}
		}
	}
	walk(dirPath, 0)
	return out, truncated
}

// PinDir pins every file found under dirPath (bounded by bounds),
// returning the paths pinned and whether traversal was truncated by
// MaxFiles.
func (s *Store) PinDir(idx *pathindex.Index, dirPath string, pieceLength int64, tracker *scheduler.Tracker, bounds WalkBounds) ([]string, bool, error) {
	files, truncated := collectFiles(idx, dirPath, bounds)
	pinned := make([]string, 0, len(files))
	for _, e := range files {
		if err := s.Pin(e.Path, e, pieceLength, tracker); err != nil {
			return pinned, truncated, err
		}
		pinned = append(pinned, e.Path)
	}
	return pinned, truncated, nil
}

// UnpinDir unpins every file found under dirPath (bounded by bounds).
func (s *Store) UnpinDir(idx *pathindex.Index, dirPath string, tracker *scheduler.Tracker, bounds WalkBounds) ([]string, bool, error) {
	files, truncated := collectFiles(idx, dirPath, bounds)
	unpinned := make([]string, 0, len(files))
	for _, e := range files {
		if err := s.Unpin(e.Path, tracker); err != nil {
			return unpinned, truncated, err
		}
		unpinned = append(unpinned, e.Path)
	}
	return unpinned, truncated, nil
}
