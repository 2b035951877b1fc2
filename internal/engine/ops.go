package engine

import (
	"context"
	"time"

	"github.com/RetronetBR/torrentfs/internal/pathindex"
	"github.com/RetronetBR/torrentfs/internal/pin"
	"github.com/RetronetBR/torrentfs/internal/prefetch"
	"github.com/RetronetBR/torrentfs/internal/scheduler"
)

// List returns the children of a torrent-relative directory, for the
// `list` command.
func (e *Engine) List(path string) ([]pathindex.Child, error) {
	idx, _, err := e.index()
	if err != nil {
		return nil, err
	}
	return idx.List(path)
}

// Stat returns type+size for a torrent-relative path, for the `stat`
// command.
func (e *Engine) Stat(path string) (pathindex.Stat, error) {
	idx, _, err := e.index()
	if err != nil {
		return pathindex.Stat{}, err
	}
	return idx.Stat(path)
}

// FileInfo returns the full FileEntry for a path, for the
// `file-info` command.
func (e *Engine) FileInfo(path string) (pathindex.FileEntry, error) {
	idx, _, err := e.index()
	if err != nil {
		return pathindex.FileEntry{}, err
	}
	return idx.Lookup(path)
}

// FileHavePieces counts how many of a file's covering pieces are fully
// downloaded, for the `file-info`'s have_pieces field.
func (e *Engine) FileHavePieces(entry pathindex.FileEntry) int {
	have := 0
	for i := entry.FirstPiece; i <= entry.LastPiece; i++ {
		if e.t.Piece(i).State().Complete {
			have++
		}
	}
	return have
}

// PiecesComplete reports how many pieces in [first, last] are fully
// downloaded, for the `prefetch-info`'s head_pieces/tail_pieces and
// have_head/have_tail fields.
func (e *Engine) PiecesComplete(first, last int) (have, total int) {
	if last < first {
		return 0, 0
	}
	total = last - first + 1
	for i := first; i <= last; i++ {
		if e.t.Piece(i).State().Complete {
			have++
		}
	}
	return have, total
}

// Read serves one bounded byte-range read, with blocking semantics
// delegated to internal/scheduler.
func (e *Engine) Read(ctx context.Context, path string, offset, length int64, mode scheduler.Mode, timeout time.Duration) ([]byte, error) {
	idx, _, err := e.index()
	if err != nil {
		return nil, err
	}
	entry, err := idx.Lookup(path)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length <= 0 || length > MaxReadSize {
		return nil, ErrReadSizeInvalid
	}
	// Reads never cross end-of-file; the effective length is clamped to
	// what's left in the file rather than rejected.
	if offset >= entry.Size {
		return []byte{}, nil
	}
	if remaining := entry.Size - offset; length > remaining {
		length = remaining
	}

	sess, err := e.fileSessionFor(path)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	// Registered so Close() can cancel every in-flight read when the
	// torrent is torn down (directory watcher removal, daemon shutdown)
	// instead of leaving them to block until their own timeout.
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	readID := e.registerRead(cancel)
	defer e.finishRead(readID)

	pieceLength := e.PieceLength()
	p0, p1, _ := pathindex.PiecesFor(entry, offset, length, pieceLength)
	req := scheduler.Request{
		AbsOffset:   entry.Offset + offset,
		Length:      length,
		P0:          p0,
		P1:          p1,
		PieceLength: pieceLength,
	}
	return scheduler.Read(readCtx, sess, e.tracker, e.waiter, req, mode, timeout)
}

// Pin pins a single file.
func (e *Engine) Pin(path string) error {
	idx, pins, err := e.index()
	if err != nil {
		return err
	}
	entry, err := idx.Lookup(path)
	if err != nil {
		return err
	}
	return pins.Pin(path, entry, e.PieceLength(), e.tracker)
}

// Unpin releases a single file's pin.
func (e *Engine) Unpin(path string) error {
	_, pins, err := e.index()
	if err != nil {
		return err
	}
	return pins.Unpin(path, e.tracker)
}

// Pinned enumerates the current pin set.
func (e *Engine) Pinned() []pin.Entry {
	idx, pins, err := e.index()
	if err != nil {
		return nil
	}
	return pins.List(idx)
}

// PinDir pins every file under a directory.
func (e *Engine) PinDir(dirPath string, bounds pin.WalkBounds) ([]string, bool, error) {
	idx, pins, err := e.index()
	if err != nil {
		return nil, false, err
	}
	return pins.PinDir(idx, dirPath, e.PieceLength(), e.tracker, bounds)
}

// UnpinDir releases every pin under a directory.
func (e *Engine) UnpinDir(dirPath string, bounds pin.WalkBounds) ([]string, bool, error) {
	idx, pins, err := e.index()
	if err != nil {
		return nil, false, err
	}
	return pins.UnpinDir(idx, dirPath, e.tracker, bounds)
}

// PrefetchInfo reports what a prefetch of path would cover, without
// raising any claim.
func (e *Engine) PrefetchInfo(path string) (prefetch.Ranges, error) {
	idx, _, err := e.index()
	if err != nil {
		return prefetch.Ranges{}, err
	}
	entry, err := idx.Lookup(path)
	if err != nil {
		return prefetch.Ranges{}, err
	}
	return e.cfg.Prefetch.Resolve(entry.Path, entry.Size), nil
}

// Prefetch raises prefetch-tier claims over path's head/tail ranges
// (or, for a directory, every matching descendant file up to the
// configured bounds).
func (e *Engine) Prefetch(path string) ([]string, error) {
	idx, _, err := e.index()
	if err != nil {
		return nil, err
	}
	st, err := idx.Stat(path)
	if err != nil {
		return nil, err
	}

	var entries []pathindex.FileEntry
	if st.Type == pathindex.TypeFile {
		fe, err := idx.Lookup(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fe)
	} else {
		entries, _ = walkFiles(idx, path, e.cfg.Prefetch.MaxFiles, e.cfg.Prefetch.MaxDirs)
	}

	var touched []string
	var plans []prefetch.FilePlan
	for _, fe := range entries {
		if !e.cfg.Prefetch.Applies(fe.Path) {
			continue
		}
		plans = append(plans, e.cfg.Prefetch.PlanFile(fe, e.PieceLength()))
		touched = append(touched, fe.Path)
	}

	ids := prefetch.Run(e.tracker, plans, e.cfg.Prefetch, prefetch.RealSleeper{})

	e.mu.Lock()
	e.prefetchIDs = append(e.prefetchIDs, ids...)
	e.mu.Unlock()

	return touched, nil
}

// walkFiles collects file entries under dirPath bounded by maxFiles and
// maxDepth. It mirrors
// internal/pin's own bounded walker, duplicated here rather than
// exported cross-package since the two callers take their bounds from
// different places (pin from the request's max_files/max_depth; prefetch
// from its config, passing MaxDirs as the recursion-depth bound).
func walkFiles(idx *pathindex.Index, dirPath string, maxFiles, maxDepth int) ([]pathindex.FileEntry, bool) {
	var out []pathindex.FileEntry
	truncated := false

	var walk func(p string, depth int)
	walk = func(p string, depth int) {
		if maxDepth > 0 && depth > maxDepth {
			return
		}
		children, err := idx.List(p)
		if err != nil {
			return
		}
		for _, c := range children {
			if maxFiles > 0 && len(out) >= maxFiles {
				truncated = true
				return
			}
			childPath := p + "/" + c.Name
			if p == "" {
				childPath = c.Name
			}
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

// PeerStats is a torrent's current connection counts.
type PeerStats struct {
	ActivePeers      int
	ConnectedSeeders int
	HalfOpenPeers    int
}

func (e *Engine) Peers() PeerStats {
	st := e.t.Stats()
	return PeerStats{
		ActivePeers:      st.ActivePeers,
		ConnectedSeeders: st.ConnectedSeeders,
		HalfOpenPeers:    st.HalfOpenPeers,
	}
}

// Pause stops data transfer without dropping the torrent, entering the
// `paused` state.
func (e *Engine) Pause() {
	e.t.DisallowDataDownload()
	e.t.DisallowDataUpload()
	e.mu.Lock()
	e.paused = true
	e.state = StatePaused
	e.mu.Unlock()
}

// Resume un-pauses a previously paused torrent.
func (e *Engine) Resume() {
	e.t.AllowDataDownload()
	e.t.AllowDataUpload()
	e.mu.Lock()
	e.paused = false
	if e.state == StatePaused {
		e.state = StateDownloading
	}
	e.mu.Unlock()
}
