package engine

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/anacrolix/missinggo/v2"
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/types"

	"github.com/RetronetBR/torrentfs/internal/scheduler"
)

// readTimeoutSeconds bounds a single ReadContext call the way distribyted's
// readAtWrapper does; it does not bound scheduler.Read's own wait-for-piece
// loop, which has its own timeout parameter.
const readTimeoutSeconds = 30

// fileReader wraps a torrent.Reader with the ReadAt-via-Seek-then-
// ReadContext pattern, guarded by a mutex since Seek+Read must be atomic
// with respect to concurrent callers sharing one reader.
type fileReader struct {
	mu sync.Mutex
	r  torrent.Reader
}

func newFileReader(r torrent.Reader) *fileReader {
	r.SetResponsive()
	return &fileReader{r: r}
}

func (fr *fileReader) readAt(p []byte, off int64) (int, error) {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	if _, err := fr.r.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return readAtLeast(fr.r, len(p), p)
}

// readAtLeast loops ReadContext calls, each bounded by readTimeoutSeconds,
// until min bytes have been read or an error occurs.
func readAtLeast(r missinggo.ReadContexter, min int, buf []byte) (n int, err error) {
	for n < min && err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), readTimeoutSeconds*time.Second)
		var nn int
		nn, err = r.ReadContext(ctx, buf[n:])
		n += nn
		cancel()
	}
	if n >= min {
		err = nil
	} else if n > 0 && err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return
}

func (fr *fileReader) close() error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return fr.r.Close()
}

// fileSession implements scheduler.Session for one file within the
// engine's torrent: HavePiece consults the torrent's global piece state,
// ReadAt rebases the scheduler's torrent-absolute offset onto this file's
// own reader.
type fileSession struct {
	t      *torrent.Torrent
	file   *torrent.File
	reader *fileReader
}

func (e *Engine) fileSessionFor(path string) (*fileSession, error) {
	e.mu.Lock()
	f, ok := e.files[path]
	e.mu.Unlock()
	if !ok {
		return nil, ErrFileNotFound
	}
	return &fileSession{t: e.t, file: f, reader: newFileReader(f.NewReader())}, nil
}

func (fs *fileSession) HavePiece(index int) bool {
	return fs.t.Piece(index).State().Complete
}

func (fs *fileSession) ReadAt(p []byte, absOff int64) (int, error) {
	rel := absOff - fs.file.Offset()
	return fs.reader.readAt(p, rel)
}

func (fs *fileSession) Close() error {
	return fs.reader.close()
}

// nowRadius is the rank cutoff for read claims: pieces within this distance
// of a claim's start map to the hottest tier; pieces further out still get
// raised but to a cooler tier, approximating momoshtrem's urgent/readahead
// split over anacrolix's four discrete priorities.
const nowRadius = 2

// SetPiecePriority implements scheduler.PieceSetter, translating a
// (PriorityLevel, rank) pair into one of anacrolix's discrete
// types.PiecePriority tiers.
func (ps *pieceSetter) SetPiecePriority(index int, level scheduler.PriorityLevel, rank int) {
	ps.t.Piece(index).SetPriority(priorityTier(level, rank))
}

// priorityTier maps an abstract (PriorityLevel, rank) pair onto one of
// anacrolix's four discrete priority tiers. Kept as a pure function, split
// out from SetPiecePriority, so the mapping is testable without a live
// torrent handle.
func priorityTier(level scheduler.PriorityLevel, rank int) types.PiecePriority {
	switch {
	case level >= scheduler.PriorityRead && rank < nowRadius:
		return types.PiecePriorityNow
	case level >= scheduler.PriorityRead:
		return types.PiecePriorityReadahead
	case level >= scheduler.PriorityPrefetch:
		return types.PiecePriorityHigh
	case level > 0:
		return types.PiecePriorityNormal
	default:
		return types.PiecePriorityNone
	}
}
