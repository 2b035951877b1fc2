// Package engine implements the per-torrent engine: it owns
// a torrent handle, the path index built from that handle's metadata,
// an outstanding-reads table, and the pin/prefetch state for one torrent,
// and exposes the operations the RPC command table needs.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/rs/zerolog"

	"github.com/RetronetBR/torrentfs/internal/pathindex"
	"github.com/RetronetBR/torrentfs/internal/pin"
	"github.com/RetronetBR/torrentfs/internal/prefetch"
	"github.com/RetronetBR/torrentfs/internal/scheduler"
)

// State mirrors the lifecycle states `status` reports.
type State string

const (
	StateCheckingFiles State = "checking_files"
	StateDownloading   State = "downloading"
	StateSeeding       State = "seeding"
	StatePaused        State = "paused"
	StateError         State = "error"
)

// Config configures one Engine, threaded down from the daemon's own
// Config (internal/config) and the manager.
type Config struct {
	SkipCheck          bool
	ResumeSaveInterval time.Duration
	Prefetch           prefetch.Config
}

// Engine owns one torrent's handle and every piece of derived state
// a per-torrent engine owns: path index, outstanding reads, pin store, priority tracker.
type Engine struct {
	ID          string
	Name        string
	TorrentName string
	CacheDir    string

	cfg Config
	t   *torrent.Torrent
	log zerolog.Logger

	idx     *pathindex.Index
	files   map[string]*torrent.File // path -> file, built alongside idx
	tracker *scheduler.Tracker
	waiter  *scheduler.PieceWaiter
	pins    *pin.Store

	mu          sync.Mutex
	state       State
	errMsg      string
	paused      bool
	reads       map[uint64]*outstandingRead
	nextReadID  uint64
	prefetchIDs []scheduler.ClaimID

	closeOnce  sync.Once
	stopAlert  chan struct{}
	stopResume chan struct{}
}

type outstandingRead struct {
	cancel context.CancelFunc
}

// New builds an Engine around an already-added *torrent.Torrent. It does
// not wait for metadata; Start does, which is why callers run Start in
// its own goroutine so a slow metadata fetch never blocks the manager.
func New(id, name string, t *torrent.Torrent, cacheDir string, cfg Config, log zerolog.Logger) *Engine {
	e := &Engine{
		ID:         id,
		Name:       name,
		CacheDir:   cacheDir,
		cfg:        cfg,
		t:          t,
		log:        log.With().Str("torrent", name).Str("id", id).Logger(),
		files:      make(map[string]*torrent.File),
		waiter:     scheduler.NewPieceWaiter(),
		reads:      make(map[uint64]*outstandingRead),
		state:      StateCheckingFiles,
		stopAlert:  make(chan struct{}),
		stopResume: make(chan struct{}),
	}
	e.tracker = scheduler.NewTracker(&pieceSetter{t: t, log: e.log})
	return e
}

// Start waits for metadata, builds the path index and pin store, and
// launches the alert and resume-save background loops. Call once, after
// New, from a dedicated goroutine per torrent per the threading
// model.
func (e *Engine) Start(ctx context.Context) error {
	select {
	case <-e.t.GotInfo():
	case <-ctx.Done():
		e.fail(ctx.Err())
		return ctx.Err()
	}

	info := e.t.Info()
	e.TorrentName = info.Name

	idx := pathindex.New()
	files := make(map[string]*torrent.File, len(e.t.Files()))
	for _, f := range e.t.Files() {
		path := f.Path()
		files[path] = f
		p0, p1, _ := pathindex.PiecesFor(pathindex.FileEntry{Offset: f.Offset(), Size: f.Length()}, 0, f.Length(), info.PieceLength)
		idx.Add(pathindex.FileEntry{
			Path:             path,
			Size:             f.Length(),
			Offset:           f.Offset(),
			FirstPiece:       p0,
			LastPiece:        p1 - 1,
			FirstPieceOffset: f.Offset() % info.PieceLength,
			LastPieceOffset:  (f.Offset() + f.Length()) % info.PieceLength,
		})
	}

	pins := pin.Load(e.CacheDir, e.TorrentName, e.log)
	pins.Reconcile(idx)

	// Published under the same lock RPC workers take via index(): an RPC
	// arriving for this torrent before metadata resolves sees a
	// not-ready error, never a half-built index.
	e.mu.Lock()
	e.idx = idx
	e.files = files
	e.pins = pins
	e.state = StateDownloading
	e.mu.Unlock()

	if e.cfg.SkipCheck {
		// An escape hatch for letting cached data stand without
		// re-verification; anacrolix re-checks on its own
		// schedule once pieces are marked wanted, so there is no single
		// "skip" toggle to flip here beyond not blocking on it.
		e.log.Debug().Msg("skip_check set: not waiting for hash check before reporting ready")
	}

	go e.consumeAlerts()
	if e.cfg.ResumeSaveInterval > 0 {
		go e.resumeLoop()
	}
	if e.cfg.Prefetch.OnStart {
		go func() {
			if _, err := e.Prefetch(""); err != nil {
				e.log.Warn().Err(err).Msg("on-start prefetch failed")
			}
		}()
	}
	return nil
}

// PieceLength returns the torrent's fixed piece size.
func (e *Engine) PieceLength() int64 {
	if info := e.t.Info(); info != nil {
		return info.PieceLength
	}
	return 0
}

// index returns the built path index and pin store, or ErrNotReady while
// metadata is still resolving.
func (e *Engine) index() (*pathindex.Index, *pin.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.idx == nil {
		return nil, nil, ErrNotReady
	}
	return e.idx, e.pins, nil
}

// LogicalBytes is Σ file.size × have-fraction, the resolved definition
// of the open question on cache-size semantics.
func (e *Engine) LogicalBytes() int64 {
	var total int64
	info := e.t.Info()
	if info == nil {
		return 0
	}
	for _, f := range e.t.Files() {
		p0, p1, _ := pathindex.PiecesFor(pathindex.FileEntry{Offset: f.Offset(), Size: f.Length()}, 0, f.Length(), info.PieceLength)
		if p1 <= p0 {
			continue
		}
		have := 0
		for i := p0; i < p1; i++ {
			if e.t.Piece(i).State().Complete {
				have++
			}
		}
		total += f.Length() * int64(have) / int64(p1-p0)
	}
	return total
}

// Close tears down the engine's background loops and cancels every
// in-flight read. It does not touch the torrent handle: the caller
// (manager) is responsible for removing the handle from the session and
// the cache directory.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.stopAlert)
		close(e.stopResume)

		e.mu.Lock()
		for _, r := range e.reads {
			r.cancel()
		}
		e.mu.Unlock()
	})
}

// Reannounce asks the session to re-announce this torrent to its
// trackers/DHT immediately. anacrolix/torrent has no dedicated
// "reannounce now" verb, so this toggles the data-download allowance,
// which nudges the want-peers accounting the session's tracker/DHT
// workers react to — without touching any piece priority.
func (e *Engine) Reannounce() {
	e.mu.Lock()
	paused := e.paused
	e.mu.Unlock()

	e.t.DisallowDataDownload()
	if !paused {
		e.t.AllowDataDownload()
	}
}

// pieceSetter adapts scheduler.PieceSetter onto a real torrent handle,
// resolving our abstract PriorityLevel+rank pair into the session's
// discrete priority tiers (types.PiecePriority) — see
// internal/scheduler's design note on why rank exists at all.
type pieceSetter struct {
	t   *torrent.Torrent
	log zerolog.Logger
}

func (e *Engine) newReadID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextReadID++
	return e.nextReadID
}

func (e *Engine) registerRead(cancel context.CancelFunc) uint64 {
	id := e.newReadID()
	e.mu.Lock()
	e.reads[id] = &outstandingRead{cancel: cancel}
	e.mu.Unlock()
	return id
}

func (e *Engine) finishRead(id uint64) {
	e.mu.Lock()
	delete(e.reads, id)
	e.mu.Unlock()
}

// fail records a fatal torrent-level error, moving the engine to
// StateError; callers surface this via Status.
func (e *Engine) fail(err error) {
	e.mu.Lock()
	e.state = StateError
	e.errMsg = err.Error()
	e.mu.Unlock()
	e.log.Error().Err(err).Msg("torrent entered error state")
}
