// Package watcher detects `.torrent` files
// appearing in or disappearing from a watched directory and drives the
// manager's add/remove lifecycle accordingly. A poll loop is the
// primary, portable mechanism (required so this works over network
// filesystems and inside containers where inotify is unreliable); an
// fsnotify subscription layers a fast path on top, nudging an
// out-of-cycle poll rather than replacing it.
package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Manager is the subset of *manager.Manager the watcher needs. Taking
// an interface here (rather than importing internal/manager directly)
// keeps this package testable with a fake.
type Manager interface {
	AddFile(path string) (string, error)
	Remove(token string) error
}

// Watcher polls dir for `*.torrent` files and reconciles the manager's
// loaded set against what it finds.
type Watcher struct {
	dir          string
	poll         time.Duration
	mgr          Manager
	log          zerolog.Logger
	fsWatcher    *fsnotify.Watcher // nil if the fast path failed to start
	nudge        chan struct{}
	stop         chan struct{}
	stopped      chan struct{}
	mu           sync.Mutex
	known        map[string]string // path -> torrent id, for remove-on-disappear
}

// New creates a Watcher over dir. It does not start polling; call Run.
func New(dir string, pollInterval time.Duration, mgr Manager, log zerolog.Logger) *Watcher {
	return &Watcher{
		dir:     dir,
		poll:    pollInterval,
		mgr:     mgr,
		log:     log.With().Str("component", "watcher").Logger(),
		nudge:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		known:   make(map[string]string),
	}
}

// Run performs an initial scan, then alternates between the poll timer
// and (when available) fsnotify-driven nudges until Stop is called.
// It blocks; call it from its own goroutine.
func (w *Watcher) Run() {
	defer close(w.stopped)

	w.reconcile()
	w.startFsWatch()
	if w.fsWatcher != nil {
		defer w.fsWatcher.Close()
		go w.consumeFsEvents()
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.reconcile()
		case <-w.nudge:
			w.reconcile()
		}
	}
}

// Stop halts the watcher and waits for Run to return.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.stopped
}

// startFsWatch attempts to layer an fsnotify subscription over the poll
// loop. Failure (e.g. inotify watch limit reached) is non-fatal: the
// poll loop alone still detects every add and remove.
func (w *Watcher) startFsWatch() {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn().Err(err).Msg("fsnotify unavailable, falling back to poll-only watching")
		return
	}
	if err := fw.Add(w.dir); err != nil {
		w.log.Warn().Err(err).Msg("fsnotify failed to watch directory, falling back to poll-only watching")
		fw.Close()
		return
	}
	w.fsWatcher = fw
}

func (w *Watcher) consumeFsEvents() {
	for {
		select {
		case _, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			select {
			case w.nudge <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("fsnotify error")
		}
	}
}

// reconcile snapshots the directory's `*.torrent` files and diffs them
// against the previously-known set. A file present now that wasn't
// known is an add; a file known that's no longer present is a remove.
// A same-cycle rename (old name vanishes, new name appears) and a
// cross-cycle rename both fall out of this diff as a plain
// remove-then-add, which is the documented modelling of renames.
func (w *Watcher) reconcile() {
	current := make(map[string]bool)
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn().Err(err).Str("dir", w.dir).Msg("failed to scan watched directory")
		return
	}
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".torrent" {
			continue
		}
		current[filepath.Join(w.dir, ent.Name())] = true
	}

	w.mu.Lock()
	var toAdd []string
	for path := range current {
		if _, ok := w.known[path]; !ok {
			toAdd = append(toAdd, path)
		}
	}
	var toRemove []string
	for path, id := range w.known {
		if !current[path] {
			toRemove = append(toRemove, id)
			delete(w.known, path)
		}
	}
	w.mu.Unlock()

	for _, id := range toRemove {
		if err := w.mgr.Remove(id); err != nil {
			w.log.Warn().Err(err).Str("id", id).Msg("failed to remove torrent for vanished file")
		}
	}
	for _, path := range toAdd {
		id, err := w.mgr.AddFile(path)
		if err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("failed to add torrent from watched file")
			continue
		}
		w.mu.Lock()
		w.known[path] = id
		w.mu.Unlock()
	}
}
