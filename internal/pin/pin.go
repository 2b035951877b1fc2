// Package pin implements the persistent per-torrent pin set: a JSON
// array of torrent-relative paths, written atomically via a
// temp-file-then-rename so a crash mid-write never corrupts the
// persisted set, and loaded tolerantly so a crash-truncated file falls
// back to an empty set with a warning instead of failing torrent load.
package pin

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/RetronetBR/torrentfs/internal/pathindex"
	"github.com/RetronetBR/torrentfs/internal/scheduler"
)

// FileName is the name of the pin file within a torrent's cache
// directory.
const FileName = ".pinned.json"

// Entry is one pinned file as returned by List, in the
// {path, file_name, torrent_name, size} shape a listing reports.
type Entry struct {
	Path        string `json:"path"`
	FileName    string `json:"file_name"`
	TorrentName string `json:"torrent_name"`
	Size        int64  `json:"size"`
}

// Store owns one torrent's pin set: the in-memory set, its on-disk file,
// and the priority claims currently raised for pinned pieces. mu guards
// both the in-memory set and the on-disk file (acquire lock -> update
// memory -> atomic rename -> release).
type Store struct {
	mu          sync.Mutex
	path        string
	torrentName string
	set         map[string]bool
	claims      map[string]scheduler.ClaimID
	log         zerolog.Logger
}

// Load reads cacheDir/.pinned.json, tolerating a missing, truncated, or
// invalid file by starting from an empty set (with a logged warning for
// anything other than "file does not exist").
func Load(cacheDir, torrentName string, log zerolog.Logger) *Store {
	s := &Store{
		path:        filepath.Join(cacheDir, FileName),
		torrentName: torrentName,
		set:         make(map[string]bool),
		claims:      make(map[string]scheduler.ClaimID),
		log:         log,
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("could not read pin file, starting empty")
		}
		return s
	}

	var paths []string
	if err := json.Unmarshal(data, &paths); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("pin file invalid, starting empty")
		return s
	}
	for _, p := range paths {
		s.set[p] = true
	}
	return s
}

// Reconcile drops any pinned path that no longer resolves to a file in
// idx, logging a warning for each.
func (s *Store) Reconcile(idx *pathindex.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for p := range s.set {
		if _, err := idx.Lookup(p); err != nil {
			s.log.Warn().Str("path", p).Msg("dropping stale pin: no longer present in torrent")
			delete(s.set, p)
		}
	}
}

// Contains reports whether path is currently pinned.
func (s *Store) Contains(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set[path]
}

// List enumerates the pin set against idx, in the {path, file_name,
// torrent_name, size} shape. Entries whose file has since disappeared
// are skipped (Reconcile is expected to run first in the normal lifecycle,
// but List never panics on stale state).
func (s *Store) List(idx *pathindex.Index) []Entry {
	s.mu.Lock()
	paths := make([]string, 0, len(s.set))
	for p := range s.set {
		paths = append(paths, p)
	}
	s.mu.Unlock()

	out := make([]Entry, 0, len(paths))
	for _, p := range paths {
		e, err := idx.Lookup(p)
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Path:        p,
			FileName:    filepath.Base(p),
			TorrentName: s.torrentName,
			Size:        e.Size,
		})
	}
	return out
}

// Pin adds path to the set (idempotent), persists, and raises every
// piece of e to PriorityRead-equivalent top priority via tracker,
// keeping the claim so Unpin can release exactly it.
func (s *Store) Pin(path string, e pathindex.FileEntry, pieceLength int64, tracker *scheduler.Tracker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.set[path] {
		return nil // already pinned
	}
	s.set[path] = true

	if tracker != nil {
		p0, p1, _ := pathindex.PiecesFor(e, 0, e.Size, pieceLength)
		claims := make([]scheduler.PieceClaim, 0, p1-p0)
		for i := p0; i < p1; i++ {
			claims = append(claims, scheduler.PieceClaim{Index: i, Rank: 0})
		}
		s.claims[path] = tracker.Raise(claims, scheduler.PriorityRead)
	}

	return s.persistLocked()
}

// Unpin removes path from the set and releases its priority claim,
// restoring default priority on any piece no other claimant covers.
func (s *Store) Unpin(path string, tracker *scheduler.Tracker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.set[path] {
		return nil
	}
	delete(s.set, path)

	if tracker != nil {
		if id, ok := s.claims[path]; ok {
			tracker.Release(id)
			delete(s.claims, path)
		}
	}

	return s.persistLocked()
}

// persistLocked writes the current set to disk via temp-file-then-rename.
// Callers must hold s.mu.
func (s *Store) persistLocked() error {
	paths := make([]string, 0, len(s.set))
	for p := range s.set {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	data, err := json.Marshal(paths)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
