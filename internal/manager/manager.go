// Package manager implements the torrent registry: a
// {id -> *engine.Engine} map plus a {name -> id} index used to resolve
// the tokens the RPC command table accepts, and the add/remove
// lifecycle that wires a freshly added torrent into cache, engine, and
// directory-watcher state.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/rs/zerolog"

	"github.com/RetronetBR/torrentfs/internal/cachemgr"
	"github.com/RetronetBR/torrentfs/internal/engine"
)

// Sentinel errors mapped onto the Validation error tokens by the
// RPC dispatch layer (TorrentRequired, TorrentNotFound:<token>,
// TorrentNameAmbiguous:<name>).
var (
	ErrTorrentRequired = errors.New("manager: torrent token required")
)

// NotFoundError carries the token that failed to resolve, for
// `TorrentNotFound:<token>`.
type NotFoundError struct{ Token string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("manager: torrent not found: %s", e.Token) }

// AmbiguousError carries the name that matched more than one torrent,
// for `TorrentNameAmbiguous:<name>`.
type AmbiguousError struct{ Name string }

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("manager: torrent name ambiguous: %s", e.Name)
}

// shortIDLen is how many leading hex characters of an info hash
// disambiguate a name clash in the `name__<short-id>` resolution form.
const shortIDLen = 8

// entry pairs an engine with the base name it was added under — the
// `.torrent` basename for a file-sourced add, or (until metadata
// resolves it) the metadata-provided torrent name for a magnet/URL add.
// Disambiguation (`name__<short-id>`) is derived from baseName plus
// registration order, never stored directly.
type entry struct {
	eng      *engine.Engine
	baseName string
	fromFile bool // baseName came from a .torrent file basename, not metadata
}

// Config carries the manager-level knobs alongside the engine config
// applied to every torrent it creates.
type Config struct {
	Engine engine.Config

	// TrackerAliases maps `torrentfs://<name>` tracker URLs found in a
	// torrent's announce list to real tracker URL lists, substituted at
	// torrent load.
	TrackerAliases map[string][]string

	// CheckingMaxActive bounds how many torrents may be starting up
	// (waiting on metadata / verifying cached data) at once. 0 means
	// unlimited.
	CheckingMaxActive int

	// MaxMetadataMB caps the size of a fetched .torrent document. 0 means
	// unlimited.
	MaxMetadataMB int
}

// Manager owns every currently-loaded torrent's Engine, resolvable by
// info-hash id or by name (with `name__<short-id>` disambiguation).
type Manager struct {
	client   *torrent.Client
	cache    *cachemgr.Manager
	cfg      Config
	log      zerolog.Logger
	checkSem chan struct{} // nil when CheckingMaxActive is 0

	torrentDir string // watched directory new .torrent files are written into

	mu      sync.RWMutex
	byID    map[string]*entry
	cancels map[string]context.CancelFunc
	// order records, per base name, the ids that registered under it in
	// registration order. The first id for a base name displays/resolves
	// as the plain base name; every later id with the same base name is
	// the collision the data model disambiguates as `name__<short-id>`.
	order map[string][]string
}

// New returns an empty Manager. client is the shared anacrolix session;
// cache roots per-torrent cache directories; cfg.Engine is applied to
// every Engine this Manager creates.
func New(client *torrent.Client, cache *cachemgr.Manager, torrentDir string, cfg Config, log zerolog.Logger) *Manager {
	m := &Manager{
		client:     client,
		cache:      cache,
		cfg:        cfg,
		log:        log.With().Str("component", "manager").Logger(),
		torrentDir: torrentDir,
		byID:       make(map[string]*entry),
		cancels:    make(map[string]context.CancelFunc),
		order:      make(map[string][]string),
	}
	if cfg.CheckingMaxActive > 0 {
		m.checkSem = make(chan struct{}, cfg.CheckingMaxActive)
	}
	return m
}

// torrentBaseName derives the data model's "basename of the source
// .torrent file" from a file path: the file's basename with a trailing
// `.torrent` stripped.
func torrentBaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, ".torrent")
}

// AddFile adds a torrent from a .torrent file already on disk (the
// directory watcher's normal path). The registry name is the file's
// basename, not the torrent's metadata-provided name.
func (m *Manager) AddFile(path string) (string, error) {
	t, err := m.client.AddTorrentFromFile(path)
	if err != nil {
		return "", err
	}
	return m.register(t, torrentBaseName(path), true)
}

// AddMagnet adds a torrent from a magnet URI. There is no source
// .torrent file yet, so the registry name falls back
// to the metadata-provided name once it resolves. Once metadata arrives,
// the resolved .torrent file is written into the watched directory so a
// future restart picks it up the same way a directory-dropped file
// would.
func (m *Manager) AddMagnet(uri string) (string, error) {
	t, err := m.client.AddMagnet(uri)
	if err != nil {
		return "", err
	}
	id, err := m.register(t, "", false)
	if err != nil {
		return "", err
	}

	go m.persistTorrentFile(t)
	return id, nil
}

// AddURL fetches a .torrent document over HTTP(S) and adds it, for
// `source-add`'s URL form. The metainfo is persisted into the watched
// directory exactly as AddMagnet does, so the fetch is never repeated on
// restart.
func (m *Manager) AddURL(url string) (string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// max_metadata_mb: a fetched document larger than the cap fails to
	// parse as metainfo instead of buffering without bound.
	body := io.Reader(resp.Body)
	if m.cfg.MaxMetadataMB > 0 {
		body = io.LimitReader(body, int64(m.cfg.MaxMetadataMB)*1024*1024)
	}

	mi, err := metainfo.Load(body)
	if err != nil {
		return "", err
	}
	t, _, err := m.client.AddTorrent(mi)
	if err != nil {
		return "", err
	}
	id, err := m.register(t, "", false)
	if err != nil {
		return "", err
	}
	go m.persistTorrentFile(t)
	return id, nil
}

// substituteTrackers resolves `torrentfs://<name>` entries in a loaded
// torrent's announce list against the configured alias map, adding the
// aliased tracker URL lists to the live handle. Unaliased entries are
// left alone; the session simply fails to reach them.
func (m *Manager) substituteTrackers(t *torrent.Torrent) {
	if len(m.cfg.TrackerAliases) == 0 {
		return
	}
	var tiers [][]string
	for _, tier := range t.Metainfo().UpvertedAnnounceList() {
		for _, u := range tier {
			if urls, ok := m.cfg.TrackerAliases[u]; ok {
				tiers = append(tiers, urls)
			}
		}
	}
	if len(tiers) > 0 {
		t.AddTrackers(tiers)
	}
}

// persistTorrentFile waits for metadata and writes the resolved
// .torrent file into the watched directory, so add-magnet survives a
// restart without needing a fresh DHT/peer metadata fetch.
func (m *Manager) persistTorrentFile(t *torrent.Torrent) {
	select {
	case <-t.GotInfo():
	case <-t.Closed():
		m.log.Warn().Str("hash", t.InfoHash().HexString()).Msg("torrent closed before metadata arrived, not persisting .torrent file")
		return
	}

	path := filepath.Join(m.torrentDir, t.InfoHash().HexString()+".torrent")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o660)
	if err != nil {
		m.log.Warn().Err(err).Str("path", path).Msg("failed to persist fetched torrent file")
		return
	}
	defer f.Close()
	if err := t.Metainfo().Write(f); err != nil {
		m.log.Warn().Err(err).Str("path", path).Msg("failed to write fetched torrent file")
	}
}

// register builds and starts an Engine for t, keyed by its info hash.
// name is the registry base name (a .torrent file's basename) when
// fromFile is true; otherwise it may be empty and is replaced by the
// torrent's metadata-provided name once Start resolves it.
func (m *Manager) register(t *torrent.Torrent, name string, fromFile bool) (string, error) {
	id := t.InfoHash().HexString()

	m.mu.Lock()
	if _, exists := m.byID[id]; exists {
		m.mu.Unlock()
		return id, nil // already loaded: AddFile/AddMagnet is idempotent per torrent
	}
	m.mu.Unlock()

	cacheDir, err := m.cache.DirFor(id)
	if err != nil {
		return "", err
	}

	baseName := name
	if baseName == "" {
		// Placeholder until metadata resolves it in the goroutine below;
		// until then (or if Start fails) List reports the id as the name.
		baseName = id
	}

	eng := engine.New(id, baseName, t, cacheDir, m.cfg.Engine, m.log)

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.byID[id] = &entry{eng: eng, baseName: baseName, fromFile: fromFile}
	m.cancels[id] = cancel
	m.order[baseName] = append(m.order[baseName], id)
	m.mu.Unlock()

	go func() {
		// checking.max_active: bound how many torrents are starting up
		// (hash-checking cached data) at once across the manager.
		if m.checkSem != nil {
			select {
			case m.checkSem <- struct{}{}:
				defer func() { <-m.checkSem }()
			case <-ctx.Done():
				return
			}
		}
		if err := eng.Start(ctx); err != nil {
			m.log.Warn().Err(err).Str("id", id).Msg("engine failed to start")
			return
		}
		m.substituteTrackers(t)
		if fromFile {
			return
		}
		m.mu.Lock()
		if e, ok := m.byID[id]; ok && eng.TorrentName != "" && eng.TorrentName != e.baseName {
			m.removeOrderLocked(e.baseName, id)
			e.baseName = eng.TorrentName
			m.order[e.baseName] = append(m.order[e.baseName], id)
		}
		m.mu.Unlock()
	}()

	return id, nil
}

// removeOrderLocked drops id from the registration-order list for name.
// Callers must hold m.mu.
func (m *Manager) removeOrderLocked(name, id string) {
	ids := m.order[name]
	for i, existing := range ids {
		if existing == id {
			m.order[name] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(m.order[name]) == 0 {
		delete(m.order, name)
	}
}

// displayNameLocked computes the data model's disambiguated name for id:
// its plain base name, unless it collided with an earlier registration
// under the same base name, in which case it's `name__<short-id>`.
// Callers must hold m.mu (read or write).
func (m *Manager) displayNameLocked(id string) string {
	e := m.byID[id]
	ids := m.order[e.baseName]
	if len(ids) <= 1 || ids[0] == id {
		return e.baseName
	}
	return e.baseName + "__" + shortID(id)
}

// Remove tears down a torrent's engine, drops it from the session, and
// purges its cache directory.
func (m *Manager) Remove(token string) error {
	m.mu.Lock()
	id, err := m.resolveLocked(token)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	e := m.byID[id]
	cancel := m.cancels[id]
	m.removeOrderLocked(e.baseName, id)
	delete(m.byID, id)
	delete(m.cancels, id)
	m.mu.Unlock()

	cancel()
	e.eng.Close()

	var h metainfo.Hash
	if err := h.FromHexString(id); err == nil {
		if t, ok := m.client.Torrent(h); ok {
			t.Drop()
		}
	}

	return m.cache.Remove(id)
}

// Get resolves token to its Engine: exact id first, then exact unique
// name, then the `name__<short-id>` form.
func (m *Manager) Get(token string) (*engine.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, err := m.resolveLocked(token)
	if err != nil {
		return nil, err
	}
	return m.byID[id].eng, nil
}

// resolveLocked implements the resolution order. Callers must hold m.mu
// (read or write).
func (m *Manager) resolveLocked(token string) (string, error) {
	if token == "" {
		return "", ErrTorrentRequired
	}

	if _, ok := m.byID[token]; ok {
		return token, nil
	}

	var nameMatches []string
	for id, e := range m.byID {
		if e.baseName == token {
			nameMatches = append(nameMatches, id)
		}
	}
	switch len(nameMatches) {
	case 1:
		return nameMatches[0], nil
	case 0:
		// no plain-name match; fall through to the name__<short-id> form
	default:
		return "", &AmbiguousError{Name: token}
	}

	for id, e := range m.byID {
		if token == e.baseName+"__"+shortID(id) {
			return id, nil
		}
	}

	return "", &NotFoundError{Token: token}
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

// TorrentInfo is one row of the `torrents` command's listing:
// {id,name,torrent_name,cache}.
type TorrentInfo struct {
	ID          string
	Name        string
	TorrentName string
	CacheDir    string
	State       engine.State
}

// List returns every currently-loaded torrent.
func (m *Manager) List() []TorrentInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TorrentInfo, 0, len(m.byID))
	for id, e := range m.byID {
		out = append(out, TorrentInfo{
			ID:          id,
			Name:        m.displayNameLocked(id),
			TorrentName: e.eng.TorrentName,
			CacheDir:    e.eng.CacheDir,
			State:       e.eng.Status().State,
		})
	}
	return out
}

// StatusAll aggregates status across every loaded torrent.
func (m *Manager) StatusAll() []engine.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.Status, 0, len(m.byID))
	for _, e := range m.byID {
		out = append(out, e.eng.Status())
	}
	return out
}

// LoadedIDs returns the set of currently-loaded torrent ids, for
// cachemgr.Prune's ownership check.
func (m *Manager) LoadedIDs() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(m.byID))
	for id := range m.byID {
		out[id] = true
	}
	return out
}

// LogicalByID returns each loaded torrent's current logical byte count,
// for cachemgr.CacheSize's aggregation.
func (m *Manager) LogicalByID() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int64, len(m.byID))
	for id, e := range m.byID {
		out[id] = e.eng.LogicalBytes()
	}
	return out
}
