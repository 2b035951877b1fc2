// Package session builds and owns the underlying BitTorrent client: piece
// storage, the DHT item store, peer identity, and the anacrolix/torrent
// client itself. internal/engine and internal/manager consume the
// *torrent.Client and *torrent.Torrent types this package produces
// directly, the way distribyted's fs package consumes momoshtrem's
// torrent.client.go output.
package session

import (
	"os"
	"path/filepath"
	"time"

	"github.com/anacrolix/dht/v2"
	"github.com/anacrolix/dht/v2/bep44"
	tlog "github.com/anacrolix/log"
	"github.com/anacrolix/missinggo/v2/filecache"
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"
	"github.com/rs/zerolog"
)

// Config controls how the underlying client is built.
type Config struct {
	// CacheRoot is the directory under which per-torrent piece caches are
	// rooted (cache_root/<id>/), matching the cache layout.
	CacheRoot string
	// CacheSizeMB is the total piece-cache capacity across all torrents.
	CacheSizeMB int64
	// StateDir holds the peer-id file and the DHT item store database.
	StateDir string
	// DisableIPv6 disables IPv6 listening/dialing for the torrent client.
	DisableIPv6 bool
	// Seed controls whether completed pieces are uploaded to peers.
	Seed bool
}

// torrentLogHandler adapts anacrolix/log records into the app's zerolog
// logger, the same bridge distribyted and momoshtrem both build by hand
// since anacrolix/torrent does not speak zerolog natively.
type torrentLogHandler struct {
	log zerolog.Logger
}

func (h *torrentLogHandler) Handle(r tlog.Record) {
	var ev *zerolog.Event
	switch r.Level {
	case tlog.Critical, tlog.Error:
		ev = h.log.Error()
	case tlog.Warning:
		ev = h.log.Warn()
	case tlog.Debug:
		ev = h.log.Debug()
	default:
		ev = h.log.Info()
	}
	ev.Msg(r.Msg.String())
}

// InitStorage builds the piece storage layer shared by every torrent added
// to the client: a filecache-backed resource store plus a Bolt-backed
// piece completion database, both rooted under cfg.CacheRoot.
func InitStorage(cfg Config) (storage.ClientImpl, *filecache.Cache, storage.PieceCompletion, error) {
	if err := os.MkdirAll(cfg.CacheRoot, 0o755); err != nil {
		return nil, nil, nil, err
	}

	fc, err := filecache.NewCache(cfg.CacheRoot)
	if err != nil {
		return nil, nil, nil, err
	}
	fc.SetCapacity(cfg.CacheSizeMB * 1024 * 1024)

	st := storage.NewResourcePieces(fc.AsResourceProvider())

	pcDir := filepath.Join(cfg.StateDir, "piece-completion")
	if err := os.MkdirAll(pcDir, 0o755); err != nil {
		return nil, nil, nil, err
	}
	pc, err := storage.NewBoltPieceCompletion(pcDir)
	if err != nil {
		return nil, nil, nil, err
	}

	return st, fc, pc, nil
}

// NewClient builds the anacrolix/torrent client used for every torrent
// this daemon manages. itemStore backs the DHT's bep44 item persistence;
// peerID is the daemon's stable 20-byte identity.
func NewClient(cfg Config, st storage.ClientImpl, itemStore bep44.Store, peerID [20]byte, log zerolog.Logger) (*torrent.Client, error) {
	tc := torrent.NewDefaultClientConfig()
	tc.Seed = cfg.Seed
	tc.PeerID = string(peerID[:])
	tc.DefaultStorage = st
	tc.DisableIPv6 = cfg.DisableIPv6

	tl := tlog.NewLogger()
	tl.SetHandlers(&torrentLogHandler{log: log})
	tc.Logger = tl

	tc.ConfigureAnacrolixDhtServer = func(dhtCfg *dht.ServerConfig) {
		dhtCfg.Store = itemStore
		dhtCfg.Exp = 2 * time.Hour
		dhtCfg.NoSecurity = false
	}

	client, err := torrent.NewClient(tc)
	if err != nil {
		return nil, err
	}

	log.Info().
		Bool("seeding", cfg.Seed).
		Bool("ipv6_disabled", cfg.DisableIPv6).
		Msg("torrent client created")

	return client, nil
}
