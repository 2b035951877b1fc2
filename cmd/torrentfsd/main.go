// Command torrentfsd is the long-lived daemon: it owns the torrent
// session, the multi-torrent manager, the directory watcher, and the RPC
// server thin clients (the `torrentfs` CLI and the FUSE driver) talk to.
// Flag parsing follows urfave/cli/v2, the CLI library distribyted's own
// go.mod carries for exactly this role.
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/RetronetBR/torrentfs/internal/cachemgr"
	"github.com/RetronetBR/torrentfs/internal/config"
	"github.com/RetronetBR/torrentfs/internal/engine"
	"github.com/RetronetBR/torrentfs/internal/manager"
	"github.com/RetronetBR/torrentfs/internal/rpcserver"
	"github.com/RetronetBR/torrentfs/internal/session"
	"github.com/RetronetBR/torrentfs/internal/watcher"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	app := &cli.App{
		Name:  "torrentfsd",
		Usage: "serve an in-progress BitTorrent swarm as a local RPC",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "torrent", Usage: "load a single .torrent file at startup"},
			&cli.StringFlag{Name: "torrent-dir", Usage: "watch a directory for .torrent files", Value: "torrents"},
			&cli.StringFlag{Name: "cache", Usage: "cache root directory", Value: "cache"},
			&cli.StringFlag{Name: "socket", Usage: "RPC socket path (overrides the default search order)"},
			&cli.StringFlag{Name: "config", Usage: "config file path (overrides the default search order)"},
			&cli.BoolFlag{Name: "prefetch", Usage: "enable media prefetch on torrent load"},
			&cli.BoolFlag{Name: "skip-check", Usage: "skip hash-checking existing cache data"},
		},
		Action: func(c *cli.Context) error {
			return run(c, log)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("torrentfsd exited with error")
		os.Exit(1)
	}
}

func run(c *cli.Context, log zerolog.Logger) error {
	cfg, err := loadConfig(c.String("config"), log)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.Bool("skip-check") {
		cfg.SkipCheck = true
	}

	stateDir := filepath.Join(c.String("cache"), ".state")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	sessionCfg := session.Config{
		CacheRoot:   c.String("cache"),
		CacheSizeMB: 4096,
		StateDir:    stateDir,
		Seed:        true,
	}

	peerID, err := session.GetOrCreatePeerID(filepath.Join(stateDir, "peer-id"))
	if err != nil {
		return fmt.Errorf("loading peer id: %w", err)
	}

	itemStore, err := session.NewItemStore(filepath.Join(stateDir, "dht-items"), 2*time.Hour, log)
	if err != nil {
		return fmt.Errorf("opening DHT item store: %w", err)
	}
	defer itemStore.Close()

	storageImpl, _, pieceCompletion, err := session.InitStorage(sessionCfg)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer pieceCompletion.Close()

	client, err := session.NewClient(sessionCfg, storageImpl, itemStore, peerID, log)
	if err != nil {
		return fmt.Errorf("starting torrent client: %w", err)
	}
	defer client.Close()

	cache, err := cachemgr.New(c.String("cache"))
	if err != nil {
		return fmt.Errorf("initializing cache manager: %w", err)
	}

	torrentDir := c.String("torrent-dir")
	if err := os.MkdirAll(torrentDir, 0o755); err != nil {
		return fmt.Errorf("creating torrent directory: %w", err)
	}

	if c.Bool("prefetch") {
		cfg.Prefetch.OnStart = true
	}

	mgrCfg := manager.Config{
		Engine: engine.Config{
			SkipCheck:          cfg.SkipCheck,
			ResumeSaveInterval: time.Duration(cfg.ResumeSaveIntervalS) * time.Second,
			Prefetch:           cfg.Prefetch,
		},
		TrackerAliases:    cfg.TrackerAliases,
		CheckingMaxActive: cfg.CheckingMaxActive,
		MaxMetadataMB:     cfg.MaxMetadataMB,
	}
	mgr := manager.New(client, cache, torrentDir, mgrCfg, log)

	if single := c.String("torrent"); single != "" {
		if _, err := mgr.AddFile(single); err != nil {
			return fmt.Errorf("loading %s: %w", single, err)
		}
	}

	w := watcher.New(torrentDir, 2*time.Second, mgr, log)
	go w.Run()
	defer w.Stop()

	socketPath := resolveSocketPath(c.String("socket"))
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing stale socket: %w", err)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("binding socket %s: %w", socketPath, err)
	}
	defer os.Remove(socketPath)

	srv := rpcserver.New(listener, mgr, cache, cfg, log)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	log.Info().Str("socket", socketPath).Str("torrent_dir", torrentDir).Msg("torrentfsd ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("RPC server stopped unexpectedly")
			return err
		}
	}

	if err := srv.Close(); err != nil {
		log.Warn().Err(err).Msg("error while closing RPC server")
	}

	return nil
}

// resolveSocketPath implements the socket search order when
// --socket is not given: $TORRENTFSD_SOCKET, then
// $XDG_RUNTIME_DIR/torrentfsd.sock, then /tmp/torrentfsd.sock.
func resolveSocketPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("TORRENTFSD_SOCKET"); v != "" {
		return v
	}
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, "torrentfsd.sock")
	}
	return "/tmp/torrentfsd.sock"
}

// loadConfig implements the config search order when --config is
// not given: $TORRENTFSD_CONFIG, then
// $HOME/.config/torrentfs/torrentfsd.json, then
// /etc/torrentfs/torrentfsd.json, then config/torrentfsd.json. A missing
// file at every candidate path is not an error: the daemon simply runs
// on DefaultConfig().
func loadConfig(flagValue string, log zerolog.Logger) (config.Config, error) {
	path := flagValue
	if path == "" {
		path = firstExisting(configSearchPaths())
	}
	if path == "" {
		return config.DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return config.Config{}, err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return config.Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("loaded config")
	return config.FromMap(raw, log)
}

func configSearchPaths() []string {
	var paths []string
	if v := os.Getenv("TORRENTFSD_CONFIG"); v != "" {
		paths = append(paths, v)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "torrentfs", "torrentfsd.json"))
	}
	paths = append(paths, "/etc/torrentfs/torrentfsd.json", "config/torrentfsd.json")
	return paths
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
