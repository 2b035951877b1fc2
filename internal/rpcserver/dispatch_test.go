package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/RetronetBR/torrentfs/internal/cachemgr"
	"github.com/RetronetBR/torrentfs/internal/config"
	"github.com/RetronetBR/torrentfs/internal/manager"
)

// newTestServer builds a Server around a Manager with an empty torrent
// registry. Every Manager method these dispatch tests exercise
// (List/Get/LogicalByID) only ever touches the byID map,
// never the session client, so a nil *torrent.Client is safe here.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	cache, err := cachemgr.New(t.TempDir())
	require.NoError(t, err)

	mgr := manager.New(nil, cache, t.TempDir(), manager.Config{}, zerolog.Nop())
	return New(nil, mgr, cache, config.DefaultConfig(), zerolog.Nop())
}

func TestDispatchHelloOnEmptyRegistry(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)

	resp, tail := s.dispatch(context.Background(), request{Cmd: "hello"})
	require.Nil(tail)
	require.Equal(true, resp["ok"])
	require.Equal([]map[string]any{}, resp["torrents"])
}

func TestDispatchUnknownCommand(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)

	resp, tail := s.dispatch(context.Background(), request{Cmd: "not-a-real-command"})
	require.Nil(tail)
	require.Equal(false, resp["ok"])
	require.Equal("UnknownCommand", resp["error"])
}

func TestDispatchStatusRequiresTorrent(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)

	resp, _ := s.dispatch(context.Background(), request{Cmd: "status"})
	require.Equal(false, resp["ok"])
	require.Equal("TorrentRequired", resp["error"])
}

func TestDispatchStatusUnknownTorrent(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)

	resp, _ := s.dispatch(context.Background(), request{Cmd: "status", Torrent: "deadbeef"})
	require.Equal(false, resp["ok"])
	require.Equal("TorrentNotFound:deadbeef", resp["error"])
}

func TestDispatchCacheSizeEmpty(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)

	resp, _ := s.dispatch(context.Background(), request{Cmd: "cache-size"})
	require.Equal(true, resp["ok"])
	require.Equal(int64(0), resp["logical_bytes"])
}

func TestDispatchConfigEchoesDefaults(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)

	resp, _ := s.dispatch(context.Background(), request{Cmd: "config"})
	require.Equal(true, resp["ok"])
	cfg, ok := resp["config"].(config.Config)
	require.True(ok)
	require.Equal(config.DefaultConfig().MaxMetadataMB, cfg.MaxMetadataMB)
}

func TestDispatchIDIsEchoed(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)

	resp, _ := s.dispatch(context.Background(), request{ID: json.RawMessage(`"abc"`), Cmd: "hello"})
	require.Equal(json.RawMessage(`"abc"`), resp["id"])
}

func TestErrTokenWrapsWireError(t *testing.T) {
	require := require.New(t)
	require.Equal("BadRequest", errToken(badRequest("missing field")))
	require.Equal("UnknownCommand", errToken(unknownCommand()))
}

func TestErrTokenFallsBackToIOError(t *testing.T) {
	require := require.New(t)
	require.Equal("IOError:boom", errToken(errors.New("boom")))
}
