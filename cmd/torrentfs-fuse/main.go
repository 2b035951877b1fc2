// Command torrentfs-fuse is a thin process that mounts a
// torrentfsd-served torrent at a host path. The in-kernel
// mount glue itself is the out-of-scope collaborator internal/fuseiface
// names; this binary only wires a torrentfsd RPC connection into that
// package's FileSystem interface and hands it to the stub Mounter.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/RetronetBR/torrentfs/internal/fuseiface"
	"github.com/RetronetBR/torrentfs/internal/protocol"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "torrentfs-fuse").Logger()

	socket := flag.String("socket", "", "torrentfsd RPC socket path (overrides the default search order)")
	torrentFlag := flag.String("torrent", "", "torrent id or name to mount")
	mountpoint := flag.String("mountpoint", "", "host directory to mount at")
	readdirPrefetch := flag.Bool("readdir-prefetch", false, "issue a prefetch RPC on every directory listing")
	flag.Parse()

	if *torrentFlag == "" || *mountpoint == "" {
		fmt.Fprintln(os.Stderr, "usage: torrentfs-fuse --torrent <id|name> --mountpoint <path> [--socket <path>] [--readdir-prefetch]")
		os.Exit(2)
	}

	fs := &rpcFileSystem{
		socketPath:      resolveSocketPath(*socket),
		torrent:         *torrentFlag,
		readdirPrefetch: *readdirPrefetch,
		log:             log,
	}

	mounter := fuseiface.NewMounter(*mountpoint, log)
	if err := mounter.Mount(fs); err != nil {
		log.Error().Err(err).Msg("mount failed")
		os.Exit(1)
	}
}

// rpcFileSystem adapts a torrentfsd RPC connection to fuseiface.FileSystem.
// Each call dials its own connection: mount-time traffic from a FUSE
// kernel loop is low-rate enough that per-call dialing is simpler than
// pooling, matching the stub Mounter's own "no real host loop" posture.
type rpcFileSystem struct {
	socketPath      string
	torrent         string
	readdirPrefetch bool
	log             zerolog.Logger
}

func (fs *rpcFileSystem) List(torrentID, path string) ([]fuseiface.DirEntry, error) {
	if fs.readdirPrefetch {
		if _, err := fs.call(map[string]any{"cmd": "prefetch", "torrent": torrentID, "path": path}); err != nil {
			fs.log.Warn().Err(err).Str("path", path).Msg("readdir prefetch failed")
		}
	}

	resp, err := fs.call(map[string]any{"cmd": "list", "torrent": torrentID, "path": path})
	if err != nil {
		return nil, err
	}
	raw, _ := resp["entries"].([]any)
	out := make([]fuseiface.DirEntry, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		typ, _ := m["type"].(string)
		size, _ := m["size"].(float64)
		out = append(out, fuseiface.DirEntry{Name: name, Dir: typ == "dir", Size: int64(size)})
	}
	return out, nil
}

func (fs *rpcFileSystem) Stat(torrentID, path string) (fuseiface.Stat, error) {
	resp, err := fs.call(map[string]any{"cmd": "stat", "torrent": torrentID, "path": path})
	if err != nil {
		return fuseiface.Stat{}, err
	}
	st, _ := resp["stat"].(map[string]any)
	typ, _ := st["type"].(string)
	size, _ := st["size"].(float64)
	return fuseiface.Stat{Dir: typ == "dir", Size: int64(size)}, nil
}

func (fs *rpcFileSystem) Read(ctx context.Context, torrentID, path string, offset, length int64) ([]byte, error) {
	deadline := float64(0)
	if d, ok := ctx.Deadline(); ok {
		deadline = time.Until(d).Seconds()
	}
	req := map[string]any{"cmd": "read", "torrent": torrentID, "path": path, "offset": offset, "size": length}
	if deadline > 0 {
		req["timeout_s"] = deadline
	}

	resp, tail, err := fs.callWithTail(req)
	if err != nil {
		return nil, err
	}
	if n, ok := resp["data_len"].(float64); ok && int64(n) != int64(len(tail)) {
		return nil, fmt.Errorf("torrentfs-fuse: short read tail: declared %d got %d", int64(n), len(tail))
	}
	return tail, nil
}

func (fs *rpcFileSystem) call(req map[string]any) (map[string]any, error) {
	resp, _, err := fs.callWithTail(req)
	return resp, err
}

func (fs *rpcFileSystem) callWithTail(req map[string]any) (map[string]any, []byte, error) {
	conn, err := net.DialTimeout("unix", fs.socketPath, 5*time.Second)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", fs.socketPath, err)
	}
	defer conn.Close()

	if err := protocol.WriteFrame(conn, req); err != nil {
		return nil, nil, err
	}

	var resp map[string]any
	if err := protocol.ReadFrame(conn, &resp); err != nil {
		return nil, nil, err
	}
	if ok, _ := resp["ok"].(bool); !ok {
		token, _ := resp["error"].(string)
		return nil, nil, fmt.Errorf("torrentfsd: %s", token)
	}

	var tail []byte
	if n, ok := resp["data_len"]; ok {
		length, ok := n.(float64)
		if !ok {
			return nil, nil, fmt.Errorf("response data_len is not numeric: %v", n)
		}
		tail, err = protocol.ReadTail(conn, int64(length))
		if err != nil {
			return nil, nil, err
		}
	}
	return resp, tail, nil
}

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
