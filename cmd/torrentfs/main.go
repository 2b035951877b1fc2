// Command torrentfs is the thin RPC client: it owns no session state of its own, just
// argument parsing, a connection to torrentfsd's socket, and printing
// whatever the daemon answers. Flag parsing is plain `flag` rather than
// `urfave/cli` on purpose — this binary is the named thin client, not
// the daemon the domain stack was wired into.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/RetronetBR/torrentfs/internal/protocol"
)

func main() {
	socket := flag.String("socket", "", "RPC socket path (overrides the default search order)")
	torrentFlag := flag.String("torrent", "", "torrent id or name")
	path := flag.String("path", "", "path within the torrent")
	offset := flag.Int64("offset", 0, "read offset")
	size := flag.Int64("size", 0, "read size")
	mode := flag.String("mode", "", "scheduler mode: auto, sync, or async")
	timeout := flag.Float64("timeout", 0, "read timeout in seconds")
	dryRun := flag.Bool("dry-run", false, "dry-run for prune-cache")
	maxFiles := flag.Int("max-files", 0, "row cap for downloads/pin-dir/unpin-dir")
	maxDepth := flag.Int("max-depth", 0, "directory recursion cap for pin-dir/unpin-dir")
	magnet := flag.String("magnet", "", "magnet URI for add-magnet")
	source := flag.String("source", "", "magnet:, http(s):, or archive: URI for source-add")
	outFile := flag.String("out", "", "write a `read` response's data tail to this file instead of stdout")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <command>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	cmd := flag.Arg(0)

	req := map[string]any{"cmd": cmd}
	if *torrentFlag != "" {
		req["torrent"] = *torrentFlag
	}
	if *path != "" {
		req["path"] = *path
	}
	if *offset != 0 {
		req["offset"] = *offset
	}
	if *size != 0 {
		req["size"] = *size
	}
	if *mode != "" {
		req["mode"] = *mode
	}
	if *timeout != 0 {
		req["timeout_s"] = *timeout
	}
	if *dryRun {
		req["dry_run"] = true
	}
	if *maxFiles != 0 {
		req["max_files"] = *maxFiles
	}
	if *maxDepth != 0 {
		req["max_depth"] = *maxDepth
	}
	if *magnet != "" {
		req["magnet"] = *magnet
	}
	if *source != "" {
		req["source"] = *source
	}

	if err := run(resolveSocketPath(*socket), req, *outFile); err != nil {
		fmt.Fprintln(os.Stderr, "torrentfs:", err)
		os.Exit(1)
	}
}

func run(socketPath string, req map[string]any, outFile string) error {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if err := protocol.WriteFrame(conn, req); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	var resp map[string]any
	if err := protocol.ReadFrame(conn, &resp); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var tail []byte
	if n, ok := resp["data_len"]; ok {
		length, ok := n.(float64)
		if !ok {
			return fmt.Errorf("response data_len is not numeric: %v", n)
		}
		tail, err = protocol.ReadTail(conn, int64(length))
		if err != nil {
			return fmt.Errorf("reading response tail: %w", err)
		}
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if tail == nil {
		return nil
	}
	if outFile == "" {
		os.Stdout.Write(tail)
		return nil
	}
	return os.WriteFile(outFile, tail, 0o644)
}

// resolveSocketPath mirrors torrentfsd's own default search order, so a
// client invoked with no flags talks to a daemon started with no flags:
// $TORRENTFSD_SOCKET, then $XDG_RUNTIME_DIR/torrentfsd.sock, then
// /tmp/torrentfsd.sock.
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
