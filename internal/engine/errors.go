package engine

import "errors"

// MaxReadSize is the largest length a single `read` may request.
const MaxReadSize = 16 * 1024 * 1024

// Sentinel errors the RPC dispatch layer maps onto the error
// tokens (FileNotFound, ReadSizeInvalid, and TorrentError for ErrNotReady).
var (
	ErrFileNotFound    = errors.New("engine: file not found")
	ErrReadSizeInvalid = errors.New("engine: read size invalid")
	ErrNotReady        = errors.New("engine: torrent metadata not ready")
)
