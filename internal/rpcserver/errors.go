package rpcserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/RetronetBR/torrentfs/internal/engine"
	"github.com/RetronetBR/torrentfs/internal/manager"
	"github.com/RetronetBR/torrentfs/internal/pathindex"
	"github.com/RetronetBR/torrentfs/internal/scheduler"
)

// wireError carries an already-resolved wire token (BadRequest,
// UnknownCommand) for handlers that detect a validation problem
// directly, bypassing the sentinel-error mapping below. detail is kept
// only for server-side logs; it never reaches the wire token.
type wireError struct {
	token  string
	detail string
}

func (e *wireError) Error() string {
	if e.detail == "" {
		return e.token
	}
	return e.token + ": " + e.detail
}

// errToken maps a Go error from the lower layers onto the wire error
// tokens. Validation/Path/Runtime tokens are produced here rather than
// letting a Go error string leak across the wire verbatim.
func errToken(err error) string {
	var we *wireError
	var nf *manager.NotFoundError
	var amb *manager.AmbiguousError

	switch {
	case errors.As(err, &we):
		return we.token
	case errors.Is(err, manager.ErrTorrentRequired):
		return "TorrentRequired"
	case errors.As(err, &nf):
		return "TorrentNotFound:" + nf.Token
	case errors.As(err, &amb):
		return "TorrentNameAmbiguous:" + amb.Name
	case errors.Is(err, engine.ErrReadSizeInvalid):
		return "ReadSizeInvalid"
	case errors.Is(err, engine.ErrNotReady):
		return "TorrentError:metadata not ready"
	case errors.Is(err, engine.ErrFileNotFound), errors.Is(err, pathindex.ErrNotFound):
		return "FileNotFound"
	case errors.Is(err, pathindex.ErrNotDirectory):
		return "NotADirectory"
	case errors.Is(err, pathindex.ErrIsDirectory):
		return "IsADirectory"
	case errors.Is(err, pathindex.ErrPathUnsafe):
		return "PathUnsafe"
	case errors.Is(err, scheduler.ErrWouldBlock):
		return "WouldBlock"
	case errors.Is(err, scheduler.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, scheduler.ErrCancelled), errors.Is(err, context.Canceled):
		return "Cancelled"
	default:
		return "IOError:" + err.Error()
	}
}

// badRequest is returned by handlers for malformed requests (missing
// required fields, unparsable mode) — the BadRequest token.
func badRequest(format string, args ...any) error {
	return &wireError{token: "BadRequest", detail: fmt.Sprintf(format, args...)}
}

func unknownCommand() error {
	return &wireError{token: "UnknownCommand"}
}
