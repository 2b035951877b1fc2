//go:build !fuse

package fuseiface

import "github.com/rs/zerolog"

// StubMounter is what's compiled when the `fuse` build tag is absent —
// the default, since the real cgofuse-backed mount loop is the
// out-of-scope in-kernel glue named at the package boundary: same shape
// and build-without-the-tag default as a real mount driver, with no
// `//go:build fuse` counterpart compiled into this module.
type StubMounter struct {
	path string
	log  zerolog.Logger
}

// NewMounter returns the stub. path is the host mountpoint that a real
// driver would bind to; here it's only used for the warning message.
func NewMounter(path string, log zerolog.Logger) *StubMounter {
	return &StubMounter{path: path, log: log.With().Str("component", "fuse").Logger()}
}

func (s *StubMounter) Mount(fs FileSystem) error {
	s.log.Warn().Str("path", s.path).Msg("FUSE mount requested but this build has no FUSE support; nothing was mounted")
	return nil
}

func (s *StubMounter) Unmount() {}
