// Package fuseiface defines the boundary to the FUSE mount, named as an
// external collaborator: the in-kernel glue itself (the
// cgofuse-backed host loop translating POSIX calls into reads against
// a loaded torrent) is explicitly out of scope. This package only
// describes what a mount driver needs from the daemon and provides the
// always-built stub distribyted itself ships when compiled without its
// `fuse` build tag.
package fuseiface

import "context"

// FileSystem is the read-only surface a mount driver calls into. The
// implementation in this module is cmd/torrentfs-fuse's adapter over the
// torrentfsd RPC socket.
type FileSystem interface {
	List(torrentID, path string) ([]DirEntry, error)
	Stat(torrentID, path string) (Stat, error)
	Read(ctx context.Context, torrentID, path string, offset, length int64) ([]byte, error)
}

// DirEntry is one entry of a List result.
type DirEntry struct {
	Name string
	Dir  bool
	Size int64
}

// Stat describes a single path the way a FUSE getattr call needs it.
type Stat struct {
	Dir  bool
	Size int64
}

// Mounter mounts a FileSystem at a host path and tears it down again.
type Mounter interface {
	Mount(fs FileSystem) error
	Unmount()
}
