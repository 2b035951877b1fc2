// Package cachemgr implements per-torrent cache directory
// lifecycle under a shared cache root, size accounting
// (logical_bytes/disk_bytes), and safe pruning of directories no
// currently-loaded torrent owns.
package cachemgr

import (
	"os"
	"path/filepath"
)

// Manager roots every torrent's cache directory at cache_root/<id>/, per
// the CacheRoot data model.
type Manager struct {
	root string
}

// New returns a Manager rooted at root, creating it if necessary.
func New(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Manager{root: root}, nil
}

// Root returns the cache root directory.
func (m *Manager) Root() string { return m.root }

// DirFor returns the cache subdirectory for torrent id, creating it if
// necessary.
func (m *Manager) DirFor(id string) (string, error) {
	dir := filepath.Join(m.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Remove deletes a torrent's cache subdirectory. It renames the
// directory aside before removing it (best-effort rename-then-rmtree)
// so a crash between
// the two steps leaves an obviously-orphaned `.removing-<id>` directory
// rather than a half-deleted live one.
func (m *Manager) Remove(id string) error {
	dir := filepath.Join(m.root, id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	staging := filepath.Join(m.root, ".removing-"+id)
	if err := os.Rename(dir, staging); err != nil {
		// Rename across filesystems or other failure: fall back to a
		// direct removal rather than leaving the torrent undeletable.
		return os.RemoveAll(dir)
	}
	return os.RemoveAll(staging)
}

// diskUsage stat-walks dir and sums the apparent size of every regular
// file within it.
func diskUsage(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// DiskBytesFor returns the on-disk size of one torrent's cache directory.
func (m *Manager) DiskBytesFor(id string) (int64, error) {
	return diskUsage(filepath.Join(m.root, id))
}

// Sizes is the result of a cache-size query, in the
// {logical_bytes, disk_bytes} response shape.
type Sizes struct {
	LogicalBytes int64
	DiskBytes    int64
}

// CacheSize computes the aggregate cache-size response: disk_bytes is a
// stat-walk over every subdirectory of the cache root; logical_bytes is
// the sum of per-torrent logical byte counts the caller supplies (each
// torrent's own Σ file.size×have-fraction, which only the engine that
// owns the live handle can compute).
func (m *Manager) CacheSize(logicalByID map[string]int64) (Sizes, error) {
	var sizes Sizes
	for _, lb := range logicalByID {
		sizes.LogicalBytes += lb
	}

	disk, err := diskUsage(m.root)
	if err != nil {
		return sizes, err
	}
	sizes.DiskBytes = disk
	return sizes, nil
}

// PruneResult is the outcome of a prune pass over the cache root.
type PruneResult struct {
	Removed []string
	Skipped []string
}

// Prune lists immediate subdirectories of the cache root that aren't in
// loadedIDs and removes them (unless dryRun, which only reports what
// would be removed). Loaded-torrent directories are always skipped,
// never touched. Staging
// directories left by a prior interrupted Remove are treated as prunable
// regardless of dryRun's effect on ownership — they belong to no torrent.
func (m *Manager) Prune(loadedIDs map[string]bool, dryRun bool) (PruneResult, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return PruneResult{}, nil
		}
		return PruneResult{}, err
	}

	var res PruneResult
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if loadedIDs[name] {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		res.Removed = append(res.Removed, name)
		if !dryRun {
			if err := os.RemoveAll(filepath.Join(m.root, name)); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}
