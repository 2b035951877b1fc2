// Package prefetch computes the head/tail byte ranges a file or
// directory raises to prefetch priority, and paces the batched priority updates that
// apply them across a file or directory tree.
package prefetch

import (
	"path/filepath"
	"strings"
)

// Profile is a clamp configuration for one end of a file: percent of the
// file's size (accepting either a 0-1 fraction or a 0-100 percentage),
// clamped to an absolute byte range.
type Profile struct {
	Pct   float64 `json:"pct"`
	MinMB float64 `json:"min_mb"`
	MaxMB float64 `json:"max_mb"`
}

// Config mirrors separate head/tail profiles for "media"
// files (matched by extension) versus "other" files, plus pacing and
// traversal settings. BatchSize and BatchSleepMS pace Run; MaxFiles and
// MaxDirs bound the engine's directory walk (MaxDirs as a depth limit).
// MaxBytes, ScanSleepMS and SleepMS are carried but not applied: no total
// byte cap and no per-scan or per-file sleep is enforced.
type Config struct {
	MediaExtensions []string `json:"media_extensions"`

	MediaHead Profile `json:"media_head"`
	MediaTail Profile `json:"media_tail"`
	OtherHead Profile `json:"other_head"`
	OtherTail Profile `json:"other_tail"`

	// Mode selects which profile pair is used for a non-media file:
	// "media" restricts prefetch to matching extensions only, "all"
	// applies the Other profile to everything else too.
	Mode string `json:"mode"`

	// OnStart triggers a whole-torrent prefetch as soon as a torrent's
	// metadata resolves and its engine starts.
	OnStart bool `json:"on_start"`

	MaxBytes int64 `json:"max_bytes"`
	MaxFiles int   `json:"max_files"`
	MaxDirs  int   `json:"max_dirs"`

	BatchSize    int `json:"batch_size"`
	BatchSleepMS int `json:"batch_sleep_ms"`
	ScanSleepMS  int `json:"scan_sleep_ms"`
	SleepMS      int `json:"sleep_ms"`
}

const (
	ModeMedia = "media"
	ModeAll   = "all"
)

// DefaultConfig mirrors momoshtrem's streaming defaults, adapted to the
// head/tail-range shape instead of a single
// streaming readahead window.
func DefaultConfig() Config {
	return Config{
		MediaExtensions: []string{".mp4", ".mkv", ".avi", ".mov", ".m4v", ".webm"},
		MediaHead:       Profile{Pct: 0.10, MinMB: 1, MaxMB: 4},
		MediaTail:       Profile{Pct: 0.02, MinMB: 1, MaxMB: 2},
		OtherHead:       Profile{Pct: 0.05, MinMB: 1, MaxMB: 2},
		OtherTail:       Profile{Pct: 0.0, MinMB: 0, MaxMB: 0},
		Mode:            ModeMedia,
		MaxBytes:        512 * 1024 * 1024,
		MaxFiles:        200,
		MaxDirs:         50,
		BatchSize:       32,
		BatchSleepMS:    20,
		ScanSleepMS:     5,
		SleepMS:         0,
	}
}

// IsMedia reports whether name's extension (case-insensitive) matches
// cfg's media extension list.
func (c Config) IsMedia(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range c.MediaExtensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Applies reports whether cfg's prefetch policy applies to a file named
// name at all, given the configured mode.
func (c Config) Applies(name string) bool {
	if c.IsMedia(name) {
		return true
	}
	return c.Mode == ModeAll
}

// profilesFor returns the head/tail profile pair that governs name.
func (c Config) profilesFor(name string) (head, tail Profile) {
	if c.IsMedia(name) {
		return c.MediaHead, c.MediaTail
	}
	return c.OtherHead, c.OtherTail
}

// clampBytes resolves a Profile against a file size, using the
// clamp(pct*size, min_mb, max_mb) formula. A Pct greater than 1 is
// treated as a percentage (divided by 100) rather than a fraction.
func clampBytes(p Profile, fileSize int64) int64 {
	pct := p.Pct
	if pct > 1 {
		pct /= 100
	}
	bytes := int64(pct * float64(fileSize))

	minB := int64(p.MinMB * 1024 * 1024)
	maxB := int64(p.MaxMB * 1024 * 1024)

	if maxB > 0 && bytes > maxB {
		bytes = maxB
	}
	if bytes < minB {
		bytes = minB
	}
	if bytes > fileSize {
		bytes = fileSize
	}
	return bytes
}

// Ranges is the resolved head/tail byte counts for one file.
type Ranges struct {
	HeadBytes int64
	TailBytes int64
}

// Resolve computes the head/tail ranges for a file named name of the
// given size, using the profile its extension selects.
func (c Config) Resolve(name string, fileSize int64) Ranges {
	head, tail := c.profilesFor(name)
	return Ranges{
		HeadBytes: clampBytes(head, fileSize),
		TailBytes: clampBytes(tail, fileSize),
	}
}
