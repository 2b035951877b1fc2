package pin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/RetronetBR/torrentfs/internal/pathindex"
	"github.com/RetronetBR/torrentfs/internal/scheduler"
)

func buildIndex() *pathindex.Index {
	idx := pathindex.New()
	idx.Add(pathindex.FileEntry{Path: "a/b.txt", Size: 10, Offset: 0})
	idx.Add(pathindex.FileEntry{Path: "a/c.bin", Size: 100, Offset: 10})
	idx.Add(pathindex.FileEntry{Path: "d.md", Size: 5, Offset: 110})
	return idx
}

type fakeSetter struct{}

func (fakeSetter) SetPiecePriority(index int, level scheduler.PriorityLevel, rank int) {}

func TestPinPersistsAcrossLoad(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	log := zerolog.Nop()
	idx := buildIndex()
	tracker := scheduler.NewTracker(fakeSetter{})

	s := Load(dir, "movie", log)
	e, err := idx.Lookup("a/b.txt")
	require.NoError(err)
	require.NoError(s.Pin("a/b.txt", e, 100, tracker))

	reloaded := Load(dir, "movie", log)
	require.True(reloaded.Contains("a/b.txt"))
}

func TestPinIdempotent(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	idx := buildIndex()
	tracker := scheduler.NewTracker(fakeSetter{})
	s := Load(dir, "movie", zerolog.Nop())

	e, err := idx.Lookup("d.md")
	require.NoError(err)
	require.NoError(s.Pin("d.md", e, 100, tracker))

	before, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(err)

	require.NoError(s.Pin("d.md", e, 100, tracker))
	after, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(err)
	require.Equal(before, after)
}

func TestUnpinAfterPinRestoresPriorState(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	idx := buildIndex()
	tracker := scheduler.NewTracker(fakeSetter{})
	s := Load(dir, "movie", zerolog.Nop())

	e, err := idx.Lookup("d.md")
	require.NoError(err)
	require.NoError(s.Pin("d.md", e, 100, tracker))
	require.True(s.Contains("d.md"))

	require.NoError(s.Unpin("d.md", tracker))
	require.False(s.Contains("d.md"))
}

func TestLoadToleratesTruncatedFile(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	require.NoError(os.WriteFile(filepath.Join(dir, FileName), []byte("{not valid json"), 0o644))

	s := Load(dir, "movie", zerolog.Nop())
	require.Empty(s.List(buildIndex()))
}

func TestReconcileDropsStalePins(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	idx := buildIndex()
	tracker := scheduler.NewTracker(fakeSetter{})
	s := Load(dir, "movie", zerolog.Nop())

	e, err := idx.Lookup("d.md")
	require.NoError(err)
	require.NoError(s.Pin("d.md", e, 100, tracker))
	require.NoError(s.Pin("missing/file.txt", pathindex.FileEntry{Path: "missing/file.txt", Size: 1}, 100, nil))

	s.Reconcile(idx)
	require.True(s.Contains("d.md"))
	require.False(s.Contains("missing/file.txt"))
}

func TestPinDirRespectsMaxFiles(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	idx := buildIndex()
	tracker := scheduler.NewTracker(fakeSetter{})
	s := Load(dir, "movie", zerolog.Nop())

	pinned, truncated, err := s.PinDir(idx, "a", 100, tracker, WalkBounds{MaxFiles: 1})
	require.NoError(err)
	require.Len(pinned, 1)
	require.True(truncated)
}
