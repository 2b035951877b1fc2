package cachemgr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirForCreatesAndReturnsSubdir(t *testing.T) {
	require := require.New(t)
	m, err := New(t.TempDir())
	require.NoError(err)

	dir, err := m.DirFor("abc123")
	require.NoError(err)
	info, err := os.Stat(dir)
	require.NoError(err)
	require.True(info.IsDir())
}

func TestDiskBytesForSumsFiles(t *testing.T) {
	require := require.New(t)
	m, err := New(t.TempDir())
	require.NoError(err)

	dir, err := m.DirFor("abc")
	require.NoError(err)
	require.NoError(os.WriteFile(filepath.Join(dir, "f1"), make([]byte, 10), 0o644))
	require.NoError(os.WriteFile(filepath.Join(dir, "f2"), make([]byte, 20), 0o644))

	n, err := m.DiskBytesFor("abc")
	require.NoError(err)
	require.EqualValues(30, n)
}

func TestRemoveDeletesDirectory(t *testing.T) {
	require := require.New(t)
	m, err := New(t.TempDir())
	require.NoError(err)

	dir, err := m.DirFor("abc")
	require.NoError(err)
	require.NoError(m.Remove("abc"))

	_, err = os.Stat(dir)
	require.True(os.IsNotExist(err))
}

func TestPruneDryRunScenario(t *testing.T) {
	// loaded {A,B}, cache subdirs {A,B,C,D} ->
	// removed=[C,D], skipped=[A,B], filesystem untouched.
	require := require.New(t)
	m, err := New(t.TempDir())
	require.NoError(err)

	for _, id := range []string{"A", "B", "C", "D"} {
		_, err := m.DirFor(id)
		require.NoError(err)
	}

	res, err := m.Prune(map[string]bool{"A": true, "B": true}, true)
	require.NoError(err)
	require.ElementsMatch([]string{"C", "D"}, res.Removed)
	require.ElementsMatch([]string{"A", "B"}, res.Skipped)

	for _, id := range []string{"A", "B", "C", "D"} {
		_, err := os.Stat(filepath.Join(m.Root(), id))
		require.NoError(err, "dry run must not touch the filesystem")
	}
}

func TestPruneActuallyRemoves(t *testing.T) {
	require := require.New(t)
	m, err := New(t.TempDir())
	require.NoError(err)

	for _, id := range []string{"A", "C"} {
		_, err := m.DirFor(id)
		require.NoError(err)
	}

	res, err := m.Prune(map[string]bool{"A": true}, false)
	require.NoError(err)
	require.Equal([]string{"C"}, res.Removed)

	_, err = os.Stat(filepath.Join(m.Root(), "C"))
	require.True(os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(m.Root(), "A"))
	require.NoError(err, "loaded torrent directory must survive prune")
}

func TestCacheSizeAggregates(t *testing.T) {
	require := require.New(t)
	m, err := New(t.TempDir())
	require.NoError(err)

	dir, err := m.DirFor("abc")
	require.NoError(err)
	require.NoError(os.WriteFile(filepath.Join(dir, "f"), make([]byte, 42), 0o644))

	sizes, err := m.CacheSize(map[string]int64{"abc": 100})
	require.NoError(err)
	require.EqualValues(100, sizes.LogicalBytes)
	require.EqualValues(42, sizes.DiskBytes)
}
