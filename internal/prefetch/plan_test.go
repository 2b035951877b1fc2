package prefetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RetronetBR/torrentfs/internal/pathindex"
	"github.com/RetronetBR/torrentfs/internal/scheduler"
)

type recordingSetter struct {
	calls int
}

func (r *recordingSetter) SetPiecePriority(index int, level scheduler.PriorityLevel, rank int) {
	r.calls++
}

type fakeSleeper struct {
	sleeps []time.Duration
}

func (f *fakeSleeper) Sleep(d time.Duration) {
	f.sleeps = append(f.sleeps, d)
}

func TestPlanFileCoversHeadAndTail(t *testing.T) {
	require := require.New(t)

	e := pathindex.FileEntry{Path: "movie.mkv", Size: 1000, Offset: 0}
	cfg := Config{
		MediaExtensions: []string{".mkv"},
		MediaHead:       Profile{Pct: 1, MinMB: 0, MaxMB: 1000},
		MediaTail:       Profile{Pct: 0, MinMB: 0, MaxMB: 0},
		Mode:            ModeMedia,
	}
	// Head covers the whole file (pct=1), tail is zero, at piece length 100.
	plan := cfg.PlanFile(e, 100)
	require.NotEmpty(plan.Pieces)
	require.Len(plan.Pieces, 10)
}

func TestPlanFileDedupesOverlappingHeadTail(t *testing.T) {
	require := require.New(t)

	e := pathindex.FileEntry{Path: "movie.mkv", Size: 100, Offset: 0}
	cfg := Config{
		MediaExtensions: []string{".mkv"},
		MediaHead:       Profile{Pct: 1, MinMB: 0, MaxMB: 1000},
		MediaTail:       Profile{Pct: 1, MinMB: 0, MaxMB: 1000},
		Mode:            ModeMedia,
	}
	plan := cfg.PlanFile(e, 100)
	require.Len(plan.Pieces, 1, "head and tail both cover the single piece; should not double-claim it")
}

func TestRunBatchesAndPaces(t *testing.T) {
	require := require.New(t)

	setter := &recordingSetter{}
	tracker := scheduler.NewTracker(setter)
	sleeper := &fakeSleeper{}

	plans := []FilePlan{
		{Path: "a", Pieces: []scheduler.PieceClaim{{Index: 0}}},
		{Path: "b", Pieces: []scheduler.PieceClaim{{Index: 1}}},
		{Path: "c", Pieces: []scheduler.PieceClaim{{Index: 2}}},
	}
	cfg := Config{BatchSize: 2, BatchSleepMS: 5}

	claims := Run(tracker, plans, cfg, sleeper)
	require.Len(claims, 3)
	require.Equal(3, setter.calls)
	require.Len(sleeper.sleeps, 1, "should sleep once between the two batches, not after the last")
}
