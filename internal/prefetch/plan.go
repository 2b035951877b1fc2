package prefetch

import (
	"time"

	"github.com/RetronetBR/torrentfs/internal/pathindex"
	"github.com/RetronetBR/torrentfs/internal/scheduler"
)

// FilePlan is the set of pieces one file's head/tail ranges resolve to,
// ready to be handed to a scheduler.Tracker.
type FilePlan struct {
	Path   string
	Ranges Ranges
	Pieces []scheduler.PieceClaim
}

// PlanFile resolves e's head/tail byte ranges into the piece indices that
// cover them, each ranked by distance from the start of its own range (so
// a session adapter can still tier head pieces hotter than tail pieces if
// it chooses to).
func (c Config) PlanFile(e pathindex.FileEntry, pieceLength int64) FilePlan {
	ranges := c.Resolve(e.Path, e.Size)

	seen := make(map[int]bool)
	var pieces []scheduler.PieceClaim

	addRange := func(offset, length int64) {
		if length <= 0 {
			return
		}
		p0, p1, _ := pathindex.PiecesFor(e, offset, length, pieceLength)
		for i := p0; i < p1; i++ {
			if seen[i] {
				continue
			}
			seen[i] = true
			pieces = append(pieces, scheduler.PieceClaim{Index: i, Rank: i - p0})
		}
	}

	addRange(0, ranges.HeadBytes)
	if ranges.TailBytes > 0 {
		addRange(e.Size-ranges.TailBytes, ranges.TailBytes)
	}

	return FilePlan{Path: e.Path, Ranges: ranges, Pieces: pieces}
}

// Sleeper abstracts the pacing delays so tests can run without actually
// sleeping; production code uses RealSleeper.
type Sleeper interface {
	Sleep(d time.Duration)
}

type RealSleeper struct{}

func (RealSleeper) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// Run applies plans in batches of cfg.BatchSize, sleeping cfg.BatchSleepMS
// between batches, raising each file's pieces at PriorityPrefetch and
// returning the claim tokens so the caller (the engine) can release them
// later — e.g. once the file is fully pinned, evicted, or the torrent is
// removed.
func Run(tracker *scheduler.Tracker, plans []FilePlan, cfg Config, sleeper Sleeper) []scheduler.ClaimID {
	if sleeper == nil {
		sleeper = RealSleeper{}
	}

	var claims []scheduler.ClaimID
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = len(plans)
	}
	if batch <= 0 {
		return claims
	}

	for start := 0; start < len(plans); start += batch {
		end := start + batch
		if end > len(plans) {
			end = len(plans)
		}
		for _, plan := range plans[start:end] {
			if len(plan.Pieces) == 0 {
				continue
			}
			id := tracker.Raise(plan.Pieces, scheduler.PriorityPrefetch)
			claims = append(claims, id)
		}
		if end < len(plans) {
			sleeper.Sleep(time.Duration(cfg.BatchSleepMS) * time.Millisecond)
		}
	}
	return claims
}
