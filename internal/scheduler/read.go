package scheduler

import (
	"context"
	"errors"
	"time"
)

// Mode selects how Read behaves when the requested range is not yet
// fully available locally.
type Mode int

const (
	// ModeAuto waits for missing pieces, re-prioritizing them, until the
	// range is complete or the timeout elapses.
	ModeAuto Mode = iota
	// ModeSync is ModeAuto with no timeout: wait indefinitely.
	ModeSync
	// ModeAsync returns only what's already available; a short read
	// stops at the first missing piece, and an empty result is
	// ErrWouldBlock.
	ModeAsync
)

// Sentinel errors mapped onto the RPC error tokens by the
// dispatch layer (WouldBlock, Timeout, Cancelled).
var (
	ErrWouldBlock = errors.New("scheduler: would block")
	ErrTimeout    = errors.New("scheduler: timeout")
	ErrCancelled  = errors.New("scheduler: cancelled")
)

// Session is the slice of a torrent handle the read loop needs: whether
// a piece is fully downloaded, and a way to read bytes once it is.
// internal/engine implements this over *torrent.Torrent.
type Session interface {
	HavePiece(index int) bool
	ReadAt(p []byte, off int64) (int, error)
}

// Request describes one read, already resolved to an absolute
// (torrent-relative) byte range and its covering piece index range
// [P0, P1).
type Request struct {
	AbsOffset   int64
	Length      int64
	P0, P1      int
	PieceLength int64
}

// Read implements the read(file, offset, length, mode, timeout)
// contract. It raises piece priorities for the requested range,
// blocks (except in ModeAsync) on waiter until the range is complete or
// the deadline/context is done, and then reads the resolved bytes out of
// sess. Cancellation (ctx.Done or timeout) releases the priority claim,
// which downgrades any piece no other claimant still covers.
func Read(ctx context.Context, sess Session, tracker *Tracker, waiter *PieceWaiter, req Request, mode Mode, timeout time.Duration) ([]byte, error) {
	claims := make([]PieceClaim, 0, req.P1-req.P0)
	for i := req.P0; i < req.P1; i++ {
		claims = append(claims, PieceClaim{Index: i, Rank: i - req.P0})
	}

	if mode == ModeAsync {
		return readAsync(sess, req)
	}

	id := tracker.Raise(claims, PriorityRead)
	defer tracker.Release(id)

	var deadline <-chan time.Time
	if mode == ModeAuto && timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		ch := waiter.Current()
		if allHave(sess, req) {
			return readRange(sess, req)
		}
		select {
		case <-ch:
			continue
		case <-deadline:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ErrCancelled
		}
	}
}

func allHave(sess Session, req Request) bool {
	for i := req.P0; i < req.P1; i++ {
		if !sess.HavePiece(i) {
			return false
		}
	}
	return true
}

// readAsync returns the already-available prefix of the requested range,
// stopping at the first missing piece. An empty result is ErrWouldBlock.
func readAsync(sess Session, req Request) ([]byte, error) {
	if !sess.HavePiece(req.P0) {
		return nil, ErrWouldBlock
	}

	available := req.Length
	pieceEnd := int64(req.P0+1) * req.PieceLength
	for p := req.P0 + 1; p < req.P1; p++ {
		if !sess.HavePiece(p) {
			havable := pieceEnd - req.AbsOffset
			if havable < available {
				available = havable
			}
			break
		}
		pieceEnd += req.PieceLength
	}

	return readRange(sess, Request{AbsOffset: req.AbsOffset, Length: available, P0: req.P0, P1: req.P1, PieceLength: req.PieceLength})
}

func readRange(sess Session, req Request) ([]byte, error) {
	buf := make([]byte, req.Length)
	n, err := sess.ReadAt(buf, req.AbsOffset)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
