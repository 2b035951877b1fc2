package scheduler

import "sync"

// PieceWaiter multiplexes a torrent's piece-completion/error alerts into
// a generation-counted broadcast: a channel that's closed and replaced on every
// notification. Callers grab the current channel, re-check their
// condition, and only then select on it — so a notification delivered
// between the check and the select is never missed, which is the
// generation-counter guarantee the design notes call for, expressed with
// a channel swap instead of an explicit counter + sync.Cond.
type PieceWaiter struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewPieceWaiter returns a waiter ready to use.
func NewPieceWaiter() *PieceWaiter {
	return &PieceWaiter{ch: make(chan struct{})}
}

// Current returns the channel that will close on the next Notify. Callers
// must fetch this *before* re-checking whatever condition they're waiting
// on.
func (w *PieceWaiter) Current() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ch
}

// Notify wakes every waiter currently selecting on Current's result and
// arms a fresh channel for the next round. Called by the engine's alert
// consumer each time a piece completes.
func (w *PieceWaiter) Notify() {
	w.mu.Lock()
	close(w.ch)
	w.ch = make(chan struct{})
	w.mu.Unlock()
}
