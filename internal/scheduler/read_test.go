package scheduler

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu   sync.Mutex
	data []byte
	have map[int]bool
}

func newFakeSession(data []byte, pieceLength int64) *fakeSession {
	have := make(map[int]bool)
	numPieces := (int64(len(data)) + pieceLength - 1) / pieceLength
	for i := int64(0); i < numPieces; i++ {
		have[int(i)] = true
	}
	return &fakeSession{data: data, have: have}
}

func (f *fakeSession) HavePiece(index int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.have[index]
}

func (f *fakeSession) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(p, f.data[off:])
	return n, nil
}

func (f *fakeSession) setHave(index int, v bool) {
	f.mu.Lock()
	f.have[index] = v
	f.mu.Unlock()
}

func TestReadAutoReturnsAvailableData(t *testing.T) {
	require := require.New(t)

	const pieceLength = 4
	data := []byte("0123456789abcdef")
	sess := newFakeSession(data, pieceLength)
	tr := NewTracker(&noopSetter{})
	waiter := NewPieceWaiter()

	req := Request{AbsOffset: 2, Length: 6, P0: 0, P1: 2, PieceLength: pieceLength}
	got, err := Read(context.Background(), sess, tr, waiter, req, ModeAuto, time.Second)
	require.NoError(err)
	require.Equal(data[2:8], got)
}

func TestReadAsyncWouldBlock(t *testing.T) {
	require := require.New(t)

	const pieceLength = 4
	sess := newFakeSession(make([]byte, 16), pieceLength)
	sess.setHave(0, false)
	tr := NewTracker(&noopSetter{})
	waiter := NewPieceWaiter()

	req := Request{AbsOffset: 0, Length: 4, P0: 0, P1: 1, PieceLength: pieceLength}
	_, err := Read(context.Background(), sess, tr, waiter, req, ModeAsync, 0)
	require.ErrorIs(err, ErrWouldBlock)
}

func TestReadAsyncShortRead(t *testing.T) {
	require := require.New(t)

	const pieceLength = 4
	data := []byte("0123456789abcdef")
	sess := newFakeSession(data, pieceLength)
	sess.setHave(1, false)
	tr := NewTracker(&noopSetter{})
	waiter := NewPieceWaiter()

	req := Request{AbsOffset: 0, Length: 8, P0: 0, P1: 2, PieceLength: pieceLength}
	got, err := Read(context.Background(), sess, tr, waiter, req, ModeAsync, 0)
	require.NoError(err)
	require.Equal(data[0:4], got)
}

func TestReadAutoTimesOutWhenPieceNeverArrives(t *testing.T) {
	require := require.New(t)

	const pieceLength = 4
	sess := newFakeSession(make([]byte, 8), pieceLength)
	sess.setHave(0, false)
	tr := NewTracker(&noopSetter{})
	waiter := NewPieceWaiter()

	req := Request{AbsOffset: 0, Length: 4, P0: 0, P1: 1, PieceLength: pieceLength}
	_, err := Read(context.Background(), sess, tr, waiter, req, ModeAuto, 20*time.Millisecond)
	require.ErrorIs(err, ErrTimeout)
}

func TestReadAutoWakesOnNotify(t *testing.T) {
	require := require.New(t)

	const pieceLength = 4
	data := []byte("abcd")
	sess := newFakeSession(data, pieceLength)
	sess.setHave(0, false)
	tr := NewTracker(&noopSetter{})
	waiter := NewPieceWaiter()

	go func() {
		time.Sleep(10 * time.Millisecond)
		sess.setHave(0, true)
		waiter.Notify()
	}()

	req := Request{AbsOffset: 0, Length: 4, P0: 0, P1: 1, PieceLength: pieceLength}
	got, err := Read(context.Background(), sess, tr, waiter, req, ModeAuto, time.Second)
	require.NoError(err)
	require.True(bytes.Equal(data, got))
}

func TestReadCancelledByContext(t *testing.T) {
	require := require.New(t)

	const pieceLength = 4
	sess := newFakeSession(make([]byte, 4), pieceLength)
	sess.setHave(0, false)
	tr := NewTracker(&noopSetter{})
	waiter := NewPieceWaiter()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	req := Request{AbsOffset: 0, Length: 4, P0: 0, P1: 1, PieceLength: pieceLength}
	_, err := Read(ctx, sess, tr, waiter, req, ModeAuto, time.Second)
	require.ErrorIs(err, ErrCancelled)
}

type noopSetter struct{}

func (noopSetter) SetPiecePriority(index int, level PriorityLevel, rank int) {}
