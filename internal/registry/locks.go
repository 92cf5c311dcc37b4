package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shiftdesk/warm-transfer/internal/clock"
	"github.com/shiftdesk/warm-transfer/pkg/metrics"
)

// ErrLockTimeout means a room's transfer lock stayed held for the
// caller's whole wait window.
var ErrLockTimeout = errors.New("registry: room transfer lock timeout")

// LockTable hands out one lock per room so transfers on the same room
// never interleave. Each lock is a channel semaphore of capacity one;
// Acquire waits up to the caller's window for the holder to finish.
type LockTable struct {
	clk clock.Clock

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLockTable builds an empty table driven by clk.
func NewLockTable(clk clock.Clock) *LockTable {
	if clk == nil {
		clk = clock.Real()
	}
	return &LockTable{
		clk:   clk,
		locks: make(map[string]chan struct{}),
	}
}

func (l *LockTable) sem(room string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[room]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[room] = ch
	}
	return ch
}

// Acquire takes the room's transfer lock, waiting up to wait for the
// current holder to release it. A wait of zero makes this a try-lock.
// The returned release func must be called exactly once; callers
// defer it immediately. On timeout Acquire returns ErrLockTimeout.
func (l *LockTable) Acquire(ctx context.Context, room string, wait time.Duration) (func(), error) {
	sem := l.sem(room)

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	default:
	}

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-l.clk.After(wait):
		metrics.LockConflicts.Inc()
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Evict drops the room's lock entry if no one holds it, reporting
// whether the entry was removed. Held locks stay put so the holder's
// release remains valid; the sweeper retries on a later pass.
func (l *LockTable) Evict(room string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.locks[room]
	if !ok {
		return false
	}
	select {
	case sem <- struct{}{}:
		delete(l.locks, room)
		return true
	default:
		return false
	}
}
