// Package registry tracks live transfer state per room and serializes
// transfer operations with per-room locks. Entries are advisory: the
// room service remains the source of truth for membership, while the
// registry records what this service did to each room and when.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shiftdesk/warm-transfer/internal/clock"
	"github.com/shiftdesk/warm-transfer/internal/model"
	"github.com/shiftdesk/warm-transfer/pkg/logger"
	"github.com/shiftdesk/warm-transfer/pkg/metrics"
)

const (
	defaultRoomTimeout   = time.Hour
	defaultSweepInterval = 5 * time.Minute
)

// Config carries the registry's tuning knobs.
type Config struct {
	// RoomTimeout is how long a room may sit without activity before
	// the sweeper drops its entry.
	RoomTimeout time.Duration

	// SweepInterval is how often Run scans for stale rooms.
	SweepInterval time.Duration

	Clock  clock.Clock
	Logger *logger.Logger

	// OnEvict runs once per room removed by the sweeper, after the
	// registry entry is gone. Optional.
	OnEvict func(room string)
}

// Registry is an in-memory room-state table guarded by one mutex.
type Registry struct {
	roomTimeout   time.Duration
	sweepInterval time.Duration
	clk           clock.Clock
	logger        *logger.Logger
	onEvict       func(string)

	mu    sync.Mutex
	rooms map[string]*entry
}

// entry pairs stored state with its last-activity stamp. touched, not
// CreatedAt, decides staleness so busy long-lived rooms survive sweeps.
type entry struct {
	state   *model.RoomState
	touched time.Time
}

// New builds a Registry, applying defaults for any zero Config field.
func New(cfg Config) *Registry {
	r := &Registry{
		roomTimeout:   cfg.RoomTimeout,
		sweepInterval: cfg.SweepInterval,
		clk:           cfg.Clock,
		logger:        cfg.Logger,
		onEvict:       cfg.OnEvict,
		rooms:         make(map[string]*entry),
	}
	if r.roomTimeout <= 0 {
		r.roomTimeout = defaultRoomTimeout
	}
	if r.sweepInterval <= 0 {
		r.sweepInterval = defaultSweepInterval
	}
	if r.clk == nil {
		r.clk = clock.Real()
	}
	if r.logger == nil {
		r.logger = logger.NewNop()
	}
	return r
}

// CreateIfAbsent returns the room's state, creating an active entry
// with the given participants when none exists. The second result
// reports whether a new entry was created. Existing entries gain any
// participants they were missing.
func (r *Registry) CreateIfAbsent(room string, participants ...string) (*model.RoomState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	if e, ok := r.rooms[room]; ok {
		e.state.AddParticipants(participants...)
		e.touched = now
		return e.state.Clone(), false
	}

	state := &model.RoomState{
		RoomName:  room,
		Status:    model.RoomStatusActive,
		CreatedAt: now,
	}
	state.AddParticipants(participants...)
	r.rooms[room] = &entry{state: state, touched: now}
	metrics.TrackedRooms.Set(float64(len(r.rooms)))
	return state.Clone(), true
}

// Get returns a copy of the room's state, or ok=false when untracked.
func (r *Registry) Get(room string) (*model.RoomState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rooms[room]
	if !ok {
		return nil, false
	}
	return e.state.Clone(), true
}

// Update applies fn to the room's stored state under the registry lock
// and returns a copy of the result. ok is false when the room is not
// tracked, in which case fn never runs.
func (r *Registry) Update(room string, fn func(*model.RoomState)) (*model.RoomState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rooms[room]
	if !ok {
		return nil, false
	}
	fn(e.state)
	e.touched = r.clk.Now()
	return e.state.Clone(), true
}

// Remove drops the room's entry. It reports whether one existed.
func (r *Registry) Remove(room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room]; !ok {
		return false
	}
	delete(r.rooms, room)
	metrics.TrackedRooms.Set(float64(len(r.rooms)))
	return true
}

// Len reports the number of tracked rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// SweepStale removes every room whose last activity is older than the
// configured timeout and returns their names in sorted order.
func (r *Registry) SweepStale() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clk.Now().Add(-r.roomTimeout)
	var removed []string
	for room, e := range r.rooms {
		if e.touched.Before(cutoff) || e.touched.Equal(cutoff) {
			delete(r.rooms, room)
			removed = append(removed, room)
		}
	}
	if len(removed) > 0 {
		metrics.TrackedRooms.Set(float64(len(r.rooms)))
		sort.Strings(removed)
	}
	return removed
}

// Run sweeps stale rooms on the configured interval until ctx is
// canceled. Evicted rooms are reported to OnEvict so callers can clear
// related resources, such as the room's transfer lock.
func (r *Registry) Run(ctx context.Context) {
	ticker := r.clk.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := r.SweepStale()
			if len(removed) == 0 {
				continue
			}
			r.logger.Info("swept stale rooms",
				zap.Strings("rooms", removed),
				zap.Duration("room_timeout", r.roomTimeout),
			)
			if r.onEvict != nil {
				for _, room := range removed {
					r.onEvict(room)
				}
			}
		}
	}
}
