package telephony

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shiftdesk/warm-transfer/internal/clock"
	"github.com/shiftdesk/warm-transfer/internal/model"
	"github.com/shiftdesk/warm-transfer/internal/roomsvc"
	"github.com/shiftdesk/warm-transfer/internal/store"
	"github.com/shiftdesk/warm-transfer/pkg/logger"
	"github.com/shiftdesk/warm-transfer/pkg/metrics"
)

const (
	defaultGrace    = 5 * time.Second
	defaultMaxPolls = 12
	maxPollInterval = 30 * time.Second
)

// WatchSpec describes one placed call to supervise.
type WatchSpec struct {
	CallID string
	Room   string

	// Initiator is the agent disconnected from the room once the
	// grace period passes. Empty skips the disconnect.
	Initiator string

	// Grace is the wait before the disconnect, giving the provider
	// time to bridge the callee. Default 5s.
	Grace time.Duration
}

// StatusFetcher is the gateway surface a monitor polls.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, callID string) (*Call, error)
}

// MonitorConfig wires a MonitorRegistry.
type MonitorConfig struct {
	Gateway StatusFetcher
	Rooms   roomsvc.Client
	Calls   store.CallStore
	Clock   clock.Clock
	Logger  *logger.Logger

	// MaxPolls bounds status checks per call, default 12.
	MaxPolls int

	// OnStatus, if set, runs after each persisted status change.
	OnStatus func(ctx context.Context, record *model.CallRecord)
}

// MonitorRegistry tracks the background goroutine following each
// in-flight call, so a superseding transfer can cancel its watch and
// process shutdown can wait for all of them.
type MonitorRegistry struct {
	gateway  StatusFetcher
	rooms    roomsvc.Client
	calls    store.CallStore
	clk      clock.Clock
	logger   *logger.Logger
	maxPolls int
	onStatus func(context.Context, *model.CallRecord)

	mu       sync.Mutex
	watchers map[string]context.CancelFunc
	closed   bool
	wg       sync.WaitGroup
}

// NewMonitorRegistry builds an empty registry.
func NewMonitorRegistry(cfg MonitorConfig) *MonitorRegistry {
	m := &MonitorRegistry{
		gateway:  cfg.Gateway,
		rooms:    cfg.Rooms,
		calls:    cfg.Calls,
		clk:      cfg.Clock,
		logger:   cfg.Logger,
		maxPolls: cfg.MaxPolls,
		onStatus: cfg.OnStatus,
		watchers: make(map[string]context.CancelFunc),
	}
	if m.clk == nil {
		m.clk = clock.Real()
	}
	if m.logger == nil {
		m.logger = logger.NewNop()
	}
	if m.maxPolls <= 0 {
		m.maxPolls = defaultMaxPolls
	}
	return m
}

// Watch starts a background monitor for spec's call. Watching an
// already-watched call id is a no-op. ctx must be process-scoped, not
// request-scoped: the monitor outlives the request that placed the
// call.
func (m *MonitorRegistry) Watch(ctx context.Context, spec WatchSpec) {
	if spec.Grace <= 0 {
		spec.Grace = defaultGrace
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if _, exists := m.watchers[spec.CallID]; exists {
		m.mu.Unlock()
		m.logger.Debug("call already monitored", zap.String("call_id", spec.CallID))
		return
	}
	watchCtx, cancel := context.WithCancel(ctx)
	m.watchers[spec.CallID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	metrics.CallMonitorsActive.Inc()
	go func() {
		defer func() {
			m.drop(spec.CallID)
			metrics.CallMonitorsActive.Dec()
			m.wg.Done()
		}()
		m.run(watchCtx, spec)
	}()
}

// Cancel stops the monitor for callID, reporting whether one ran.
func (m *MonitorRegistry) Cancel(callID string) bool {
	m.mu.Lock()
	cancel, ok := m.watchers[callID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active reports the number of running monitors.
func (m *MonitorRegistry) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

// Shutdown cancels every monitor and waits for them to exit. The
// registry accepts no new watches afterward.
func (m *MonitorRegistry) Shutdown() {
	m.mu.Lock()
	m.closed = true
	for _, cancel := range m.watchers {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *MonitorRegistry) drop(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.watchers[callID]; ok {
		delete(m.watchers, callID)
		cancel()
	}
}

// run follows one call: wait out the grace period, pull the initiating
// agent from the room, then poll the provider until the call reaches a
// terminal status or the attempt budget runs out.
func (m *MonitorRegistry) run(ctx context.Context, spec WatchSpec) {
	log := m.logger.With(
		zap.String("call_id", spec.CallID),
		zap.String("room", spec.Room),
	)
	log.Info("call monitor started")

	select {
	case <-ctx.Done():
		log.Info("call monitor canceled during grace period")
		return
	case <-m.clk.After(spec.Grace):
	}

	if spec.Initiator != "" {
		// The handoff still works with the agent on the call; they
		// can hang up on their own.
		if err := m.rooms.RemoveParticipant(ctx, spec.Room, spec.Initiator); err != nil {
			log.Warn("could not disconnect initiating agent",
				zap.String("identity", spec.Initiator),
				zap.Error(err),
			)
		} else {
			log.Info("initiating agent disconnected", zap.String("identity", spec.Initiator))
		}
	}

	for attempt := 0; attempt < m.maxPolls; attempt++ {
		call, err := m.gateway.FetchStatus(ctx, spec.CallID)
		switch {
		case err != nil && ctx.Err() != nil:
			log.Info("call monitor canceled")
			return
		case err != nil:
			log.Warn("status poll failed", zap.Int("attempt", attempt+1), zap.Error(err))
		default:
			record, err := m.calls.UpsertCall(ctx, store.CallUpdate{
				CallID:   spec.CallID,
				RoomName: spec.Room,
				Status:   call.Status,
				Metadata: map[string]any{"poll_attempt": strconv.Itoa(attempt + 1)},
			})
			if err != nil {
				log.Warn("persisting call status failed", zap.Error(err))
			} else if m.onStatus != nil {
				m.onStatus(ctx, record)
			}
			if call.Status.Terminal() {
				log.Info("call reached terminal status", zap.String("status", string(call.Status)))
				return
			}
		}

		select {
		case <-ctx.Done():
			log.Info("call monitor canceled")
			return
		case <-m.clk.After(pollInterval(attempt)):
		}
	}

	log.Warn("call monitor gave up before terminal status", zap.Int("max_polls", m.maxPolls))
}

// pollInterval widens as the call stays live: 5s, 10s, 15s and so on,
// capped at 30s.
func pollInterval(attempt int) time.Duration {
	interval := time.Duration(5*(attempt+1)) * time.Second
	if interval > maxPollInterval {
		interval = maxPollInterval
	}
	return interval
}
