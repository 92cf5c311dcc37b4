// Package coordinator sequences warm transfers: per-room mutual
// exclusion, summary generation, credential minting, and for phone
// transfers, call placement plus the background monitor that finishes
// the handoff. Every public operation returns either a result or an
// *Error carrying a machine-readable kind.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shiftdesk/warm-transfer/internal/clock"
	"github.com/shiftdesk/warm-transfer/internal/events"
	"github.com/shiftdesk/warm-transfer/internal/model"
	"github.com/shiftdesk/warm-transfer/internal/registry"
	"github.com/shiftdesk/warm-transfer/internal/roomsvc"
	"github.com/shiftdesk/warm-transfer/internal/store"
	"github.com/shiftdesk/warm-transfer/internal/telephony"
	"github.com/shiftdesk/warm-transfer/internal/token"
	"github.com/shiftdesk/warm-transfer/pkg/logger"
	"github.com/shiftdesk/warm-transfer/pkg/metrics"
)

const (
	defaultLockWait       = 30 * time.Second
	defaultCallerIdentity = "caller"

	// maxIdentifierLen bounds room names and identities.
	maxIdentifierLen = 128
)

// Summarizer produces a handoff summary. Implementations never fail;
// they fall back to locally generated text.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) string
}

// TokenMinter issues room access tokens. *token.Minter satisfies this.
type TokenMinter interface {
	MintToken(room, identity, role string, ttl time.Duration) (string, error)
}

// CallPlacer places and inspects provider calls. *telephony.Gateway
// satisfies this.
type CallPlacer interface {
	PlaceCall(ctx context.Context, req telephony.CallRequest) (*telephony.Call, error)
	FetchStatus(ctx context.Context, callID string) (*telephony.Call, error)
	Configured() bool
}

// CallWatcher runs background call monitors.
// *telephony.MonitorRegistry satisfies this.
type CallWatcher interface {
	Watch(ctx context.Context, spec telephony.WatchSpec)
}

// Config wires a Coordinator.
type Config struct {
	Store      store.Store
	Registry   *registry.Registry
	Locks      *registry.LockTable
	Minter     TokenMinter
	Summarizer Summarizer
	Rooms      roomsvc.Client
	Gateway    CallPlacer
	Monitors   CallWatcher

	// Events receives lifecycle events; nil disables publishing.
	Events *events.Publisher

	Clock  clock.Clock
	Logger *logger.Logger

	// LockWait bounds transfer lock acquisition, default 30s.
	LockWait time.Duration

	// CallerIdentity is the identity caller tokens are minted for,
	// default "caller".
	CallerIdentity string

	// TokenTTL is reported to join-token callers, default 1h. The
	// minter applies its own TTL when signing.
	TokenTTL time.Duration
}

// Coordinator owns the transfer sequence. Safe for concurrent use;
// operations on the same room serialize on its transfer lock.
type Coordinator struct {
	store      store.Store
	registry   *registry.Registry
	locks      *registry.LockTable
	minter     TokenMinter
	summarizer Summarizer
	rooms      roomsvc.Client
	gateway    CallPlacer
	monitors   CallWatcher
	events     *events.Publisher
	clk        clock.Clock
	logger     *logger.Logger
	tracer     trace.Tracer

	lockWait       time.Duration
	callerIdentity string
	tokenTTL       time.Duration
}

// New builds a Coordinator, applying defaults for any zero option.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		store:          cfg.Store,
		registry:       cfg.Registry,
		locks:          cfg.Locks,
		minter:         cfg.Minter,
		summarizer:     cfg.Summarizer,
		rooms:          cfg.Rooms,
		gateway:        cfg.Gateway,
		monitors:       cfg.Monitors,
		events:         cfg.Events,
		clk:            cfg.Clock,
		logger:         cfg.Logger,
		tracer:         otel.Tracer("warm-transfer/coordinator"),
		lockWait:       cfg.LockWait,
		callerIdentity: cfg.CallerIdentity,
		tokenTTL:       cfg.TokenTTL,
	}
	if c.clk == nil {
		c.clk = clock.Real()
	}
	if c.logger == nil {
		c.logger = logger.NewNop()
	}
	if c.lockWait <= 0 {
		c.lockWait = defaultLockWait
	}
	if c.callerIdentity == "" {
		c.callerIdentity = defaultCallerIdentity
	}
	if c.tokenTTL <= 0 {
		c.tokenTTL = token.DefaultTTL
	}
	return c
}

// ExecuteRoomTransfer hands a live room from one agent to another:
// summary from the accumulated transcript, fresh credentials for the
// initiator, the target, and the caller, all bound to the same room.
func (c *Coordinator) ExecuteRoomTransfer(ctx context.Context, req *model.TransferRequest) (*model.TransferResponse, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.room_transfer",
		trace.WithAttributes(
			attribute.String("room.name", req.RoomName),
			attribute.String("transfer.initiator", req.FromAgent),
			attribute.String("transfer.target", req.ToAgent),
		))
	defer span.End()

	start := c.clk.Now()
	resp, err := c.roomTransfer(ctx, req)
	elapsed := c.clk.Now().Sub(start).Seconds()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		metrics.RecordTransfer("room", "failure", elapsed)
		c.events.TransferFailed(ctx, req.RoomName, req.FromAgent, err.Error())
		return nil, err
	}

	metrics.RecordTransfer("room", "success", elapsed)
	c.events.TransferCompleted(ctx, resp.RoomName, req.FromAgent, req.ToAgent)
	return resp, nil
}

func (c *Coordinator) roomTransfer(ctx context.Context, req *model.TransferRequest) (*model.TransferResponse, error) {
	room, verr := identifier("room_name", req.RoomName)
	if verr != nil {
		return nil, verr
	}
	initiator, verr := identifier("from_agent", req.FromAgent)
	if verr != nil {
		return nil, verr
	}
	target, verr := identifier("to_agent", req.ToAgent)
	if verr != nil {
		return nil, verr
	}

	release, err := c.locks.Acquire(ctx, room, c.lockWait)
	if err != nil {
		if errors.Is(err, registry.ErrLockTimeout) {
			return nil, conflict(err, fmt.Sprintf("transfer already in progress for room %s", room))
		}
		return nil, internal(err, "acquiring transfer lock")
	}
	defer release()

	c.registry.CreateIfAbsent(room, initiator)

	// Persist the caller's latest turn before reading, so the summary
	// reflects it.
	if fragment := strings.TrimSpace(req.Transcript); fragment != "" {
		if err := c.store.AppendTranscript(ctx, room, fragment); err != nil {
			return nil, c.failRoom(room, internal(err, "recording transcript"))
		}
	}

	transcript, err := c.store.Transcript(ctx, room)
	if err != nil {
		return nil, c.failRoom(room, internal(err, "reading transcript"))
	}

	summary := c.summarizer.Summarize(ctx, transcript)

	now := c.clk.Now()
	c.registry.Update(room, func(s *model.RoomState) {
		s.Status = model.RoomStatusTransferring
		s.Initiator = initiator
		s.Target = target
		s.Summary = summary
		s.TransferInitiatedAt = &now
		s.AddParticipants(initiator, target)
	})

	if err := c.store.SetSummary(ctx, room, summary); err != nil {
		return nil, c.failRoom(room, internal(err, "persisting summary"))
	}

	initiatorToken, err := c.minter.MintToken(room, initiator, token.RoleAgent, 0)
	if err != nil {
		return nil, c.failRoom(room, internal(err, "minting initiator credential"))
	}
	targetToken, err := c.minter.MintToken(room, target, token.RoleAgent, 0)
	if err != nil {
		return nil, c.failRoom(room, internal(err, "minting target credential"))
	}
	callerToken, err := c.minter.MintToken(room, c.callerIdentity, token.RoleCaller, 0)
	if err != nil {
		return nil, c.failRoom(room, internal(err, "minting caller credential"))
	}

	c.logger.Info("room transfer completed",
		zap.String("room", room),
		zap.String("initiator", initiator),
		zap.String("target", target),
		zap.Int("summary_chars", len(summary)),
	)

	return &model.TransferResponse{
		RoomName:       room,
		FromAgentToken: initiatorToken,
		ToAgentToken:   targetToken,
		CallerToken:    callerToken,
		Summary:        summary,
	}, nil
}

// ExecutePhoneTransfer bridges an agent reachable only by phone into
// the room: the callee hears the summary, joins the room, and a
// background monitor disconnects the initiating agent.
func (c *Coordinator) ExecutePhoneTransfer(ctx context.Context, req *model.PhoneTransferRequest) (*model.PhoneTransferResponse, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.phone_transfer",
		trace.WithAttributes(
			attribute.String("room.name", req.RoomName),
			attribute.String("transfer.initiator", req.CallerIdentity),
		))
	defer span.End()

	start := c.clk.Now()
	resp, err := c.phoneTransfer(ctx, req)
	elapsed := c.clk.Now().Sub(start).Seconds()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		metrics.RecordTransfer("phone", "failure", elapsed)
		c.events.TransferFailed(ctx, req.RoomName, req.CallerIdentity, err.Error())
		return nil, err
	}

	metrics.RecordTransfer("phone", "success", elapsed)
	c.events.CallStatusChanged(ctx, &model.CallRecord{
		CallID:      resp.CallID,
		RoomName:    req.RoomName,
		PhoneNumber: resp.ToNumber,
		Status:      model.CallStatus(resp.Status),
	})
	return resp, nil
}

func (c *Coordinator) phoneTransfer(ctx context.Context, req *model.PhoneTransferRequest) (*model.PhoneTransferResponse, error) {
	if c.gateway == nil || !c.gateway.Configured() {
		return nil, dependency(telephony.ErrNotConfigured, "phone transfers are not configured")
	}

	room, verr := identifier("room_name", req.RoomName)
	if verr != nil {
		return nil, verr
	}
	initiator, verr := identifier("caller_identity", req.CallerIdentity)
	if verr != nil {
		return nil, verr
	}
	if err := telephony.ValidatePhone(req.PhoneNumber); err != nil {
		return nil, &Error{Kind: KindValidation, Message: "phone_number must be E.164", Err: err}
	}
	if req.TimeoutSeconds != 0 && (req.TimeoutSeconds < 10 || req.TimeoutSeconds > 300) {
		return nil, validationf("timeout_seconds must be between 10 and 300")
	}

	release, err := c.locks.Acquire(ctx, room, c.lockWait)
	if err != nil {
		if errors.Is(err, registry.ErrLockTimeout) {
			return nil, conflict(err, fmt.Sprintf("transfer already in progress for room %s", room))
		}
		return nil, internal(err, "acquiring transfer lock")
	}
	defer release()

	c.registry.CreateIfAbsent(room)

	member, err := c.rooms.IsMember(ctx, room, initiator)
	if err != nil {
		// Fall back to what this service has seen of the room.
		if !errors.Is(err, roomsvc.ErrNotConfigured) {
			c.logger.Warn("membership lookup failed, using tracked participants",
				zap.String("room", room), zap.Error(err))
		}
		state, ok := c.registry.Get(room)
		member = ok && state.HasParticipant(initiator)
	}
	if !member {
		return nil, validationf("%s is not a member of room %s", initiator, room)
	}

	transcript, err := c.store.Transcript(ctx, room)
	if err != nil {
		return nil, c.failRoom(room, internal(err, "reading transcript"))
	}
	summary := c.summarizer.Summarize(ctx, transcript)

	// The provider joins the room with server-side credentials;
	// minting here validates signing config before we spend a call.
	phoneIdentity := "phone-" + uuid.NewString()[:8]
	if _, err := c.minter.MintToken(room, phoneIdentity, token.RoleAgent, 0); err != nil {
		return nil, c.failRoom(room, internal(err, "minting phone participant credential"))
	}

	script, err := telephony.BuildVoiceScript(summary, room, phoneIdentity)
	if err != nil {
		return nil, c.failRoom(room, internal(err, "building voice script"))
	}

	now := c.clk.Now()
	c.registry.Update(room, func(s *model.RoomState) {
		s.Status = model.RoomStatusTransferring
		s.Initiator = initiator
		s.Summary = summary
		s.TransferInitiatedAt = &now
		s.AddParticipants(initiator)
	})

	call, err := c.gateway.PlaceCall(ctx, telephony.CallRequest{
		To:             req.PhoneNumber,
		VoiceScript:    script,
		TimeoutSeconds: req.TimeoutSeconds,
	})
	if err != nil {
		return nil, c.failRoom(room, dependency(err, "placing transfer call"))
	}

	if _, err := c.store.UpsertCall(ctx, store.CallUpdate{
		CallID:      call.ID,
		RoomName:    room,
		PhoneNumber: req.PhoneNumber,
		Status:      call.Status,
		Metadata: map[string]any{
			"identity":  phoneIdentity,
			"initiator": initiator,
		},
	}); err != nil {
		// The call is already in flight; failing the request now
		// would invite a duplicate placement on retry.
		c.logger.Error("persisting placed call failed",
			zap.String("call_id", call.ID),
			zap.String("room", room),
			zap.Error(err),
		)
	}

	c.monitors.Watch(context.WithoutCancel(ctx), telephony.WatchSpec{
		CallID:    call.ID,
		Room:      room,
		Initiator: initiator,
	})

	c.logger.Info("phone transfer started",
		zap.String("room", room),
		zap.String("call_id", call.ID),
		zap.String("to", req.PhoneNumber),
		zap.String("status", string(call.Status)),
	)

	return &model.PhoneTransferResponse{
		CallID:   call.ID,
		ToNumber: req.PhoneNumber,
		Status:   string(call.Status),
	}, nil
}

// ApplyCallUpdate records a provider webhook status change. It is
// idempotent under re-delivery and accepts call ids this service has
// not seen, since webhooks can outrun the placement path's write.
func (c *Coordinator) ApplyCallUpdate(ctx context.Context, callID string, status model.CallStatus, metadata map[string]any) error {
	if strings.TrimSpace(callID) == "" {
		return validationf("call id is required")
	}
	record, err := c.store.UpsertCall(ctx, store.CallUpdate{
		CallID:   callID,
		Status:   status,
		Metadata: metadata,
	})
	if err != nil {
		return internal(err, "recording call status")
	}
	c.events.CallStatusChanged(ctx, record)
	return nil
}

// CallStatus returns the latest call record for a room. A non-terminal
// record also triggers one background provider poll so the stored view
// converges even when webhooks are lost.
func (c *Coordinator) CallStatus(ctx context.Context, room string) (*model.CallRecord, error) {
	room, verr := identifier("room", room)
	if verr != nil {
		return nil, verr
	}

	record, err := c.store.LatestCallForRoom(ctx, room)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("no calls for room %s: %w", room, ErrNotFound)
		}
		return nil, internal(err, "reading call record")
	}

	if !record.Status.Terminal() && c.gateway != nil && c.gateway.Configured() {
		go c.refreshCallStatus(context.WithoutCancel(ctx), record.CallID, room)
	}
	return record, nil
}

func (c *Coordinator) refreshCallStatus(ctx context.Context, callID, room string) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	call, err := c.gateway.FetchStatus(ctx, callID)
	if err != nil {
		c.logger.Debug("call status refresh failed",
			zap.String("call_id", callID), zap.Error(err))
		return
	}
	if _, err := c.store.UpsertCall(ctx, store.CallUpdate{
		CallID:   callID,
		RoomName: room,
		Status:   call.Status,
	}); err != nil {
		c.logger.Warn("persisting refreshed call status failed",
			zap.String("call_id", callID), zap.Error(err))
	}
}

// CreateRoom tracks a room, generating a name when none is given.
func (c *Coordinator) CreateRoom(ctx context.Context, room string) (*model.CreateRoomResponse, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		room = "room-" + uuid.NewString()[:8]
	} else if len(room) > maxIdentifierLen {
		return nil, validationf("room_name exceeds %d characters", maxIdentifierLen)
	}

	_, created := c.registry.CreateIfAbsent(room)
	return &model.CreateRoomResponse{RoomName: room, Created: created}, nil
}

// JoinRoom mints an access token for identity and tracks it as a room
// participant.
func (c *Coordinator) JoinRoom(ctx context.Context, room, identity, role string) (*model.JoinTokenResponse, error) {
	room, verr := identifier("room_name", room)
	if verr != nil {
		return nil, verr
	}
	identity, verr = identifier("identity", identity)
	if verr != nil {
		return nil, verr
	}
	if role == "" {
		role = token.RoleParticipant
	}

	accessToken, err := c.minter.MintToken(room, identity, role, 0)
	if err != nil {
		return nil, internal(err, "minting access token")
	}
	c.registry.CreateIfAbsent(room, identity)

	return &model.JoinTokenResponse{
		RoomName:  room,
		Identity:  identity,
		Token:     accessToken,
		ExpiresIn: int(c.tokenTTL.Seconds()),
	}, nil
}

// Membership reports whether identity currently occupies room. With no
// room provider configured it answers from tracked participants.
func (c *Coordinator) Membership(ctx context.Context, room, identity string) (*model.MembershipResponse, error) {
	room, verr := identifier("room_name", room)
	if verr != nil {
		return nil, verr
	}
	identity, verr = identifier("identity", identity)
	if verr != nil {
		return nil, verr
	}

	member, err := c.rooms.IsMember(ctx, room, identity)
	if err != nil {
		if !errors.Is(err, roomsvc.ErrNotConfigured) {
			return nil, dependency(err, "membership lookup failed")
		}
		state, ok := c.registry.Get(room)
		member = ok && state.HasParticipant(identity)
	}

	return &model.MembershipResponse{
		RoomName: room,
		Identity: identity,
		IsMember: member,
	}, nil
}

// RoomSummary returns the room's persisted handoff summary.
func (c *Coordinator) RoomSummary(ctx context.Context, room string) (string, error) {
	room, verr := identifier("room", room)
	if verr != nil {
		return "", verr
	}
	summary, err := c.store.Summary(ctx, room)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("no summary for room %s: %w", room, ErrNotFound)
		}
		return "", internal(err, "reading summary")
	}
	return summary, nil
}

// RoomState returns the registry's view of a room.
func (c *Coordinator) RoomState(room string) (*model.RoomState, error) {
	state, ok := c.registry.Get(strings.TrimSpace(room))
	if !ok {
		return nil, fmt.Errorf("room %s is not tracked: %w", room, ErrNotFound)
	}
	return state, nil
}

// failRoom marks the room errored and passes err through.
func (c *Coordinator) failRoom(room string, err *Error) error {
	now := c.clk.Now()
	c.registry.Update(room, func(s *model.RoomState) {
		s.Status = model.RoomStatusError
		s.ErrorTime = &now
	})
	return err
}

// identifier trims and bounds a room name or identity.
func identifier(field, value string) (string, *Error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", validationf("%s is required", field)
	}
	if len(trimmed) > maxIdentifierLen {
		return "", validationf("%s exceeds %d characters", field, maxIdentifierLen)
	}
	return trimmed, nil
}
