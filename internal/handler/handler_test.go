package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shiftdesk/warm-transfer/internal/clock"
	"github.com/shiftdesk/warm-transfer/internal/coordinator"
	"github.com/shiftdesk/warm-transfer/internal/model"
	"github.com/shiftdesk/warm-transfer/internal/registry"
	"github.com/shiftdesk/warm-transfer/internal/roomsvc"
	"github.com/shiftdesk/warm-transfer/internal/store"
	"github.com/shiftdesk/warm-transfer/internal/summarizer"
	"github.com/shiftdesk/warm-transfer/internal/telephony"
	"github.com/shiftdesk/warm-transfer/internal/token"
	"github.com/shiftdesk/warm-transfer/pkg/logger"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type noopWatcher struct{}

func (noopWatcher) Watch(context.Context, telephony.WatchSpec) {}

type env struct {
	router chi.Router
	st     *store.Memory
	reg    *registry.Registry
	minter *token.Minter
}

// newEnv wires handlers over a real coordinator: memory store, no room
// provider, no telephony credentials, and a provider-less summarizer
// that answers from its local fallback.
func newEnv(t *testing.T) *env {
	t.Helper()
	fc := clock.Fake(epoch)
	st := store.NewMemory(fc)
	reg := registry.New(registry.Config{Clock: fc})
	minter := token.NewMinter("devkey", "devsecret", 0)
	log := logger.NewNop()

	coord := coordinator.New(coordinator.Config{
		Store:      st,
		Registry:   reg,
		Locks:      registry.NewLockTable(fc),
		Minter:     minter,
		Summarizer: summarizer.New(summarizer.Config{Clock: fc, Logger: log}),
		Rooms:      roomsvc.New(roomsvc.Config{Logger: log}),
		Gateway:    telephony.NewGateway(telephony.GatewayConfig{Clock: fc, Logger: log}),
		Monitors:   noopWatcher{},
		Clock:      fc,
		Logger:     log,
	})

	rooms := NewRoomHandler(coord, log)
	transfer := NewTransferHandler(coord, log)
	health := NewHealthHandler(nil, st, nil, false, false)

	r := chi.NewRouter()
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Post("/webhooks/telephony", transfer.Webhook)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/rooms", rooms.Create)
		r.Post("/rooms/join", rooms.Join)
		r.Post("/rooms/membership", rooms.Membership)
		r.Get("/rooms/{room}/summary", rooms.Summary)
		r.Get("/rooms/{room}/state", rooms.State)
		r.Post("/transfer", transfer.Transfer)
		r.Post("/transfer/phone", transfer.PhoneTransfer)
		r.Get("/calls/{room}", transfer.CallStatus)
	})

	return &env{router: r, st: st, reg: reg, minter: minter}
}

func (e *env) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *env) doForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func TestCreateRoomEndpoint(t *testing.T) {
	e := newEnv(t)

	rr := e.doJSON(t, http.MethodPost, "/v1/rooms", map[string]string{})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var created model.CreateRoomResponse
	decode(t, rr, &created)
	if !strings.HasPrefix(created.RoomName, "room-") || !created.Created {
		t.Errorf("resp = %+v", created)
	}

	rr = e.doJSON(t, http.MethodPost, "/v1/rooms", model.CreateRoomRequest{RoomName: "support-7"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d", rr.Code)
	}

	// Creating the same room again is not an error, just not Created.
	rr = e.doJSON(t, http.MethodPost, "/v1/rooms", model.CreateRoomRequest{RoomName: "support-7"})
	if rr.Code != http.StatusOK {
		t.Fatalf("repeat status = %d", rr.Code)
	}
	var again model.CreateRoomResponse
	decode(t, rr, &again)
	if again.Created {
		t.Error("repeat create reported a new room")
	}
}

func TestJoinAndMembershipEndpoints(t *testing.T) {
	e := newEnv(t)

	rr := e.doJSON(t, http.MethodPost, "/v1/rooms/join", model.JoinTokenRequest{
		RoomName: "r1",
		Identity: "alice",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("join status = %d, body %s", rr.Code, rr.Body.String())
	}
	var joined model.JoinTokenResponse
	decode(t, rr, &joined)
	claims, err := e.minter.Parse(joined.Token)
	if err != nil {
		t.Fatalf("Parse minted token: %v", err)
	}
	if claims.Subject != "alice" || claims.Video.Room != "r1" {
		t.Errorf("claims = %q in %q", claims.Subject, claims.Video.Room)
	}

	// No room provider configured: membership answers from tracking.
	rr = e.doJSON(t, http.MethodPost, "/v1/rooms/membership", model.MembershipRequest{
		RoomName: "r1",
		Identity: "alice",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("membership status = %d", rr.Code)
	}
	var member model.MembershipResponse
	decode(t, rr, &member)
	if !member.IsMember {
		t.Error("joined identity reported as non-member")
	}

	rr = e.doJSON(t, http.MethodPost, "/v1/rooms/membership", model.MembershipRequest{
		RoomName: "r1",
		Identity: "bob",
	})
	decode(t, rr, &member)
	if member.IsMember {
		t.Error("unjoined identity reported as member")
	}
}

func TestTransferEndpoint(t *testing.T) {
	e := newEnv(t)

	rr := e.doJSON(t, http.MethodPost, "/v1/transfer", model.TransferRequest{
		RoomName:   "r1",
		FromAgent:  "agentA",
		ToAgent:    "agentB",
		Transcript: "Caller: help\nAgent: sure",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp model.TransferResponse
	decode(t, rr, &resp)
	if resp.RoomName != "r1" {
		t.Errorf("room = %q", resp.RoomName)
	}
	if resp.Summary == "" {
		t.Error("summary is empty")
	}
	if resp.FromAgentToken == "" || resp.ToAgentToken == "" || resp.CallerToken == "" {
		t.Error("missing tokens")
	}
	if resp.FromAgentToken == resp.ToAgentToken || resp.ToAgentToken == resp.CallerToken {
		t.Error("tokens are not distinct")
	}

	// The persisted summary is what the response carried.
	rr = e.doJSON(t, http.MethodGet, "/v1/rooms/r1/summary", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rr.Code)
	}
	var summary model.SummaryResponse
	decode(t, rr, &summary)
	if summary.Summary != resp.Summary {
		t.Errorf("persisted summary = %q, want %q", summary.Summary, resp.Summary)
	}

	rr = e.doJSON(t, http.MethodGet, "/v1/rooms/r1/state", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("state status = %d", rr.Code)
	}
	var state model.RoomState
	decode(t, rr, &state)
	if state.Status != model.RoomStatusTransferring {
		t.Errorf("state status = %q", state.Status)
	}
}

func TestTransferEndpointValidation(t *testing.T) {
	e := newEnv(t)

	rr := e.doJSON(t, http.MethodPost, "/v1/transfer", model.TransferRequest{
		RoomName:  "r1",
		FromAgent: "agentA",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var body map[string]string
	decode(t, rr, &body)
	if body["error"] == "" {
		t.Error("error body missing message")
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/transfer", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rr.Code)
	}
}

func TestPhoneTransferEndpointUnconfigured(t *testing.T) {
	e := newEnv(t)

	rr := e.doJSON(t, http.MethodPost, "/v1/transfer/phone", model.PhoneTransferRequest{
		RoomName:       "r1",
		CallerIdentity: "agentA",
		PhoneNumber:    "+12125551234",
	})
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501, body %s", rr.Code, rr.Body.String())
	}
	var body map[string]string
	decode(t, rr, &body)
	if !strings.Contains(body["error"], "not configured") {
		t.Errorf("error = %q", body["error"])
	}
}

func TestSummaryAndStateNotFound(t *testing.T) {
	e := newEnv(t)

	rr := e.doJSON(t, http.MethodGet, "/v1/rooms/ghost/summary", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("summary status = %d, want 404", rr.Code)
	}
	var body map[string]string
	decode(t, rr, &body)
	if !strings.Contains(body["error"], "ghost") {
		t.Errorf("error = %q, want the room named", body["error"])
	}

	rr = e.doJSON(t, http.MethodGet, "/v1/rooms/ghost/state", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("state status = %d, want 404", rr.Code)
	}
}

func TestWebhookEndpoint(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rr := e.doForm(t, "/webhooks/telephony", url.Values{
		"CallSid":    {"CA9"},
		"CallStatus": {"ringing"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var ack map[string]bool
	decode(t, rr, &ack)
	if !ack["ok"] {
		t.Errorf("ack = %v", ack)
	}

	rec, err := e.st.CallByID(ctx, "CA9")
	if err != nil {
		t.Fatalf("CallByID: %v", err)
	}
	if rec.Status != model.CallStatusRinging {
		t.Errorf("status = %q", rec.Status)
	}

	// Re-delivery and progression both acknowledge.
	if rr := e.doForm(t, "/webhooks/telephony", url.Values{
		"CallSid":    {"CA9"},
		"CallStatus": {"ringing"},
	}); rr.Code != http.StatusOK {
		t.Errorf("replay status = %d", rr.Code)
	}
	if rr := e.doForm(t, "/webhooks/telephony", url.Values{
		"CallSid":      {"CA9"},
		"CallStatus":   {"completed"},
		"CallDuration": {"42"},
	}); rr.Code != http.StatusOK {
		t.Errorf("completed status = %d", rr.Code)
	}
	rec, err = e.st.CallByID(ctx, "CA9")
	if err != nil {
		t.Fatalf("CallByID: %v", err)
	}
	if rec.Status != model.CallStatusCompleted {
		t.Errorf("status = %q, want completed", rec.Status)
	}
	if rec.Metadata["call_duration"] != "42" {
		t.Errorf("metadata = %v", rec.Metadata)
	}

	// A malformed webhook still acknowledges so the provider stops.
	if rr := e.doForm(t, "/webhooks/telephony", url.Values{"CallStatus": {"ringing"}}); rr.Code != http.StatusOK {
		t.Errorf("missing CallSid status = %d", rr.Code)
	}
}

func TestCallsEndpoint(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.st.UpsertCall(ctx, store.CallUpdate{
		CallID:   "CA1",
		RoomName: "r1",
		Status:   model.CallStatusCompleted,
	}); err != nil {
		t.Fatalf("UpsertCall: %v", err)
	}

	rr := e.doJSON(t, http.MethodGet, "/v1/calls/r1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var rec model.CallRecord
	decode(t, rr, &rec)
	if rec.CallID != "CA1" || rec.Status != model.CallStatusCompleted {
		t.Errorf("record = %+v", rec)
	}

	if rr := e.doJSON(t, http.MethodGet, "/v1/calls/none", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing room status = %d, want 404", rr.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	e := newEnv(t)

	rr := e.doJSON(t, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
	var health struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}
	decode(t, rr, &health)
	if health.Status != "healthy" {
		t.Errorf("status = %q", health.Status)
	}
	if _, ok := health.Components["telephony_configured"]; !ok {
		t.Errorf("components = %v", health.Components)
	}

	rr = e.doJSON(t, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("ready status = %d", rr.Code)
	}
}
