// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shiftdesk/warm-transfer/internal/coordinator"
	"github.com/shiftdesk/warm-transfer/internal/model"
	"github.com/shiftdesk/warm-transfer/pkg/logger"
)

// RoomHandler handles room lifecycle endpoints.
type RoomHandler struct {
	coordinator *coordinator.Coordinator
	logger      *logger.Logger
}

// NewRoomHandler creates a new room handler.
func NewRoomHandler(coord *coordinator.Coordinator, log *logger.Logger) *RoomHandler {
	return &RoomHandler{
		coordinator: coord,
		logger:      log,
	}
}

// Create handles POST /v1/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.coordinator.CreateRoom(r.Context(), req.RoomName)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// Join handles POST /v1/rooms/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req model.JoinTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.coordinator.JoinRoom(r.Context(), req.RoomName, req.Identity, req.Role)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Membership handles POST /v1/rooms/membership
func (h *RoomHandler) Membership(w http.ResponseWriter, r *http.Request) {
	var req model.MembershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.coordinator.Membership(r.Context(), req.RoomName, req.Identity)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Summary handles GET /v1/rooms/{room}/summary
func (h *RoomHandler) Summary(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")

	summary, err := h.coordinator.RoomSummary(r.Context(), room)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.SummaryResponse{
		RoomName: room,
		Summary:  summary,
	})
}

// State handles GET /v1/rooms/{room}/state
func (h *RoomHandler) State(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")

	state, err := h.coordinator.RoomState(room)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}
