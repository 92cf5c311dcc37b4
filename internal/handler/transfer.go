package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shiftdesk/warm-transfer/internal/coordinator"
	"github.com/shiftdesk/warm-transfer/internal/model"
	"github.com/shiftdesk/warm-transfer/pkg/logger"
)

// TransferHandler handles transfer and call endpoints.
type TransferHandler struct {
	coordinator *coordinator.Coordinator
	logger      *logger.Logger
}

// NewTransferHandler creates a new transfer handler.
func NewTransferHandler(coord *coordinator.Coordinator, log *logger.Logger) *TransferHandler {
	return &TransferHandler{
		coordinator: coord,
		logger:      log,
	}
}

// Transfer handles POST /v1/transfer
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req model.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.coordinator.ExecuteRoomTransfer(r.Context(), &req)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// PhoneTransfer handles POST /v1/transfer/phone
func (h *TransferHandler) PhoneTransfer(w http.ResponseWriter, r *http.Request) {
	var req model.PhoneTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.coordinator.ExecutePhoneTransfer(r.Context(), &req)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// CallStatus handles GET /v1/calls/{room}
func (h *TransferHandler) CallStatus(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")

	record, err := h.coordinator.CallStatus(r.Context(), room)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// Webhook handles POST /webhooks/telephony. The provider retries
// non-200 responses, so every outcome acknowledges; failures are only
// logged.
func (h *TransferHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("unparseable telephony webhook", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	callID := r.PostFormValue("CallSid")
	status := strings.ToLower(r.PostFormValue("CallStatus"))
	if callID == "" || status == "" {
		h.logger.Warn("telephony webhook missing CallSid or CallStatus")
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	var metadata map[string]any
	if duration := r.PostFormValue("CallDuration"); duration != "" {
		metadata = map[string]any{"call_duration": duration}
	}

	if err := h.coordinator.ApplyCallUpdate(r.Context(), callID, model.CallStatus(status), metadata); err != nil {
		h.logger.Error("applying webhook call update failed",
			zap.String("call_id", callID),
			zap.String("status", status),
			zap.Error(err),
		)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
