package handler

import (
	"net/http"

	"github.com/shiftdesk/warm-transfer/internal/events"
	"github.com/shiftdesk/warm-transfer/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	events      *events.Publisher
	store       store.Store
	summarizers []string
	telephony   bool
	roomAPI     bool
}

// NewHealthHandler creates a new health handler. A nil events
// publisher means eventing is disabled, not unhealthy.
func NewHealthHandler(ev *events.Publisher, st store.Store, summarizerProviders []string, telephonyConfigured, roomAPIConfigured bool) *HealthHandler {
	return &HealthHandler{
		events:      ev,
		store:       st,
		summarizers: summarizerProviders,
		telephony:   telephonyConfigured,
		roomAPI:     roomAPIConfigured,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"components": map[string]any{
			"summarizer_providers": h.summarizers,
			"telephony_configured": h.telephony,
			"room_api_configured":  h.roomAPI,
			"events_enabled":       h.events != nil,
		},
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.events != nil && !h.events.Connected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	if _, err := h.store.Transcript(r.Context(), "readiness-probe"); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "store unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
