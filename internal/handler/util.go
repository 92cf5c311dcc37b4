package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shiftdesk/warm-transfer/internal/coordinator"
	"github.com/shiftdesk/warm-transfer/internal/telephony"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeCoordinatorError maps a coordinator error onto the wire.
func writeCoordinatorError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), messageFor(err))
}

func statusFor(err error) int {
	if errors.Is(err, coordinator.ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, telephony.ErrNotConfigured) {
		return http.StatusNotImplemented
	}
	switch coordinator.KindOf(err) {
	case coordinator.KindValidation:
		return http.StatusBadRequest
	case coordinator.KindConflict:
		return http.StatusConflict
	case coordinator.KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFor keeps wrapped dependency detail out of response bodies.
func messageFor(err error) string {
	if errors.Is(err, coordinator.ErrNotFound) {
		if msg, ok := strings.CutSuffix(err.Error(), ": "+coordinator.ErrNotFound.Error()); ok {
			return msg
		}
		return "not found"
	}
	var cerr *coordinator.Error
	if errors.As(err, &cerr) && cerr.Message != "" {
		return cerr.Message
	}
	return "internal error"
}
