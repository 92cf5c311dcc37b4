package model

import (
	"time"
)

// CallStatus is the telephony provider's call lifecycle enumeration.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusBusy       CallStatus = "busy"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusCanceled   CallStatus = "canceled"
)

// Terminal reports whether no further status transition occurs.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusBusy,
		CallStatusNoAnswer, CallStatusCanceled:
		return true
	}
	return false
}

// CallRecord tracks one outbound transfer call, keyed by the provider
// call id. The latest record per room is authoritative; webhook and
// poller updates both land here, last write wins.
type CallRecord struct {
	CallID      string         `json:"call_id"`
	RoomName    string         `json:"room_name"`
	PhoneNumber string         `json:"phone_number,omitempty"`
	Status      CallStatus     `json:"status"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
