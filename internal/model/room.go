// Package model defines data structures for the warm-transfer service.
package model

import (
	"time"
)

// RoomStatus is the lifecycle tag of a room's transfer state.
type RoomStatus string

const (
	RoomStatusActive       RoomStatus = "active"
	RoomStatusTransferring RoomStatus = "transferring"
	RoomStatusError        RoomStatus = "error"
)

// RoomState is one live registry entry, keyed by room name. The
// registry hands out copies; callers never share the stored value.
type RoomState struct {
	RoomName            string     `json:"room_name"`
	Status              RoomStatus `json:"status"`
	Participants        []string   `json:"participants"`
	Initiator           string     `json:"initiator,omitempty"`
	Target              string     `json:"target,omitempty"`
	Summary             string     `json:"summary,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	TransferInitiatedAt *time.Time `json:"transfer_initiated_at,omitempty"`
	ErrorTime           *time.Time `json:"error_time,omitempty"`
}

// Clone returns a deep copy safe to hand outside the registry.
func (s *RoomState) Clone() *RoomState {
	if s == nil {
		return nil
	}
	out := *s
	out.Participants = append([]string(nil), s.Participants...)
	if s.TransferInitiatedAt != nil {
		t := *s.TransferInitiatedAt
		out.TransferInitiatedAt = &t
	}
	if s.ErrorTime != nil {
		t := *s.ErrorTime
		out.ErrorTime = &t
	}
	return &out
}

// HasParticipant reports whether identity is associated with the room.
func (s *RoomState) HasParticipant(identity string) bool {
	for _, p := range s.Participants {
		if p == identity {
			return true
		}
	}
	return false
}

// AddParticipants appends identities not already present.
func (s *RoomState) AddParticipants(identities ...string) {
	for _, id := range identities {
		if id != "" && !s.HasParticipant(id) {
			s.Participants = append(s.Participants, id)
		}
	}
}
