// Package events publishes transfer lifecycle events to NATS
// JetStream. Publishing is best-effort: a nil *Publisher is a no-op
// and publish failures are logged, never surfaced to the transfer
// path.
package events

import (
	"fmt"
	"strings"
	"time"
)

const (
	// StreamName is the JetStream stream holding transfer events.
	StreamName = "TRANSFERS"

	// SubjectPrefix roots every subject this service publishes.
	SubjectPrefix = "transfer"
)

// Event types.
const (
	TypeTransferCompleted = "transfer.completed"
	TypeTransferFailed    = "transfer.failed"
	TypeCallStatus        = "transfer.call"
)

// Event is the wire payload for every transfer lifecycle event.
type Event struct {
	Type      string    `json:"type"`
	RoomName  string    `json:"room_name"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	CallID    string    `json:"call_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CompletedSubject is the subject for a room's completed transfers.
func CompletedSubject(room string) string {
	return fmt.Sprintf("%s.completed.%s", SubjectPrefix, subjectToken(room))
}

// FailedSubject is the subject for a room's failed transfers.
func FailedSubject(room string) string {
	return fmt.Sprintf("%s.failed.%s", SubjectPrefix, subjectToken(room))
}

// CallSubject is the subject for a room's phone call status changes.
func CallSubject(room string) string {
	return fmt.Sprintf("%s.call.%s", SubjectPrefix, subjectToken(room))
}

// RoomFilter is the consumer filter matching every event for a room.
func RoomFilter(room string) string {
	return fmt.Sprintf("%s.*.%s", SubjectPrefix, subjectToken(room))
}

// subjectToken rewrites a room name into a single valid subject
// token. Room names may contain characters NATS reserves as subject
// syntax.
func subjectToken(room string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '*', '>':
			return '_'
		}
		return r
	}, room)
}
