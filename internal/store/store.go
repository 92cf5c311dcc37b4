// Package store persists per-room transcripts and summaries plus the
// call records produced by phone transfers. One durable store serves
// both concerns; the in-memory implementation backs tests and
// credential-free development.
package store

import (
	"context"
	"errors"

	"github.com/shiftdesk/warm-transfer/internal/model"
)

// ErrNotFound is returned when a room or call has no stored value.
var ErrNotFound = errors.New("store: not found")

// TranscriptStore holds per-room transcript fragments (append-only)
// and the current handoff summary (replace-on-write).
type TranscriptStore interface {
	// AppendTranscript adds one fragment to the room's transcript.
	AppendTranscript(ctx context.Context, room, fragment string) error

	// Transcript returns the room's fragments joined with newlines,
	// in append order. A room with no transcript yields "".
	Transcript(ctx context.Context, room string) (string, error)

	// SetSummary replaces the room's summary.
	SetSummary(ctx context.Context, room, summary string) error

	// Summary returns the room's current summary, or ErrNotFound.
	Summary(ctx context.Context, room string) (string, error)
}

// CallUpdate is one observed change to a call, from placement, the
// status poller, or an inbound webhook. Zero-valued fields leave the
// stored record untouched; Metadata merges key by key.
type CallUpdate struct {
	CallID      string
	RoomName    string
	PhoneNumber string
	Status      model.CallStatus
	Error       string
	Metadata    map[string]any
}

// CallStore persists call records keyed by provider call id. Records
// are never deleted; the latest record per room is authoritative.
type CallStore interface {
	// UpsertCall creates or updates the record for update.CallID and
	// returns the stored state after the write.
	UpsertCall(ctx context.Context, update CallUpdate) (*model.CallRecord, error)

	// CallByID returns the record for a call id, or ErrNotFound.
	CallByID(ctx context.Context, callID string) (*model.CallRecord, error)

	// LatestCallForRoom returns the most recently created record for
	// a room, or ErrNotFound.
	LatestCallForRoom(ctx context.Context, room string) (*model.CallRecord, error)
}

// Store is the full persistence surface the service wires up.
type Store interface {
	TranscriptStore
	CallStore
}

// mergeMetadata applies update keys over existing metadata, copying so
// callers never share the stored map.
func mergeMetadata(existing, update map[string]any) map[string]any {
	if len(existing) == 0 && len(update) == 0 {
		return nil
	}
	merged := make(map[string]any, len(existing)+len(update))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged
}
