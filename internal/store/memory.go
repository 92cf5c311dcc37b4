package store

import (
	"context"
	"strings"
	"sync"

	"github.com/shiftdesk/warm-transfer/internal/clock"
	"github.com/shiftdesk/warm-transfer/internal/model"
)

// Memory is an in-process Store. It is the default when no database
// path is configured and the fixture store in tests.
type Memory struct {
	clk clock.Clock

	mu          sync.RWMutex
	transcripts map[string][]string
	summaries   map[string]string
	calls       map[string]*model.CallRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory(clk clock.Clock) *Memory {
	return &Memory{
		clk:         clk,
		transcripts: make(map[string][]string),
		summaries:   make(map[string]string),
		calls:       make(map[string]*model.CallRecord),
	}
}

func (m *Memory) AppendTranscript(ctx context.Context, room, fragment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts[room] = append(m.transcripts[room], fragment)
	return nil
}

func (m *Memory) Transcript(ctx context.Context, room string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return joinFragments(m.transcripts[room]), nil
}

func (m *Memory) SetSummary(ctx context.Context, room, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[room] = summary
	return nil
}

func (m *Memory) Summary(ctx context.Context, room string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary, ok := m.summaries[room]
	if !ok {
		return "", ErrNotFound
	}
	return summary, nil
}

func (m *Memory) UpsertCall(ctx context.Context, update CallUpdate) (*model.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.Now().UTC()
	record, ok := m.calls[update.CallID]
	if !ok {
		record = &model.CallRecord{
			CallID:    update.CallID,
			CreatedAt: now,
		}
		m.calls[update.CallID] = record
	}

	if update.RoomName != "" {
		record.RoomName = update.RoomName
	}
	if update.PhoneNumber != "" {
		record.PhoneNumber = update.PhoneNumber
	}
	if update.Status != "" {
		record.Status = update.Status
	}
	if update.Error != "" {
		record.Error = update.Error
	}
	record.Metadata = mergeMetadata(record.Metadata, update.Metadata)
	record.UpdatedAt = now

	return cloneRecord(record), nil
}

func (m *Memory) CallByID(ctx context.Context, callID string) (*model.CallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.calls[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(record), nil
}

func (m *Memory) LatestCallForRoom(ctx context.Context, room string) (*model.CallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *model.CallRecord
	for _, record := range m.calls {
		if record.RoomName != room {
			continue
		}
		if latest == nil || record.CreatedAt.After(latest.CreatedAt) ||
			(record.CreatedAt.Equal(latest.CreatedAt) && record.UpdatedAt.After(latest.UpdatedAt)) {
			latest = record
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneRecord(latest), nil
}

func joinFragments(fragments []string) string {
	return strings.Join(fragments, "\n")
}

func cloneRecord(r *model.CallRecord) *model.CallRecord {
	out := *r
	out.Metadata = mergeMetadata(r.Metadata, nil)
	return &out
}
