package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/shiftdesk/warm-transfer/internal/clock"
	"github.com/shiftdesk/warm-transfer/internal/model"
	"github.com/shiftdesk/warm-transfer/internal/sqlitepool"
	"github.com/shiftdesk/warm-transfer/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    room_name  TEXT NOT NULL,
    body       TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_room ON transcripts(room_name, id);

CREATE TABLE IF NOT EXISTS summaries (
    room_name  TEXT PRIMARY KEY,
    body       TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS calls (
    call_id      TEXT PRIMARY KEY,
    room_name    TEXT NOT NULL DEFAULT '',
    phone_number TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT '',
    metadata     TEXT NOT NULL DEFAULT '{}',
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_calls_room ON calls(room_name, created_at);
`

// SQLiteConfig holds the parameters for opening the durable store.
type SQLiteConfig struct {
	// Path is the database file. Required.
	Path string

	// PoolSize is forwarded to the connection pool.
	PoolSize int

	Clock  clock.Clock
	Logger *logger.Logger
}

// SQLite is the durable Store, one database file for transcripts,
// summaries, and call records.
type SQLite struct {
	pool *sqlitepool.Pool
	clk  clock.Clock
}

// OpenSQLite opens (and if needed creates) the database. The caller
// must Close the store when done.
func OpenSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store: Path is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: %w", err)
	}

	return &SQLite{pool: pool, clk: clk}, nil
}

// Close closes the underlying connection pool.
func (s *SQLite) Close() error {
	return s.pool.Close()
}

func (s *SQLite) AppendTranscript(ctx context.Context, room, fragment string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO transcripts (room_name, body, created_at) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{room, fragment, s.clk.Now().UnixMilli()},
		})
	if err != nil {
		return fmt.Errorf("sqlite store: append transcript: %w", err)
	}
	return nil
}

func (s *SQLite) Transcript(ctx context.Context, room string) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", err
	}
	defer s.pool.Put(conn)

	var fragments []string
	err = sqlitex.Execute(conn,
		`SELECT body FROM transcripts WHERE room_name = ? ORDER BY id`,
		&sqlitex.ExecOptions{
			Args: []any{room},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				fragments = append(fragments, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return "", fmt.Errorf("sqlite store: read transcript: %w", err)
	}
	return joinFragments(fragments), nil
}

func (s *SQLite) SetSummary(ctx context.Context, room, summary string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO summaries (room_name, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(room_name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{room, summary, s.clk.Now().UnixMilli()},
		})
	if err != nil {
		return fmt.Errorf("sqlite store: set summary: %w", err)
	}
	return nil
}

func (s *SQLite) Summary(ctx context.Context, room string) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", err
	}
	defer s.pool.Put(conn)

	summary, found := "", false
	err = sqlitex.Execute(conn,
		`SELECT body FROM summaries WHERE room_name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{room},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				summary, found = stmt.ColumnText(0), true
				return nil
			},
		})
	if err != nil {
		return "", fmt.Errorf("sqlite store: read summary: %w", err)
	}
	if !found {
		return "", ErrNotFound
	}
	return summary, nil
}

func (s *SQLite) UpsertCall(ctx context.Context, update CallUpdate) (*model.CallRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: begin upsert: %w", err)
	}
	defer endTransaction(&err)

	record, err := scanCall(conn, update.CallID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	err = nil

	now := s.clk.Now().UTC()
	if record == nil {
		record = &model.CallRecord{CallID: update.CallID, CreatedAt: now}
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

	metadata := []byte("{}")
	if record.Metadata != nil {
		metadata, err = json.Marshal(record.Metadata)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: encode metadata: %w", err)
		}
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO calls (call_id, room_name, phone_number, status, error, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(call_id) DO UPDATE SET
		   room_name = excluded.room_name,
		   phone_number = excluded.phone_number,
		   status = excluded.status,
		   error = excluded.error,
		   metadata = excluded.metadata,
		   updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.CallID, record.RoomName, record.PhoneNumber,
				string(record.Status), record.Error, string(metadata),
				record.CreatedAt.UnixMilli(), record.UpdatedAt.UnixMilli(),
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: upsert call: %w", err)
	}
	return cloneRecord(record), nil
}

func (s *SQLite) CallByID(ctx context.Context, callID string) (*model.CallRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)
	return scanCall(conn, callID)
}

func (s *SQLite) LatestCallForRoom(ctx context.Context, room string) (*model.CallRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var record *model.CallRecord
	err = sqlitex.Execute(conn,
		`SELECT call_id, room_name, phone_number, status, error, metadata, created_at, updated_at
		 FROM calls WHERE room_name = ?
		 ORDER BY created_at DESC, updated_at DESC LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{room},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var scanErr error
				record, scanErr = callFromRow(stmt)
				return scanErr
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: latest call: %w", err)
	}
	if record == nil {
		return nil, ErrNotFound
	}
	return record, nil
}

func scanCall(conn *sqlite.Conn, callID string) (*model.CallRecord, error) {
	var record *model.CallRecord
	err := sqlitex.Execute(conn,
		`SELECT call_id, room_name, phone_number, status, error, metadata, created_at, updated_at
		 FROM calls WHERE call_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{callID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var scanErr error
				record, scanErr = callFromRow(stmt)
				return scanErr
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: read call: %w", err)
	}
	if record == nil {
		return nil, ErrNotFound
	}
	return record, nil
}

func callFromRow(stmt *sqlite.Stmt) (*model.CallRecord, error) {
	record := &model.CallRecord{
		CallID:      stmt.ColumnText(0),
		RoomName:    stmt.ColumnText(1),
		PhoneNumber: stmt.ColumnText(2),
		Status:      model.CallStatus(stmt.ColumnText(3)),
		Error:       stmt.ColumnText(4),
		CreatedAt:   time.UnixMilli(stmt.ColumnInt64(6)).UTC(),
		UpdatedAt:   time.UnixMilli(stmt.ColumnInt64(7)).UTC(),
	}
	if raw := stmt.ColumnText(5); raw != "" && raw != "{}" {
		if err := json.Unmarshal([]byte(raw), &record.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite store: decode metadata for %s: %w", record.CallID, err)
		}
	}
	return record, nil
}
