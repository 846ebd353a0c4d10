// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// LogEntry is one durable operational event.
type LogEntry struct {
	ID        int64          `json:"id"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt int64          `json:"created_at"`
}

// AppendLog records an operational event. The context map is stored as
// JSON; a nil map stores NULL.
func (s *Store) AppendLog(ctx context.Context, level, message string, logContext map[string]any) error {
	var encoded any
	if len(logContext) > 0 {
		raw, err := json.Marshal(logContext)
		if err != nil {
			return fmt.Errorf("encoding log context: %w", err)
		}
		encoded = string(raw)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("taking connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT INTO event_log (level, message, context, created_at) VALUES (?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{level, message, encoded, s.clock.Now().Unix()}})
	if err != nil {
		return fmt.Errorf("appending log entry: %w", err)
	}
	return nil
}

// ListLogs returns the most recent log entries, newest first, up to limit.
func (s *Store) ListLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("taking connection: %w", err)
	}
	defer s.pool.Put(conn)

	var entries []LogEntry
	err = sqlitex.Execute(conn, `
		SELECT id, level, message, context, created_at
		FROM event_log ORDER BY id DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entry := LogEntry{
					ID:        stmt.ColumnInt64(0),
					Level:     stmt.ColumnText(1),
					Message:   stmt.ColumnText(2),
					CreatedAt: stmt.ColumnInt64(4),
				}
				if stmt.ColumnType(3) != sqlite.TypeNull {
					if err := json.Unmarshal([]byte(stmt.ColumnText(3)), &entry.Context); err != nil {
						return fmt.Errorf("decoding log context for entry %d: %w", entry.ID, err)
					}
				}
				entries = append(entries, entry)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("listing log entries: %w", err)
	}
	return entries, nil
}

// TrimLogs deletes all but the newest keep entries from the event log.
// It returns the number of entries removed.
func (s *Store) TrimLogs(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("taking connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		DELETE FROM event_log WHERE id NOT IN
			(SELECT id FROM event_log ORDER BY id DESC LIMIT ?)`,
		&sqlitex.ExecOptions{Args: []any{keep}})
	if err != nil {
		return 0, fmt.Errorf("trimming event log: %w", err)
	}
	return conn.Changes(), nil
}
