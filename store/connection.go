// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite/sqlitex"
)

// ConnectionRecord mirrors a live session into durable storage. The
// registry remains the source of truth; these rows are history.
type ConnectionRecord struct {
	SessionID   string
	Role        string
	Credential  string
	RemoteAddr  string
	AccountName string
	Broker      string
	Balance     float64
	Currency    string
}

// AddConnection records a newly admitted session. Re-adding an
// existing session ID refreshes its mutable fields, matching the
// registry's idempotent add.
func (s *Store) AddConnection(ctx context.Context, record ConnectionRecord) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: add connection: %w", err)
	}
	defer s.pool.Put(conn)

	now := s.clock.Now().Unix()
	err = sqlitex.Execute(conn, `
		INSERT INTO connections
			(session_id, role, credential, remote_addr,
			 account_name, broker, balance, currency,
			 connected_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			account_name = excluded.account_name,
			broker = excluded.broker,
			balance = excluded.balance,
			currency = excluded.currency,
			last_seen = excluded.last_seen,
			disconnected_at = NULL`,
		&sqlitex.ExecOptions{Args: []any{
			record.SessionID, record.Role, record.Credential, record.RemoteAddr,
			nullIfEmpty(record.AccountName), nullIfEmpty(record.Broker),
			record.Balance, nullIfEmpty(record.Currency),
			now, now,
		}})
	if err != nil {
		return fmt.Errorf("store: add connection %s: %w", record.SessionID, err)
	}
	return nil
}

// RemoveConnection marks a session's record as disconnected. A no-op
// for unknown IDs: disconnects race with reaps and both sides call
// this.
func (s *Store) RemoveConnection(ctx context.Context, sessionID string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: remove connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"UPDATE connections SET disconnected_at = ? WHERE session_id = ? AND disconnected_at IS NULL",
		&sqlitex.ExecOptions{Args: []any{s.clock.Now().Unix(), sessionID}})
	if err != nil {
		return fmt.Errorf("store: remove connection %s: %w", sessionID, err)
	}
	return nil
}

// TouchConnection refreshes a session record's last_seen timestamp.
func (s *Store) TouchConnection(ctx context.Context, sessionID string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: touch connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"UPDATE connections SET last_seen = ? WHERE session_id = ?",
		&sqlitex.ExecOptions{Args: []any{s.clock.Now().Unix(), sessionID}})
	if err != nil {
		return fmt.Errorf("store: touch connection %s: %w", sessionID, err)
	}
	return nil
}

// CountLiveConnections returns the number of records not yet marked
// disconnected.
func (s *Store) CountLiveConnections(ctx context.Context) (int64, error) {
	stats, err := s.QueryStats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.LiveConnections, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
