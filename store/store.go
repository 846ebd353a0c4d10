// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/tradewire-project/tradewire/lib/clock"
	"github.com/tradewire-project/tradewire/lib/sqlitepool"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the relay's durable state. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the SQLite database file. Required.
	Path string

	// PoolSize is the connection pool size. Zero means the
	// sqlitepool default.
	PoolSize int

	// Clock provides the current time for created_at/last_seen
	// columns. Required.
	Clock clock.Clock

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

const schema = `
	CREATE TABLE IF NOT EXISTS licenses (
		key              TEXT PRIMARY KEY,
		status           TEXT NOT NULL DEFAULT 'active',
		expiry           INTEGER NOT NULL,
		activation_count INTEGER NOT NULL DEFAULT 0,
		activated_at     INTEGER NOT NULL DEFAULT 0,
		created_at       INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS connections (
		session_id      TEXT PRIMARY KEY,
		role            TEXT NOT NULL,
		credential      TEXT NOT NULL,
		remote_addr     TEXT NOT NULL,
		account_name    TEXT,
		broker          TEXT,
		balance         REAL,
		currency        TEXT,
		connected_at    INTEGER NOT NULL,
		last_seen       INTEGER NOT NULL,
		disconnected_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_connections_live
		ON connections(disconnected_at) WHERE disconnected_at IS NULL;

	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		license_key TEXT,
		symbol      TEXT NOT NULL,
		action      TEXT NOT NULL,
		volume      REAL NOT NULL,
		stop_loss   REAL,
		take_profit REAL,
		created_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_created ON trades(created_at);

	CREATE TABLE IF NOT EXISTS event_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		level      TEXT NOT NULL,
		message    TEXT NOT NULL,
		context    TEXT,
		created_at INTEGER NOT NULL
	);
`

// Open creates the store, applying the schema to every pool
// connection on first use. The caller must Close the store.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("store: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("store: Logger is required")
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
		return nil, fmt.Errorf("store: %w", err)
	}

	return &Store{pool: pool, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Stats is a snapshot of storage row counts for the stats endpoint.
type Stats struct {
	Licenses        int64 `json:"licenses"`
	LiveConnections int64 `json:"live_connections"`
	Trades          int64 `json:"trades"`
	LogEntries      int64 `json:"log_entries"`
}

// QueryStats counts the rows behind each operational surface.
func (s *Store) QueryStats(ctx context.Context) (Stats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	defer s.pool.Put(conn)

	var stats Stats
	counts := []struct {
		query  string
		target *int64
	}{
		{"SELECT COUNT(*) FROM licenses", &stats.Licenses},
		{"SELECT COUNT(*) FROM connections WHERE disconnected_at IS NULL", &stats.LiveConnections},
		{"SELECT COUNT(*) FROM trades", &stats.Trades},
		{"SELECT COUNT(*) FROM event_log", &stats.LogEntries},
	}
	for _, count := range counts {
		err := sqlitex.Execute(conn, count.query, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				*count.target = stmt.ColumnInt64(0)
				return nil
			},
		})
		if err != nil {
			return Stats{}, fmt.Errorf("store: stats: %w", err)
		}
	}
	return stats, nil
}
