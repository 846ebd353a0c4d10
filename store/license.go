// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// License status values.
const (
	LicenseActive   = "active"
	LicenseInactive = "inactive"
)

// License is a receiver subscription record.
type License struct {
	Key             string `json:"key"`
	Status          string `json:"status"`
	Expiry          int64  `json:"expiry"` // Unix seconds
	ActivationCount int64  `json:"activation_count"`
	ActivatedAt     int64  `json:"activated_at,omitempty"` // Unix seconds; 0 = never verified
	CreatedAt       int64  `json:"created_at"`
}

// UsableAt reports whether the license admits a receiver at the given
// time. The expiry boundary is inclusive: a license expiring exactly
// now is still usable.
func (l License) UsableAt(now time.Time) bool {
	return l.Status == LicenseActive && now.Unix() <= l.Expiry
}

// CreateLicense inserts a new license with status active. Returns an
// error if the key already exists.
func (s *Store) CreateLicense(ctx context.Context, key string, expiry int64) (License, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return License{}, fmt.Errorf("store: create license: %w", err)
	}
	defer s.pool.Put(conn)

	now := s.clock.Now().Unix()
	err = sqlitex.Execute(conn,
		"INSERT INTO licenses (key, status, expiry, created_at) VALUES (?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{key, LicenseActive, expiry, now}})
	if err != nil {
		return License{}, fmt.Errorf("store: create license %s: %w", key, err)
	}

	return License{
		Key:       key,
		Status:    LicenseActive,
		Expiry:    expiry,
		CreatedAt: now,
	}, nil
}

// GetLicense returns the license with the given key, or ErrNotFound.
func (s *Store) GetLicense(ctx context.Context, key string) (License, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return License{}, fmt.Errorf("store: get license: %w", err)
	}
	defer s.pool.Put(conn)

	var license License
	found := false
	err = sqlitex.Execute(conn,
		"SELECT key, status, expiry, activation_count, activated_at, created_at FROM licenses WHERE key = ?",
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				license = scanLicense(stmt)
				return nil
			},
		})
	if err != nil {
		return License{}, fmt.Errorf("store: get license %s: %w", key, err)
	}
	if !found {
		return License{}, fmt.Errorf("license %s: %w", key, ErrNotFound)
	}
	return license, nil
}

// ListLicenses returns all licenses, newest first.
func (s *Store) ListLicenses(ctx context.Context) ([]License, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list licenses: %w", err)
	}
	defer s.pool.Put(conn)

	var licenses []License
	err = sqlitex.Execute(conn,
		"SELECT key, status, expiry, activation_count, activated_at, created_at FROM licenses ORDER BY created_at DESC",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				licenses = append(licenses, scanLicense(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: list licenses: %w", err)
	}
	return licenses, nil
}

// SetLicenseStatus sets a license to active or inactive. Returns
// ErrNotFound when the key does not exist.
func (s *Store) SetLicenseStatus(ctx context.Context, key, status string) error {
	if status != LicenseActive && status != LicenseInactive {
		return fmt.Errorf("store: invalid license status %q", status)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: set license status: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"UPDATE licenses SET status = ? WHERE key = ?",
		&sqlitex.ExecOptions{Args: []any{status, key}})
	if err != nil {
		return fmt.Errorf("store: set license %s status: %w", key, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("license %s: %w", key, ErrNotFound)
	}
	return nil
}

// RecordVerification bumps the activation counter for a successful
// license verification, at most once over the lifetime of the
// license. The guarded UPDATE only matches rows never activated, so
// repeat and concurrent verifications are no-ops, not increments.
func (s *Store) RecordVerification(ctx context.Context, key string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: record verification: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"UPDATE licenses SET activation_count = activation_count + 1, activated_at = ? WHERE key = ? AND activated_at = 0",
		&sqlitex.ExecOptions{Args: []any{s.clock.Now().Unix(), key}})
	if err != nil {
		return fmt.Errorf("store: record verification for %s: %w", key, err)
	}
	return nil
}

func scanLicense(stmt *sqlite.Stmt) License {
	return License{
		Key:             stmt.ColumnText(0),
		Status:          stmt.ColumnText(1),
		Expiry:          stmt.ColumnInt64(2),
		ActivationCount: stmt.ColumnInt64(3),
		ActivatedAt:     stmt.ColumnInt64(4),
		CreatedAt:       stmt.ColumnInt64(5),
	}
}
