// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// TradeRecord is one relayed trade signal as persisted.
type TradeRecord struct {
	ID         int64    `json:"id"`
	LicenseKey string   `json:"license_key"`
	Symbol     string   `json:"symbol"`
	Action     string   `json:"action"`
	Volume     float64  `json:"volume"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
	CreatedAt  int64    `json:"created_at"`
}

// LogTrade appends a trade signal to the trade history. Stop loss and
// take profit are optional; nil means the signal did not carry one.
func (s *Store) LogTrade(ctx context.Context, licenseKey, symbol, action string, volume float64, stopLoss, takeProfit *float64) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("taking connection: %w", err)
	}
	defer s.pool.Put(conn)

	var sl, tp any
	if stopLoss != nil {
		sl = *stopLoss
	}
	if takeProfit != nil {
		tp = *takeProfit
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO trades
			(license_key, symbol, action, volume, stop_loss, take_profit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			licenseKey, symbol, action, volume, sl, tp, s.clock.Now().Unix(),
		}})
	if err != nil {
		return fmt.Errorf("logging trade: %w", err)
	}
	return nil
}

// ListTrades returns the most recent trades, newest first, up to limit.
// A limit of zero or less returns an empty slice.
func (s *Store) ListTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("taking connection: %w", err)
	}
	defer s.pool.Put(conn)

	var trades []TradeRecord
	err = sqlitex.Execute(conn, `
		SELECT id, license_key, symbol, action, volume, stop_loss, take_profit, created_at
		FROM trades ORDER BY id DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				trade := TradeRecord{
					ID:         stmt.ColumnInt64(0),
					LicenseKey: stmt.ColumnText(1),
					Symbol:     stmt.ColumnText(2),
					Action:     stmt.ColumnText(3),
					Volume:     stmt.ColumnFloat(4),
					CreatedAt:  stmt.ColumnInt64(7),
				}
				if stmt.ColumnType(5) != sqlite.TypeNull {
					v := stmt.ColumnFloat(5)
					trade.StopLoss = &v
				}
				if stmt.ColumnType(6) != sqlite.TypeNull {
					v := stmt.ColumnFloat(6)
					trade.TakeProfit = &v
				}
				trades = append(trades, trade)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("listing trades: %w", err)
	}
	return trades, nil
}
