// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"time"

	"github.com/tradewire-project/tradewire/relay"
	"github.com/tradewire-project/tradewire/store"
)

// storeOracle adapts the store to the relay's license oracle.
type storeOracle struct {
	store *store.Store
}

func (o storeOracle) GetLicense(ctx context.Context, key string) (relay.LicenseInfo, bool, error) {
	license, err := o.store.GetLicense(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return relay.LicenseInfo{}, false, nil
	}
	if err != nil {
		return relay.LicenseInfo{}, false, err
	}
	return relay.LicenseInfo{
		Key:    license.Key,
		Active: license.Status == store.LicenseActive,
		Expiry: time.Unix(license.Expiry, 0),
	}, true, nil
}

func (o storeOracle) RecordVerification(ctx context.Context, key string) error {
	return o.store.RecordVerification(ctx, key)
}

// storeSink adapts the store to the relay's persistence sink.
type storeSink struct {
	store *store.Store
}

func (s *storeSink) SessionOpened(ctx context.Context, record relay.SessionRecord) error {
	return s.store.AddConnection(ctx, store.ConnectionRecord{
		SessionID:   record.SessionID,
		Role:        record.Role,
		Credential:  record.Credential,
		RemoteAddr:  record.RemoteAddr,
		AccountName: record.Account.Name,
		Broker:      record.Account.Broker,
		Balance:     record.Account.Balance,
		Currency:    record.Account.Currency,
	})
}

func (s *storeSink) SessionClosed(ctx context.Context, sessionID string) error {
	return s.store.RemoveConnection(ctx, sessionID)
}

func (s *storeSink) SessionSeen(ctx context.Context, sessionID string) error {
	return s.store.TouchConnection(ctx, sessionID)
}

func (s *storeSink) LogTrade(ctx context.Context, licenseKey string, order relay.TradeOrder) error {
	return s.store.LogTrade(ctx, licenseKey, order.Symbol, order.Action, order.Volume,
		order.StopLoss, order.TakeProfit)
}

func (s *storeSink) AppendLog(ctx context.Context, level, message string, details map[string]any) error {
	return s.store.AppendLog(ctx, level, message, details)
}

func (s *storeSink) TrimLogs(ctx context.Context, keep int) (int, error) {
	return s.store.TrimLogs(ctx, keep)
}
