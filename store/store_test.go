// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/tradewire-project/tradewire/lib/clock"
)

func newTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s, err := Open(Config{
		Path:   filepath.Join(t.TempDir(), "tradewire.db"),
		Clock:  fake,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, fake
}

func TestLicenseLifecycle(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	expiry := fake.Now().Add(30 * 24 * time.Hour).Unix()
	created, err := s.CreateLicense(ctx, "LIC-001", expiry)
	if err != nil {
		t.Fatalf("creating license: %v", err)
	}
	if created.Status != LicenseActive {
		t.Errorf("new license status = %q, want %q", created.Status, LicenseActive)
	}

	got, err := s.GetLicense(ctx, "LIC-001")
	if err != nil {
		t.Fatalf("getting license: %v", err)
	}
	if got.Key != "LIC-001" || got.Expiry != expiry || got.ActivationCount != 0 {
		t.Errorf("unexpected license: %+v", got)
	}

	if err := s.SetLicenseStatus(ctx, "LIC-001", LicenseInactive); err != nil {
		t.Fatalf("deactivating license: %v", err)
	}
	got, err = s.GetLicense(ctx, "LIC-001")
	if err != nil {
		t.Fatalf("getting license: %v", err)
	}
	if got.Status != LicenseInactive {
		t.Errorf("status after deactivation = %q, want %q", got.Status, LicenseInactive)
	}
	if got.UsableAt(fake.Now()) {
		t.Error("inactive license reported usable")
	}
}

func TestGetLicenseNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.GetLicense(context.Background(), "NO-SUCH-KEY")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetLicense error = %v, want ErrNotFound", err)
	}

	err = s.SetLicenseStatus(context.Background(), "NO-SUCH-KEY", LicenseInactive)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SetLicenseStatus error = %v, want ErrNotFound", err)
	}
}

func TestCreateLicenseDuplicateKey(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	expiry := fake.Now().Add(time.Hour).Unix()
	if _, err := s.CreateLicense(ctx, "LIC-DUP", expiry); err != nil {
		t.Fatalf("creating license: %v", err)
	}
	if _, err := s.CreateLicense(ctx, "LIC-DUP", expiry); err == nil {
		t.Error("duplicate CreateLicense succeeded, want error")
	}
}

func TestUsableAtExpiryBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	license := License{Status: LicenseActive, Expiry: now.Unix()}

	if !license.UsableAt(now) {
		t.Error("license expiring exactly now should still be usable")
	}
	if license.UsableAt(now.Add(time.Second)) {
		t.Error("license one second past expiry should not be usable")
	}
}

func TestRecordVerificationIncrementsOnce(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	expiry := fake.Now().Add(time.Hour).Unix()
	if _, err := s.CreateLicense(ctx, "LIC-ONCE", expiry); err != nil {
		t.Fatalf("creating license: %v", err)
	}

	for range 3 {
		if err := s.RecordVerification(ctx, "LIC-ONCE"); err != nil {
			t.Fatalf("recording verification: %v", err)
		}
		fake.Advance(time.Minute)
	}

	got, err := s.GetLicense(ctx, "LIC-ONCE")
	if err != nil {
		t.Fatalf("getting license: %v", err)
	}
	if got.ActivationCount != 1 {
		t.Errorf("activation count after 3 verifications = %d, want 1", got.ActivationCount)
	}
	if got.ActivatedAt == 0 {
		t.Error("activated_at not set by first verification")
	}
}

func TestListLicensesNewestFirst(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"LIC-A", "LIC-B", "LIC-C"} {
		if _, err := s.CreateLicense(ctx, key, fake.Now().Add(time.Hour).Unix()); err != nil {
			t.Fatalf("creating %s: %v", key, err)
		}
		fake.Advance(time.Minute)
	}

	licenses, err := s.ListLicenses(ctx)
	if err != nil {
		t.Fatalf("listing licenses: %v", err)
	}
	if len(licenses) != 3 {
		t.Fatalf("got %d licenses, want 3", len(licenses))
	}
	if licenses[0].Key != "LIC-C" {
		t.Errorf("first listed license = %s, want LIC-C", licenses[0].Key)
	}
}

func TestConnectionLifecycle(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	record := ConnectionRecord{
		SessionID:   "sess-1",
		Role:        "receiver",
		Credential:  "LIC-001",
		RemoteAddr:  "203.0.113.9:52114",
		AccountName: "demo",
		Broker:      "TestBroker",
		Balance:     10_000.50,
		Currency:    "USD",
	}
	if err := s.AddConnection(ctx, record); err != nil {
		t.Fatalf("adding connection: %v", err)
	}

	live, err := s.CountLiveConnections(ctx)
	if err != nil {
		t.Fatalf("counting live connections: %v", err)
	}
	if live != 1 {
		t.Errorf("live connections = %d, want 1", live)
	}

	fake.Advance(time.Minute)
	if err := s.TouchConnection(ctx, "sess-1"); err != nil {
		t.Fatalf("touching connection: %v", err)
	}
	if err := s.RemoveConnection(ctx, "sess-1"); err != nil {
		t.Fatalf("removing connection: %v", err)
	}

	live, err = s.CountLiveConnections(ctx)
	if err != nil {
		t.Fatalf("counting live connections: %v", err)
	}
	if live != 0 {
		t.Errorf("live connections after removal = %d, want 0", live)
	}

	// A reconnect with the same session ID revives the row.
	if err := s.AddConnection(ctx, record); err != nil {
		t.Fatalf("re-adding connection: %v", err)
	}
	live, err = s.CountLiveConnections(ctx)
	if err != nil {
		t.Fatalf("counting live connections: %v", err)
	}
	if live != 1 {
		t.Errorf("live connections after reconnect = %d, want 1", live)
	}
}

func TestLogTradeAndList(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	stopLoss := 1.0850
	if err := s.LogTrade(ctx, "DEMO-1", "EURUSD", "buy", 0.10, &stopLoss, nil); err != nil {
		t.Fatalf("logging trade: %v", err)
	}
	fake.Advance(time.Second)
	if err := s.LogTrade(ctx, "DEMO-1", "GBPUSD", "sell", 0.25, nil, nil); err != nil {
		t.Fatalf("logging trade: %v", err)
	}

	trades, err := s.ListTrades(ctx, 10)
	if err != nil {
		t.Fatalf("listing trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	if trades[0].Symbol != "GBPUSD" {
		t.Errorf("newest trade symbol = %s, want GBPUSD", trades[0].Symbol)
	}
	oldest := trades[1]
	if oldest.LicenseKey != "DEMO-1" || oldest.Action != "buy" || oldest.Volume != 0.10 {
		t.Errorf("unexpected trade: %+v", oldest)
	}
	if oldest.StopLoss == nil || *oldest.StopLoss != stopLoss {
		t.Errorf("stop loss = %v, want %v", oldest.StopLoss, stopLoss)
	}
	if oldest.TakeProfit != nil {
		t.Errorf("take profit = %v, want nil", oldest.TakeProfit)
	}
}

func TestEventLogTrim(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := range 10 {
		err := s.AppendLog(ctx, "info", "tick", map[string]any{"seq": i})
		if err != nil {
			t.Fatalf("appending log entry %d: %v", i, err)
		}
	}

	removed, err := s.TrimLogs(ctx, 4)
	if err != nil {
		t.Fatalf("trimming logs: %v", err)
	}
	if removed != 6 {
		t.Errorf("trimmed %d entries, want 6", removed)
	}

	entries, err := s.ListLogs(ctx, 100)
	if err != nil {
		t.Fatalf("listing logs: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries after trim, want 4", len(entries))
	}
	if entries[0].Context["seq"] != float64(9) {
		t.Errorf("newest surviving entry seq = %v, want 9", entries[0].Context["seq"])
	}
}

func TestQueryStats(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateLicense(ctx, "LIC-S", fake.Now().Add(time.Hour).Unix()); err != nil {
		t.Fatalf("creating license: %v", err)
	}
	if err := s.LogTrade(ctx, "LIC-S", "EURUSD", "buy", 0.01, nil, nil); err != nil {
		t.Fatalf("logging trade: %v", err)
	}
	if err := s.AppendLog(ctx, "info", "started", nil); err != nil {
		t.Fatalf("appending log: %v", err)
	}

	stats, err := s.QueryStats(ctx)
	if err != nil {
		t.Fatalf("querying stats: %v", err)
	}
	want := Stats{Licenses: 1, LiveConnections: 0, Trades: 1, LogEntries: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}
