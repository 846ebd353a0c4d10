// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tradewire-project/tradewire/lib/clock"
	"github.com/tradewire-project/tradewire/lib/codec"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// verifierFunc adapts a function to the KeyVerifier interface.
type verifierFunc func(string) bool

func (f verifierFunc) Verify(credential string) bool { return f(credential) }

// fakeOracle is an in-memory LicenseOracle.
type fakeOracle struct {
	mu            sync.Mutex
	licenses      map[string]LicenseInfo
	verifications map[string]int
	lookupErr     error
	recordErr     error
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		licenses:      make(map[string]LicenseInfo),
		verifications: make(map[string]int),
	}
}

func (o *fakeOracle) GetLicense(_ context.Context, key string) (LicenseInfo, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lookupErr != nil {
		return LicenseInfo{}, false, o.lookupErr
	}
	license, ok := o.licenses[key]
	return license, ok, nil
}

func (o *fakeOracle) RecordVerification(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.recordErr != nil {
		return o.recordErr
	}
	o.verifications[key]++
	return nil
}

// recordedTrade is one LogTrade call seen by the fake sink.
type recordedTrade struct {
	licenseKey string
	order      TradeOrder
}

// fakeSink is an in-memory Sink recording every mirror call.
type fakeSink struct {
	mu       sync.Mutex
	opened   []SessionRecord
	closed   []string
	seen     []string
	trades   []recordedTrade
	logs     []string
	trims    []int
	tradeErr error
}

func (s *fakeSink) SessionOpened(_ context.Context, record SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, record)
	return nil
}

func (s *fakeSink) SessionClosed(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, sessionID)
	return nil
}

func (s *fakeSink) SessionSeen(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, sessionID)
	return nil
}

func (s *fakeSink) LogTrade(_ context.Context, licenseKey string, order TradeOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tradeErr != nil {
		return s.tradeErr
	}
	s.trades = append(s.trades, recordedTrade{licenseKey: licenseKey, order: order})
	return nil
}

func (s *fakeSink) AppendLog(_ context.Context, level, message string, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, level+": "+message)
	return nil
}

func (s *fakeSink) TrimLogs(_ context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trims = append(s.trims, keep)
	return 0, nil
}

func (s *fakeSink) openedRecords() []SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SessionRecord(nil), s.opened...)
}

func (s *fakeSink) recordedTrades() []recordedTrade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedTrade(nil), s.trades...)
}

func (s *fakeSink) logEntries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logs...)
}

func (s *fakeSink) closedSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.closed...)
}

// waitForClosed polls until the sink has mirrored n session closures.
// Closure mirroring is fire-and-forget, so tests cannot observe it
// synchronously.
func (s *fakeSink) waitForClosed(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		closed := s.closedSessions()
		if len(closed) >= n {
			return closed
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("sink saw %d session closures, want %d", len(s.closedSessions()), n)
	return nil
}

// captureConn is an in-memory session transport whose written
// messages tests decode back.
type captureConn struct {
	mu       sync.Mutex
	buffer   bytes.Buffer
	writeErr error
	closed   bool
}

func (c *captureConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return c.buffer.Write(p)
}

func (c *captureConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *captureConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// messages decodes everything written so far.
func (c *captureConn) messages(t *testing.T) []ServerMessage {
	t.Helper()
	c.mu.Lock()
	data := append([]byte(nil), c.buffer.Bytes()...)
	c.mu.Unlock()

	var msgs []ServerMessage
	decoder := codec.NewDecoder(bytes.NewReader(data))
	for {
		var msg ServerMessage
		if err := decoder.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) {
				t.Fatalf("decoding captured message: %v", err)
			}
			return msgs
		}
		msgs = append(msgs, msg)
	}
}

// newTestSession registers a fresh session over a capture transport.
func newTestSession(registry *Registry, id, role string, clk clock.Clock) (*Session, *captureConn) {
	conn := &captureConn{}
	session := NewSession(id, role, "cred-"+id, "192.0.2.1:4000", conn, clk.Now())
	registry.Add(session)
	return session, conn
}
