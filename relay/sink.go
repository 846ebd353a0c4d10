// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "context"

// SessionRecord mirrors a session to the persistence sink.
type SessionRecord struct {
	SessionID  string
	Role       string
	Credential string
	RemoteAddr string
	Account    AccountInfo
}

// Sink receives durable mirrors of relay activity. Every call is
// fire-and-forget from the relay's point of view: failures are logged
// by the caller and never block or fail the registry operation they
// mirror.
type Sink interface {
	SessionOpened(ctx context.Context, record SessionRecord) error
	SessionClosed(ctx context.Context, sessionID string) error
	SessionSeen(ctx context.Context, sessionID string) error
	LogTrade(ctx context.Context, licenseKey string, order TradeOrder) error
	AppendLog(ctx context.Context, level, message string, details map[string]any) error
	TrimLogs(ctx context.Context, keep int) (int, error)
}
