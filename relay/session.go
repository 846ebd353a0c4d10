// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tradewire-project/tradewire/lib/codec"
)

// Session is one admitted client connection. Sends are serialized
// with a per-session mutex so concurrent fan-outs, peer-count updates,
// and pong acks interleave safely on the shared stream; state reads
// and writes take a separate lock so they never wait on I/O.
type Session struct {
	ID         string
	Role       string
	Credential string
	RemoteAddr string

	sendMu  sync.Mutex
	encoder *codec.Encoder
	closer  io.Closer

	mu       sync.Mutex
	account  AccountInfo
	lastSeen time.Time
	closed   bool
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() (string, error) {
	var buffer [8]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", fmt.Errorf("generating session ID: %w", err)
	}
	return "sess-" + hex.EncodeToString(buffer[:]), nil
}

// NewSession wraps an admitted connection. The conn's write half
// carries CBOR-encoded ServerMessages; Close closes the transport.
func NewSession(id, role, credential, remoteAddr string, conn io.WriteCloser, now time.Time) *Session {
	return &Session{
		ID:         id,
		Role:       role,
		Credential: credential,
		RemoteAddr: remoteAddr,
		encoder:    codec.NewEncoder(conn),
		closer:     conn,
		lastSeen:   now,
	}
}

// Send encodes one message onto the session's transport. Safe for
// concurrent use.
func (s *Session) Send(msg ServerMessage) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.encoder.Encode(msg); err != nil {
		return fmt.Errorf("sending %s to session %s: %w", msg.Type, s.ID, err)
	}
	return nil
}

// Close closes the underlying transport. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.closer.Close()
}

// Touch records client activity at the given time.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

// LastSeen returns the time of the most recent client activity.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SetAccount updates the session's account metadata. Masters may
// refresh it by re-registering.
func (s *Session) SetAccount(info AccountInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = info
}

// Account returns the session's account metadata.
func (s *Session) Account() AccountInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}
