// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"sync"
	"time"
)

// Registry is the authoritative map of live sessions. All mutations
// are synchronous under one mutex; the critical sections contain no
// I/O, so the registry stays responsive however slow the transports
// or the persistence sink are.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add inserts a session, replacing any existing entry with the same
// ID. Re-registering an existing session therefore refreshes its
// registry entry without duplicating it.
func (r *Registry) Add(session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
}

// Remove deletes a session by ID. Returns the removed session, or
// false when the ID is absent (already removed by a concurrent path).
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return session, ok
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Touch records activity for a session. Returns false when the
// session is not registered.
func (r *Registry) Touch(id string, now time.Time) bool {
	r.mu.Lock()
	session, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	session.Touch(now)
	return true
}

// SnapshotByRole returns a copy of the sessions holding the given
// role. The copy is stable: mutations after the call do not affect a
// fan-out already iterating it.
func (r *Registry) SnapshotByRole(role string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var snapshot []*Session
	for _, session := range r.sessions {
		if session.Role == role {
			snapshot = append(snapshot, session)
		}
	}
	return snapshot
}

// CountByRole returns the number of live sessions holding the role.
func (r *Registry) CountByRole(role string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, session := range r.sessions {
		if session.Role == role {
			count++
		}
	}
	return count
}

// StaleSessions returns the sessions whose last activity is strictly
// older than timeout at the given time. A session last seen exactly
// timeout ago is not stale.
func (r *Registry) StaleSessions(now time.Time, timeout time.Duration) []*Session {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.Unlock()

	// LastSeen takes each session's own lock, so read it outside the
	// registry lock.
	var stale []*Session
	for _, session := range sessions {
		if now.Sub(session.LastSeen()) > timeout {
			stale = append(stale, session)
		}
	}
	return stale
}
