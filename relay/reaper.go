// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/tradewire-project/tradewire/lib/clock"
)

// Reaper evicts sessions that have gone silent and bounds the durable
// event log. Recency of traffic is the only liveness criterion: a
// session whose last activity is strictly older than the timeout is
// presumed dead, whatever the TCP stack still believes.
type Reaper struct {
	registry    *Registry
	broadcaster *Broadcaster
	sink        Sink
	clock       clock.Clock
	logger      *slog.Logger

	interval  time.Duration
	timeout   time.Duration
	retention int
}

// ReaperConfig holds the parameters for a reaper.
type ReaperConfig struct {
	Registry    *Registry
	Broadcaster *Broadcaster
	Sink        Sink
	Clock       clock.Clock
	Logger      *slog.Logger

	// Interval is how often the sweep runs.
	Interval time.Duration

	// Timeout is the inactivity bound. Sessions idle strictly longer
	// than this are evicted.
	Timeout time.Duration

	// Retention is how many event-log entries each sweep keeps.
	Retention int
}

// NewReaper builds a reaper.
func NewReaper(cfg ReaperConfig) *Reaper {
	return &Reaper{
		registry:    cfg.Registry,
		broadcaster: cfg.Broadcaster,
		sink:        cfg.Sink,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		interval:    cfg.Interval,
		timeout:     cfg.Timeout,
		retention:   cfg.Retention,
	}
}

// Run sweeps on every tick until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	now := r.clock.Now()
	stale := r.registry.StaleSessions(now, r.timeout)
	for _, session := range stale {
		r.logger.Info("evicting stale session",
			"session", session.ID, "role", session.Role,
			"idle", now.Sub(session.LastSeen()).String())
		r.broadcaster.Drop(session, "liveness timeout")
	}
	if len(stale) > 0 {
		r.broadcaster.AnnouncePeerCounts()
	}

	removed, err := r.sink.TrimLogs(ctx, r.retention)
	if err != nil {
		r.logger.Error("trimming event log failed", "error", err)
	} else if removed > 0 {
		r.logger.Debug("event log trimmed", "removed", removed)
	}
}
