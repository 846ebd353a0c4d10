// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"log/slog"

	"github.com/tradewire-project/tradewire/lib/clock"
)

// Broadcaster fans messages out to live sessions. Delivery is
// best-effort and at-most-once: each fan-out works on a registry
// snapshot, a failed send disconnects only the failing session, and
// there are no acks or retries.
type Broadcaster struct {
	registry *Registry
	sink     Sink
	clock    clock.Clock
	logger   *slog.Logger
}

// NewBroadcaster builds a broadcaster over the given registry and
// sink.
func NewBroadcaster(registry *Registry, sink Sink, clk clock.Clock, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, sink: sink, clock: clk, logger: logger}
}

// BroadcastTrade persists a trade signal and delivers it to every
// live receiver. Persistence happens first and its failure is logged,
// not fatal: the live relay proceeds regardless. licenseKey
// attributes the durable record when the order itself carries none.
// Returns the number of sessions the signal was handed to.
func (b *Broadcaster) BroadcastTrade(ctx context.Context, order TradeOrder, licenseKey string) int {
	attribution := order.LicenseKey
	if attribution == "" {
		attribution = licenseKey
	}
	if err := b.sink.LogTrade(ctx, attribution, order); err != nil {
		b.logger.Error("persisting trade signal failed",
			"symbol", order.Symbol, "license", attribution, "error", err)
	}

	msg := ServerMessage{
		Type:      TypeTradeSignal,
		Trade:     &order,
		Timestamp: b.clock.Now().Unix(),
	}
	delivered := b.BroadcastStatus(msg, RoleReceiver)
	b.logger.Info("trade signal relayed",
		"symbol", order.Symbol, "action", order.Action,
		"volume", order.Volume, "delivered", delivered)
	return delivered
}

// BroadcastStatus delivers one message to every live session holding
// the target role. Per-recipient failures are isolated: the failing
// session is dropped and the fan-out continues. When any recipient was
// dropped, peer counts are re-announced once after the loop so the
// surviving sessions learn about the departure. Returns the delivery
// count.
func (b *Broadcaster) BroadcastStatus(msg ServerMessage, role string) int {
	delivered := 0
	dropped := 0
	for _, session := range b.registry.SnapshotByRole(role) {
		if err := session.Send(msg); err != nil {
			b.logger.Warn("delivery failed, dropping session",
				"session", session.ID, "role", session.Role, "error", err)
			if b.Drop(session, "send failure") {
				dropped++
			}
			continue
		}
		delivered++
	}
	if dropped > 0 {
		b.AnnouncePeerCounts()
	}
	return delivered
}

// AnnouncePeerCounts tells each role how many peers of the opposite
// role are live: receivers get the master count, masters get the
// receiver count.
func (b *Broadcaster) AnnouncePeerCounts() {
	b.BroadcastStatus(ServerMessage{
		Type:        TypeConnectionUpdate,
		MasterCount: b.registry.CountByRole(RoleMaster),
	}, RoleReceiver)
	b.BroadcastStatus(ServerMessage{
		Type:          TypeReceiverUpdate,
		ReceiverCount: b.registry.CountByRole(RoleReceiver),
	}, RoleMaster)
}

// Drop disconnects a session: removed from the registry, transport
// closed, closure mirrored to the sink. Idempotent across concurrent
// paths (reaper, send failure, read-loop exit); only the caller that
// wins the registry removal does the cleanup. Returns whether this
// call removed it.
func (b *Broadcaster) Drop(session *Session, reason string) bool {
	if _, ok := b.registry.Remove(session.ID); !ok {
		return false
	}
	if err := session.Close(); err != nil {
		b.logger.Debug("closing session transport",
			"session", session.ID, "error", err)
	}
	b.logger.Info("session dropped",
		"session", session.ID, "role", session.Role, "reason", reason)

	go func() {
		if err := b.sink.SessionClosed(context.Background(), session.ID); err != nil {
			b.logger.Error("mirroring session closure failed",
				"session", session.ID, "error", err)
		}
	}()
	return true
}
