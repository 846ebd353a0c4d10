// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the persistent-connection core of the
// trade-signal relay: session admission, the live session registry,
// best-effort broadcast fan-out, and the liveness reaper.
//
// Clients hold a long-lived TCP connection carrying a stream of
// self-delimiting CBOR messages. Masters publish trade signals;
// receivers subscribe to them. Delivery is at-most-once with no acks
// and no retries: a receiver that is slow, dead, or mid-disconnect
// misses the signal, and nobody else is affected.
//
// The registry is the single source of truth for who is connected.
// Everything durable (connection history, trade history, the event
// log) is mirrored to a persistence sink on a fire-and-forget basis;
// sink failures are logged and never block or fail relay operations.
package relay
