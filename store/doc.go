// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the durable side of the relay: licenses,
// connection history, relayed trades, and the operational event log,
// all in one SQLite database.
//
// The relay writes to the store on its hot path but never reads from
// it there; every hot-path caller treats a store error as a log line,
// not a failure. The only fatal store error is failing to open the
// database at startup; the system cannot run without a place to
// record state.
//
// License verification bookkeeping has one subtle rule: the
// activation counter increments exactly once, on the first successful
// verification. RecordVerification enforces this with a guarded
// UPDATE rather than read-modify-write, so concurrent verifications
// of the same license cannot double-count.
package store
