// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the request/response boundary of the relay: license
// administration, trade injection for clients that cannot hold a
// persistent connection, and operational statistics.
//
// License administration and stats require a bearer admin token.
// Trade injection is gated by the license it carries, with the same
// admission rules as a persistent receiver connection.
package api
