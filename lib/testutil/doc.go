// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with a time.After fallback) so individual
// tests do not hang forever when a channel never delivers. These are
// the only places the test suite uses real wall-clock timeouts; all
// other time logic runs on lib/clock fakes.
//
// All helpers call t.Fatalf on failure rather than returning errors;
// test setup failures are not recoverable.
package testutil
