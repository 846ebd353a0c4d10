// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a fixed-size pool of SQLite connections
// with the standard pragmas every Tradewire database uses: WAL
// journaling, NORMAL synchronous, a busy timeout, and memory-backed
// temp storage. It wraps sqlitex.Pool and exposes the same Take/Put
// API; the OnConnect hook is where callers create their schema.
package sqlitepool
