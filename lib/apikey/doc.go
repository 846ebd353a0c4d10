// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

// Package apikey implements signed master API keys. A key is a CBOR
// payload (key ID, issue and expiry timestamps) followed by a 64-byte
// Ed25519 signature, base64url-encoded with a "twk_" prefix. The relay
// holds only the public key; keys are minted offline with
// tradewire-keygen and verified statelessly at admission, so a leaked
// relay host never exposes the minting key.
//
// Raw keys never appear in logs or storage; use Fingerprint for a
// short stable identifier.
package apikey
