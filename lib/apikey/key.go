// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package apikey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/tradewire-project/tradewire/lib/codec"
)

// KeyPrefix marks a Tradewire master API key. Verification rejects
// credentials without it before touching the decoder.
const KeyPrefix = "twk_"

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize // 64 bytes

// Payload is the signed content of an API key.
type Payload struct {
	// ID identifies the key for revocation and audit (hex string).
	// It appears in logs via Fingerprint-style short forms; the raw
	// key never does.
	ID string `cbor:"1,keyasint"`

	// IssuedAt is the Unix timestamp (seconds) of minting.
	IssuedAt int64 `cbor:"2,keyasint"`

	// ExpiresAt is the Unix timestamp (seconds) after which the key
	// is invalid. Zero means the key never expires.
	ExpiresAt int64 `cbor:"3,keyasint,omitempty"`
}

// Errors returned by Verify.
var (
	ErrMalformedKey     = errors.New("apikey: malformed key")
	ErrInvalidSignature = errors.New("apikey: invalid Ed25519 signature")
	ErrKeyExpired       = errors.New("apikey: key has expired")
)

// GenerateKeypair creates a fresh Ed25519 keypair for minting keys.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("apikey: generating keypair: %w", err)
	}
	return public, private, nil
}

// Mint signs the payload and returns the wire-format key string:
// KeyPrefix + base64url(CBOR payload || signature).
func Mint(privateKey ed25519.PrivateKey, payload Payload) (string, error) {
	if payload.ID == "" {
		return "", fmt.Errorf("apikey: payload ID is required")
	}

	encoded, err := codec.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("apikey: encoding payload: %w", err)
	}

	signature := ed25519.Sign(privateKey, encoded)

	raw := make([]byte, 0, len(encoded)+signatureSize)
	raw = append(raw, encoded...)
	raw = append(raw, signature...)

	return KeyPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewID returns a random 8-byte hex key identifier.
func NewID() (string, error) {
	var buffer [8]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", fmt.Errorf("apikey: generating key ID: %w", err)
	}
	return hex.EncodeToString(buffer[:]), nil
}

// Verify checks a key string against the minting public key and the
// current wall clock. Returns the decoded payload on success.
func Verify(publicKey ed25519.PublicKey, key string) (Payload, error) {
	return VerifyAt(publicKey, key, time.Now())
}

// VerifyAt is Verify with an explicit time for expiry checks, for
// deterministic tests. A key with ExpiresAt == now is still valid;
// the boundary is inclusive, matching license expiry.
func VerifyAt(publicKey ed25519.PublicKey, key string, now time.Time) (Payload, error) {
	if len(key) <= len(KeyPrefix) || key[:len(KeyPrefix)] != KeyPrefix {
		return Payload{}, ErrMalformedKey
	}

	raw, err := base64.RawURLEncoding.DecodeString(key[len(KeyPrefix):])
	if err != nil {
		return Payload{}, ErrMalformedKey
	}
	if len(raw) <= signatureSize {
		return Payload{}, ErrMalformedKey
	}

	splitPoint := len(raw) - signatureSize
	encoded, signature := raw[:splitPoint], raw[splitPoint:]

	if !ed25519.Verify(publicKey, encoded, signature) {
		return Payload{}, ErrInvalidSignature
	}

	var payload Payload
	if err := codec.Unmarshal(encoded, &payload); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	if payload.ExpiresAt != 0 && now.Unix() > payload.ExpiresAt {
		return Payload{}, ErrKeyExpired
	}

	return payload, nil
}

// Fingerprint returns a short stable identifier for any credential
// string: the first 8 bytes of its blake3 hash, hex-encoded. Safe to
// log and store where the raw credential is not.
func Fingerprint(credential string) string {
	sum := blake3.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:8])
}
