// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package apikey

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/tradewire-project/tradewire/lib/clock"
)

// Verifier validates master API keys against a minting public key.
// It implements the relay's KeyVerifier interface. Verification is
// stateless; there is no cache to poison and nothing to invalidate.
type Verifier struct {
	publicKey ed25519.PublicKey
	clock     clock.Clock
}

// NewVerifier creates a Verifier. The clock controls expiry checks:
// production passes clock.Real(), tests pass clock.Fake().
func NewVerifier(publicKey ed25519.PublicKey, clk clock.Clock) *Verifier {
	return &Verifier{publicKey: publicKey, clock: clk}
}

// Verify reports whether credential is a well-signed, unexpired key.
func (v *Verifier) Verify(credential string) bool {
	_, err := VerifyAt(v.publicKey, credential, v.clock.Now())
	return err == nil
}

// SaveKeypair writes the private and public keys as hex to separate
// files, mode 0600. The parent directory must exist.
func SaveKeypair(privatePath, publicPath string, private ed25519.PrivateKey, public ed25519.PublicKey) error {
	if err := os.WriteFile(privatePath, []byte(hex.EncodeToString(private)+"\n"), 0600); err != nil {
		return fmt.Errorf("apikey: writing private key: %w", err)
	}
	if err := os.WriteFile(publicPath, []byte(hex.EncodeToString(public)+"\n"), 0600); err != nil {
		return fmt.Errorf("apikey: writing public key: %w", err)
	}
	return nil
}

// LoadPrivateKey reads a hex-encoded Ed25519 private key from path.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := loadHexFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("apikey: %s: private key is %d bytes, want %d", path, len(raw), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(raw), nil
}

// LoadPublicKey reads a hex-encoded Ed25519 public key from path.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := loadHexFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("apikey: %s: public key is %d bytes, want %d", path, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

func loadHexFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("apikey: reading %s: %w", path, err)
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("apikey: decoding %s: %w", path, err)
	}
	return raw, nil
}
