// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradewire-project/tradewire/lib/clock"
)

// KeyVerifier checks a master API key. The production implementation
// is lib/apikey's Ed25519 verifier; tests substitute trivial ones.
type KeyVerifier interface {
	Verify(credential string) bool
}

// LicenseInfo is the subset of a license record admission needs.
type LicenseInfo struct {
	Key    string
	Active bool
	Expiry time.Time
}

// LicenseOracle answers receiver-admission questions against durable
// license state.
type LicenseOracle interface {
	// GetLicense looks up a license by key. The bool reports whether
	// the license exists; the error reports lookup failure.
	GetLicense(ctx context.Context, key string) (LicenseInfo, bool, error)

	// RecordVerification notes a successful admission against the
	// license. Implementations increment the license's activation
	// counter at most once over its lifetime.
	RecordVerification(ctx context.Context, key string) error
}

// Admission decides whether a connecting client may hold a session.
type Admission struct {
	verifier KeyVerifier
	oracle   LicenseOracle
	clock    clock.Clock
	logger   *slog.Logger
}

// NewAdmission builds an admission controller.
func NewAdmission(verifier KeyVerifier, oracle LicenseOracle, clk clock.Clock, logger *slog.Logger) *Admission {
	return &Admission{verifier: verifier, oracle: oracle, clock: clk, logger: logger}
}

// Admit checks a credential for the given role. A nil return admits
// the client; any error is an admission failure the server turns into
// a rejection message.
func (a *Admission) Admit(ctx context.Context, role, credential string) error {
	switch role {
	case RoleMaster:
		return a.admitMaster(credential)
	case RoleReceiver:
		return a.admitReceiver(ctx, credential)
	default:
		return fmt.Errorf("unknown role %q: %w", role, ErrInvalidCredential)
	}
}

func (a *Admission) admitMaster(apiKey string) error {
	if !a.verifier.Verify(apiKey) {
		return fmt.Errorf("master admission: %w", ErrInvalidCredential)
	}
	return nil
}

// admitReceiver fails closed: an oracle lookup error rejects the
// client rather than admitting on unknown state.
func (a *Admission) admitReceiver(ctx context.Context, licenseKey string) error {
	license, found, err := a.oracle.GetLicense(ctx, licenseKey)
	if err != nil {
		return fmt.Errorf("license lookup for %s: %w: %v", licenseKey, ErrUnknownLicense, err)
	}
	if !found {
		return fmt.Errorf("license %s: %w", licenseKey, ErrUnknownLicense)
	}
	if !license.Active {
		return fmt.Errorf("license %s: %w", licenseKey, ErrLicenseInactive)
	}
	// Inclusive boundary: a license expiring exactly now still admits.
	if a.clock.Now().Unix() > license.Expiry.Unix() {
		return fmt.Errorf("license %s expired %s: %w",
			licenseKey, license.Expiry.UTC().Format(time.RFC3339), ErrLicenseExpired)
	}

	// Bookkeeping, not a gate: a failed increment does not undo a
	// valid admission.
	if err := a.oracle.RecordVerification(ctx, licenseKey); err != nil {
		a.logger.Warn("recording license verification failed",
			"license", licenseKey, "error", err)
	}
	return nil
}
