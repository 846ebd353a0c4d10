// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "errors"

// Admission failures. These are matched with errors.Is by the server
// to pick the wire-visible rejection reason; everything else about the
// failure stays in the logs.
var (
	// ErrInvalidCredential means the master API key failed
	// verification.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrUnknownLicense means the receiver's license key has no
	// record.
	ErrUnknownLicense = errors.New("unknown license")

	// ErrLicenseInactive means the license exists but has been
	// deactivated.
	ErrLicenseInactive = errors.New("license inactive")

	// ErrLicenseExpired means the license's expiry is in the past.
	ErrLicenseExpired = errors.New("license expired")
)

// Wire-visible rejection reasons. Deliberately coarse: a rejected
// client learns which credential class failed, not why.
const (
	reasonInvalidAPIKey  = "invalid API key"
	reasonInvalidLicense = "invalid or expired license"
)

// RejectReason maps an admission error to the reason string sent in
// the rejection message before the connection is closed.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredential):
		return reasonInvalidAPIKey
	case errors.Is(err, ErrUnknownLicense),
		errors.Is(err, ErrLicenseInactive),
		errors.Is(err, ErrLicenseExpired):
		return reasonInvalidLicense
	default:
		return "admission failed"
	}
}
