// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-relyingparty.
//
// go-relyingparty is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rp

import (
	"crypto/rand"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// CeremonyKind distinguishes registration from authentication ceremonies.
// The two kinds are stored and consumed independently; a response submitted
// against the wrong kind does not match any pending ceremony.
type CeremonyKind string

const (
	// CeremonyRegistration is an attestation (credential enrollment) ceremony.
	CeremonyRegistration CeremonyKind = "registration"

	// CeremonyAuthentication is an assertion (login) ceremony.
	CeremonyAuthentication CeremonyKind = "authentication"
)

// UserInfo identifies the user a ceremony is run for. ID is the opaque
// WebAuthn user handle; Name and DisplayName are advertised in registration
// options only and carry no authorization meaning.
type UserInfo struct {
	ID          []byte `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// Ceremony is a pending challenge awaiting its authenticator response.
// At most one ceremony exists per (user, kind); beginning a new one
// replaces any pending ceremony for the same pair.
type Ceremony struct {
	// Kind is the ceremony type this challenge was issued for.
	Kind CeremonyKind `json:"kind"`

	// UserID is the user handle the ceremony is bound to.
	UserID []byte `json:"user_id"`

	// Challenge is the random value the authenticator must sign over.
	Challenge []byte `json:"challenge"`

	// UserVerification is the policy in effect when options were issued.
	// It is echoed into the verification expectations unchanged.
	UserVerification protocol.UserVerificationRequirement `json:"user_verification"`

	// CreatedAt is when the ceremony was begun.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the ceremony stops being consumable.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the ceremony is past its validity window at t.
func (c *Ceremony) Expired(t time.Time) bool {
	return t.After(c.ExpiresAt)
}

// Credential is a registered credential record owned by a single user.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	ID []byte `json:"id"`

	// UserID is the user handle this credential belongs to. Lookups are
	// always scoped to it; the same credential ID under another user is a
	// distinct record.
	UserID []byte `json:"user_id"`

	// PublicKey is the credential's public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// AttestationType indicates the type of attestation used at enrollment.
	AttestationType string `json:"attestation_type"`

	// Transport lists the transports supported by the authenticator.
	Transport []protocol.AuthenticatorTransport `json:"transport,omitempty"`

	// Flags contains authenticator capability flags.
	Flags CredentialFlags `json:"flags"`

	// AAGUID is the authenticator model identifier.
	AAGUID []byte `json:"aaguid,omitempty"`

	// SignCount is the stored signature counter for clone detection.
	// Zero means the authenticator has never reported a counter.
	SignCount uint32 `json:"sign_count"`

	// CloneWarning records that the verification library flagged a
	// possible cloned authenticator for this credential.
	CloneWarning bool `json:"clone_warning"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed an assertion.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// CredentialFlags contains authenticator capability flags.
type CredentialFlags struct {
	// UserPresent indicates the user was present during the operation.
	UserPresent bool `json:"user_present"`

	// UserVerified indicates the user was verified (e.g., biometric, PIN).
	UserVerified bool `json:"user_verified"`

	// BackupEligible indicates the credential can be backed up.
	BackupEligible bool `json:"backup_eligible"`

	// BackupState indicates the credential is currently backed up.
	BackupState bool `json:"backup_state"`
}

// ToWebAuthn converts a Credential to the go-webauthn library's type.
func (c *Credential) ToWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transport,
		Flags: webauthn.CredentialFlags{
			UserPresent:    c.Flags.UserPresent,
			UserVerified:   c.Flags.UserVerified,
			BackupEligible: c.Flags.BackupEligible,
			BackupState:    c.Flags.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}

// Descriptor returns the credential as a WebAuthn credential descriptor,
// used for allow and exclude lists in ceremony options.
func (c *Credential) Descriptor() protocol.CredentialDescriptor {
	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: c.ID,
		Transport:    c.Transport,
	}
}

// NewUserHandle generates a fresh opaque 32-byte user handle.
func NewUserHandle() ([]byte, error) {
	id := make([]byte, 32)
	if _, err := rand.Read(id); err != nil {
		return nil, err
	}
	return id, nil
}
