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
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/go-webauthn/webauthn/webauthn"
)

const (
	// MinChallengeSize is the smallest acceptable ceremony challenge, in bytes.
	MinChallengeSize = 16

	// DefaultChallengeSize is the challenge size used when none is configured.
	DefaultChallengeSize = 32

	// DefaultCeremonyTTL is how long an issued ceremony stays consumable.
	DefaultCeremonyTTL = 10 * time.Minute
)

// Config configures the relying party service.
type Config struct {
	// RPID is the Relying Party identifier, typically the domain name.
	// Example: "example.com"
	RPID string `yaml:"id" json:"id"`

	// RPDisplayName is the human-readable name of the Relying Party.
	// Example: "Example Corp"
	RPDisplayName string `yaml:"display_name" json:"display_name"`

	// RPOrigins are the allowed origins for WebAuthn operations. Origin
	// comparison is exact-string equality; no prefix or wildcard matching.
	// Example: []string{"https://example.com"}
	RPOrigins []string `yaml:"origins" json:"origins"`

	// CeremonyTTL is the validity window of an issued ceremony. A response
	// arriving after the window is rejected as if no ceremony existed.
	// Default: 10 minutes.
	CeremonyTTL time.Duration `yaml:"ceremony_ttl" json:"ceremony_ttl"`

	// ChallengeSize is the size of generated challenges in bytes.
	// Minimum 16, default 32.
	ChallengeSize int `yaml:"challenge_size" json:"challenge_size"`

	// UserVerification specifies the user verification requirement.
	// Options: "required", "preferred", "discouraged"
	// Default: "preferred"
	UserVerification string `yaml:"user_verification" json:"user_verification"`

	// AttestationPreference specifies the attestation conveyance preference.
	// Options: "none", "indirect", "direct", "enterprise"
	// Default: "none"
	AttestationPreference string `yaml:"attestation" json:"attestation"`

	// ResidentKeyRequirement specifies whether to require resident keys (passkeys).
	// Options: "required", "preferred", "discouraged"
	// Default: "discouraged"
	ResidentKeyRequirement string `yaml:"resident_key" json:"resident_key"`

	// AuthenticatorAttachment limits the type of authenticators allowed.
	// Options: "platform", "cross-platform", "" (any)
	// Default: "" (any)
	AuthenticatorAttachment string `yaml:"authenticator_attachment" json:"authenticator_attachment"`

	// CryptoParams lists the accepted COSE algorithm identifiers, in
	// preference order. Default: ES256 (-7), RS256 (-257).
	CryptoParams []int64 `yaml:"crypto_params" json:"crypto_params"`

	// Debug enables debug logging in the verification library.
	Debug bool `yaml:"debug" json:"debug"`
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("RPID is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("RPDisplayName is required")
	}
	if len(c.RPOrigins) == 0 {
		return fmt.Errorf("at least one RPOrigin is required")
	}
	if c.ChallengeSize != 0 && c.ChallengeSize < MinChallengeSize {
		return fmt.Errorf("challenge size %d below minimum %d", c.ChallengeSize, MinChallengeSize)
	}

	switch c.UserVerification {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid user verification: %s", c.UserVerification)
	}

	switch c.AttestationPreference {
	case "", "none", "indirect", "direct", "enterprise":
	default:
		return fmt.Errorf("invalid attestation preference: %s", c.AttestationPreference)
	}

	switch c.ResidentKeyRequirement {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid resident key requirement: %s", c.ResidentKeyRequirement)
	}

	switch c.AuthenticatorAttachment {
	case "", "platform", "cross-platform":
	default:
		return fmt.Errorf("invalid authenticator attachment: %s", c.AuthenticatorAttachment)
	}

	return nil
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.CeremonyTTL == 0 {
		c.CeremonyTTL = DefaultCeremonyTTL
	}
	if c.ChallengeSize == 0 {
		c.ChallengeSize = DefaultChallengeSize
	}
	if c.UserVerification == "" {
		c.UserVerification = "preferred"
	}
	if c.AttestationPreference == "" {
		c.AttestationPreference = "none"
	}
	if c.ResidentKeyRequirement == "" {
		c.ResidentKeyRequirement = "discouraged"
	}
	if len(c.CryptoParams) == 0 {
		c.CryptoParams = []int64{
			int64(webauthncose.AlgES256),
			int64(webauthncose.AlgRS256),
		}
	}
}

// userVerification returns the configured policy as a protocol requirement.
// This value is echoed unchanged into the expectations handed to the
// verification delegate.
func (c *Config) userVerification() protocol.UserVerificationRequirement {
	switch c.UserVerification {
	case "required":
		return protocol.VerificationRequired
	case "discouraged":
		return protocol.VerificationDiscouraged
	default:
		return protocol.VerificationPreferred
	}
}

// attestationPreference returns the configured conveyance preference.
func (c *Config) attestationPreference() protocol.ConveyancePreference {
	switch c.AttestationPreference {
	case "indirect":
		return protocol.PreferIndirectAttestation
	case "direct":
		return protocol.PreferDirectAttestation
	case "enterprise":
		return protocol.PreferEnterpriseAttestation
	default:
		return protocol.PreferNoAttestation
	}
}

// authenticatorSelection builds the selection criteria advertised in
// registration options.
func (c *Config) authenticatorSelection() protocol.AuthenticatorSelection {
	sel := protocol.AuthenticatorSelection{
		UserVerification: c.userVerification(),
	}

	switch c.ResidentKeyRequirement {
	case "required":
		sel.ResidentKey = protocol.ResidentKeyRequirementRequired
		sel.RequireResidentKey = protocol.ResidentKeyRequired()
	case "preferred":
		sel.ResidentKey = protocol.ResidentKeyRequirementPreferred
		sel.RequireResidentKey = protocol.ResidentKeyNotRequired()
	default:
		sel.ResidentKey = protocol.ResidentKeyRequirementDiscouraged
		sel.RequireResidentKey = protocol.ResidentKeyNotRequired()
	}

	switch c.AuthenticatorAttachment {
	case "platform":
		sel.AuthenticatorAttachment = protocol.Platform
	case "cross-platform":
		sel.AuthenticatorAttachment = protocol.CrossPlatform
	}

	return sel
}

// credentialParameters returns the accepted public key credential parameters.
func (c *Config) credentialParameters() []protocol.CredentialParameter {
	params := make([]protocol.CredentialParameter, 0, len(c.CryptoParams))
	for _, alg := range c.CryptoParams {
		params = append(params, protocol.CredentialParameter{
			Type:      protocol.PublicKeyCredentialType,
			Algorithm: webauthncose.COSEAlgorithmIdentifier(alg),
		})
	}
	return params
}

// ToWebAuthnConfig converts the Config to the go-webauthn library's configuration.
func (c *Config) ToWebAuthnConfig() *webauthn.Config {
	cfg := &webauthn.Config{
		RPID:                   c.RPID,
		RPDisplayName:          c.RPDisplayName,
		RPOrigins:              c.RPOrigins,
		AttestationPreference:  c.attestationPreference(),
		AuthenticatorSelection: c.authenticatorSelection(),
		Debug:                  c.Debug,
	}

	if c.CeremonyTTL > 0 {
		cfg.Timeouts = webauthn.TimeoutsConfig{
			Login: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    c.CeremonyTTL,
				TimeoutUVD: c.CeremonyTTL,
			},
			Registration: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    c.CeremonyTTL,
				TimeoutUVD: c.CeremonyTTL,
			},
		}
	}

	return cfg
}
