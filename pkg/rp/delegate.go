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
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// AttestationExpectations is what the issued registration ceremony promised:
// the challenge the response must embed and the policies in effect.
type AttestationExpectations struct {
	Challenge        []byte
	UserID           []byte
	UserVerification protocol.UserVerificationRequirement
	CredParams       []protocol.CredentialParameter
	Expires          time.Time
}

// AssertionExpectations is what the issued authentication ceremony promised,
// plus the stored credential the response claims to have been signed by.
type AssertionExpectations struct {
	Challenge            []byte
	UserID               []byte
	UserVerification     protocol.UserVerificationRequirement
	AllowedCredentialIDs [][]byte
	Credential           *Credential
	Expires              time.Time
}

// CredentialFacts are the verified facts extracted from an attestation
// response: everything the repository needs to create the record.
type CredentialFacts struct {
	CredentialID    []byte
	PublicKey       []byte
	SignCount       uint32
	AttestationType string
	Transport       []protocol.AuthenticatorTransport
	AAGUID          []byte
	Flags           CredentialFlags
}

// AssertionFacts are the verified facts extracted from an assertion
// response. SignCount is the authenticator-reported value; the replay
// policy is applied by the caller, not here.
type AssertionFacts struct {
	SignCount    uint32
	Signature    []byte
	CloneWarning bool
}

// VerificationDelegate verifies parsed authenticator responses against
// ceremony expectations. It owns all CBOR/COSE parsing and cryptographic
// signature checking; callers treat it as an opaque capability and never
// inspect responses themselves.
//
// Any rejection is reported wrapped in ErrVerificationFailed.
type VerificationDelegate interface {
	// VerifyAttestation verifies a registration response and extracts the
	// new credential's facts.
	VerifyAttestation(ctx context.Context, response *protocol.ParsedCredentialCreationData, expected AttestationExpectations) (*CredentialFacts, error)

	// VerifyAssertion verifies an authentication response against the
	// stored credential and extracts the assertion facts.
	VerifyAssertion(ctx context.Context, response *protocol.ParsedCredentialAssertionData, expected AssertionExpectations) (*AssertionFacts, error)
}

// libraryDelegate implements VerificationDelegate on top of the
// go-webauthn library.
type libraryDelegate struct {
	webauthn *webauthn.WebAuthn
}

// NewLibraryDelegate creates the production VerificationDelegate backed by
// the go-webauthn library, configured from the RP configuration.
func NewLibraryDelegate(config *Config) (VerificationDelegate, error) {
	if config == nil {
		return nil, ErrNotConfigured
	}
	wa, err := webauthn.New(config.ToWebAuthnConfig())
	if err != nil {
		return nil, WrapError("new delegate", err)
	}
	return &libraryDelegate{webauthn: wa}, nil
}

// delegateUser adapts ceremony expectations to the webauthn.User interface
// the library verifies against. Name and display name play no role in
// verification.
type delegateUser struct {
	id          []byte
	credentials []webauthn.Credential
}

func (u *delegateUser) WebAuthnID() []byte                         { return u.id }
func (u *delegateUser) WebAuthnName() string                       { return "" }
func (u *delegateUser) WebAuthnDisplayName() string                { return "" }
func (u *delegateUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// sessionData rebuilds the library's session state from ceremony
// expectations. The library compares its Challenge field against the
// response in base64url form.
func sessionData(challenge, userID []byte, uv protocol.UserVerificationRequirement, expires time.Time, allowed [][]byte, params []protocol.CredentialParameter) webauthn.SessionData {
	return webauthn.SessionData{
		Challenge:            base64.RawURLEncoding.EncodeToString(challenge),
		UserID:               userID,
		AllowedCredentialIDs: allowed,
		Expires:              expires,
		UserVerification:     uv,
		CredParams:           params,
	}
}

// VerifyAttestation verifies a registration response via the library.
func (d *libraryDelegate) VerifyAttestation(ctx context.Context, response *protocol.ParsedCredentialCreationData, expected AttestationExpectations) (*CredentialFacts, error) {
	user := &delegateUser{id: expected.UserID}
	session := sessionData(expected.Challenge, expected.UserID, expected.UserVerification, expected.Expires, nil, expected.CredParams)

	credential, err := d.webauthn.CreateCredential(user, session, response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	return &CredentialFacts{
		CredentialID:    credential.ID,
		PublicKey:       credential.PublicKey,
		SignCount:       credential.Authenticator.SignCount,
		AttestationType: credential.AttestationType,
		Transport:       credential.Transport,
		AAGUID:          credential.Authenticator.AAGUID,
		Flags: CredentialFlags{
			UserPresent:    credential.Flags.UserPresent,
			UserVerified:   credential.Flags.UserVerified,
			BackupEligible: credential.Flags.BackupEligible,
			BackupState:    credential.Flags.BackupState,
		},
	}, nil
}

// VerifyAssertion verifies an authentication response via the library.
func (d *libraryDelegate) VerifyAssertion(ctx context.Context, response *protocol.ParsedCredentialAssertionData, expected AssertionExpectations) (*AssertionFacts, error) {
	if expected.Credential == nil {
		return nil, fmt.Errorf("%w: no credential to verify against", ErrVerificationFailed)
	}

	user := &delegateUser{
		id:          expected.UserID,
		credentials: []webauthn.Credential{expected.Credential.ToWebAuthn()},
	}
	session := sessionData(expected.Challenge, expected.UserID, expected.UserVerification, expected.Expires, expected.AllowedCredentialIDs, nil)

	credential, err := d.webauthn.ValidateLogin(user, session, response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	return &AssertionFacts{
		SignCount:    credential.Authenticator.SignCount,
		Signature:    response.Response.Signature,
		CloneWarning: credential.Authenticator.CloneWarning,
	}, nil
}
