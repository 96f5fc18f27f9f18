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
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// Default user info advertised when registration options are requested
// without user details.
const (
	DefaultUserName        = "testuser"
	DefaultUserDisplayName = "Test User"
)

// Service orchestrates WebAuthn ceremonies: it issues options, consumes
// pending ceremonies, invokes the verification delegate, applies the
// signature-counter policy, and commits credential state.
type Service struct {
	config     *Config
	ceremonies CeremonyStore
	creds      CredentialRepository
	delegate   VerificationDelegate
	logger     *slog.Logger
}

// ServiceParams contains the dependencies for creating a Service.
type ServiceParams struct {
	// Config is the RP configuration (required).
	Config *Config

	// CeremonyStore holds pending ceremonies (required).
	CeremonyStore CeremonyStore

	// CredentialRepository stores credential records (required).
	CredentialRepository CredentialRepository

	// Delegate verifies authenticator responses. If nil, a delegate backed
	// by the go-webauthn library is constructed from Config.
	Delegate VerificationDelegate

	// Logger is an optional structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewService creates a new relying party service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.CeremonyStore == nil {
		return nil, fmt.Errorf("ceremony store is required")
	}
	if params.CredentialRepository == nil {
		return nil, fmt.Errorf("credential repository is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	delegate := params.Delegate
	if delegate == nil {
		var err error
		delegate, err = NewLibraryDelegate(params.Config)
		if err != nil {
			return nil, err
		}
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		config:     params.Config,
		ceremonies: params.CeremonyStore,
		creds:      params.CredentialRepository,
		delegate:   delegate,
		logger:     logger,
	}, nil
}

// ceremonyParams returns the configured per-ceremony settings.
func (s *Service) ceremonyParams() CeremonyParams {
	return CeremonyParams{
		TTL:              s.config.CeremonyTTL,
		ChallengeSize:    s.config.ChallengeSize,
		UserVerification: s.config.userVerification(),
	}
}

// timeoutMillis is the ceremony TTL as the millisecond timeout hint
// advertised in options.
func (s *Service) timeoutMillis() int {
	return int(s.config.CeremonyTTL.Milliseconds())
}

// BeginRegistration starts an attestation ceremony and returns the
// credential creation options along with the user handle they were issued
// for. A zero-value UserInfo gets a fresh random handle and the default
// user info. Existing credentials of the user are listed in
// excludeCredentials so the authenticator refuses re-enrollment.
func (s *Service) BeginRegistration(ctx context.Context, user UserInfo) (*protocol.CredentialCreation, []byte, error) {
	if len(user.ID) == 0 {
		id, err := NewUserHandle()
		if err != nil {
			return nil, nil, WrapError("begin registration", err)
		}
		user.ID = id
	}
	if user.Name == "" {
		user.Name = DefaultUserName
	}
	if user.DisplayName == "" {
		user.DisplayName = DefaultUserDisplayName
	}

	existing, err := s.creds.List(ctx, user.ID)
	if err != nil {
		return nil, nil, WrapError("list credentials", err)
	}
	excludeList := make([]protocol.CredentialDescriptor, len(existing))
	for i, cred := range existing {
		excludeList[i] = cred.Descriptor()
	}

	ceremony, err := s.ceremonies.Begin(ctx, user.ID, CeremonyRegistration, s.ceremonyParams())
	if err != nil {
		return nil, nil, WrapError("begin registration", err)
	}

	options := &protocol.CredentialCreation{
		Response: protocol.PublicKeyCredentialCreationOptions{
			Challenge: protocol.URLEncodedBase64(ceremony.Challenge),
			RelyingParty: protocol.RelyingPartyEntity{
				CredentialEntity: protocol.CredentialEntity{Name: s.config.RPDisplayName},
				ID:               s.config.RPID,
			},
			User: protocol.UserEntity{
				CredentialEntity: protocol.CredentialEntity{Name: user.Name},
				DisplayName:      user.DisplayName,
				ID:               protocol.URLEncodedBase64(user.ID),
			},
			Parameters:             s.config.credentialParameters(),
			AuthenticatorSelection: s.config.authenticatorSelection(),
			Attestation:            s.config.attestationPreference(),
			Timeout:                s.timeoutMillis(),
			CredentialExcludeList:  excludeList,
		},
	}

	return options, user.ID, nil
}

// FinishRegistration completes an attestation ceremony. The pending
// ceremony is consumed regardless of outcome; a failure after this point
// requires new options. On success the new credential record is stored
// and returned.
func (s *Service) FinishRegistration(ctx context.Context, userID []byte, response *protocol.ParsedCredentialCreationData) (*Credential, error) {
	if len(userID) == 0 {
		return nil, ErrInvalidUserID
	}
	if response == nil {
		return nil, NewError("finish registration", ErrVerificationFailed)
	}

	ceremony, err := s.ceremonies.Consume(ctx, userID, CeremonyRegistration)
	if err != nil {
		return nil, WrapError("consume ceremony", err)
	}

	facts, err := s.delegate.VerifyAttestation(ctx, response, AttestationExpectations{
		Challenge:        ceremony.Challenge,
		UserID:           ceremony.UserID,
		UserVerification: ceremony.UserVerification,
		CredParams:       s.config.credentialParameters(),
		Expires:          ceremony.ExpiresAt,
	})
	if err != nil {
		return nil, WrapError("verify attestation", err)
	}

	cred := newCredential(userID, facts)
	if err := s.creds.Insert(ctx, cred); err != nil {
		return nil, WrapError("store credential", err)
	}

	s.logger.Info("credential registered",
		"credential_id", fmt.Sprintf("%x", cred.ID),
		"attestation_type", cred.AttestationType)

	return cred, nil
}

// BeginLogin starts an assertion ceremony for the given user and returns
// the credential request options. A user with no registered credentials
// cannot authenticate and gets ErrNoCredentials.
func (s *Service) BeginLogin(ctx context.Context, userID []byte) (*protocol.CredentialAssertion, error) {
	if len(userID) == 0 {
		return nil, ErrInvalidUserID
	}

	creds, err := s.creds.List(ctx, userID)
	if err != nil {
		return nil, WrapError("list credentials", err)
	}
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}

	allowList := make([]protocol.CredentialDescriptor, len(creds))
	for i, cred := range creds {
		allowList[i] = cred.Descriptor()
	}

	ceremony, err := s.ceremonies.Begin(ctx, userID, CeremonyAuthentication, s.ceremonyParams())
	if err != nil {
		return nil, WrapError("begin login", err)
	}

	options := &protocol.CredentialAssertion{
		Response: protocol.PublicKeyCredentialRequestOptions{
			Challenge:          protocol.URLEncodedBase64(ceremony.Challenge),
			RelyingPartyID:     s.config.RPID,
			AllowedCredentials: allowList,
			UserVerification:   ceremony.UserVerification,
			Timeout:            s.timeoutMillis(),
		},
	}

	return options, nil
}

// AssertionResult reports a successful authentication.
type AssertionResult struct {
	// CredentialID identifies the credential that signed the assertion.
	CredentialID []byte `json:"credential_id"`

	// SignCount is the stored counter after the update.
	SignCount uint32 `json:"sign_count"`

	// Signature is the verified assertion signature.
	Signature []byte `json:"signature,omitempty"`
}

// FinishLogin completes an assertion ceremony. The pending ceremony is
// consumed regardless of outcome. The claimed credential is looked up
// strictly under the claimed user; the delegate runs outside any lock and
// the counter policy is applied atomically inside the repository's
// critical section afterwards.
func (s *Service) FinishLogin(ctx context.Context, userID []byte, response *protocol.ParsedCredentialAssertionData) (*AssertionResult, error) {
	if len(userID) == 0 {
		return nil, ErrInvalidUserID
	}
	if response == nil {
		return nil, NewError("finish login", ErrVerificationFailed)
	}

	ceremony, err := s.ceremonies.Consume(ctx, userID, CeremonyAuthentication)
	if err != nil {
		return nil, WrapError("consume ceremony", err)
	}

	credID := response.RawID
	cred, err := s.creds.Get(ctx, userID, credID)
	if err != nil {
		return nil, WrapError("lookup credential", err)
	}

	facts, err := s.delegate.VerifyAssertion(ctx, response, AssertionExpectations{
		Challenge:            ceremony.Challenge,
		UserID:               ceremony.UserID,
		UserVerification:     ceremony.UserVerification,
		AllowedCredentialIDs: [][]byte{cred.ID},
		Credential:           cred,
		Expires:              ceremony.ExpiresAt,
	})
	if err != nil {
		return nil, WrapError("verify assertion", err)
	}

	if facts.CloneWarning {
		s.logger.Warn("possible cloned authenticator",
			"credential_id", fmt.Sprintf("%x", credID))
		return nil, NewError("verify assertion", ErrReplayDetected)
	}

	// Re-read the stored counter inside the critical section; the copy
	// verified above may be stale by now.
	var updated uint32
	err = s.creds.UpdateSignCount(ctx, userID, credID, func(stored uint32) (uint32, error) {
		if err := CheckSignCount(stored, facts.SignCount); err != nil {
			return 0, err
		}
		updated = facts.SignCount
		return facts.SignCount, nil
	})
	if err != nil {
		if IsReplayDetected(err) {
			s.logger.Warn("replay detected",
				"credential_id", fmt.Sprintf("%x", credID),
				"reported_count", facts.SignCount)
		}
		return nil, WrapError("update sign count", err)
	}

	return &AssertionResult{
		CredentialID: credID,
		SignCount:    updated,
		Signature:    facts.Signature,
	}, nil
}

// Credentials returns the credentials registered for the given user.
func (s *Service) Credentials(ctx context.Context, userID []byte) ([]*Credential, error) {
	if len(userID) == 0 {
		return nil, ErrInvalidUserID
	}
	return s.creds.List(ctx, userID)
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// CheckSignCount applies the anti-cloning counter policy. Both counters
// zero means a counter-less authenticator and is accepted; otherwise the
// reported counter must strictly exceed the stored one.
func CheckSignCount(stored, reported uint32) error {
	if stored == 0 && reported == 0 {
		return nil
	}
	if reported > stored {
		return nil
	}
	return ErrReplayDetected
}

// newCredential builds a credential record from verified attestation facts.
func newCredential(userID []byte, facts *CredentialFacts) *Credential {
	return &Credential{
		ID:              facts.CredentialID,
		UserID:          append([]byte(nil), userID...),
		PublicKey:       facts.PublicKey,
		AttestationType: facts.AttestationType,
		Transport:       facts.Transport,
		Flags:           facts.Flags,
		AAGUID:          facts.AAGUID,
		SignCount:       facts.SignCount,
		CreatedAt:       time.Now().UTC(),
	}
}
