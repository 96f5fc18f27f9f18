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
	"errors"
	"fmt"
)

// Sentinel errors for ceremony and credential operations. Every error is
// terminal for the current ceremony: nothing is retried internally and a
// failure after a ceremony has been consumed forces the caller to request
// new options.
var (
	// ErrInvalidUserID is returned when a user identifier is missing or malformed.
	ErrInvalidUserID = errors.New("invalid user id")

	// ErrCeremonyNotFound is returned when no pending ceremony exists for the
	// (user, kind) pair, the ceremony expired, or it was already consumed.
	ErrCeremonyNotFound = errors.New("ceremony not found")

	// ErrCredentialNotFound is returned when the claimed credential ID is not
	// owned by the claimed user. It carries no information about whether the
	// ID exists under a different user.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialAlreadyExists is returned on a re-registration attempt of
	// an already-enrolled credential ID.
	ErrCredentialAlreadyExists = errors.New("credential already exists")

	// ErrVerificationFailed is returned when the verification delegate rejects
	// a response (bad signature, origin mismatch, type mismatch, malformed
	// attestation).
	ErrVerificationFailed = errors.New("verification failed")

	// ErrReplayDetected is returned when an authenticator's signature counter
	// did not strictly increase, which signals a cloned authenticator or a
	// replayed response. The stored counter is left unchanged.
	ErrReplayDetected = errors.New("replay detected: signature counter did not increase")

	// ErrNoCredentials is returned when authentication options are requested
	// for a user with no enrolled credentials.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrNotConfigured is returned when the service is not properly configured.
	ErrNotConfigured = errors.New("relying party service not configured")
)

// Error wraps an error with the operation that produced it.
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with the given operation and error.
func NewError(op string, err error) error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsCeremonyNotFound returns true if the error indicates a missing, expired,
// or already-consumed ceremony.
func IsCeremonyNotFound(err error) bool {
	return errors.Is(err, ErrCeremonyNotFound)
}

// IsCredentialNotFound returns true if the error indicates a credential was not found.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsVerificationFailed returns true if the error indicates the delegate rejected a response.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}

// IsReplayDetected returns true if the error indicates a signature-counter replay.
func IsReplayDetected(err error) bool {
	return errors.Is(err, ErrReplayDetected)
}
