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
	"encoding/hex"
	"sync"
	"time"
)

// CredentialRepository stores credential records scoped per user.
//
// Every lookup takes the owning user's handle; a credential ID is never
// resolvable across users. UpdateSignCount must run its policy callback
// inside the repository's critical section for that credential so that
// concurrent counter updates serialize.
type CredentialRepository interface {
	// Insert stores a new credential. A credential with the same ID
	// already owned by the same user returns ErrCredentialAlreadyExists.
	Insert(ctx context.Context, cred *Credential) error

	// Get retrieves the credential with the given ID owned by userID.
	// Returns ErrCredentialNotFound when the user owns no such credential,
	// regardless of whether the ID exists under another user.
	Get(ctx context.Context, userID, credID []byte) (*Credential, error)

	// List returns all credentials owned by userID, possibly empty.
	List(ctx context.Context, userID []byte) ([]*Credential, error)

	// UpdateSignCount atomically applies the counter policy to the stored
	// credential. The apply callback receives the stored counter and
	// returns the new value or an error; on error nothing is mutated.
	UpdateSignCount(ctx context.Context, userID, credID []byte, apply func(stored uint32) (uint32, error)) error
}

// MemoryCredentialRepository is an in-memory implementation of
// CredentialRepository. Records are keyed user-first, so cross-user
// isolation holds by construction.
type MemoryCredentialRepository struct {
	mu    sync.RWMutex
	users map[string]map[string]*Credential
}

// NewMemoryCredentialRepository creates a new in-memory credential repository.
func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{
		users: make(map[string]map[string]*Credential),
	}
}

// Insert stores a new credential for its owning user.
func (r *MemoryCredentialRepository) Insert(ctx context.Context, cred *Credential) error {
	if len(cred.UserID) == 0 {
		return ErrInvalidUserID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	userKey := hex.EncodeToString(cred.UserID)
	credKey := hex.EncodeToString(cred.ID)

	creds, ok := r.users[userKey]
	if !ok {
		creds = make(map[string]*Credential)
		r.users[userKey] = creds
	}
	if _, ok := creds[credKey]; ok {
		return ErrCredentialAlreadyExists
	}

	stored := *cred
	creds[credKey] = &stored
	return nil
}

// Get retrieves a credential strictly scoped to the claimed user.
func (r *MemoryCredentialRepository) Get(ctx context.Context, userID, credID []byte) (*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.users[hex.EncodeToString(userID)][hex.EncodeToString(credID)]
	if !ok {
		return nil, ErrCredentialNotFound
	}

	out := *cred
	return &out, nil
}

// List returns copies of all credentials owned by the user.
func (r *MemoryCredentialRepository) List(ctx context.Context, userID []byte) ([]*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	creds := r.users[hex.EncodeToString(userID)]
	result := make([]*Credential, 0, len(creds))
	for _, cred := range creds {
		out := *cred
		result = append(result, &out)
	}
	return result, nil
}

// UpdateSignCount applies the counter policy under the repository lock.
// The stored counter and last-used time change only when apply succeeds.
func (r *MemoryCredentialRepository) UpdateSignCount(ctx context.Context, userID, credID []byte, apply func(stored uint32) (uint32, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, ok := r.users[hex.EncodeToString(userID)][hex.EncodeToString(credID)]
	if !ok {
		return ErrCredentialNotFound
	}

	next, err := apply(cred.SignCount)
	if err != nil {
		return err
	}

	cred.SignCount = next
	cred.LastUsedAt = time.Now().UTC()
	return nil
}

// Count returns the total number of credentials across all users.
func (r *MemoryCredentialRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, creds := range r.users {
		total += len(creds)
	}
	return total
}

// Clear removes all credentials.
func (r *MemoryCredentialRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = make(map[string]map[string]*Credential)
}
