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
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// CeremonyParams carries the per-ceremony settings applied at Begin.
type CeremonyParams struct {
	// TTL is the validity window. Zero means DefaultCeremonyTTL.
	TTL time.Duration

	// ChallengeSize is the challenge length in bytes. Zero means
	// DefaultChallengeSize; values below MinChallengeSize are rejected.
	ChallengeSize int

	// UserVerification is the policy recorded with the ceremony.
	UserVerification protocol.UserVerificationRequirement
}

// CeremonyStore holds pending ceremonies keyed by (user, kind).
//
// Implementations must make Begin and Consume atomic with respect to each
// other: beginning a ceremony replaces any pending one for the same pair,
// and of two concurrent Consume calls for the same pair at most one may
// succeed.
type CeremonyStore interface {
	// Begin creates a pending ceremony with a fresh random challenge,
	// replacing any existing ceremony for the same (user, kind).
	Begin(ctx context.Context, userID []byte, kind CeremonyKind, params CeremonyParams) (*Ceremony, error)

	// Consume atomically retrieves and removes the pending ceremony for
	// (user, kind). A missing, expired, or already-consumed ceremony
	// returns ErrCeremonyNotFound.
	Consume(ctx context.Context, userID []byte, kind CeremonyKind) (*Ceremony, error)
}

// MemoryCeremonyStore is an in-memory implementation of CeremonyStore.
// Ceremonies are ephemeral by nature, so this implementation is suitable
// for single-process production use as well as tests.
type MemoryCeremonyStore struct {
	mu         sync.Mutex
	ceremonies map[string]*Ceremony
}

// NewMemoryCeremonyStore creates a new in-memory ceremony store.
func NewMemoryCeremonyStore() *MemoryCeremonyStore {
	return &MemoryCeremonyStore{
		ceremonies: make(map[string]*Ceremony),
	}
}

func ceremonyKey(userID []byte, kind CeremonyKind) string {
	return hex.EncodeToString(userID) + "/" + string(kind)
}

// Begin creates a pending ceremony, overwriting any existing one for the
// same (user, kind).
func (s *MemoryCeremonyStore) Begin(ctx context.Context, userID []byte, kind CeremonyKind, params CeremonyParams) (*Ceremony, error) {
	if len(userID) == 0 {
		return nil, ErrInvalidUserID
	}

	ttl := params.TTL
	if ttl == 0 {
		ttl = DefaultCeremonyTTL
	}
	size := params.ChallengeSize
	if size == 0 {
		size = DefaultChallengeSize
	}
	if size < MinChallengeSize {
		return nil, NewError("ceremony.begin", ErrNotConfigured)
	}

	challenge := make([]byte, size)
	if _, err := rand.Read(challenge); err != nil {
		return nil, WrapError("ceremony.begin", err)
	}

	now := time.Now().UTC()
	ceremony := &Ceremony{
		Kind:             kind,
		UserID:           append([]byte(nil), userID...),
		Challenge:        challenge,
		UserVerification: params.UserVerification,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	}

	s.mu.Lock()
	s.ceremonies[ceremonyKey(userID, kind)] = ceremony
	s.mu.Unlock()

	return ceremony, nil
}

// Consume atomically retrieves and removes the pending ceremony. Expired
// entries are removed lazily here; no pending ceremony survives a Consume,
// successful or not.
func (s *MemoryCeremonyStore) Consume(ctx context.Context, userID []byte, kind CeremonyKind) (*Ceremony, error) {
	if len(userID) == 0 {
		return nil, ErrInvalidUserID
	}

	key := ceremonyKey(userID, kind)

	s.mu.Lock()
	ceremony, ok := s.ceremonies[key]
	if ok {
		delete(s.ceremonies, key)
	}
	s.mu.Unlock()

	if !ok || ceremony.Expired(time.Now().UTC()) {
		return nil, ErrCeremonyNotFound
	}
	return ceremony, nil
}

// Cleanup removes expired ceremonies and returns how many were removed.
func (s *MemoryCeremonyStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	removed := 0
	for key, ceremony := range s.ceremonies {
		if ceremony.Expired(now) {
			delete(s.ceremonies, key)
			removed++
		}
	}
	return removed
}

// Count returns the number of pending ceremonies.
func (s *MemoryCeremonyStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ceremonies)
}

// Clear removes all pending ceremonies.
func (s *MemoryCeremonyStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ceremonies = make(map[string]*Ceremony)
}

// StartSweeper runs Cleanup on the given interval until ctx is cancelled.
// Expiry is already enforced lazily at Consume; the sweeper only bounds
// memory held by abandoned ceremonies.
func (s *MemoryCeremonyStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}
