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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCeremonyStore_BeginGeneratesFreshChallenge(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCeremonyStore()
	userID := []byte("user-1")

	first, err := store.Begin(ctx, userID, CeremonyRegistration, CeremonyParams{})
	require.NoError(t, err)
	assert.Len(t, first.Challenge, DefaultChallengeSize)
	assert.Equal(t, CeremonyRegistration, first.Kind)
	assert.Equal(t, userID, first.UserID)
	assert.True(t, first.ExpiresAt.After(first.CreatedAt))

	second, err := store.Begin(ctx, userID, CeremonyRegistration, CeremonyParams{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Challenge, second.Challenge)
}

func TestMemoryCeremonyStore_BeginRejectsEmptyUserID(t *testing.T) {
	store := NewMemoryCeremonyStore()

	_, err := store.Begin(context.Background(), nil, CeremonyRegistration, CeremonyParams{})
	assert.ErrorIs(t, err, ErrInvalidUserID)
}

func TestMemoryCeremonyStore_BeginRejectsShortChallenge(t *testing.T) {
	store := NewMemoryCeremonyStore()

	_, err := store.Begin(context.Background(), []byte("u"), CeremonyRegistration, CeremonyParams{
		ChallengeSize: MinChallengeSize - 1,
	})
	assert.Error(t, err)
}

func TestMemoryCeremonyStore_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCeremonyStore()
	userID := []byte("user-1")

	begun, err := store.Begin(ctx, userID, CeremonyAuthentication, CeremonyParams{})
	require.NoError(t, err)

	consumed, err := store.Consume(ctx, userID, CeremonyAuthentication)
	require.NoError(t, err)
	assert.Equal(t, begun.Challenge, consumed.Challenge)

	// Second consume finds nothing
	_, err = store.Consume(ctx, userID, CeremonyAuthentication)
	assert.ErrorIs(t, err, ErrCeremonyNotFound)
}

func TestMemoryCeremonyStore_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCeremonyStore()
	userID := []byte("user-1")

	_, err := store.Begin(ctx, userID, CeremonyAuthentication, CeremonyParams{})
	require.NoError(t, err)

	var successes atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, userID, CeremonyAuthentication); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load(), "exactly one consume may succeed")
}

func TestMemoryCeremonyStore_BeginOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCeremonyStore()
	userID := []byte("user-1")

	_, err := store.Begin(ctx, userID, CeremonyRegistration, CeremonyParams{})
	require.NoError(t, err)

	replacement, err := store.Begin(ctx, userID, CeremonyRegistration, CeremonyParams{})
	require.NoError(t, err)

	consumed, err := store.Consume(ctx, userID, CeremonyRegistration)
	require.NoError(t, err)
	assert.Equal(t, replacement.Challenge, consumed.Challenge)
	assert.Equal(t, 0, store.Count())
}

func TestMemoryCeremonyStore_KindSeparation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCeremonyStore()
	userID := []byte("user-1")

	_, err := store.Begin(ctx, userID, CeremonyRegistration, CeremonyParams{})
	require.NoError(t, err)

	// An authentication consume does not match the registration ceremony
	_, err = store.Consume(ctx, userID, CeremonyAuthentication)
	assert.ErrorIs(t, err, ErrCeremonyNotFound)

	_, err = store.Consume(ctx, userID, CeremonyRegistration)
	assert.NoError(t, err)
}

func TestMemoryCeremonyStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCeremonyStore()
	userID := []byte("user-1")

	_, err := store.Begin(ctx, userID, CeremonyAuthentication, CeremonyParams{TTL: 10 * time.Millisecond})
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	_, err = store.Consume(ctx, userID, CeremonyAuthentication)
	assert.ErrorIs(t, err, ErrCeremonyNotFound)

	// The expired entry was removed, not just rejected
	assert.Equal(t, 0, store.Count())
}

func TestMemoryCeremonyStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCeremonyStore()

	_, err := store.Begin(ctx, []byte("short"), CeremonyRegistration, CeremonyParams{TTL: 5 * time.Millisecond})
	require.NoError(t, err)
	_, err = store.Begin(ctx, []byte("long"), CeremonyRegistration, CeremonyParams{TTL: time.Hour})
	require.NoError(t, err)

	time.Sleep(15 * time.Millisecond)

	removed := store.Cleanup()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Count())

	store.Clear()
	assert.Equal(t, 0, store.Count())
}

func TestMemoryCeremonyStore_Sweeper(t *testing.T) {
	store := NewMemoryCeremonyStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := store.Begin(ctx, []byte("user-1"), CeremonyRegistration, CeremonyParams{TTL: 5 * time.Millisecond})
	require.NoError(t, err)

	store.StartSweeper(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return store.Count() == 0
	}, time.Second, 10*time.Millisecond)
}
