// Package storetest holds the behaviour every challenge.Store must show.
package storetest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/lnurld/challenge"
	"github.com/the-lightning-land/lnurld/lnurl"
)

func newChallenge(t *testing.T, tag lnurl.Tag, now time.Time, ttl time.Duration) *challenge.Challenge {
	var b [challenge.TokenBytes]byte
	_, err := rand.Read(b[:])
	require.NoError(t, err)

	return &challenge.Challenge{
		Token:     hex.EncodeToString(b[:]),
		Tag:       tag,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Common runs the conformance suite against store.
func Common(t *testing.T, store challenge.Store) {
	ctx := context.Background()

	t.Run("consume once", func(t *testing.T) {
		now := time.Now()
		c := newChallenge(t, lnurl.TagChannelRequest, now, time.Minute)
		require.NoError(t, store.Insert(ctx, c))

		consumed, err := store.Consume(ctx, c.Token, lnurl.TagChannelRequest, now)
		require.NoError(t, err)
		assert.True(t, consumed.Consumed)
		assert.Equal(t, c.Token, consumed.Token)
		assert.Equal(t, lnurl.TagChannelRequest, consumed.Tag)
		assert.WithinDuration(t, c.ExpiresAt, consumed.ExpiresAt, time.Millisecond)

		_, err = store.Consume(ctx, c.Token, lnurl.TagChannelRequest, now)
		assert.True(t, errors.Is(err, challenge.ErrAlreadyConsumed), "got %v", err)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := store.Consume(ctx, "00112233445566778899aabb", lnurl.TagChannelRequest, time.Now())
		assert.True(t, errors.Is(err, challenge.ErrNotFound), "got %v", err)
	})

	t.Run("expired", func(t *testing.T) {
		now := time.Now()
		c := newChallenge(t, lnurl.TagPayRequest, now, time.Minute)
		require.NoError(t, store.Insert(ctx, c))

		_, err := store.Consume(ctx, c.Token, lnurl.TagPayRequest, now.Add(2*time.Minute))
		assert.True(t, errors.Is(err, challenge.ErrExpired), "got %v", err)
	})

	t.Run("wrong tag does not burn the token", func(t *testing.T) {
		now := time.Now()
		c := newChallenge(t, lnurl.TagWithdrawRequest, now, time.Minute)
		require.NoError(t, store.Insert(ctx, c))

		_, err := store.Consume(ctx, c.Token, lnurl.TagChannelRequest, now)
		assert.True(t, errors.Is(err, challenge.ErrNotFound), "got %v", err)

		_, err = store.Consume(ctx, c.Token, lnurl.TagWithdrawRequest, now)
		assert.NoError(t, err)
	})

	t.Run("duplicate insert", func(t *testing.T) {
		now := time.Now()
		c := newChallenge(t, lnurl.TagChannelRequest, now, time.Minute)
		require.NoError(t, store.Insert(ctx, c))

		err := store.Insert(ctx, c)
		assert.True(t, errors.Is(err, challenge.ErrTokenExists), "got %v", err)
	})

	t.Run("sweep", func(t *testing.T) {
		now := time.Now()
		c := newChallenge(t, lnurl.TagChannelRequest, now, time.Minute)
		require.NoError(t, store.Insert(ctx, c))

		_, err := store.Sweep(ctx, now.Add(2*time.Minute))
		require.NoError(t, err)

		// stores relying on key expiry may still report the record as expired
		_, err = store.Consume(ctx, c.Token, lnurl.TagChannelRequest, now.Add(2*time.Minute))
		assert.True(t, errors.Is(err, challenge.ErrNotFound) || errors.Is(err, challenge.ErrExpired), "got %v", err)
	})

	t.Run("concurrent consume", func(t *testing.T) {
		const racers = 32

		now := time.Now()
		c := newChallenge(t, lnurl.TagChannelRequest, now, time.Minute)
		require.NoError(t, store.Insert(ctx, c))

		var (
			wg        sync.WaitGroup
			successes int32
			others    int32
			start     = make(chan struct{})
		)

		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start

				_, err := store.Consume(ctx, c.Token, lnurl.TagChannelRequest, now)
				switch {
				case err == nil:
					atomic.AddInt32(&successes, 1)
				case errors.Is(err, challenge.ErrAlreadyConsumed), errors.Is(err, challenge.ErrNotFound):
					atomic.AddInt32(&others, 1)
				}
			}()
		}

		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), successes)
		assert.Equal(t, int32(racers-1), others)
	})
}
