package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/lnurld/lnurl"
)

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, &Challenge{Token: "a", Tag: lnurl.TagPayRequest, IssuedAt: now, ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, store.Insert(ctx, &Challenge{Token: "b", Tag: lnurl.TagPayRequest, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))

	n, err := store.Sweep(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreCopiesRecords(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	c := &Challenge{Token: "a", Tag: lnurl.TagPayRequest, IssuedAt: now, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, store.Insert(ctx, c))

	// mutating the caller's copy must not revive or burn the stored one
	c.Consumed = true

	consumed, err := store.Consume(ctx, "a", lnurl.TagPayRequest, now)
	require.NoError(t, err)

	consumed.Consumed = false

	_, err = store.Consume(ctx, "a", lnurl.TagPayRequest, now)
	assert.ErrorIs(t, err, ErrAlreadyConsumed)
}
