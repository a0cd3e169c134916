package challenge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/lnurld/lnurl"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(clock *fakeClock) *Registry {
	return NewRegistry(&RegistryConfig{
		Store: NewMemoryStore(),
		TTL:   time.Minute,
		Now:   clock.Now,
	})
}

func TestIssue(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	registry := newTestRegistry(clock)

	c, err := registry.Issue(context.Background(), lnurl.TagChannelRequest)
	require.NoError(t, err)

	assert.Len(t, c.Token, 2*TokenBytes)
	assert.Equal(t, lnurl.TagChannelRequest, c.Tag)
	assert.Equal(t, clock.Now(), c.IssuedAt)
	assert.Equal(t, clock.Now().Add(time.Minute), c.ExpiresAt)
	assert.False(t, c.Consumed)

	_, err = registry.Issue(context.Background(), lnurl.Tag("bogus"))
	assert.Error(t, err)
}

func TestIssueUniqueTokens(t *testing.T) {
	registry := newTestRegistry(&fakeClock{now: time.Now()})

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		c, err := registry.Issue(context.Background(), lnurl.TagPayRequest)
		require.NoError(t, err)
		require.False(t, seen[c.Token])
		seen[c.Token] = true
	}
}

func TestConsumeTwice(t *testing.T) {
	registry := newTestRegistry(&fakeClock{now: time.Now()})
	ctx := context.Background()

	c, err := registry.Issue(ctx, lnurl.TagChannelRequest)
	require.NoError(t, err)

	consumed, err := registry.Consume(ctx, lnurl.TagChannelRequest, c.Token)
	require.NoError(t, err)
	assert.True(t, consumed.Consumed)

	_, err = registry.Consume(ctx, lnurl.TagChannelRequest, c.Token)
	assert.ErrorIs(t, err, ErrAlreadyConsumed)
}

func TestConsumeUnknownAndEmpty(t *testing.T) {
	registry := newTestRegistry(&fakeClock{now: time.Now()})

	_, err := registry.Consume(context.Background(), lnurl.TagChannelRequest, "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = registry.Consume(context.Background(), lnurl.TagChannelRequest, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConsumeExpired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	registry := newTestRegistry(clock)
	ctx := context.Background()

	c, err := registry.Issue(ctx, lnurl.TagChannelRequest)
	require.NoError(t, err)

	clock.Advance(time.Minute)

	// still valid at exactly expiresAt
	_, err = registry.Consume(ctx, lnurl.TagChannelRequest, c.Token)
	require.NoError(t, err)

	c, err = registry.Issue(ctx, lnurl.TagChannelRequest)
	require.NoError(t, err)

	clock.Advance(time.Minute + time.Second)

	_, err = registry.Consume(ctx, lnurl.TagChannelRequest, c.Token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestSweep(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	registry := newTestRegistry(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := registry.Issue(ctx, lnurl.TagPayRequest)
		require.NoError(t, err)
	}

	n, err := registry.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.Advance(2 * time.Minute)

	n, err = registry.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

type collidingStore struct {
	*MemoryStore
	collisions int
}

func (s *collidingStore) Insert(ctx context.Context, c *Challenge) error {
	if s.collisions > 0 {
		s.collisions--
		return ErrTokenExists
	}

	return s.MemoryStore.Insert(ctx, c)
}

func TestIssueRetriesOnCollision(t *testing.T) {
	store := &collidingStore{MemoryStore: NewMemoryStore(), collisions: 2}
	registry := NewRegistry(&RegistryConfig{Store: store})

	_, err := registry.Issue(context.Background(), lnurl.TagPayRequest)
	require.NoError(t, err)

	store.collisions = maxIssueAttempts
	_, err = registry.Issue(context.Background(), lnurl.TagPayRequest)
	assert.Error(t, err)
}
