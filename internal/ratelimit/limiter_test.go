package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore builds a memory store with a controllable clock.
func testStore(t *testing.T) (*MemoryStore, *time.Time) {
	t.Helper()
	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestLimiterAllowsUpToLimit(t *testing.T) {
	store, _ := testStore(t)
	l := NewLimiter(Config{Store: store, Limit: 60, Window: time.Minute, Block: 5 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		d := l.Check(ctx, "client-a")
		require.True(t, d.Allowed, "request %d should pass", i+1)
	}

	d := l.Check(ctx, "client-a")
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestLimiterBlockShortCircuits(t *testing.T) {
	store, now := testStore(t)
	l := NewLimiter(Config{Store: store, Limit: 3, Window: time.Minute, Block: 5 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, l.Check(ctx, "c").Allowed)
	}
	require.False(t, l.Check(ctx, "c").Allowed)

	// window slides past the original requests, but the block holds
	*now = now.Add(2 * time.Minute)
	d := l.Check(ctx, "c")
	assert.False(t, d.Allowed)
	assert.LessOrEqual(t, d.RetryAfter, 3*time.Minute)
}

func TestLimiterBlockExpiryResetsWindow(t *testing.T) {
	store, now := testStore(t)
	l := NewLimiter(Config{Store: store, Limit: 3, Window: time.Minute, Block: 5 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, l.Check(ctx, "c").Allowed)
	}
	require.False(t, l.Check(ctx, "c").Allowed)

	*now = now.Add(5*time.Minute + time.Second)

	// full quota again, not a leftover window
	for i := 0; i < 3; i++ {
		assert.True(t, l.Check(ctx, "c").Allowed, "request %d after expiry", i+1)
	}
}

func TestLimiterClientsIndependent(t *testing.T) {
	store, _ := testStore(t)
	l := NewLimiter(Config{Store: store, Limit: 2, Window: time.Minute, Block: 5 * time.Minute})
	ctx := context.Background()

	require.True(t, l.Check(ctx, "a").Allowed)
	require.True(t, l.Check(ctx, "a").Allowed)
	require.False(t, l.Check(ctx, "a").Allowed)

	assert.True(t, l.Check(ctx, "b").Allowed)
}

func TestLimiterWindowSlides(t *testing.T) {
	store, now := testStore(t)
	l := NewLimiter(Config{Store: store, Limit: 2, Window: time.Minute, Block: 5 * time.Minute})
	ctx := context.Background()

	require.True(t, l.Check(ctx, "c").Allowed)
	require.True(t, l.Check(ctx, "c").Allowed)

	// old requests age out before a third arrives; no block happens
	*now = now.Add(61 * time.Second)
	assert.True(t, l.Check(ctx, "c").Allowed)
}

func TestLimiterReset(t *testing.T) {
	store, _ := testStore(t)
	l := NewLimiter(Config{Store: store, Limit: 1, Window: time.Minute, Block: 5 * time.Minute})
	ctx := context.Background()

	require.True(t, l.Check(ctx, "c").Allowed)
	require.False(t, l.Check(ctx, "c").Allowed)

	require.NoError(t, l.Reset(ctx, "c"))
	assert.True(t, l.Check(ctx, "c").Allowed)
}

func TestLimiterEmptyKeyAllowed(t *testing.T) {
	store, _ := testStore(t)
	l := NewLimiter(Config{Store: store, Limit: 1, Window: time.Minute, Block: time.Minute})
	assert.True(t, l.Check(context.Background(), "").Allowed)
}
