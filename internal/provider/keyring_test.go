package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyringRoundRobin(t *testing.T) {
	k := NewKeyring()
	k.Register("chat", []string{"a", "b", "c"})

	var got []string
	for i := 0; i < 6; i++ {
		key, err := k.Next("chat")
		require.NoError(t, err)
		got = append(got, key)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, got)
}

func TestKeyringSkipsCoolingKeys(t *testing.T) {
	k := NewKeyring()
	k.Register("chat", []string{"a", "b"})
	k.MarkFailure("chat", "a")

	for i := 0; i < 3; i++ {
		key, err := k.Next("chat")
		require.NoError(t, err)
		assert.Equal(t, "b", key)
	}
}

func TestKeyringExhausted(t *testing.T) {
	k := NewKeyring()
	k.Register("chat", []string{"a"})
	k.MarkFailure("chat", "a")

	_, err := k.Next("chat")
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestKeyringEmptyPoolExhausted(t *testing.T) {
	k := NewKeyring()
	k.Register("chat", nil)

	_, err := k.Next("chat")
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestKeyringCooldownDoublesUpToCap(t *testing.T) {
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	now := base
	k := NewKeyring()
	k.now = func() time.Time { return now }
	k.Register("chat", []string{"a"})

	k.MarkFailure("chat", "a")
	pool := k.pools["chat"]
	assert.Equal(t, initialCooldown, pool.keys[0].cooldown)

	k.MarkFailure("chat", "a")
	assert.Equal(t, 2*initialCooldown, pool.keys[0].cooldown)

	// enough failures to hit the ceiling
	for i := 0; i < 10; i++ {
		k.MarkFailure("chat", "a")
	}
	assert.Equal(t, maxCooldown, pool.keys[0].cooldown)
}

func TestKeyringCooldownExpires(t *testing.T) {
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	now := base
	k := NewKeyring()
	k.now = func() time.Time { return now }
	k.Register("chat", []string{"a"})

	k.MarkFailure("chat", "a")
	_, err := k.Next("chat")
	require.ErrorIs(t, err, ErrExhausted)

	now = base.Add(initialCooldown + time.Second)
	key, err := k.Next("chat")
	require.NoError(t, err)
	assert.Equal(t, "a", key)
}

func TestKeyringSuccessResetsBackoff(t *testing.T) {
	k := NewKeyring()
	k.Register("chat", []string{"a"})

	k.MarkFailure("chat", "a")
	k.MarkFailure("chat", "a")
	k.MarkSuccess("chat", "a")

	key, err := k.Next("chat")
	require.NoError(t, err)
	assert.Equal(t, "a", key)

	// the backoff ladder starts over
	k.MarkFailure("chat", "a")
	assert.Equal(t, initialCooldown, k.pools["chat"].keys[0].cooldown)
}

func TestHasPool(t *testing.T) {
	k := NewKeyring()
	assert.False(t, k.HasPool("chat"))
	k.Register("chat", []string{"a"})
	assert.True(t, k.HasPool("chat"))
}
