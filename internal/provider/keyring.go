package provider

import (
	"errors"
	"sync"
	"time"
)

// ErrExhausted is returned by Keyring.Next when every key in a pool is
// cooling down. It never surfaces to callers directly; the chain skips the
// adapter and it only shows up as part of ErrAllProvidersFailed when the
// whole chain empties out.
var ErrExhausted = errors.New("provider: key pool exhausted")

const (
	initialCooldown = 30 * time.Second
	maxCooldown     = 15 * time.Minute
)

type poolKey struct {
	material     string
	coolingUntil time.Time
	cooldown     time.Duration // next backoff step
	lastUsed     time.Time
}

type keyPool struct {
	mu     sync.Mutex
	keys   []*poolKey
	cursor int
}

// Keyring owns every API key in the process. Pools are initialized once at
// startup from configuration; all access goes through Next and the failure
// marks. Key material never leaves the package except as the string handed
// to a single attempt.
type Keyring struct {
	mu    sync.RWMutex
	pools map[string]*keyPool

	now func() time.Time
}

// NewKeyring creates an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{
		pools: make(map[string]*keyPool),
		now:   time.Now,
	}
}

// Register installs the ordered key pool for a provider class, replacing
// any previous pool.
func (k *Keyring) Register(class string, keys []string) {
	pool := &keyPool{}
	for _, key := range keys {
		if key == "" {
			continue
		}
		pool.keys = append(pool.keys, &poolKey{material: key})
	}
	k.mu.Lock()
	k.pools[class] = pool
	k.mu.Unlock()
}

// HasPool reports whether a key pool is registered for the class. Adapters
// without a pool (keyless providers) are attempted with an empty key.
func (k *Keyring) HasPool(class string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.pools[class]
	return ok
}

// Next returns the next usable key for the class, round-robin, skipping
// keys in cooldown. ErrExhausted when every key is cooling down or the pool
// is empty.
func (k *Keyring) Next(class string) (string, error) {
	k.mu.RLock()
	pool, ok := k.pools[class]
	k.mu.RUnlock()
	if !ok {
		return "", ErrExhausted
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()

	now := k.now()
	for i := 0; i < len(pool.keys); i++ {
		key := pool.keys[pool.cursor]
		pool.cursor = (pool.cursor + 1) % len(pool.keys)
		if now.Before(key.coolingUntil) {
			continue
		}
		key.lastUsed = now
		return key.material, nil
	}
	return "", ErrExhausted
}

// MarkFailure puts a key into cooldown after a quota/auth failure. Repeated
// failures back off exponentially up to maxCooldown.
func (k *Keyring) MarkFailure(class, material string) {
	k.mu.RLock()
	pool, ok := k.pools[class]
	k.mu.RUnlock()
	if !ok {
		return
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()
	for _, key := range pool.keys {
		if key.material != material {
			continue
		}
		if key.cooldown == 0 {
			key.cooldown = initialCooldown
		} else {
			key.cooldown *= 2
			if key.cooldown > maxCooldown {
				key.cooldown = maxCooldown
			}
		}
		key.coolingUntil = k.now().Add(key.cooldown)
		return
	}
}

// MarkSuccess resets a key's backoff after a successful attempt.
func (k *Keyring) MarkSuccess(class, material string) {
	k.mu.RLock()
	pool, ok := k.pools[class]
	k.mu.RUnlock()
	if !ok {
		return
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()
	for _, key := range pool.keys {
		if key.material == material {
			key.cooldown = 0
			key.coolingUntil = time.Time{}
			return
		}
	}
}
