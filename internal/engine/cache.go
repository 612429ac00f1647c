package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// replyCache is a bounded TTL cache for chat replies, keyed by a hash of
// system+prompt. Only plain chat goes through it; funnel replies are always
// generated fresh.
type replyCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	max     int
	now     func() time.Time
}

type cacheEntry struct {
	reply    string
	provider string
	at       time.Time
}

func newReplyCache(ttl time.Duration, max int) *replyCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if max <= 0 {
		max = 100
	}
	return &replyCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

func cacheKey(system, prompt string) string {
	h := sha256.Sum256([]byte(system + "\x00" + prompt))
	return hex.EncodeToString(h[:16])
}

func (c *replyCache) get(key string) (string, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", "", false
	}
	if c.now().Sub(e.at) > c.ttl {
		delete(c.entries, key)
		return "", "", false
	}
	return e.reply, e.provider, true
}

func (c *replyCache) put(key, reply, provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{reply: reply, provider: provider, at: c.now()}
}

func (c *replyCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.at.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.at
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
