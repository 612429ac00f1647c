package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a rate check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // remaining cooldown when blocked
}

// Store defines the interface for rate limit storage backends.
// Implementations can be in-memory (for single instance) or distributed
// (Redis) for clustered deployments.
type Store interface {
	// Allow records a request for key and decides whether it passes the
	// sliding window, transitioning the key into the blocked state when
	// the window overflows.
	Allow(ctx context.Context, key string, limit int, window, block time.Duration) (Decision, error)

	// Reset clears all state for a key.
	Reset(ctx context.Context, key string) error

	Close() error
}

// Limiter enforces a per-client sliding-window request limit with an
// auto-block state: once a client exceeds the limit inside the window it is
// blocked for the cooldown and every check short-circuits until it elapses.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	block  time.Duration
}

// Config holds configuration for the rate limiter.
type Config struct {
	// Storage backend (optional, defaults to MemoryStore)
	Store Store

	Limit  int           // max requests per window
	Window time.Duration // sliding window length
	Block  time.Duration // cooldown applied after exceeding the limit
}

// DefaultConfig returns the stock limits: 60 requests per minute,
// 5 minute block.
func DefaultConfig() Config {
	return Config{
		Limit:  60,
		Window: time.Minute,
		Block:  5 * time.Minute,
	}
}

// NewLimiter creates a rate limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Minute
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	return &Limiter{
		store:  store,
		limit:  cfg.Limit,
		window: cfg.Window,
		block:  cfg.Block,
	}
}

// Check decides whether a request from the given client key is allowed.
// Keys are independent; blocking one client never affects another. On store
// error the request is allowed (fail open) so a degraded backend does not
// take the whole service down with it.
func (l *Limiter) Check(ctx context.Context, key string) Decision {
	if key == "" {
		return Decision{Allowed: true}
	}
	d, err := l.store.Allow(ctx, key, l.limit, l.window, l.block)
	if err != nil {
		return Decision{Allowed: true}
	}
	return d
}

// Reset clears all limiter state for a client key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

// Close releases the underlying store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
