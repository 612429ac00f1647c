package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Chain tries an ordered list of adapters for one capability until one
// succeeds or all fail. Fallback is the retry strategy: an adapter is never
// retried in place, so total latency stays bounded by
// len(adapters) x timeout.
type Chain struct {
	capability Capability
	adapters   []Adapter
	keyring    *Keyring
	timeout    time.Duration
}

// ChainConfig holds configuration for a provider chain.
type ChainConfig struct {
	Capability Capability
	Adapters   []Adapter // strict priority order
	Keyring    *Keyring
	Timeout    time.Duration // per-attempt bound (default 30s)
}

// NewChain creates a provider chain.
func NewChain(cfg ChainConfig) (*Chain, error) {
	if len(cfg.Adapters) == 0 {
		return nil, errors.New("provider: at least one adapter required")
	}
	if cfg.Keyring == nil {
		return nil, errors.New("provider: keyring required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Chain{
		capability: cfg.Capability,
		adapters:   cfg.Adapters,
		keyring:    cfg.Keyring,
		timeout:    timeout,
	}, nil
}

// Attempt tries each adapter in priority order under a bounded per-attempt
// timeout. Key failures put the key into cooldown; retryable and terminal
// failures both advance to the next adapter. Returns the first success or
// ErrAllProvidersFailed wrapping the last error.
func (c *Chain) Attempt(ctx context.Context, p Payload) (Result, error) {
	var lastErr error

	for _, ad := range c.adapters {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		key := ""
		hasPool := c.keyring.HasPool(ad.Name())
		if hasPool {
			var err error
			key, err = c.keyring.Next(ad.Name())
			if errors.Is(err, ErrExhausted) {
				log.Debug().
					Str("capability", string(c.capability)).
					Str("provider", ad.Name()).
					Msg("key pool exhausted, skipping provider")
				lastErr = fmt.Errorf("%s: %w", ad.Name(), err)
				continue
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		res, err := ad.Attempt(attemptCtx, key, p)
		cancel()

		if err == nil {
			if hasPool {
				c.keyring.MarkSuccess(ad.Name(), key)
			}
			res.Provider = ad.Name()
			return res, nil
		}

		lastErr = fmt.Errorf("%s: %w", ad.Name(), err)
		switch Classify(err) {
		case FailureKey:
			if hasPool {
				c.keyring.MarkFailure(ad.Name(), key)
			}
			log.Warn().Err(err).
				Str("capability", string(c.capability)).
				Str("provider", ad.Name()).
				Msg("provider key failure, key cooling down")
		case FailureTerminal:
			log.Warn().Err(err).
				Str("capability", string(c.capability)).
				Str("provider", ad.Name()).
				Msg("provider terminal failure")
		default:
			log.Debug().Err(err).
				Str("capability", string(c.capability)).
				Str("provider", ad.Name()).
				Msg("provider retryable failure, falling back")
		}
	}

	if lastErr != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
	}
	return Result{}, ErrAllProvidersFailed
}
