package ratelimit

import (
	"context"
	"sync"
	"time"
)

// clientWindow keeps the sliding window and block state for one client key.
type clientWindow struct {
	mu           sync.Mutex
	timestamps   []time.Time
	blockedUntil time.Time
}

// MemoryStore implements an in-memory sliding-window rate limit store.
// Suitable for single-instance deployments. For distributed deployments,
// use RedisStore.
type MemoryStore struct {
	mu      sync.RWMutex
	windows map[string]*clientWindow

	// now is swappable for deterministic tests.
	now func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// NewMemoryStore creates an in-memory rate limit store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCleanup(5 * time.Minute)
}

// NewMemoryStoreWithCleanup creates an in-memory store with a custom
// cleanup interval for dropping idle client windows.
func NewMemoryStoreWithCleanup(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		windows:         make(map[string]*clientWindow),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *MemoryStore) window(key string) *clientWindow {
	s.mu.RLock()
	w, exists := s.windows[key]
	s.mu.RUnlock()
	if exists {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, exists = s.windows[key]; exists {
		return w
	}
	w = &clientWindow{}
	s.windows[key] = w
	return w
}

// Allow records a request and decides whether it passes the sliding window.
// While a block is in force the window is not re-evaluated; expiry of the
// block also clears the window so the client starts fresh.
func (s *MemoryStore) Allow(ctx context.Context, key string, limit int, window, block time.Duration) (Decision, error) {
	now := s.now()
	w := s.window(key)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.blockedUntil.IsZero() {
		if now.Before(w.blockedUntil) {
			return Decision{Allowed: false, RetryAfter: w.blockedUntil.Sub(now)}, nil
		}
		w.blockedUntil = time.Time{}
		w.timestamps = w.timestamps[:0]
	}

	// Lazily prune timestamps that fell out of the trailing window.
	cutoff := now.Add(-window)
	kept := w.timestamps[:0]
	for _, t := range w.timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.timestamps = kept

	if len(w.timestamps) >= limit {
		w.blockedUntil = now.Add(block)
		return Decision{Allowed: false, RetryAfter: block}, nil
	}

	w.timestamps = append(w.timestamps, now)
	return Decision{Allowed: true}, nil
}

// Reset clears all state for a key.
func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Close stops background cleanup.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	if s.cleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes idle client windows to prevent unbounded growth.
func (s *MemoryStore) cleanup() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, w := range s.windows {
		w.mu.Lock()
		idle := len(w.timestamps) == 0 ||
			now.Sub(w.timestamps[len(w.timestamps)-1]) > s.cleanupInterval
		blocked := !w.blockedUntil.IsZero() && now.Before(w.blockedUntil)
		w.mu.Unlock()
		if idle && !blocked {
			delete(s.windows, key)
		}
	}
}
