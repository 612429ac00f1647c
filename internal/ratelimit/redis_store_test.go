package ratelimit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// A burst inside one wall-clock second must still add one sorted-set member
// per request, otherwise ZADD overwrites and the window undercounts.
func TestRedisStoreMembersUniqueWithinBurst(t *testing.T) {
	s := NewRedisStore(nil)

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		m := s.member()
		_, dup := seen[m]
		assert.False(t, dup, "duplicate member %q", m)
		seen[m] = struct{}{}
	}
}

func TestRedisStoreMembersUniqueConcurrent(t *testing.T) {
	s := NewRedisStore(nil)

	const workers = 8
	const perWorker = 200

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for j := 0; j < perWorker; j++ {
				local = append(local, s.member())
			}
			mu.Lock()
			for _, m := range local {
				seen[m] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}
