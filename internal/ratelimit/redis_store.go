package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript implements the sliding window plus auto-block in one
// round trip. Returns {1, 0} when allowed or {0, retry_after_seconds} when
// blocked. The block key short-circuits the window while it exists.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local blockKey = KEYS[2]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local block = tonumber(ARGV[4])
local member = ARGV[5]

local ttl = redis.call('TTL', blockKey)
if ttl > 0 then
    return {0, ttl}
end

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
    redis.call('SET', blockKey, '1', 'EX', block)
    redis.call('DEL', key)
    return {0, block}
end

redis.call('ZADD', key, now, member)
redis.call('EXPIRE', key, window + 10)
return {1, 0}
`)

// RedisStore implements Store on Redis for clustered deployments, so all
// instances share one view of each client's window and block state.
type RedisStore struct {
	client *redis.Client
	seq    atomic.Uint64
}

// NewRedisStore creates a Redis-backed rate limit store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// member builds the sorted-set member for one request. EVAL scripts are
// deterministic, so the uniqueness has to come from the caller: two requests
// landing in the same second must still produce two distinct members or the
// second ZADD would overwrite the first and the window would undercount.
func (s *RedisStore) member() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), s.seq.Add(1))
}

// Allow records a request for key and decides whether it passes.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window, block time.Duration) (Decision, error) {
	windowKey := fmt.Sprintf("ratelimit:%s", key)
	blockKey := fmt.Sprintf("ratelimit:block:%s", key)

	result, err := slidingWindowScript.Run(
		ctx,
		s.client,
		[]string{windowKey, blockKey},
		time.Now().Unix(),
		int64(window.Seconds()),
		limit,
		int64(block.Seconds()),
		s.member(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit script: %w", err)
	}
	if len(result) != 2 {
		return Decision{}, fmt.Errorf("ratelimit script: unexpected result %v", result)
	}

	if result[0] == 1 {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: time.Duration(result[1]) * time.Second}, nil
}

// Reset clears all state for a key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	windowKey := fmt.Sprintf("ratelimit:%s", key)
	blockKey := fmt.Sprintf("ratelimit:block:%s", key)
	return s.client.Del(ctx, windowKey, blockKey).Err()
}

// Close is a no-op; the Redis client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}
