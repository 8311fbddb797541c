package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/invoicer/pkg/errors"
)

// hitScript advances the fixed window record stored in a hash and returns {reset, count}.
// The key expires one second after its window ends.
var hitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local state = redis.call('HMGET', key, 'reset', 'count')
local reset = tonumber(state[1] or 0) or 0
local count = tonumber(state[2] or 0) or 0

if now >= reset then
    reset = now + window
    count = 0
end
count = count + 1

redis.call('HSET', key, 'reset', reset, 'count', count)
redis.call('EXPIRE', key, reset - now + 1)

return {reset, count}
`)

// RedisStore shares limiter state between processes through Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a store that prefixes every key with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string, now func() time.Time) (*RedisStore, error) {
	if client == nil {
		return nil, errors.ErrInvalidRequest("redis client is required")
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, prefix: prefix, now: now}, nil
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, key string, max int, window time.Duration) (Result, error) {
	now := s.now().Unix()

	out, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, now, windowSeconds(window)).Int64Slice()
	if err != nil {
		return Result{}, errors.ErrStorageUnavailable.WithCause(err)
	}
	if len(out) != 2 {
		return Result{}, errors.ErrStorageUnavailable.WithCause(fmt.Errorf("unexpected script reply of length %d", len(out)))
	}

	return evaluate(Record{Reset: out[0], Count: out[1]}, now, max), nil
}
