package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkAndConsumeScript implements a fixed-window token counter atomically:
// increment the bucket by `tokens`, set its expiry on first write, and roll
// back if the new total exceeds `limit`. Returns {allowed(0/1), ttl_ms}.
var checkAndConsumeScript = redis.NewScript(`
local key = KEYS[1]
local tokens = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])

local total = redis.call("INCRBY", key, tokens)
if total == tokens then
	redis.call("PEXPIRE", key, interval_ms)
end

if total > limit then
	redis.call("DECRBY", key, tokens)
	local ttl = redis.call("PTTL", key)
	if ttl < 0 then
		ttl = interval_ms
	end
	return {0, ttl}
end

return {1, 0}
`)

// RedisStorage implements Storage against a shared Redis instance, so the
// token budget is enforced consistently across every gateway process
// (spec.md §4.5). Tested against a miniredis instance in this package's
// tests rather than a live server.
type RedisStorage struct {
	client redis.Cmdable
}

// NewRedisStorage wraps an existing redis client (or a miniredis-backed one
// in tests).
func NewRedisStorage(client redis.Cmdable) *RedisStorage {
	return &RedisStorage{client: client}
}

func (s *RedisStorage) CheckAndConsumeTokens(ctx context.Context, key string, tokens, limit int, interval time.Duration) (Decision, error) {
	if tokens > limit {
		return Decision{Allowed: false, RetryAfter: Impossible}, nil
	}

	res, err := checkAndConsumeScript.Run(ctx, s.client, []string{key}, tokens, limit, interval.Milliseconds()).Result()
	if err != nil {
		return Decision{}, err
	}

	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return Decision{}, redis.Nil
	}
	allowed, _ := pair[0].(int64)
	ttlMS, _ := pair[1].(int64)
	if allowed == 1 {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: time.Duration(ttlMS) * time.Millisecond}, nil
}
