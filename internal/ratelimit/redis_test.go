package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStorage(t *testing.T) *RedisStorage {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStorage(client)
}

func TestRedisStorage_AllowsWithinBudget(t *testing.T) {
	s := newTestRedisStorage(t)
	ctx := context.Background()

	decision, err := s.CheckAndConsumeTokens(ctx, "k1", 100, 1000, time.Minute)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestRedisStorage_DeniesOverWindowAndRollsBack(t *testing.T) {
	s := newTestRedisStorage(t)
	ctx := context.Background()

	decision, err := s.CheckAndConsumeTokens(ctx, "k2", 900, 1000, time.Minute)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = s.CheckAndConsumeTokens(ctx, "k2", 200, 1000, time.Minute)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))

	// The rejected attempt must not have permanently consumed the budget:
	// a request that now fits within what's left should still succeed.
	decision, err = s.CheckAndConsumeTokens(ctx, "k2", 50, 1000, time.Minute)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestRedisStorage_ImpossibleRequestNeverSucceeds(t *testing.T) {
	s := newTestRedisStorage(t)
	ctx := context.Background()

	decision, err := s.CheckAndConsumeTokens(ctx, "k3", 5000, 1000, time.Minute)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, Impossible, decision.RetryAfter)
}
