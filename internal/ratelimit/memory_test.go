package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_AllowsWithinBudget(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	decision, err := s.CheckAndConsumeTokens(ctx, "k1", 100, 1000, time.Minute)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestMemoryStorage_DeniesOverBudget(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	_, err := s.CheckAndConsumeTokens(ctx, "k2", 900, 1000, time.Minute)
	require.NoError(t, err)

	decision, err := s.CheckAndConsumeTokens(ctx, "k2", 200, 1000, time.Minute)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
	assert.Less(t, decision.RetryAfter, Impossible)
}

func TestMemoryStorage_ImpossibleRequestNeverSucceeds(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	decision, err := s.CheckAndConsumeTokens(ctx, "k3", 5000, 1000, time.Minute)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, Impossible, decision.RetryAfter)
}

func TestMemoryStorage_KeysAreIndependent(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	_, err := s.CheckAndConsumeTokens(ctx, "a", 900, 1000, time.Minute)
	require.NoError(t, err)

	decision, err := s.CheckAndConsumeTokens(ctx, "b", 900, 1000, time.Minute)
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "a separate key should have its own budget")
}
