package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryStorage implements Storage as an in-process map of token-bucket
// limiters, one per key, built on golang.org/x/time/rate. Suitable for a
// single-instance deployment; buckets do not survive a restart.
type MemoryStorage struct {
	mu       sync.Mutex
	limiters map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	limit    int
	interval time.Duration
}

// NewMemoryStorage creates an empty in-process token-bucket store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{limiters: make(map[string]*bucket)}
}

func (s *MemoryStorage) CheckAndConsumeTokens(_ context.Context, key string, tokens, limit int, interval time.Duration) (Decision, error) {
	s.mu.Lock()
	b, ok := s.limiters[key]
	if !ok || b.limit != limit || b.interval != interval {
		// Rebuild on first use or when the caller's config for this key
		// changed (e.g. a group override applies a different limit).
		ratePerSec := rate.Limit(float64(limit) / interval.Seconds())
		b = &bucket{limiter: rate.NewLimiter(ratePerSec, limit), limit: limit, interval: interval}
		s.limiters[key] = b
	}
	limiter := b.limiter
	s.mu.Unlock()

	if tokens > limit {
		return Decision{Allowed: false, RetryAfter: Impossible}, nil
	}

	now := time.Now()
	reservation := limiter.ReserveN(now, tokens)
	if !reservation.OK() {
		return Decision{Allowed: false, RetryAfter: Impossible}, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.Cancel()
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true}, nil
}
