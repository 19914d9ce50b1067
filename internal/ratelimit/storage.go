// Package ratelimit implements the token rate-limit gate that rejects
// requests exceeding a configured token budget before any upstream call
// (spec.md §4.5 "Token Rate-Limit Gate").
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Impossible is the Duration::MAX-equivalent sentinel: a request that can
// never succeed because it exceeds the bucket's total capacity, as
// distinct from one that merely needs to wait (spec.md §4.5 step 4).
const Impossible = time.Duration(math.MaxInt64)

// Decision is the outcome of one bucket check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // valid iff !Allowed; Impossible means it never will be
}

// Storage is the token-bucket backend the Gate consumes against. Two
// implementations are provided: MemoryStorage (single-process, backed by
// golang.org/x/time/rate) and RedisStorage (shared across processes,
// backed by go-redis).
type Storage interface {
	// CheckAndConsumeTokens atomically checks whether `tokens` fit within
	// the bucket identified by key — capacity `limit` tokens replenishing
	// over `interval` — and consumes them if so.
	CheckAndConsumeTokens(ctx context.Context, key string, tokens, limit int, interval time.Duration) (Decision, error)
}
