package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/llmrouter/gateway/internal/apierror"
	"github.com/llmrouter/gateway/internal/config"
	"github.com/llmrouter/gateway/internal/unified"
)

// ClientIdentity identifies the caller a rate-limit bucket is keyed by.
// Absent ClientID, the gate is a no-op (spec.md §4.5 "Operates only when
// the request carries a ClientIdentity").
type ClientIdentity struct {
	ClientID string
	Group    string // optional
}

// Gate rejects requests that would exceed a configured token budget before
// any upstream call is made (spec.md §4.5).
type Gate struct {
	storage Storage
	counter *Counter
}

// NewGate builds a Gate. storage may be nil, in which case Check always
// allows — "no token rate-limiter capability is configured for the system"
// per spec.md §4.5.
func NewGate(storage Storage, counter *Counter) *Gate {
	return &Gate{storage: storage, counter: counter}
}

// Check runs the gate algorithm for one request: it resolves the
// provider-default and (if configured) model-specific token buckets,
// counts input tokens once, and consumes both buckets that apply — denial
// from either is denial overall (spec.md §4.5 "additive").
func (g *Gate) Check(ctx context.Context, identity ClientIdentity, providerCfg config.ProviderConfig, modelCfg config.ModelConfig, hasModelCfg bool, req *unified.Request) error {
	if g.storage == nil || identity.ClientID == "" {
		return nil
	}

	tokens := g.counter.Count(req)

	if limit, interval, ok := resolveLimits(providerCfg.RateLimits, identity.Group); ok {
		key := fmt.Sprintf("ratelimit:%s:%s:%s:provider", identity.ClientID, identity.Group, providerCfg.Name)
		if err := g.consume(ctx, key, tokens, limit, interval); err != nil {
			return err
		}
	}

	if hasModelCfg {
		if limit, interval, ok := resolveLimits(modelCfg.RateLimits, identity.Group); ok {
			key := fmt.Sprintf("ratelimit:%s:%s:%s:model:%s", identity.ClientID, identity.Group, providerCfg.Name, req.Model)
			if err := g.consume(ctx, key, tokens, limit, interval); err != nil {
				return err
			}
		}
	}

	return nil
}

func (g *Gate) consume(ctx context.Context, key string, tokens, limit int, interval time.Duration) error {
	decision, err := g.storage.CheckAndConsumeTokens(ctx, key, tokens, limit, interval)
	if err != nil {
		return apierror.Internal(err)
	}
	if decision.Allowed {
		return nil
	}
	if decision.RetryAfter == Impossible {
		return apierror.RateLimitExceeded(fmt.Sprintf("request requires %d tokens, which exceeds the configured limit of %d and can never succeed", tokens, limit))
	}
	return apierror.RateLimitExceeded(fmt.Sprintf("token budget exhausted, retry after %s", decision.RetryAfter))
}

// resolveLimits picks the group override when present and declared,
// falling back to the base per-user limit (spec.md §4.5 step 1).
func resolveLimits(limits *config.TokenLimits, group string) (int, time.Duration, bool) {
	if limits == nil {
		return 0, 0, false
	}
	pu := limits.PerUser
	if group != "" {
		if g, ok := pu.Groups[group]; ok {
			return g.InputTokenLimit, g.Interval, true
		}
	}
	if pu.InputTokenLimit == 0 {
		return 0, 0, false
	}
	return pu.InputTokenLimit, pu.Interval, true
}
