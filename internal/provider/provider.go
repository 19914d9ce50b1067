// Package provider defines the driver interface every upstream LLM backend
// implements, and the shared dispatch machinery (header rules, credential
// application, catalog caching) that all four drivers reuse (spec.md §4.2
// "Provider Drivers").
//
// Every backend (OpenAI-compatible, Anthropic, Google, Bedrock) implements
// Driver. The rest of the gateway — router, rate limiter, handlers — works
// only with the unified request/response/chunk types, so it never needs to
// know which protocol a given upstream actually speaks.
package provider

import (
	"context"
	"fmt"

	"github.com/llmrouter/gateway/internal/config"
	"github.com/llmrouter/gateway/internal/unified"
)

// Driver is one upstream backend. Go interfaces are implicit: any type with
// these five methods satisfies Driver without saying so.
type Driver interface {
	// Name is the configured provider name (spec.md §4.3 "provider name"),
	// e.g. "openai-prod" or "bedrock-us-east".
	Name() string

	// Kind identifies which native protocol this driver speaks.
	Kind() config.ProviderKind

	// Complete issues a non-streaming chat completion against the native
	// model id (already resolved by the router/model manager — never a
	// caller-supplied alias or provider-prefixed id).
	Complete(ctx context.Context, nativeModel string, req *unified.Request) (*unified.Response, error)

	// Stream issues a streaming chat completion. The returned channel is
	// closed after the terminal chunk or an error is sent. A send-side
	// select on ctx.Done() guarantees the producing goroutine never leaks
	// past caller cancellation (spec.md §5 "Concurrency & Resource Model").
	Stream(ctx context.Context, nativeModel string, req *unified.Request) (<-chan StreamEvent, error)

	// ListModels returns the driver's upstream catalog with unprefixed
	// model ids. Catalog keeps these ids unprefixed and only rewrites
	// configured aliases as "{provider}/{alias}" (spec.md §4.4 "Model
	// catalog aggregation").
	ListModels(ctx context.Context) ([]unified.Model, error)
}

// StreamEvent is one item off a driver's streaming channel. Exactly one of
// Chunk or Err is set; Err terminates the stream.
type StreamEvent struct {
	Chunk *unified.Chunk
	Err   error
}

// New constructs the Driver for one configured provider entry.
func New(cfg config.ProviderConfig) (Driver, error) {
	switch cfg.Kind {
	case config.KindOpenAI:
		return newOpenAIDriver(cfg), nil
	case config.KindAnthropic:
		return newAnthropicDriver(cfg), nil
	case config.KindGoogle:
		return newGoogleDriver(cfg), nil
	case config.KindBedrock:
		return newBedrockDriver(cfg)
	default:
		return nil, fmt.Errorf("provider %q: unsupported kind %q", cfg.Name, cfg.Kind)
	}
}
