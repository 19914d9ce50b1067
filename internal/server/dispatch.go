package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/llmrouter/gateway/internal/apierror"
	"github.com/llmrouter/gateway/internal/config"
	"github.com/llmrouter/gateway/internal/provider"
	"github.com/llmrouter/gateway/internal/ratelimit"
	"github.com/llmrouter/gateway/internal/router"
	"github.com/llmrouter/gateway/internal/unified"
)

// restoreModel rewrites every chunk's Model field to original before
// passing it on, implementing the streaming analogue of dispatch algorithm
// step 8 ("restore response.model = original_model") for every chunk
// rather than just a single terminal response.
func restoreModel(in <-chan provider.StreamEvent, original string) <-chan provider.StreamEvent {
	out := make(chan provider.StreamEvent)
	go func() {
		defer close(out)
		for ev := range in {
			if ev.Chunk != nil {
				ev.Chunk.Model = original
			}
			out <- ev
		}
	}()
	return out
}

// dispatch is the result of resolving a caller-visible model string to a
// concrete driver call target (spec.md §4.2 "Common dispatch algorithm",
// steps 1-3).
type dispatch struct {
	driver      provider.Driver
	catalog     *provider.Catalog
	providerCfg config.ProviderConfig
	modelCfg    config.ModelConfig
	hasModelCfg bool

	originalModel string // the full caller-visible string, e.g. "anthropic/claude-3-opus"
	aliasModel    string // unprefixed, pre-resolution — the rate-limit gate's bucket key
	nativeModel   string // resolved upstream id the driver is called with
}

// resolveDispatch implements steps 1-3 of the common dispatch algorithm:
// it clones the caller-visible model, looks up the model's per-provider
// config before resolving aliases (so per-model rate limits see the
// alias, not the resolved id), then resolves the model to its upstream
// form.
func (s *Server) resolveDispatch(model string) (dispatch, error) {
	target, err := router.Route(model, s.deps.Entries)
	if err != nil {
		return dispatch{}, err
	}

	drv, ok := s.deps.Drivers[target.ProviderName]
	if !ok {
		return dispatch{}, apierror.ProviderNotFound(target.ProviderName)
	}
	providerCfg, _, ok := s.deps.Config.ByName(target.ProviderName)
	if !ok {
		return dispatch{}, apierror.ProviderNotFound(target.ProviderName)
	}
	manager := s.deps.Managers[target.ProviderName]

	modelCfg, hasModelCfg := manager.GetModelConfig(target.Model)
	nativeModel := router.ResolveModel(target.Model, providerCfg.CompiledPattern(), manager)

	return dispatch{
		driver:        drv,
		catalog:       s.deps.Catalogs[target.ProviderName],
		providerCfg:   providerCfg,
		modelCfg:      modelCfg,
		hasModelCfg:   hasModelCfg,
		originalModel: model,
		aliasModel:    target.Model,
		nativeModel:   nativeModel,
	}, nil
}

// withUpstreamContext attaches the caller's bearer token and original
// headers to ctx so a driver's credential and header-rule steps (dispatch
// algorithm steps 5) can reach them (spec.md §4.2).
func withUpstreamContext(ctx context.Context, r *http.Request) context.Context {
	ctx = provider.WithInboundHeaders(ctx, r.Header.Clone())
	if token := bearerToken(r); token != "" {
		ctx = provider.WithBearerToken(ctx, token)
	}
	return ctx
}

// bearerToken extracts the caller's own credential from either protocol's
// native auth header, for providers configured with forward_token: true.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("x-api-key")
}

// clientIdentity is a minimal stand-in for the external client-identity
// extraction layer spec.md §1 places out of scope: it reads a client id
// and optional group straight off two headers. A real deployment would
// replace this with its own authentication middleware.
func clientIdentity(r *http.Request) ratelimit.ClientIdentity {
	return ratelimit.ClientIdentity{
		ClientID: r.Header.Get("X-Client-Id"),
		Group:    r.Header.Get("X-Client-Group"),
	}
}

// checkRateLimit runs the token gate for a resolved dispatch target. The
// gate keys its per-model bucket off req.Model, so this runs against the
// unprefixed alias form rather than the resolved upstream id.
func (s *Server) checkRateLimit(ctx context.Context, r *http.Request, d dispatch, req *unified.Request) error {
	if s.deps.Gate == nil {
		return nil
	}
	aliased := *req
	aliased.Model = d.aliasModel
	return s.deps.Gate.Check(ctx, clientIdentity(r), d.providerCfg, d.modelCfg, d.hasModelCfg, &aliased)
}
