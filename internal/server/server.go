// Package server mounts the gateway's two caller-facing protocol surfaces
// (OpenAI-compatible and Anthropic) over the shared dispatch pipeline:
// model routing (C4), the token rate-limit gate (C5), and provider
// dispatch (C3).
package server

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/llmrouter/gateway/internal/config"
	"github.com/llmrouter/gateway/internal/mcpgateway"
	"github.com/llmrouter/gateway/internal/metrics"
	"github.com/llmrouter/gateway/internal/provider"
	"github.com/llmrouter/gateway/internal/ratelimit"
	"github.com/llmrouter/gateway/internal/router"
	"github.com/llmrouter/gateway/internal/unified"
)

// Deps bundles everything the handlers need. main.go builds exactly one of
// these at startup from the loaded config.
type Deps struct {
	Config *config.Config

	// Drivers, Managers, and Catalogs are keyed by provider name.
	Drivers  map[string]provider.Driver
	Managers map[string]*router.ModelManager
	Catalogs map[string]*provider.Catalog

	// Entries is the declaration-order routing table Route() consults.
	Entries []router.ProviderEntry

	Gate    *ratelimit.Gate // nil disables the rate-limit gate entirely
	Metrics *metrics.Metrics
	MetricsReg *prometheus.Registry

	MCP *mcpgateway.Registry // nil if the optional MCP surface is disabled
}

// Server is the gateway's http.Handler.
type Server struct {
	router chi.Router
	deps   Deps
}

// New builds a Server, wires its routes, and returns it ready to serve.
func New(deps Deps) *Server {
	s := &Server{deps: deps}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	openaiPath := s.deps.Config.Server.OpenAIPath
	r.Post(openaiPath+"/v1/chat/completions", s.handleOpenAIChatCompletions)
	r.Get(openaiPath+"/v1/models", s.handleOpenAIModels)

	anthropicPath := s.deps.Config.Server.AnthropicPath
	r.Post(anthropicPath+"/v1/messages", s.handleAnthropicMessages)
	r.Get(anthropicPath+"/v1/models", s.handleAnthropicModels)

	if s.deps.Config.Metrics.Enabled && s.deps.MetricsReg != nil {
		r.Handle(s.deps.Config.Metrics.Path, promhttp.HandlerFor(s.deps.MetricsReg, promhttp.HandlerOpts{}))
	}

	if s.deps.Config.MCP.Enabled && s.deps.MCP != nil {
		r.Mount(s.deps.Config.MCP.Path, mcpgateway.Handler(s.deps.MCP))
	}

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// aggregateCatalog concatenates every configured provider's catalog in
// declaration order (spec.md §4.3 "System aggregation"). A per-provider
// catalog failure with no cached result is logged and skipped rather than
// failing the whole aggregation.
func (s *Server) aggregateCatalog(ctx context.Context) []unified.Model {
	var all []unified.Model
	for _, entry := range s.deps.Entries {
		catalog, ok := s.deps.Catalogs[entry.Name]
		if !ok {
			continue
		}
		models, err := catalog.List(ctx)
		if err != nil {
			log.Printf("provider %q: catalog unavailable: %v", entry.Name, err)
			continue
		}
		all = append(all, models...)
	}
	return all
}
