// Package router implements per-provider model alias resolution and
// cross-provider request routing (spec.md §4.3 "Model Manager & Router").
package router

import (
	"regexp"
	"strings"

	"github.com/llmrouter/gateway/internal/apierror"
	"github.com/llmrouter/gateway/internal/config"
)

// ModelManager resolves a provider's declared model aliases to their
// upstream ids.
type ModelManager struct {
	providerName string
	models       map[string]config.ModelConfig
}

// NewModelManager builds a ModelManager from one provider's configured
// models map.
func NewModelManager(providerName string, models map[string]config.ModelConfig) *ModelManager {
	return &ModelManager{providerName: providerName, models: models}
}

// GetModelConfig returns the declared config for alias, if any, so callers
// can apply per-model rate limits before resolution
// (spec.md §4.2 step 2).
func (m *ModelManager) GetModelConfig(alias string) (config.ModelConfig, bool) {
	cfg, ok := m.models[alias]
	return cfg, ok
}

// Resolve maps an alias to its upstream model id: a declared rename wins;
// a declared-but-unrenamed alias passes through unchanged; an alias this
// provider never declared also passes through unchanged (spec.md §4.3
// "resolve: if models[alias] exists and has rename=Some(u), return u; else
// if it exists, return alias; else return alias unchanged").
func (m *ModelManager) Resolve(alias string) string {
	if cfg, ok := m.models[alias]; ok && cfg.Rename != "" {
		return cfg.Rename
	}
	return alias
}

// ConfiguredAliases returns every alias this provider declares, for catalog
// aggregation (spec.md §4.3 "Explicitly configured aliases").
func (m *ModelManager) ConfiguredAliases() []string {
	aliases := make([]string, 0, len(m.models))
	for alias := range m.models {
		aliases = append(aliases, alias)
	}
	return aliases
}

// ResolveModel implements the model resolution pipeline: if the provider's
// pattern matches the requested model case-insensitively, the model is
// already in upstream form and alias resolution is bypassed; otherwise the
// ModelManager resolves it (spec.md §4.3 "Model resolution pipeline").
func ResolveModel(model string, pattern *regexp.Regexp, manager *ModelManager) string {
	if pattern != nil && pattern.MatchString(model) {
		return model
	}
	return manager.Resolve(model)
}

// Target is the result of cross-provider routing: which provider to
// dispatch to and the model id to pass it (already stripped of any
// "provider/" prefix).
type Target struct {
	ProviderName string
	Model        string
}

// ProviderEntry is the routing-relevant slice of a configured provider: its
// name and compiled model_pattern, in declaration order. Pattern is nil
// when the provider has no model_pattern configured.
type ProviderEntry struct {
	Name    string
	Pattern *regexp.Regexp
}

// Route selects a provider for an incoming (possibly prefixed) model string
// (spec.md §4.3 "Cross-provider routing").
//
//   - "provider/model" splits once; the named provider must exist.
//   - Otherwise, providers are tried in declaration order; the first whose
//     model_pattern matches wins, and the unprefixed model string is passed
//     downstream unchanged.
//   - No match is ModelNotFound.
func Route(model string, entries []ProviderEntry) (Target, error) {
	if name, rest, ok := strings.Cut(model, "/"); ok {
		for _, e := range entries {
			if e.Name == name {
				return Target{ProviderName: name, Model: rest}, nil
			}
		}
		return Target{}, apierror.ProviderNotFound(name)
	}

	for _, e := range entries {
		if e.Pattern != nil && e.Pattern.MatchString(model) {
			return Target{ProviderName: e.Name, Model: model}, nil
		}
	}

	return Target{}, apierror.ModelNotFound("no provider matches model %q", model)
}
