package router

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrouter/gateway/internal/apierror"
	"github.com/llmrouter/gateway/internal/config"
)

func TestModelManager_ResolveRenamesDeclaredAlias(t *testing.T) {
	m := NewModelManager("anthropic", map[string]config.ModelConfig{
		"fast": {Rename: "claude-haiku-4-5-20251001"},
	})
	assert.Equal(t, "claude-haiku-4-5-20251001", m.Resolve("fast"))
}

func TestModelManager_ResolvePassesThroughUndeclaredOrUnrenamed(t *testing.T) {
	m := NewModelManager("anthropic", map[string]config.ModelConfig{
		"exact": {},
	})
	assert.Equal(t, "exact", m.Resolve("exact"))
	assert.Equal(t, "claude-3-opus-20240229", m.Resolve("claude-3-opus-20240229"))
}

func TestResolveModel_PatternBypassesAlias(t *testing.T) {
	m := NewModelManager("openai", map[string]config.ModelConfig{
		"gpt-4o": {Rename: "should-never-be-used"},
	})
	pattern := regexp.MustCompile("(?i)^gpt-")

	assert.Equal(t, "gpt-4o", ResolveModel("gpt-4o", pattern, m))
}

func TestResolveModel_NilPatternFallsBackToManager(t *testing.T) {
	m := NewModelManager("openai", map[string]config.ModelConfig{
		"fast": {Rename: "gpt-4o-mini"},
	})
	assert.Equal(t, "gpt-4o-mini", ResolveModel("fast", nil, m))
}

func TestRoute_PrefixSplitRequiresKnownProvider(t *testing.T) {
	entries := []ProviderEntry{{Name: "anthropic"}, {Name: "openai"}}

	target, err := Route("anthropic/claude-3-opus-20240229", entries)
	require.NoError(t, err)
	assert.Equal(t, Target{ProviderName: "anthropic", Model: "claude-3-opus-20240229"}, target)

	_, err = Route("unknown-provider/some-model", entries)
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.KindProviderNotFound, apiErr.Kind)
}

func TestRoute_PatternMatchInDeclarationOrder(t *testing.T) {
	entries := []ProviderEntry{
		{Name: "first", Pattern: regexp.MustCompile("(?i)^gpt-")},
		{Name: "second", Pattern: regexp.MustCompile("(?i)^gpt-")},
	}

	target, err := Route("gpt-4o", entries)
	require.NoError(t, err)
	assert.Equal(t, "first", target.ProviderName, "the first declared matching provider must win ties")
}

func TestRoute_NoMatchIsModelNotFound(t *testing.T) {
	entries := []ProviderEntry{{Name: "openai", Pattern: regexp.MustCompile("^gpt-")}}

	_, err := Route("claude-3-opus", entries)
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.KindModelNotFound, apiErr.Kind)
}

func TestRoute_NilPatternNeverPanics(t *testing.T) {
	entries := []ProviderEntry{{Name: "no-pattern", Pattern: nil}}

	_, err := Route("anything", entries)
	require.Error(t, err)
}
