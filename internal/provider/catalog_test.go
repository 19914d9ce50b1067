package provider

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrouter/gateway/internal/config"
	"github.com/llmrouter/gateway/internal/router"
	"github.com/llmrouter/gateway/internal/unified"
)

// stubDriver implements Driver with a scriptable ListModels so catalog
// tests can simulate upstream success/failure without any HTTP layer.
type stubDriver struct {
	models []unified.Model
	err    error
}

func (s *stubDriver) Name() string                       { return "stub" }
func (s *stubDriver) Kind() config.ProviderKind           { return config.KindOpenAI }
func (s *stubDriver) Complete(context.Context, string, *unified.Request) (*unified.Response, error) {
	return nil, errors.New("not implemented")
}
func (s *stubDriver) Stream(context.Context, string, *unified.Request) (<-chan StreamEvent, error) {
	return nil, errors.New("not implemented")
}
func (s *stubDriver) ListModels(context.Context) ([]unified.Model, error) { return s.models, s.err }

func TestCatalog_DiscoversAndAppendsConfiguredAliases(t *testing.T) {
	drv := &stubDriver{models: []unified.Model{{ID: "gpt-4o"}, {ID: "gpt-3.5-turbo"}, {ID: "text-embedding-3"}}}
	manager := router.NewModelManager("openai", map[string]config.ModelConfig{
		"fast": {Rename: "gpt-4o-mini"},
	})
	cat := NewCatalog(drv, "openai", regexp.MustCompile("(?i)^gpt-"), manager)

	models, err := cat.List(context.Background())
	require.NoError(t, err)

	var ids []string
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"gpt-4o", "gpt-3.5-turbo", "openai/fast"}, ids)
}

func TestCatalog_NoPatternSkipsDiscovery(t *testing.T) {
	drv := &stubDriver{models: []unified.Model{{ID: "should-not-appear"}}}
	manager := router.NewModelManager("custom", map[string]config.ModelConfig{"alias": {}})
	cat := NewCatalog(drv, "custom", nil, manager)

	models, err := cat.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []unified.Model{{ID: "custom/alias"}}, models)
}

func TestCatalog_StaleOnError(t *testing.T) {
	drv := &stubDriver{models: []unified.Model{{ID: "gpt-4o"}}}
	manager := router.NewModelManager("openai", nil)
	cat := NewCatalog(drv, "openai", regexp.MustCompile("^gpt-"), manager)

	first, err := cat.List(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	drv.err = errors.New("upstream unavailable")
	second, err := cat.List(context.Background())
	require.NoError(t, err, "a cached result must be served rather than the fresh error")
	assert.Equal(t, first, second)
}

func TestCatalog_ErrorPropagatesWithoutAnyCache(t *testing.T) {
	drv := &stubDriver{err: errors.New("upstream unavailable")}
	manager := router.NewModelManager("openai", nil)
	cat := NewCatalog(drv, "openai", regexp.MustCompile("^gpt-"), manager)

	_, err := cat.List(context.Background())
	assert.Error(t, err)
}
