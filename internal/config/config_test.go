package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 9090
  read_timeout: 10s
  write_timeout: 60s

providers:
  - name: google
    kind: google
    api_key: ${TEST_API_KEY}
    base_url: https://example.com/v1
    model_pattern: "^gemini-"
    models:
      alias-a:
        rename: model-a
      alias-b: {}
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	t.Setenv("TEST_API_KEY", "my-secret-key")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)

	google, _, ok := cfg.ByName("google")
	require.True(t, ok, "google provider should exist")
	assert.Equal(t, "my-secret-key", google.APIKey)
	assert.Equal(t, "https://example.com/v1", google.BaseURL)
	assert.Equal(t, "model-a", google.Models["alias-a"].Rename)
	require.NotNil(t, google.CompiledPattern())
	assert.True(t, google.CompiledPattern().MatchString("gemini-2.0-flash"))
}

func TestLoadEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 8080
  read_timeout: 30s
  write_timeout: 120s
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	t.Setenv("LLMROUTER_SERVER_PORT", "3000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoad_DuplicateProviderNameRejected(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
providers:
  - name: dup
    kind: openai
  - name: dup
    kind: anthropic
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.ErrorContains(t, err, "duplicate provider name")
}

func TestLoad_InvalidModelPatternRejected(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
providers:
  - name: broken
    kind: openai
    model_pattern: "["
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.ErrorContains(t, err, "invalid model_pattern")
}
