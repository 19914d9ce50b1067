// Package config handles loading and validating gateway configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level configuration for the llmrouter gateway.
type Config struct {
	Server ServerConfig `koanf:"server"`

	// Providers is a list, not a map, because provider declaration order
	// is load-bearing: it's the tie-break for pattern-based routing and
	// the concatenation order for catalog aggregation (spec.md §4.3/§4.4).
	// A YAML map would lose that order on unmarshal.
	Providers []ProviderConfig `koanf:"providers"`

	RateLimit RateLimitStorageConfig `koanf:"rate_limit_storage"`
	Metrics   MetricsConfig          `koanf:"metrics"`
	MCP       MCPConfig              `koanf:"mcp"`
}

// ServerConfig holds HTTP server settings, including the two caller-facing
// protocol surfaces (spec.md §6).
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	OpenAIPath    string `koanf:"openai_path"`
	AnthropicPath string `koanf:"anthropic_path"`
}

// MetricsConfig controls the Prometheus /metrics mount.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// MCPConfig controls the optional in-process MCP search/execute surface
// (see SPEC_FULL.md §4 "Supplemental: MCP aggregator surface"). It is not
// part of the request-plane core and carries no rate-limit or routing
// invariants.
type MCPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// RateLimitStorageConfig selects and configures the C5 gate's storage
// capability (spec.md §4.5). The core only depends on the ratelimit.Storage
// interface; this selects which concrete implementation backs it.
type RateLimitStorageConfig struct {
	Backend string `koanf:"backend"` // "memory" | "redis"
	Redis   struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
	} `koanf:"redis"`
}

// ProviderKind identifies which driver handles a provider instance.
type ProviderKind string

const (
	KindOpenAI    ProviderKind = "openai"
	KindAnthropic ProviderKind = "anthropic"
	KindGoogle    ProviderKind = "google"
	KindBedrock   ProviderKind = "bedrock"
)

// ProviderConfig holds the settings for a single provider instance
// (spec.md §3 "Provider config (per instance)").
type ProviderConfig struct {
	Name         string                 `koanf:"name"`
	Kind         ProviderKind           `koanf:"kind"`
	BaseURL      string                 `koanf:"base_url"`
	APIKey       string                 `koanf:"api_key"`
	ForwardToken bool                   `koanf:"forward_token"`
	ModelPattern string                 `koanf:"model_pattern"`
	Models       map[string]ModelConfig `koanf:"models"`
	Headers      []HeaderRule           `koanf:"headers"`
	RateLimits   *TokenLimits           `koanf:"rate_limits"`

	// Bedrock-only fields.
	Region          string `koanf:"region"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	SessionToken    string `koanf:"session_token"`
	Profile         string `koanf:"profile"`

	// compiledPattern is populated by Load() after validating that
	// ModelPattern compiles; a compile failure is a startup fatal
	// (spec.md §3 invariant).
	compiledPattern *regexp.Regexp
}

// CompiledPattern returns the provider's model_pattern compiled for
// case-insensitive matching, or nil if none was configured.
func (p ProviderConfig) CompiledPattern() *regexp.Regexp { return p.compiledPattern }

// ModelConfig is one entry in a provider's `models` map (spec.md §3).
type ModelConfig struct {
	Rename     string       `koanf:"rename"`
	RateLimits *TokenLimits `koanf:"rate_limits"`
}

// TokenLimits is the per_user token-bucket configuration a provider or
// model can declare (spec.md §3, §4.5).
type TokenLimits struct {
	PerUser PerUserLimits `koanf:"per_user"`
}

// PerUserLimits bounds input tokens per client over an interval, with
// optional per-group overrides.
type PerUserLimits struct {
	InputTokenLimit int                    `koanf:"input_token_limit"`
	Interval        time.Duration          `koanf:"interval"`
	Groups          map[string]GroupLimits `koanf:"groups"`
}

// GroupLimits overrides PerUserLimits for a named client group.
type GroupLimits struct {
	InputTokenLimit int           `koanf:"input_token_limit"`
	Interval        time.Duration `koanf:"interval"`
}

// HeaderRuleOp is the operation a HeaderRule performs.
type HeaderRuleOp string

const (
	HeaderInsert  HeaderRuleOp = "insert"
	HeaderRemove  HeaderRuleOp = "remove"
	HeaderForward HeaderRuleOp = "forward"
)

// HeaderRule is one entry in a provider's ordered header transformation
// list (spec.md §6). Rules run in declared order, before credential
// attachment. ModelConfig carries no header rules.
type HeaderRule struct {
	Op      HeaderRuleOp `koanf:"op"`
	Name    string       `koanf:"name"`
	Value   string       `koanf:"value"`   // Insert
	Rename  string       `koanf:"rename"`  // Forward: destination header name, defaults to Name
	Default string       `koanf:"default"` // Forward: value to use if the caller didn't send Name
}

// ClientIdentity mirrors the value an external client-identity extraction
// layer deposits into request state (spec.md §1 "Out of scope"). Nothing
// in the gateway reads this type; the rate-limit gate and server use
// ratelimit.ClientIdentity.
type ClientIdentity struct {
	ClientID string
	Group    string
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated Config.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	if err := k.Load(env.Provider("LLMROUTER_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "LLMROUTER_")),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR_NAME} placeholders in provider API keys and Bedrock
	// secrets.
	for i, p := range cfg.Providers {
		p.APIKey = expandEnv(p.APIKey)
		p.AccessKeyID = expandEnv(p.AccessKeyID)
		p.SecretAccessKey = expandEnv(p.SecretAccessKey)
		p.SessionToken = expandEnv(p.SessionToken)
		cfg.Providers[i] = p
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func expandEnv(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return os.Getenv(v[2 : len(v)-1])
	}
	return v
}

// validate checks the invariants from spec.md §3: model_pattern must
// compile (startup fatal on failure), provider names must be unique, and
// model aliases must be unique within a provider (guaranteed by the map
// type itself).
func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Providers))
	for i, p := range cfg.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true

		if p.ModelPattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p.ModelPattern)
		if err != nil {
			return fmt.Errorf("provider %q: invalid model_pattern %q: %w", p.Name, p.ModelPattern, err)
		}
		p.compiledPattern = re
		cfg.Providers[i] = p
	}
	return nil
}

// ByName returns the provider with the given name, preserving its index
// in Providers (its declaration-order position) for callers that need it.
func (c *Config) ByName(name string) (ProviderConfig, int, bool) {
	for i, p := range c.Providers {
		if p.Name == name {
			return p, i, true
		}
	}
	return ProviderConfig{}, -1, false
}
