package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/pario-ai/llmrouter/pkg/models"
	"github.com/pario-ai/llmrouter/pkg/pricing"
)

// Config holds all llmrouter configuration.
type Config struct {
	Listen      string                                   `yaml:"listen" toml:"listen"`
	CORSOrigins []string                                 `yaml:"cors_origins" toml:"cors_origins"`
	Providers   map[models.Provider]ProviderConfig       `yaml:"providers" toml:"providers"`
	Models      models.Catalog                           `yaml:"models" toml:"models"`
	Rules       map[models.Complexity]models.RoutingRule `yaml:"routing_rules" toml:"routing_rules"`
	Routing     RoutingConfig                            `yaml:"routing" toml:"routing"`
	Budget      models.BudgetConfig                      `yaml:"budget" toml:"budget"`
	Usage       UsageConfig                              `yaml:"usage" toml:"usage"`
	Health      HealthConfig                             `yaml:"health" toml:"health"`
	Dispatch    DispatchConfig                           `yaml:"dispatch" toml:"dispatch"`
	ZeroCost    ZeroCostConfig                           `yaml:"zero_cost" toml:"zero_cost"`
	Log         LogConfig                                `yaml:"log" toml:"log"`
}

// ProviderConfig defines how to reach one provider kind. Command applies to
// the CLI provider only; HealthURL switches a provider to an HTTP probe.
type ProviderConfig struct {
	URL       string   `yaml:"url" toml:"url"`
	APIKey    string   `yaml:"api_key" toml:"api_key"`
	Command   string   `yaml:"command" toml:"command"`
	Args      []string `yaml:"args" toml:"args"`
	HealthURL string   `yaml:"health_url" toml:"health_url"`
}

// RoutingConfig names the special models and the global fallback chain.
type RoutingConfig struct {
	FallbackChain          []string `yaml:"fallback_chain" toml:"fallback_chain"`
	ZeroCostModel          string   `yaml:"zero_cost_model" toml:"zero_cost_model"`
	DefaultModel           string   `yaml:"default_model" toml:"default_model"`
	PriciestModel          string   `yaml:"priciest_model" toml:"priciest_model"`
	CLIModel               string   `yaml:"cli_model" toml:"cli_model"`
	DefaultEstimatedTokens int      `yaml:"default_estimated_tokens" toml:"default_estimated_tokens"`
}

// Usage log drivers.
const (
	DriverJSONL    = "jsonl"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// UsageConfig selects the usage log store. Path and GlobalPath are file
// paths for jsonl/sqlite and DSNs for postgres. An empty GlobalPath disables
// the organization-wide log.
type UsageConfig struct {
	Driver     string `yaml:"driver" toml:"driver"`
	Path       string `yaml:"path" toml:"path"`
	GlobalPath string `yaml:"global_path" toml:"global_path"`
	ProjectID  string `yaml:"project_id" toml:"project_id"`
}

// HealthConfig controls provider probing.
type HealthConfig struct {
	TTL          time.Duration `yaml:"ttl" toml:"ttl"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" toml:"probe_timeout"`
}

// DispatchConfig controls provider calls.
type DispatchConfig struct {
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// ZeroCostConfig bounds use of the CLI assistant. RedisAddr shares the
// window across processes; empty keeps it in memory.
type ZeroCostConfig struct {
	Limit          int           `yaml:"limit" toml:"limit"`
	Window         time.Duration `yaml:"window" toml:"window"`
	NearCapPercent float64       `yaml:"near_cap_percent" toml:"near_cap_percent"`
	RedisAddr      string        `yaml:"redis_addr" toml:"redis_addr"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a Config with the built-in catalog and routing table.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Providers: map[models.Provider]ProviderConfig{
			models.ProviderAnthropic:  {URL: "https://api.anthropic.com", APIKey: "${ANTHROPIC_API_KEY}"},
			models.ProviderOpenAI:     {URL: "https://api.openai.com", APIKey: "${OPENAI_API_KEY}"},
			models.ProviderOpenRouter: {URL: "https://openrouter.ai/api", APIKey: "${OPENROUTER_API_KEY}"},
			models.ProviderOllama:     {URL: "http://localhost:11434", HealthURL: "http://localhost:11434/api/tags"},
			models.ProviderCLI:        {Command: "claude"},
		},
		Models: models.Catalog{
			"claude-opus-4-1":         {Provider: models.ProviderAnthropic, InputPerMillion: 15, OutputPerMillion: 75, CachedInputPerMillion: 1.5, MaxContext: 200_000},
			"claude-sonnet-4-5":       {Provider: models.ProviderAnthropic, InputPerMillion: 3, OutputPerMillion: 15, CachedInputPerMillion: 0.3, MaxContext: 200_000},
			"claude-3-5-haiku-latest": {Provider: models.ProviderAnthropic, InputPerMillion: 0.8, OutputPerMillion: 4, CachedInputPerMillion: 0.08, MaxContext: 200_000},
			"gpt-4o":                  {Provider: models.ProviderOpenAI, InputPerMillion: 2.5, OutputPerMillion: 10, CachedInputPerMillion: 1.25, MaxContext: 128_000},
			"gpt-4o-mini":             {Provider: models.ProviderOpenAI, InputPerMillion: 0.15, OutputPerMillion: 0.6, CachedInputPerMillion: 0.075, MaxContext: 128_000},
			"deepseek/deepseek-chat":  {Provider: models.ProviderOpenRouter, InputPerMillion: 0.27, OutputPerMillion: 1.1, MaxContext: 64_000},
			"llama3.2":                {Provider: models.ProviderOllama, MaxContext: 128_000},
			"claude-code":             {Provider: models.ProviderCLI, MaxContext: 200_000},
		},
		Rules: map[models.Complexity]models.RoutingRule{
			models.ComplexityTrivial:  {Preferred: "llama3.2", Fallbacks: []string{"gpt-4o-mini"}},
			models.ComplexitySimple:   {Preferred: "gpt-4o-mini", Fallbacks: []string{"claude-3-5-haiku-latest", "llama3.2"}},
			models.ComplexityModerate: {Preferred: "deepseek/deepseek-chat", Fallbacks: []string{"gpt-4o-mini", "claude-3-5-haiku-latest"}},
			models.ComplexityComplex:  {Preferred: "claude-sonnet-4-5", Fallbacks: []string{"claude-opus-4-1", "gpt-4o"}, MaxCostPerRequest: 0.5},
			models.ComplexityExpert:   {Preferred: "claude-opus-4-1", Fallbacks: []string{"claude-sonnet-4-5", "gpt-4o"}, MaxCostPerRequest: 2},
		},
		Routing: RoutingConfig{
			FallbackChain: []string{
				"claude-opus-4-1",
				"claude-sonnet-4-5",
				"gpt-4o",
				"claude-3-5-haiku-latest",
				"deepseek/deepseek-chat",
				"gpt-4o-mini",
				"llama3.2",
			},
			ZeroCostModel:          "llama3.2",
			DefaultModel:           "claude-sonnet-4-5",
			CLIModel:               "claude-code",
			DefaultEstimatedTokens: 1000,
		},
		Budget: models.BudgetConfig{
			WarningThresholdPct: 80,
			HardLimitAction:     models.HardLimitFallbackZeroCost,
		},
		Usage: UsageConfig{
			Driver: DriverJSONL,
			Path:   filepath.Join(".llmrouter", "usage.jsonl"),
		},
		Health: HealthConfig{
			TTL:          30 * time.Second,
			ProbeTimeout: 2 * time.Second,
		},
		Dispatch: DispatchConfig{
			Timeout: 120 * time.Second,
		},
		ZeroCost: ZeroCostConfig{
			Limit:          50,
			Window:         5 * time.Hour,
			NearCapPercent: 80,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML or TOML config file, chosen by extension, and expands
// environment variables. Values in the file override the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.expandProviders()
	cfg.fillDerived()
	return cfg, nil
}

// LoadOrDefault is Load, except that an empty path or a missing file yields
// the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		cfg, err := Load(path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}
	cfg := Default()
	cfg.expandProviders()
	cfg.fillDerived()
	return cfg, nil
}

// expandProviders resolves ${VAR} references left in default provider
// settings.
func (c *Config) expandProviders() {
	for k, p := range c.Providers {
		p.URL = os.ExpandEnv(p.URL)
		p.APIKey = os.ExpandEnv(p.APIKey)
		p.Command = os.ExpandEnv(p.Command)
		p.HealthURL = os.ExpandEnv(p.HealthURL)
		c.Providers[k] = p
	}
}

// fillDerived completes partially specified provider entries from the
// defaults and picks the priciest model when none is named.
func (c *Config) fillDerived() {
	defaults := Default().Providers
	for k, p := range c.Providers {
		d := defaults[k]
		if p.URL == "" {
			p.URL = d.URL
		}
		if p.Command == "" {
			p.Command = d.Command
		}
		if p.HealthURL == "" {
			p.HealthURL = d.HealthURL
		}
		c.Providers[k] = p
	}
	if c.Routing.PriciestModel == "" {
		c.Routing.PriciestModel = pricing.Priciest(c.Models)
	}
}

// Validate checks that every model referenced by rules, the chain and the
// special-purpose settings exists in the catalog.
func (c *Config) Validate() error {
	var err error
	known := func(field, model string) {
		if _, ok := c.Models[model]; !ok {
			err = multierr.Append(err, fmt.Errorf("%s: unknown model %q", field, model))
		}
	}

	for id, d := range c.Models {
		if !d.Provider.Valid() {
			err = multierr.Append(err, fmt.Errorf("models.%s: unknown provider %q", id, d.Provider))
		}
		if d.InputPerMillion < 0 || d.OutputPerMillion < 0 || d.CachedInputPerMillion < 0 {
			err = multierr.Append(err, fmt.Errorf("models.%s: negative price", id))
		}
	}

	for tier, rule := range c.Rules {
		if !tier.Valid() {
			err = multierr.Append(err, fmt.Errorf("routing_rules: unknown complexity %q", tier))
			continue
		}
		known(fmt.Sprintf("routing_rules.%s.preferred", tier), rule.Preferred)
		for _, fb := range rule.Fallbacks {
			known(fmt.Sprintf("routing_rules.%s.fallbacks", tier), fb)
		}
	}

	seen := make(map[string]bool, len(c.Routing.FallbackChain))
	for _, m := range c.Routing.FallbackChain {
		known("routing.fallback_chain", m)
		if seen[m] {
			err = multierr.Append(err, fmt.Errorf("routing.fallback_chain: duplicate model %q", m))
		}
		seen[m] = true
	}

	known("routing.zero_cost_model", c.Routing.ZeroCostModel)
	if d, ok := c.Models[c.Routing.ZeroCostModel]; ok && d.Metered() {
		err = multierr.Append(err, fmt.Errorf("routing.zero_cost_model: %q is metered", c.Routing.ZeroCostModel))
	}
	known("routing.default_model", c.Routing.DefaultModel)
	if c.Routing.PriciestModel != "" {
		known("routing.priciest_model", c.Routing.PriciestModel)
	}
	if c.Routing.CLIModel != "" {
		known("routing.cli_model", c.Routing.CLIModel)
		if p, ok := c.Models.ProviderOf(c.Routing.CLIModel); ok && p != models.ProviderCLI {
			err = multierr.Append(err, fmt.Errorf("routing.cli_model: %q is not served by the cli provider", c.Routing.CLIModel))
		}
	}

	if a := c.Budget.HardLimitAction; a != "" && a != models.HardLimitFallbackZeroCost {
		err = multierr.Append(err, fmt.Errorf("budget.hard_limit_action: unsupported action %q", a))
	}

	if !slices.Contains([]string{DriverJSONL, DriverSQLite, DriverPostgres}, c.Usage.Driver) {
		err = multierr.Append(err, fmt.Errorf("usage.driver: unknown driver %q", c.Usage.Driver))
	}
	if c.Usage.Path == "" {
		err = multierr.Append(err, errors.New("usage.path: required"))
	}

	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
