package config

import (
	"net/http"

	"github.com/pario-ai/llmrouter/pkg/health"
	"github.com/pario-ai/llmrouter/pkg/models"
	"github.com/pario-ai/llmrouter/pkg/provider"
	"github.com/pario-ai/llmrouter/pkg/router"
)

// RouterConfig returns the routing table for router.New.
func (c *Config) RouterConfig() router.Config {
	return router.Config{
		Catalog:                c.Models,
		Rules:                  c.Rules,
		FallbackChain:          c.Routing.FallbackChain,
		ZeroCostModel:          c.Routing.ZeroCostModel,
		DefaultModel:           c.Routing.DefaultModel,
		PriciestModel:          c.Routing.PriciestModel,
		CLIModel:               c.Routing.CLIModel,
		DefaultEstimatedTokens: c.Routing.DefaultEstimatedTokens,
	}
}

// Probes builds one liveness probe per configured provider. Hosted APIs are
// credential-gated unless a health URL is set; the CLI provider is healthy
// when its command resolves.
func (c *Config) Probes() map[models.Provider]health.Prober {
	client := &http.Client{Timeout: c.Health.ProbeTimeout}
	probes := make(map[models.Provider]health.Prober, len(c.Providers))
	for kind, p := range c.Providers {
		switch {
		case kind == models.ProviderCLI:
			probes[kind] = health.BinaryProbe{Command: p.Command}
		case p.HealthURL != "":
			probes[kind] = health.HTTPProbe{URL: p.HealthURL, Client: client}
		default:
			probes[kind] = health.CredentialProbe{Key: p.APIKey}
		}
	}
	return probes
}

// Clients builds the provider registry.
func (c *Config) Clients() *provider.Registry {
	var clients []provider.Client
	for kind, p := range c.Providers {
		switch kind {
		case models.ProviderAnthropic:
			clients = append(clients, &provider.Anthropic{BaseURL: p.URL, APIKey: p.APIKey})
		case models.ProviderOpenAI:
			clients = append(clients, &provider.OpenAI{BaseURL: p.URL, APIKey: p.APIKey})
		case models.ProviderOpenRouter:
			clients = append(clients, &provider.OpenRouter{BaseURL: p.URL, APIKey: p.APIKey, Title: "llmrouter"})
		case models.ProviderOllama:
			clients = append(clients, &provider.Ollama{BaseURL: p.URL})
		case models.ProviderCLI:
			clients = append(clients, &provider.CLI{Command: p.Command, ExtraArgs: p.Args})
		}
	}
	return provider.NewRegistry(clients...)
}
