package models

// Provider identifies the backend kind that serves a model.
type Provider string

const (
	// ProviderAnthropic is the hosted premium API.
	ProviderAnthropic Provider = "anthropic"
	// ProviderOpenAI is the hosted standard API.
	ProviderOpenAI Provider = "openai"
	// ProviderOllama is the local inference daemon.
	ProviderOllama Provider = "ollama"
	// ProviderOpenRouter is the aggregator API.
	ProviderOpenRouter Provider = "openrouter"
	// ProviderCLI is a command-line coding assistant running locally.
	ProviderCLI Provider = "cli"
)

// Providers lists every supported provider kind.
var Providers = []Provider{
	ProviderAnthropic,
	ProviderOpenAI,
	ProviderOllama,
	ProviderOpenRouter,
	ProviderCLI,
}

// Valid reports whether p is one of the known provider kinds.
func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// ModelDescriptor defines the owning provider and per-million token prices for a model.
type ModelDescriptor struct {
	Provider Provider `json:"provider" yaml:"provider" toml:"provider"`
	// InputPerMillion and OutputPerMillion are USD per 1M tokens.
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million" toml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million" toml:"output_per_million"`
	// CachedInputPerMillion is the discounted price for cache reads. Zero means
	// no discount: cached tokens are billed at InputPerMillion.
	CachedInputPerMillion float64 `json:"cached_input_per_million,omitempty" yaml:"cached_input_per_million" toml:"cached_input_per_million"`
	MaxContext            int     `json:"max_context" yaml:"max_context" toml:"max_context"`
}

// Metered reports whether the model has any non-zero price.
func (d ModelDescriptor) Metered() bool {
	return d.InputPerMillion > 0 || d.OutputPerMillion > 0 || d.CachedInputPerMillion > 0
}

// Catalog maps a model identifier to its descriptor.
type Catalog map[string]ModelDescriptor

// ProviderOf returns the owning provider of model, or false if the model is unknown.
func (c Catalog) ProviderOf(model string) (Provider, bool) {
	d, ok := c[model]
	if !ok {
		return "", false
	}
	return d.Provider, true
}
