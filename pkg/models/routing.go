package models

import "fmt"

// Complexity is a task difficulty tier. Tiers are ordered trivial < simple <
// moderate < complex < expert.
type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityExpert   Complexity = "expert"
)

// Complexities lists all tiers from cheapest to most demanding.
var Complexities = []Complexity{
	ComplexityTrivial,
	ComplexitySimple,
	ComplexityModerate,
	ComplexityComplex,
	ComplexityExpert,
}

// Rank returns the position of c in the tier order, or -1 if c is unknown.
func (c Complexity) Rank() int {
	for i, known := range Complexities {
		if c == known {
			return i
		}
	}
	return -1
}

// Valid reports whether c is a known tier.
func (c Complexity) Valid() bool {
	return c.Rank() >= 0
}

// AtLeast reports whether c ranks at or above other.
func (c Complexity) AtLeast(other Complexity) bool {
	return c.Valid() && c.Rank() >= other.Rank()
}

// Lower returns the next cheaper tier, or false if c is the lowest or unknown.
func (c Complexity) Lower() (Complexity, bool) {
	r := c.Rank()
	if r <= 0 {
		return "", false
	}
	return Complexities[r-1], true
}

// ParseComplexity converts a string into a Complexity.
func ParseComplexity(s string) (Complexity, error) {
	c := Complexity(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown complexity %q", s)
	}
	return c, nil
}

// RoutingRule is the static model preference for one complexity tier.
type RoutingRule struct {
	Preferred string   `json:"preferred" yaml:"preferred" toml:"preferred"`
	Fallbacks []string `json:"fallbacks,omitempty" yaml:"fallbacks" toml:"fallbacks"`
	// MaxCostPerRequest is an advisory ceiling in USD. Zero means none.
	MaxCostPerRequest float64 `json:"max_cost_per_request,omitempty" yaml:"max_cost_per_request" toml:"max_cost_per_request"`
}

// Criteria are the caller-supplied selection inputs for a single routing call.
type Criteria struct {
	Complexity      Complexity `json:"complexity" validate:"required,oneof=trivial simple moderate complex expert"`
	Category        string     `json:"category,omitempty"`
	TaskType        string     `json:"task_type,omitempty"`
	EstimatedTokens int        `json:"estimated_tokens,omitempty" validate:"gte=0"`
	Streaming       bool       `json:"streaming,omitempty"`
	Caching         bool       `json:"caching,omitempty"`
}

// RoutingDecision is the outcome of a routing call. It is never persisted.
type RoutingDecision struct {
	Model         string     `json:"model"`
	Provider      Provider   `json:"provider"`
	Justification string     `json:"justification"`
	EstimatedCost float64    `json:"estimated_cost"`
	HasFallback   bool       `json:"has_fallback"`
	Complexity    Complexity `json:"complexity,omitempty"`
	// OverCeiling is set when EstimatedCost exceeds the matched rule's ceiling.
	OverCeiling bool `json:"over_ceiling,omitempty"`
}

// Suggestion is a non-binding recommendation to use the zero-cost CLI path.
type Suggestion struct {
	Recommended      bool    `json:"recommended"`
	ZeroCostModel    string  `json:"zero_cost_model"`
	RoutedModel      string  `json:"routed_model"`
	RoutedCost       float64 `json:"routed_estimated_cost"`
	EstimatedSavings float64 `json:"estimated_savings"`
	Reason           string  `json:"reason"`
}
