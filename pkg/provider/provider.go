// Package provider implements one completion client per provider kind
// behind a sealed interface.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pario-ai/llmrouter/pkg/models"
)

// ErrUnknownProvider is returned when no client is registered for a kind.
var ErrUnknownProvider = errors.New("unknown provider")

// Options are per-call settings. Zero values mean provider defaults.
type Options struct {
	Model        string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int
}

// Completion is the normalized result of one call.
type Completion struct {
	Content      string `json:"content"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	LatencyMs    int64  `json:"latency_ms"`
}

// Client completes a prompt. The set of implementations is closed: one per
// models.Provider kind.
type Client interface {
	Kind() models.Provider
	Complete(ctx context.Context, prompt string, opts Options) (*Completion, error)
	sealed()
}

// StatusError is a non-2xx response from a provider API.
type StatusError struct {
	Provider   models.Provider
	StatusCode int
	Body       string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Registry maps provider kinds to clients.
type Registry struct {
	clients map[models.Provider]Client
}

// NewRegistry registers clients by their Kind. Later clients replace earlier
// ones of the same kind.
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[models.Provider]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Kind()] = c
	}
	return r
}

// Get returns the client for p.
func (r *Registry) Get(p models.Provider) (Client, error) {
	c, ok := r.clients[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	return c, nil
}

// Kinds lists registered provider kinds.
func (r *Registry) Kinds() []models.Provider {
	out := make([]models.Provider, 0, len(r.clients))
	for _, p := range models.Providers {
		if _, ok := r.clients[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{}
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
