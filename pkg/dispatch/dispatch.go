// Package dispatch executes routing decisions against provider clients with
// exactly one fallback hop, and records actual usage on success.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pario-ai/llmrouter/pkg/ledger"
	"github.com/pario-ai/llmrouter/pkg/models"
	"github.com/pario-ai/llmrouter/pkg/provider"
	"github.com/pario-ai/llmrouter/pkg/ratelimit"
)

// DefaultTimeout bounds one provider call.
const DefaultTimeout = 120 * time.Second

// Recorder persists usage for a completed call.
type Recorder interface {
	RecordUsage(ctx context.Context, in ledger.UsageInput) (models.UsageRecord, error)
}

// FallbackResolver names the next model in the global chain.
type FallbackResolver interface {
	FallbackModel(model string) (string, bool)
}

// Request is the caller's prompt and per-call settings.
type Request struct {
	Prompt       string   `json:"prompt" validate:"required"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens    int      `json:"max_tokens,omitempty" validate:"gte=0"`
	TaskType     string   `json:"task_type,omitempty"`
	ProjectID    string   `json:"project_id,omitempty"`
}

// Result is the normalized outcome of a dispatched call.
type Result struct {
	Model        string          `json:"model"`
	Provider     models.Provider `json:"provider"`
	Content      string          `json:"content"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	LatencyMs    int64           `json:"latency_ms"`
	Cost         float64         `json:"cost"`
	// FellBack is set when the result came from the fallback model.
	FellBack bool `json:"fell_back"`
	// UsageID is empty when recording failed.
	UsageID string `json:"usage_id,omitempty"`
}

// Error is a terminal dispatch failure. Err combines every attempt's cause.
type Error struct {
	// Model is the last model attempted.
	Model       string
	Original    string
	HasFallback bool
	Err         error
}

// Error implements error.
func (e *Error) Error() string {
	if !e.HasFallback {
		return fmt.Sprintf("dispatch %s failed, no fallback model: %v", e.Original, e.Err)
	}
	return fmt.Sprintf("dispatch %s failed, fallback %s also failed: %v", e.Original, e.Model, e.Err)
}

// Unwrap returns the combined causes.
func (e *Error) Unwrap() error { return e.Err }

// Dispatcher executes decisions.
type Dispatcher struct {
	catalog  models.Catalog
	clients  *provider.Registry
	fallback FallbackResolver
	recorder Recorder
	limiter  ratelimit.Window
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option { return func(x *Dispatcher) { x.timeout = d } }

// WithLimiter sets the window that counts CLI assistant calls.
func WithLimiter(w ratelimit.Window) Option { return func(x *Dispatcher) { x.limiter = w } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(x *Dispatcher) { x.logger = l } }

// New creates a Dispatcher.
func New(catalog models.Catalog, clients *provider.Registry, fallback FallbackResolver, recorder Recorder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog:  catalog,
		clients:  clients,
		fallback: fallback,
		recorder: recorder,
		limiter:  ratelimit.Noop{},
		timeout:  DefaultTimeout,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Execute runs req on decision.Model. On failure it tries the next model in
// the global chain once. Usage is recorded for whichever call succeeded.
func (d *Dispatcher) Execute(ctx context.Context, decision models.RoutingDecision, req Request) (*Result, error) {
	res, err := d.attempt(ctx, decision.Model, req)
	if err == nil {
		return res, nil
	}
	d.logger.Warn("dispatch failed", zap.String("model", decision.Model), zap.Error(err))

	next, ok := d.fallback.FallbackModel(decision.Model)
	if !ok {
		return nil, &Error{Model: decision.Model, Original: decision.Model, Err: err}
	}

	res, fbErr := d.attempt(ctx, next, req)
	if fbErr != nil {
		d.logger.Warn("fallback dispatch failed", zap.String("model", next), zap.Error(fbErr))
		return nil, &Error{
			Model:       next,
			Original:    decision.Model,
			HasFallback: true,
			Err:         multierr.Combine(fmt.Errorf("%s: %w", decision.Model, err), fmt.Errorf("%s: %w", next, fbErr)),
		}
	}
	res.FellBack = true
	d.logger.Info("dispatch fell back", zap.String("from", decision.Model), zap.String("to", next))
	return res, nil
}

func (d *Dispatcher) attempt(ctx context.Context, model string, req Request) (*Result, error) {
	kind, ok := d.catalog.ProviderOf(model)
	if !ok {
		return nil, fmt.Errorf("model %q is not in the catalog", model)
	}
	client, err := d.clients.Get(kind)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	c, err := client.Complete(callCtx, req.Prompt, provider.Options{
		Model:        model,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Model:        model,
		Provider:     kind,
		Content:      c.Content,
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
		LatencyMs:    c.LatencyMs,
	}

	rec, err := d.recorder.RecordUsage(ctx, ledger.UsageInput{
		Model:        model,
		Provider:     kind,
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
		TaskType:     req.TaskType,
		ProjectID:    req.ProjectID,
	})
	res.Cost = rec.Cost
	if err != nil {
		d.logger.Error("record usage failed", zap.String("model", model), zap.Error(err))
	} else {
		res.UsageID = rec.ID
	}

	if kind == models.ProviderCLI {
		if err := d.limiter.Record(ctx); err != nil {
			d.logger.Warn("record zero-cost window use failed", zap.Error(err))
		}
	}
	return res, nil
}
