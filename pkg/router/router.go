// Package router selects a model for a task from static per-tier rules,
// gated by budget status and provider health.
package router

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/pario-ai/llmrouter/pkg/models"
	"github.com/pario-ai/llmrouter/pkg/pricing"
	"github.com/pario-ai/llmrouter/pkg/ratelimit"
)

// DefaultEstimatedTokens is used for cost estimates when the caller gives none.
const DefaultEstimatedTokens = 1000

// BudgetChecker reports live budget status.
type BudgetChecker interface {
	CheckBudget(ctx context.Context) (models.BudgetStatus, error)
}

// HealthChecker reports provider liveness.
type HealthChecker interface {
	Healthy(ctx context.Context, p models.Provider) bool
}

// Config is the static routing table.
type Config struct {
	Catalog models.Catalog
	Rules   map[models.Complexity]models.RoutingRule
	// FallbackChain is the single global chain used after a failed call.
	FallbackChain []string
	// ZeroCostModel serves every request once a budget is exceeded.
	ZeroCostModel string
	// DefaultModel is the mid-tier model used when no rule matches.
	DefaultModel string
	// PriciestModel is subject to the dedicated spend cap.
	PriciestModel string
	// CLIModel is the zero-marginal-cost CLI assistant offered by suggestions.
	CLIModel               string
	DefaultEstimatedTokens int
}

// Router is safe for concurrent use.
type Router struct {
	cfg     Config
	budget  BudgetChecker
	health  HealthChecker
	limiter ratelimit.Window
	logger  *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(r *Router) { r.logger = l } }

// WithLimiter sets the rolling window consulted for zero-cost suggestions.
func WithLimiter(w ratelimit.Window) Option { return func(r *Router) { r.limiter = w } }

// New creates a Router.
func New(cfg Config, budget BudgetChecker, health HealthChecker, opts ...Option) *Router {
	if cfg.DefaultEstimatedTokens <= 0 {
		cfg.DefaultEstimatedTokens = DefaultEstimatedTokens
	}
	r := &Router{
		cfg:     cfg,
		budget:  budget,
		health:  health,
		limiter: ratelimit.Noop{},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Config returns the routing table.
func (r *Router) Config() Config { return r.cfg }

// Route picks a model for criteria. It never fails: budget and health
// problems resolve to the zero-cost model.
func (r *Router) Route(ctx context.Context, criteria models.Criteria) models.RoutingDecision {
	status := r.budgetStatus(ctx)
	if status.IsOverBudget {
		return r.decide(criteria, r.cfg.ZeroCostModel, 0,
			fmt.Sprintf("Budget exceeded (%.1f%% of project, %.1f%% of global limit used); using zero-cost model %s",
				status.PercentUsed, status.GlobalPercentUsed, r.cfg.ZeroCostModel))
	}

	rule, ok := r.cfg.Rules[criteria.Complexity]
	if !ok {
		return r.decide(criteria, r.cfg.DefaultModel, 0,
			fmt.Sprintf("No routing rule found for %q; using default model %s", criteria.Complexity, r.cfg.DefaultModel))
	}

	guard := status.IsOpusOverLimit && r.cfg.PriciestModel != ""
	preferred := rule.Preferred
	note := ""
	if guard && preferred == r.cfg.PriciestModel {
		preferred = r.downgrade(criteria.Complexity)
		note = fmt.Sprintf(" (%s spend cap reached, downgraded to %s)", r.cfg.PriciestModel, defaultStr(preferred, "fallbacks"))
	}

	if preferred != "" && r.healthy(ctx, preferred) {
		return r.decide(criteria, preferred, rule.MaxCostPerRequest,
			fmt.Sprintf("matched rule for %s%s", criteria.Complexity, note))
	}

	for _, fb := range rule.Fallbacks {
		if fb == preferred || (guard && fb == r.cfg.PriciestModel) {
			continue
		}
		if r.healthy(ctx, fb) {
			return r.decide(criteria, fb, rule.MaxCostPerRequest,
				fmt.Sprintf("fallback: %s unavailable, using %s%s", defaultStr(preferred, rule.Preferred), fb, note))
		}
	}

	return r.decide(criteria, r.cfg.ZeroCostModel, 0,
		fmt.Sprintf("all preferred models unavailable; using zero-cost model %s", r.cfg.ZeroCostModel))
}

// downgrade returns the preferred model of the nearest cheaper tier that is
// not the priciest model, or "" when every cheaper tier prefers it too.
func (r *Router) downgrade(c models.Complexity) string {
	for tier, ok := c.Lower(); ok; tier, ok = tier.Lower() {
		if rule, found := r.cfg.Rules[tier]; found && rule.Preferred != r.cfg.PriciestModel {
			return rule.Preferred
		}
	}
	return ""
}

// FallbackModel returns the entry after model in the global chain. It
// returns false for the last entry and for models not in the chain.
func (r *Router) FallbackModel(model string) (string, bool) {
	i := slices.Index(r.cfg.FallbackChain, model)
	if i < 0 || i+1 >= len(r.cfg.FallbackChain) {
		return "", false
	}
	return r.cfg.FallbackChain[i+1], true
}

// RouteWithOverride uses model if its provider is healthy, else one hop of
// the global chain, else the default model. No rule matching is done.
func (r *Router) RouteWithOverride(ctx context.Context, model string, criteria models.Criteria) models.RoutingDecision {
	if r.healthy(ctx, model) {
		return r.decide(criteria, model, 0, fmt.Sprintf("Manual override: %s", model))
	}
	if fb, ok := r.FallbackModel(model); ok {
		return r.decide(criteria, fb, 0, fmt.Sprintf("Manual override: %s unavailable, using fallback %s", model, fb))
	}
	return r.decide(criteria, r.cfg.DefaultModel, 0,
		fmt.Sprintf("Manual override: %s unavailable and no fallback, using default %s", model, r.cfg.DefaultModel))
}

// codingTaskTypes are task types treated as coding work.
var codingTaskTypes = []string{"coding", "code", "refactor", "debug", "code_review", "test_generation", "implementation"}

// IsCodingTask reports whether criteria describe coding work.
func IsCodingTask(criteria models.Criteria) bool {
	if strings.EqualFold(criteria.Category, "coding") {
		return true
	}
	return slices.Contains(codingTaskTypes, strings.ToLower(criteria.TaskType))
}

// SuggestZeroCostPath compares what Route would pick against the CLI
// assistant. It is advisory only and changes no routing state.
func (r *Router) SuggestZeroCostPath(ctx context.Context, criteria models.Criteria, description string) models.Suggestion {
	routed := r.Route(ctx, criteria)
	s := models.Suggestion{
		ZeroCostModel: r.cfg.CLIModel,
		RoutedModel:   routed.Model,
		RoutedCost:    routed.EstimatedCost,
	}

	switch {
	case r.cfg.CLIModel == "":
		s.Reason = "no zero-cost CLI model configured"
	case !IsCodingTask(criteria):
		s.Reason = "task is not coding work"
	case !criteria.Complexity.AtLeast(models.ComplexityModerate):
		s.Reason = fmt.Sprintf("%s tasks are cheap enough to route normally", defaultStr(string(criteria.Complexity), "unclassified"))
	case !r.health.Healthy(ctx, models.ProviderCLI):
		s.Reason = "CLI assistant is not available"
	case r.nearCap(ctx):
		s.Reason = "CLI assistant is near its usage window cap"
	default:
		s.Recommended = true
		s.EstimatedSavings = routed.EstimatedCost
		s.Reason = fmt.Sprintf("use %s instead of %s, saving about $%.4f", r.cfg.CLIModel, routed.Model, routed.EstimatedCost)
		if description != "" {
			s.Reason += fmt.Sprintf(" for %q", description)
		}
	}
	return s
}

func (r *Router) nearCap(ctx context.Context) bool {
	near, err := r.limiter.NearCap(ctx)
	if err != nil {
		r.logger.Warn("zero-cost window check failed", zap.Error(err))
		return true
	}
	return near
}

func (r *Router) budgetStatus(ctx context.Context) models.BudgetStatus {
	if r.budget == nil {
		return models.BudgetStatus{}
	}
	st, err := r.budget.CheckBudget(ctx)
	if err != nil {
		r.logger.Warn("budget check failed, routing as within budget", zap.Error(err))
		return models.BudgetStatus{}
	}
	return st
}

func (r *Router) healthy(ctx context.Context, model string) bool {
	p, ok := r.cfg.Catalog.ProviderOf(model)
	if !ok {
		return false
	}
	return r.health.Healthy(ctx, p)
}

func (r *Router) decide(criteria models.Criteria, model string, ceiling float64, justification string) models.RoutingDecision {
	tokens := criteria.EstimatedTokens
	if tokens <= 0 {
		tokens = r.cfg.DefaultEstimatedTokens
	}
	provider, _ := r.cfg.Catalog.ProviderOf(model)
	_, hasFallback := r.FallbackModel(model)

	d := models.RoutingDecision{
		Model:         model,
		Provider:      provider,
		Justification: justification,
		EstimatedCost: pricing.CalculateCost(r.cfg.Catalog, model, tokens, tokens, 0),
		HasFallback:   hasFallback,
		Complexity:    criteria.Complexity,
	}
	if ceiling > 0 && d.EstimatedCost > ceiling {
		d.OverCeiling = true
		r.logger.Warn("estimated cost above rule ceiling",
			zap.String("model", model),
			zap.Float64("estimated_cost", d.EstimatedCost),
			zap.Float64("ceiling", ceiling))
	}
	r.logger.Debug("routed",
		zap.String("complexity", string(criteria.Complexity)),
		zap.String("model", model),
		zap.String("justification", justification))
	return d
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
