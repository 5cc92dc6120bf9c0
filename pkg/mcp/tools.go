package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/pario-ai/llmrouter/pkg/dispatch"
	"github.com/pario-ai/llmrouter/pkg/ledger"
	"github.com/pario-ai/llmrouter/pkg/models"
)

// Tool arguments. Their JSON Schemas are reflected into tools/list.

type routeArgs struct {
	Complexity      models.Complexity `json:"complexity" validate:"required,oneof=trivial simple moderate complex expert" jsonschema:"enum=trivial,enum=simple,enum=moderate,enum=complex,enum=expert,description=Task difficulty tier"`
	Category        string            `json:"category,omitempty" jsonschema:"description=Task category such as coding or writing"`
	TaskType        string            `json:"task_type,omitempty" jsonschema:"description=Specific task type such as refactor or debug"`
	EstimatedTokens int               `json:"estimated_tokens,omitempty" validate:"gte=0" jsonschema:"minimum=0,description=Expected tokens each way"`
	Model           string            `json:"model,omitempty" jsonschema:"description=Force this model instead of matching a rule"`
}

func (a routeArgs) criteria() models.Criteria {
	return models.Criteria{
		Complexity:      a.Complexity,
		Category:        a.Category,
		TaskType:        a.TaskType,
		EstimatedTokens: a.EstimatedTokens,
	}
}

type suggestArgs struct {
	Complexity  models.Complexity `json:"complexity" validate:"required,oneof=trivial simple moderate complex expert" jsonschema:"enum=trivial,enum=simple,enum=moderate,enum=complex,enum=expert"`
	Category    string            `json:"category,omitempty"`
	TaskType    string            `json:"task_type,omitempty"`
	Description string            `json:"description,omitempty" jsonschema:"description=Short description of the task"`
}

type completeArgs struct {
	Prompt          string            `json:"prompt" validate:"required" jsonschema:"description=Prompt to send"`
	SystemPrompt    string            `json:"system_prompt,omitempty"`
	MaxTokens       int               `json:"max_tokens,omitempty" validate:"gte=0" jsonschema:"minimum=0"`
	Complexity      models.Complexity `json:"complexity,omitempty" validate:"omitempty,oneof=trivial simple moderate complex expert" jsonschema:"enum=trivial,enum=simple,enum=moderate,enum=complex,enum=expert"`
	Category        string            `json:"category,omitempty"`
	TaskType        string            `json:"task_type,omitempty"`
	EstimatedTokens int               `json:"estimated_tokens,omitempty" validate:"gte=0" jsonschema:"minimum=0"`
	Model           string            `json:"model,omitempty" jsonschema:"description=Force this model instead of routing"`
}

func (a completeArgs) route() routeArgs {
	return routeArgs{
		Complexity:      a.Complexity,
		Category:        a.Category,
		TaskType:        a.TaskType,
		EstimatedTokens: a.EstimatedTokens,
		Model:           a.Model,
	}
}

type costReportArgs struct {
	Period string `json:"period,omitempty" jsonschema:"enum=day,enum=week,enum=month,default=day"`
}

type noArgs struct{}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

type tool struct {
	name        string
	description string
	args        any
	handler     toolHandler
}

var tools = []tool{
	{
		name:        "llmrouter_route",
		description: "Pick the cheapest suitable model for a task given its complexity, budget and provider health.",
		args:        routeArgs{},
		handler:     handleRoute,
	},
	{
		name:        "llmrouter_suggest",
		description: "Check whether a coding task should go to the zero-cost CLI assistant instead of a metered model.",
		args:        suggestArgs{},
		handler:     handleSuggest,
	},
	{
		name:        "llmrouter_complete",
		description: "Route a prompt and run it on the chosen model, recording cost.",
		args:        completeArgs{},
		handler:     handleComplete,
	},
	{
		name:        "llmrouter_budget",
		description: "Show spend against the configured daily and monthly limits.",
		args:        noArgs{},
		handler:     handleBudget,
	},
	{
		name:        "llmrouter_cost_report",
		description: "Show spend for the last day, week or month broken down by model and provider.",
		args:        costReportArgs{},
		handler:     handleCostReport,
	},
	{
		name:        "llmrouter_health",
		description: "Show cached provider health.",
		args:        noArgs{},
		handler:     handleHealth,
	},
}

var reflector = jsonschema.Reflector{
	DoNotReference: true,
	ExpandedStruct: true,
}

func toolDefinitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(tools))
	for _, t := range tools {
		schema := reflector.Reflect(t.args)
		schema.Version = ""
		defs = append(defs, ToolDefinition{
			Name:        t.name,
			Description: t.description,
			InputSchema: schema,
		})
	}
	return defs
}

func toolByName(name string) (tool, bool) {
	for _, t := range tools {
		if t.name == name {
			return t, true
		}
	}
	return tool{}, false
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

// parseArgs decodes and validates raw tool arguments into v.
func (s *Server) parseArgs(raw json.RawMessage, v any) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func handleRoute(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args routeArgs
	if err := s.parseArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatDecision(s.decide(ctx, args)))
}

func (s *Server) decide(ctx context.Context, args routeArgs) models.RoutingDecision {
	if args.Model != "" {
		return s.deps.Router.RouteWithOverride(ctx, args.Model, args.criteria())
	}
	return s.deps.Router.Route(ctx, args.criteria())
}

func handleSuggest(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args suggestArgs
	if err := s.parseArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	sg := s.deps.Router.SuggestZeroCostPath(ctx, models.Criteria{
		Complexity: args.Complexity,
		Category:   args.Category,
		TaskType:   args.TaskType,
	}, args.Description)
	return textResult(formatSuggestion(sg))
}

func handleComplete(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Executor == nil {
		return textResult("Dispatch is not configured.")
	}
	var args completeArgs
	if err := s.parseArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	if args.Model == "" && args.Complexity == "" {
		return errorResult("invalid arguments: complexity or model is required")
	}

	d := s.decide(ctx, args.route())
	res, err := s.deps.Executor.Execute(ctx, d, dispatch.Request{
		Prompt:       args.Prompt,
		SystemPrompt: args.SystemPrompt,
		MaxTokens:    args.MaxTokens,
		TaskType:     args.TaskType,
	})
	if err != nil {
		return errorResult("Completion failed: " + err.Error())
	}

	var b strings.Builder
	b.WriteString(res.Content)
	fmt.Fprintf(&b, "\n\n[%s via %s, %d in / %d out tokens, $%.6f", res.Model, res.Provider, res.InputTokens, res.OutputTokens, res.Cost)
	if res.FellBack {
		b.WriteString(", fell back")
	}
	b.WriteString("]")
	return textResult(b.String())
}

func handleBudget(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	st, err := s.deps.Ledger.CheckBudget(ctx)
	if err != nil {
		return errorResult("Error checking budget: " + err.Error())
	}
	return textResult(formatBudget(st))
}

func handleCostReport(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args costReportArgs
	if err := s.parseArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	period := models.PeriodDay
	if args.Period != "" {
		p, err := models.ParsePeriod(args.Period)
		if err != nil {
			return errorResult(err.Error())
		}
		period = p
	}

	r, err := s.deps.Ledger.CostReport(ctx, period)
	if err != nil {
		return errorResult("Error building cost report: " + err.Error())
	}
	return textResult(ledger.FormatReport(r))
}

func handleHealth(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Health == nil {
		return textResult("Health monitoring is not configured.")
	}
	snap := s.deps.Health.Snapshot()
	if len(snap) == 0 {
		return textResult("No providers probed yet.")
	}
	names := make([]string, 0, len(snap))
	for p := range snap {
		names = append(names, string(p))
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		e := snap[models.Provider(n)]
		state := "healthy"
		if !e.Healthy {
			state = "unhealthy"
		}
		fmt.Fprintf(&b, "%-12s %-10s %s", n, state, e.CheckedAt.Format("15:04:05"))
		if e.Error != "" {
			b.WriteString("  " + e.Error)
		}
		b.WriteString("\n")
	}
	return textResult(b.String())
}
