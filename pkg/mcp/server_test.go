package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/llmrouter/pkg/dispatch"
	"github.com/pario-ai/llmrouter/pkg/health"
	"github.com/pario-ai/llmrouter/pkg/models"
)

type fakeRouter struct {
	lastCriteria models.Criteria
	lastOverride string
}

func (f *fakeRouter) Route(_ context.Context, c models.Criteria) models.RoutingDecision {
	f.lastCriteria = c
	return models.RoutingDecision{Model: "mini", Provider: models.ProviderOpenAI, Justification: "matched rule for " + string(c.Complexity), EstimatedCost: 0.00075}
}

func (f *fakeRouter) RouteWithOverride(_ context.Context, model string, c models.Criteria) models.RoutingDecision {
	f.lastOverride = model
	return models.RoutingDecision{Model: model, Justification: "Manual override: " + model}
}

func (f *fakeRouter) SuggestZeroCostPath(_ context.Context, c models.Criteria, desc string) models.Suggestion {
	return models.Suggestion{Recommended: true, ZeroCostModel: "cli", RoutedModel: "sonnet", RoutedCost: 0.018, EstimatedSavings: 0.018, Reason: "use cli for " + desc}
}

type fakeLedger struct {
	status models.BudgetStatus
	err    error
}

func (f *fakeLedger) CheckBudget(context.Context) (models.BudgetStatus, error) { return f.status, f.err }

func (f *fakeLedger) CostReport(_ context.Context, p models.Period) (models.CostReport, error) {
	return models.CostReport{Period: p, TotalCost: 1.25, RequestCount: 3, ByModel: map[string]float64{"sonnet": 1.25}}, f.err
}

type fakeExecutor struct {
	err error
}

func (f *fakeExecutor) Execute(_ context.Context, d models.RoutingDecision, req dispatch.Request) (*dispatch.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dispatch.Result{Model: d.Model, Provider: models.ProviderOpenAI, Content: "echo: " + req.Prompt, InputTokens: 10, OutputTokens: 5, Cost: 0.0001}, nil
}

type fakeHealth map[models.Provider]health.Entry

func (f fakeHealth) Snapshot() map[models.Provider]health.Entry { return f }

func newServer() (*Server, *fakeRouter) {
	r := &fakeRouter{}
	return New(Deps{Router: r, Ledger: &fakeLedger{}}, "test"), r
}

func roundTrip(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, srv.Run(context.Background(), bytes.NewReader(append(line, '\n')), &out))

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp), "raw: %s", out.String())
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	params, err := json.Marshal(ToolCallParams{Name: name, Arguments: json.RawMessage(args)})
	require.NoError(t, err)
	resp := roundTrip(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "tools/call", Params: params})
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result ToolCallResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.NotEmpty(t, result.Content)
	return result
}

func TestInitialize(t *testing.T) {
	srv, _ := newServer()
	resp := roundTrip(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "initialize"})
	require.Nil(t, resp.Error)

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, "llmrouter", result.ServerInfo.Name)
	assert.Equal(t, "test", result.ServerInfo.Version)
}

func TestToolsListSchemas(t *testing.T) {
	srv, _ := newServer()
	resp := roundTrip(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`2`), Method: "tools/list"})
	require.Nil(t, resp.Error)

	data, _ := json.Marshal(resp.Result)
	var result struct {
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Tools, len(tools))

	byName := map[string]map[string]any{}
	for _, tl := range result.Tools {
		byName[tl.Name] = tl.InputSchema
	}
	for _, want := range []string{"llmrouter_route", "llmrouter_suggest", "llmrouter_complete", "llmrouter_budget", "llmrouter_cost_report", "llmrouter_health"} {
		assert.Contains(t, byName, want)
	}

	route := byName["llmrouter_route"]
	assert.Equal(t, "object", route["type"])
	assert.Contains(t, route["required"], "complexity")
	props := route["properties"].(map[string]any)
	complexity := props["complexity"].(map[string]any)
	assert.ElementsMatch(t, []any{"trivial", "simple", "moderate", "complex", "expert"}, complexity["enum"])

	complete := byName["llmrouter_complete"]
	assert.Equal(t, []any{"prompt"}, complete["required"])
	assert.Contains(t, complete["properties"], "complexity")
}

func TestRouteTool(t *testing.T) {
	srv, r := newServer()
	res := callTool(t, srv, "llmrouter_route", `{"complexity":"simple","task_type":"debug","estimated_tokens":500}`)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "mini (openai)")
	assert.Contains(t, res.Content[0].Text, "matched rule for simple")
	assert.Equal(t, 500, r.lastCriteria.EstimatedTokens)
	assert.Equal(t, "debug", r.lastCriteria.TaskType)
}

func TestRouteToolOverride(t *testing.T) {
	srv, r := newServer()
	res := callTool(t, srv, "llmrouter_route", `{"complexity":"simple","model":"sonnet"}`)
	assert.False(t, res.IsError)
	assert.Equal(t, "sonnet", r.lastOverride)
	assert.Contains(t, res.Content[0].Text, "Manual override")
}

func TestRouteToolValidation(t *testing.T) {
	srv, _ := newServer()
	for _, args := range []string{`{}`, `{"complexity":"legendary"}`, `{"complexity":"simple","estimated_tokens":-1}`, `{"complexity":5}`} {
		res := callTool(t, srv, "llmrouter_route", args)
		assert.True(t, res.IsError, args)
	}
}

func TestSuggestTool(t *testing.T) {
	srv, _ := newServer()
	res := callTool(t, srv, "llmrouter_suggest", `{"complexity":"complex","category":"coding","description":"split module"}`)
	assert.False(t, res.IsError)
	text := res.Content[0].Text
	assert.Contains(t, text, "Use cli: yes")
	assert.Contains(t, text, "split module")
}

func TestCompleteTool(t *testing.T) {
	srv := New(Deps{Router: &fakeRouter{}, Ledger: &fakeLedger{}, Executor: &fakeExecutor{}}, "test")
	res := callTool(t, srv, "llmrouter_complete", `{"prompt":"hello","complexity":"simple"}`)
	assert.False(t, res.IsError)
	assert.True(t, strings.HasPrefix(res.Content[0].Text, "echo: hello"))
	assert.Contains(t, res.Content[0].Text, "mini via openai")

	res = callTool(t, srv, "llmrouter_complete", `{"complexity":"simple"}`)
	assert.True(t, res.IsError)

	res = callTool(t, srv, "llmrouter_complete", `{"prompt":"hello"}`)
	assert.True(t, res.IsError)

	res = callTool(t, srv, "llmrouter_complete", `{"prompt":"hello","model":"sonnet"}`)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "sonnet via openai")
}

func TestCompleteToolFailure(t *testing.T) {
	exec := &fakeExecutor{err: &dispatch.Error{Model: "mini", Original: "mini", Err: errors.New("boom")}}
	srv := New(Deps{Router: &fakeRouter{}, Ledger: &fakeLedger{}, Executor: exec}, "test")
	res := callTool(t, srv, "llmrouter_complete", `{"prompt":"hello","complexity":"simple"}`)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "boom")
}

func TestCompleteToolNotConfigured(t *testing.T) {
	srv, _ := newServer()
	res := callTool(t, srv, "llmrouter_complete", `{"prompt":"hello","complexity":"simple"}`)
	assert.Contains(t, res.Content[0].Text, "not configured")
}

func TestBudgetTool(t *testing.T) {
	l := &fakeLedger{status: models.BudgetStatus{
		Spend:               models.Spend{ProjectDaily: 12},
		PercentUsed:         120,
		IsProjectOverBudget: true,
		IsOverBudget:        true,
	}}
	srv := New(Deps{Router: &fakeRouter{}, Ledger: l}, "test")
	res := callTool(t, srv, "llmrouter_budget", `{}`)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "project budget exceeded")
	assert.Contains(t, res.Content[0].Text, "120.0%")

	srv = New(Deps{Router: &fakeRouter{}, Ledger: &fakeLedger{err: errors.New("disk gone")}}, "test")
	res = callTool(t, srv, "llmrouter_budget", ``)
	assert.True(t, res.IsError)
}

func TestCostReportTool(t *testing.T) {
	srv, _ := newServer()
	res := callTool(t, srv, "llmrouter_cost_report", `{"period":"week"}`)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "Cost report (week")
	assert.Contains(t, res.Content[0].Text, "sonnet")

	res = callTool(t, srv, "llmrouter_cost_report", `{"period":"year"}`)
	assert.True(t, res.IsError)
}

func TestHealthTool(t *testing.T) {
	srv, _ := newServer()
	res := callTool(t, srv, "llmrouter_health", ``)
	assert.Contains(t, res.Content[0].Text, "not configured")

	snap := fakeHealth{
		models.ProviderOllama: {Healthy: false, CheckedAt: time.Now(), Error: "connection refused"},
		models.ProviderOpenAI: {Healthy: true, CheckedAt: time.Now()},
	}
	srv = New(Deps{Router: &fakeRouter{}, Ledger: &fakeLedger{}, Health: snap}, "test")
	res = callTool(t, srv, "llmrouter_health", ``)
	lines := strings.Split(strings.TrimSpace(res.Content[0].Text), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ollama")
	assert.Contains(t, lines[0], "connection refused")
	assert.Contains(t, lines[1], "healthy")
}

func TestUnknownTool(t *testing.T) {
	srv, _ := newServer()
	res := callTool(t, srv, "llmrouter_stats", `{}`)
	assert.True(t, res.IsError)
}

func TestNotificationNoResponse(t *testing.T) {
	srv, _ := newServer()
	line, _ := json.Marshal(Request{JSONRPC: "2.0", Method: "notifications/initialized"})

	var out bytes.Buffer
	require.NoError(t, srv.Run(context.Background(), bytes.NewReader(append(line, '\n')), &out))
	assert.Zero(t, out.Len())
}

func TestProtocolErrors(t *testing.T) {
	srv, _ := newServer()

	resp := roundTrip(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`9`), Method: "unknown/method"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)

	resp = roundTrip(t, srv, Request{JSONRPC: "1.0", ID: json.RawMessage(`10`), Method: "ping"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)

	var out bytes.Buffer
	require.NoError(t, srv.Run(context.Background(), strings.NewReader("{garbage\n"), &out))
	var parsed Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &parsed))
	require.NotNil(t, parsed.Error)
	assert.Equal(t, CodeParseError, parsed.Error.Code)
}
