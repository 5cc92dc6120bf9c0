// Package mcp serves the router's tools to agent hosts over stdio using
// line-delimited JSON-RPC 2.0.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pario-ai/llmrouter/pkg/dispatch"
	"github.com/pario-ai/llmrouter/pkg/health"
	"github.com/pario-ai/llmrouter/pkg/models"
)

// Router is the routing surface exposed as tools.
type Router interface {
	Route(ctx context.Context, criteria models.Criteria) models.RoutingDecision
	RouteWithOverride(ctx context.Context, model string, criteria models.Criteria) models.RoutingDecision
	SuggestZeroCostPath(ctx context.Context, criteria models.Criteria, description string) models.Suggestion
}

// Ledger reports budget and cost.
type Ledger interface {
	CheckBudget(ctx context.Context) (models.BudgetStatus, error)
	CostReport(ctx context.Context, period models.Period) (models.CostReport, error)
}

// Executor runs a prompt on a routed model.
type Executor interface {
	Execute(ctx context.Context, decision models.RoutingDecision, req dispatch.Request) (*dispatch.Result, error)
}

// HealthSnapshotter exposes cached provider health.
type HealthSnapshotter interface {
	Snapshot() map[models.Provider]health.Entry
}

// Deps are the components behind the tools. Executor and Health are
// optional; their tools report "not configured" when nil.
type Deps struct {
	Router   Router
	Ledger   Ledger
	Executor Executor
	Health   HealthSnapshotter
	Logger   *zap.Logger
}

// Server is a minimal MCP server.
type Server struct {
	deps     Deps
	version  string
	logger   *zap.Logger
	validate *validator.Validate
}

// New creates a Server.
func New(deps Deps, version string) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		deps:     deps,
		version:  version,
		logger:   logger,
		validate: validator.New(),
	}
}

// Run reads requests from r one per line and writes responses to w. It
// returns when r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, errorResponse(nil, CodeParseError, "parse error"))
			continue
		}
		if req.JSONRPC != "2.0" {
			s.writeResponse(w, errorResponse(req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\""))
			continue
		}

		if resp := s.handle(ctx, &req); resp != nil {
			s.writeResponse(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) handle(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "llmrouter", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, ToolsListResult{Tools: toolDefinitions()})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	t, ok := toolByName(params.Name)
	if !ok {
		return resultResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	s.logger.Debug("tool call", zap.String("tool", params.Name))
	return resultResponse(req.ID, t.handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp marshal failed", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("mcp write failed", zap.Error(err))
	}
}
