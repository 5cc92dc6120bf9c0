// Package server exposes routing, dispatch, budget and report operations
// over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pario-ai/llmrouter/pkg/dispatch"
	"github.com/pario-ai/llmrouter/pkg/health"
	"github.com/pario-ai/llmrouter/pkg/models"
)

// Router is the routing engine surface the server needs.
type Router interface {
	Route(ctx context.Context, criteria models.Criteria) models.RoutingDecision
	RouteWithOverride(ctx context.Context, model string, criteria models.Criteria) models.RoutingDecision
	SuggestZeroCostPath(ctx context.Context, criteria models.Criteria, description string) models.Suggestion
}

// Executor runs a routing decision.
type Executor interface {
	Execute(ctx context.Context, decision models.RoutingDecision, req dispatch.Request) (*dispatch.Result, error)
}

// Ledger reports budget status and cost.
type Ledger interface {
	CheckBudget(ctx context.Context) (models.BudgetStatus, error)
	CostReport(ctx context.Context, period models.Period) (models.CostReport, error)
}

// HealthCache exposes the provider health cache.
type HealthCache interface {
	Clear()
	Snapshot() map[models.Provider]health.Entry
}

// Deps are the components behind the API.
type Deps struct {
	Router   Router
	Executor Executor
	Ledger   Ledger
	Health   HealthCache
	Logger   *zap.Logger
	// CORSOrigins are the dashboard origins allowed to call the API.
	CORSOrigins []string
}

// Server is the llmrouter HTTP API.
type Server struct {
	deps     Deps
	logger   *zap.Logger
	validate *validator.Validate
	handler  http.Handler
}

// New creates a Server.
func New(deps Deps) *Server {
	s := &Server{
		deps:     deps,
		logger:   deps.Logger,
		validate: validator.New(),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/route", s.handleRoute)
		r.Post("/route/override", s.handleOverride)
		r.Post("/suggest", s.handleSuggest)
		r.Post("/complete", s.handleComplete)
		r.Get("/budget", s.handleBudget)
		r.Get("/report", s.handleReport)
		r.Get("/health", s.handleHealthSnapshot)
		r.Delete("/health/cache", s.handleClearHealth)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("llmrouter listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
