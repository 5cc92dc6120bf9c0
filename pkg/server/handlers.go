package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pario-ai/llmrouter/pkg/dispatch"
	"github.com/pario-ai/llmrouter/pkg/ledger"
	"github.com/pario-ai/llmrouter/pkg/models"
)

const maxBody = 1 << 20

type overrideRequest struct {
	Model    string           `json:"model" validate:"required"`
	Criteria *models.Criteria `json:"criteria,omitempty"`
}

type suggestRequest struct {
	models.Criteria
	Description string `json:"description,omitempty"`
}

type completeRequest struct {
	dispatch.Request
	// Model forces a model; otherwise Criteria is routed.
	Model    string           `json:"model,omitempty"`
	Criteria *models.Criteria `json:"criteria,omitempty" validate:"required_without=Model"`
}

type completeResponse struct {
	Decision models.RoutingDecision `json:"decision"`
	Result   *dispatch.Result       `json:"result"`
}

type budgetResponse struct {
	models.BudgetStatus
	Warnings []string `json:"warnings"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req models.Criteria
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Router.Route(r.Context(), req))
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Router.RouteWithOverride(r.Context(), req.Model, criteriaOrZero(req.Criteria)))
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Router.SuggestZeroCostPath(r.Context(), req.Criteria, req.Description))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !s.decode(w, r, &req) {
		return
	}

	var decision models.RoutingDecision
	if req.Model != "" {
		decision = s.deps.Router.RouteWithOverride(r.Context(), req.Model, criteriaOrZero(req.Criteria))
	} else {
		decision = s.deps.Router.Route(r.Context(), *req.Criteria)
	}

	res, err := s.deps.Executor.Execute(r.Context(), decision, req.Request)
	if err != nil {
		var de *dispatch.Error
		if errors.As(err, &de) {
			writeJSONError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.logger.Error("complete failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}
	writeJSON(w, http.StatusOK, completeResponse{Decision: decision, Result: res})
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Ledger.CheckBudget(r.Context())
	if err != nil {
		s.logger.Error("budget check failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "budget check failed")
		return
	}
	warnings := ledger.Warnings(st)
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, budgetResponse{BudgetStatus: st, Warnings: warnings})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	period := models.PeriodDay
	if p := r.URL.Query().Get("period"); p != "" {
		var err error
		if period, err = models.ParsePeriod(p); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	report, err := s.deps.Ledger.CostReport(r.Context(), period)
	if err != nil {
		s.logger.Error("cost report failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "cost report failed")
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "text") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(ledger.FormatReport(report)))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealthSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Health.Snapshot())
}

func (s *Server) handleClearHealth(w http.ResponseWriter, r *http.Request) {
	s.deps.Health.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_without":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func criteriaOrZero(c *models.Criteria) models.Criteria {
	if c == nil {
		return models.Criteria{}
	}
	return *c
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "llmrouter_error",
			"code":    code,
		},
	})
}
