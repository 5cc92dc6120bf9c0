package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/llmrouter/pkg/dispatch"
	"github.com/pario-ai/llmrouter/pkg/health"
	"github.com/pario-ai/llmrouter/pkg/ledger"
	"github.com/pario-ai/llmrouter/pkg/models"
	"github.com/pario-ai/llmrouter/pkg/provider"
	"github.com/pario-ai/llmrouter/pkg/router"
	"github.com/pario-ai/llmrouter/pkg/usagelog"
)

var catalog = models.Catalog{
	"sonnet": {Provider: models.ProviderAnthropic, InputPerMillion: 3, OutputPerMillion: 15},
	"mini":   {Provider: models.ProviderOpenAI, InputPerMillion: 0.15, OutputPerMillion: 0.6},
	"llama":  {Provider: models.ProviderOllama},
	"cli":    {Provider: models.ProviderCLI},
}

func upstream(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "down", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "hi there"}}},
			"usage":   map[string]int{"prompt_tokens": 100, "completion_tokens": 20},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, budget models.BudgetConfig, upstreamStatus int) *httptest.Server {
	t.Helper()
	return newTestServerWith(t, budget, upstream(t, upstreamStatus))
}

func newTestServerWith(t *testing.T, budget models.BudgetConfig, up *httptest.Server) *httptest.Server {
	t.Helper()
	store, err := usagelog.NewFileStore(filepath.Join(t.TempDir(), "usage.jsonl"))
	require.NoError(t, err)
	l := ledger.New(store, ledger.Options{Catalog: catalog, Budget: budget})

	ok := health.ProbeFunc(func(context.Context) error { return nil })
	mon := health.NewMonitor(map[models.Provider]health.Prober{
		models.ProviderAnthropic: ok, models.ProviderOpenAI: ok, models.ProviderOllama: ok, models.ProviderCLI: ok,
	})
	rt := router.New(router.Config{
		Catalog: catalog,
		Rules: map[models.Complexity]models.RoutingRule{
			models.ComplexityTrivial:  {Preferred: "llama"},
			models.ComplexitySimple:   {Preferred: "mini"},
			models.ComplexityModerate: {Preferred: "mini"},
			models.ComplexityComplex:  {Preferred: "sonnet"},
			models.ComplexityExpert:   {Preferred: "sonnet"},
		},
		FallbackChain: []string{"sonnet", "mini"},
		ZeroCostModel: "llama",
		DefaultModel:  "sonnet",
		CLIModel:      "cli",
	}, l, mon)

	d := dispatch.New(catalog, provider.NewRegistry(&provider.OpenAI{BaseURL: up.URL, APIKey: "k"}), rt, l)

	srv := httptest.NewServer(New(Deps{Router: rt, Executor: d, Ledger: l, Health: mon}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func get(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, models.BudgetConfig{}, http.StatusOK)
	resp, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestRouteEndpoint(t *testing.T) {
	srv := newTestServer(t, models.BudgetConfig{}, http.StatusOK)

	resp, body := post(t, srv.URL+"/v1/route", `{"complexity":"complex"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sonnet", body["model"])
	assert.Equal(t, "matched rule for complex", body["justification"])
}

func TestRouteValidation(t *testing.T) {
	srv := newTestServer(t, models.BudgetConfig{}, http.StatusOK)

	resp, body := post(t, srv.URL+"/v1/route", `{"complexity":"legendary"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	assert.Contains(t, errObj["message"], "Complexity")
	assert.Equal(t, "llmrouter_error", errObj["type"])

	resp, _ = post(t, srv.URL+"/v1/route", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOverrideEndpoint(t *testing.T) {
	srv := newTestServer(t, models.BudgetConfig{}, http.StatusOK)
	resp, body := post(t, srv.URL+"/v1/route/override", `{"model":"mini"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "mini", body["model"])
	assert.Contains(t, body["justification"], "Manual override")

	resp, _ = post(t, srv.URL+"/v1/route/override", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSuggestEndpoint(t *testing.T) {
	srv := newTestServer(t, models.BudgetConfig{}, http.StatusOK)
	resp, body := post(t, srv.URL+"/v1/suggest", `{"complexity":"complex","category":"coding","description":"split a file"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["recommended"])
	assert.Equal(t, "cli", body["zero_cost_model"])
}

func TestCompleteEndpoint(t *testing.T) {
	srv := newTestServer(t, models.BudgetConfig{}, http.StatusOK)

	resp, body := post(t, srv.URL+"/v1/complete", `{"prompt":"hello","criteria":{"complexity":"simple"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	assert.Equal(t, "hi there", result["content"])
	assert.Equal(t, "mini", result["model"])

	_, report := get(t, srv.URL+"/v1/report?period=day")
	assert.EqualValues(t, 1, report["request_count"])

	resp, _ = post(t, srv.URL+"/v1/complete", `{"prompt":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompleteUpstreamFailure(t *testing.T) {
	srv := newTestServer(t, models.BudgetConfig{}, http.StatusInternalServerError)
	resp, body := post(t, srv.URL+"/v1/complete", `{"prompt":"hello","model":"mini"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	msg := body["error"].(map[string]any)["message"].(string)
	assert.Contains(t, msg, "mini")
}

func TestCompleteUpstreamErrorBodyIsValidJSON(t *testing.T) {
	body := "\x1b[31m" + strings.Repeat("é", 300) + "\x00"
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(up.Close)
	srv := newTestServerWith(t, models.BudgetConfig{}, up)

	resp, err := http.Post(srv.URL+"/v1/complete", "application/json", strings.NewReader(`{"prompt":"hello","model":"mini"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var out struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out.Error.Message, "HTTP 500")
	assert.Contains(t, out.Error.Message, "é")
	assert.Equal(t, "llmrouter_error", out.Error.Type)
	assert.Equal(t, http.StatusBadGateway, out.Error.Code)
}

func TestWriteJSONErrorEscapesRawBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSONError(rec, http.StatusBadGateway, "openai: HTTP 500: upstream \x1b[31mboom\x00 \xff")

	var out map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Contains(t, out["error"]["message"], "boom")
	assert.EqualValues(t, http.StatusBadGateway, out["error"]["code"])
}

func TestBudgetEndpoint(t *testing.T) {
	srv := newTestServer(t, models.BudgetConfig{ProjectDaily: 0.00001}, http.StatusOK)

	_, body := get(t, srv.URL+"/v1/budget")
	assert.Equal(t, false, body["is_over_budget"])

	resp, _ := post(t, srv.URL+"/v1/complete", `{"prompt":"hello","model":"mini"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = get(t, srv.URL+"/v1/budget")
	assert.Equal(t, true, body["is_over_budget"])
	assert.NotEmpty(t, body["warnings"])

	_, routed := post(t, srv.URL+"/v1/route", `{"complexity":"expert"}`)
	assert.Equal(t, "llama", routed["model"])
	assert.Contains(t, routed["justification"], "Budget exceeded")
}

func TestReportEndpoint(t *testing.T) {
	srv := newTestServer(t, models.BudgetConfig{}, http.StatusOK)

	resp, body := get(t, srv.URL+"/v1/report")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["request_count"])
	assert.EqualValues(t, 0, body["total_cost"])

	resp, _ = get(t, srv.URL+"/v1/report?period=year")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	textResp, err := http.Get(srv.URL + "/v1/report?period=week&format=text")
	require.NoError(t, err)
	defer textResp.Body.Close()
	assert.Contains(t, textResp.Header.Get("Content-Type"), "text/plain")
}

func TestHealthCacheEndpoints(t *testing.T) {
	srv := newTestServer(t, models.BudgetConfig{}, http.StatusOK)
	post(t, srv.URL+"/v1/route", `{"complexity":"simple"}`)

	_, snap := get(t, srv.URL+"/v1/health")
	assert.Contains(t, snap, "openai")

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/health/cache", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, snap = get(t, srv.URL+"/v1/health")
	assert.Empty(t, snap)
}
