package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/llmrouter/pkg/ledger"
	"github.com/pario-ai/llmrouter/pkg/models"
	"github.com/pario-ai/llmrouter/pkg/pricing"
	"github.com/pario-ai/llmrouter/pkg/provider"
	"github.com/pario-ai/llmrouter/pkg/router"
	"github.com/pario-ai/llmrouter/pkg/usagelog"
)

const (
	inTokens  = 1200
	outTokens = 300
)

var catalog = models.Catalog{
	"opus":     {Provider: models.ProviderAnthropic, InputPerMillion: 15, OutputPerMillion: 75},
	"sonnet":   {Provider: models.ProviderAnthropic, InputPerMillion: 3, OutputPerMillion: 15},
	"gpt-4o":   {Provider: models.ProviderOpenAI, InputPerMillion: 2.5, OutputPerMillion: 10},
	"mini":     {Provider: models.ProviderOpenAI, InputPerMillion: 0.15, OutputPerMillion: 0.6},
	"deepseek": {Provider: models.ProviderOpenRouter, InputPerMillion: 0.27, OutputPerMillion: 1.1},
	"llama":    {Provider: models.ProviderOllama},
	"cli":      {Provider: models.ProviderCLI},
}

type allHealthy struct{}

func (allHealthy) Healthy(context.Context, models.Provider) bool { return true }

// fakeUpstream serves every provider API shape and fails for models in fail.
func fakeUpstream(t *testing.T, fail map[string]bool, delay time.Duration) *httptest.Server {
	t.Helper()
	respond := func(w http.ResponseWriter, r *http.Request, body func() any) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if fail[req.Model] {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, func() any {
			return map[string]any{
				"content": []map[string]string{{"type": "text", "text": "anthropic says hi"}},
				"usage":   map[string]int{"input_tokens": inTokens, "output_tokens": outTokens},
			}
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, func() any {
			return map[string]any{
				"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "chat says hi"}}},
				"usage":   map[string]int{"prompt_tokens": inTokens, "completion_tokens": outTokens},
			}
		})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, func() any {
			return map[string]any{
				"message":           map[string]string{"role": "assistant", "content": "local says hi"},
				"prompt_eval_count": inTokens,
				"eval_count":        outTokens,
			}
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	router *router.Router
	ledger *ledger.Ledger
	store  *usagelog.FileStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store, err := usagelog.NewFileStore(filepath.Join(t.TempDir(), "usage.jsonl"))
	require.NoError(t, err)
	l := ledger.New(store, ledger.Options{Catalog: catalog, PriciestModel: "opus"})
	r := router.New(router.Config{
		Catalog: catalog,
		Rules: map[models.Complexity]models.RoutingRule{
			models.ComplexityTrivial:  {Preferred: "llama"},
			models.ComplexitySimple:   {Preferred: "mini"},
			models.ComplexityModerate: {Preferred: "deepseek"},
			models.ComplexityComplex:  {Preferred: "sonnet"},
			models.ComplexityExpert:   {Preferred: "opus"},
		},
		FallbackChain: []string{"opus", "sonnet", "gpt-4o", "deepseek", "mini", "llama"},
		ZeroCostModel: "llama",
		DefaultModel:  "sonnet",
		PriciestModel: "opus",
	}, l, allHealthy{})
	return fixture{router: r, ledger: l, store: store}
}

func registry(baseURL string, extra ...provider.Client) *provider.Registry {
	clients := []provider.Client{
		&provider.Anthropic{BaseURL: baseURL, APIKey: "k"},
		&provider.OpenAI{BaseURL: baseURL, APIKey: "k"},
		&provider.OpenRouter{BaseURL: baseURL, APIKey: "k"},
		&provider.Ollama{BaseURL: baseURL},
	}
	return provider.NewRegistry(append(clients, extra...)...)
}

func TestExecuteRecordsActualUsage(t *testing.T) {
	f := newFixture(t)
	srv := fakeUpstream(t, nil, 0)
	d := New(catalog, registry(srv.URL), f.router, f.ledger)
	ctx := context.Background()

	dec := f.router.Route(ctx, models.Criteria{Complexity: models.ComplexityComplex, EstimatedTokens: 50})
	res, err := d.Execute(ctx, dec, Request{Prompt: "hello", TaskType: "coding"})
	require.NoError(t, err)
	assert.Equal(t, "sonnet", res.Model)
	assert.Equal(t, "anthropic says hi", res.Content)
	assert.False(t, res.FellBack)
	assert.NotEmpty(t, res.UsageID)
	assert.InDelta(t, pricing.CalculateCost(catalog, "sonnet", inTokens, outTokens, 0), res.Cost, 1e-12)

	recs, err := f.store.Since(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	// Actual counts, not the estimate.
	assert.Equal(t, inTokens, recs[0].InputTokens)
	assert.Equal(t, "coding", recs[0].TaskType)
}

func TestExecuteOneFallbackHop(t *testing.T) {
	f := newFixture(t)
	srv := fakeUpstream(t, map[string]bool{"gpt-4o": true}, 0)
	d := New(catalog, registry(srv.URL), f.router, f.ledger)
	ctx := context.Background()

	res, err := d.Execute(ctx, models.RoutingDecision{Model: "gpt-4o"}, Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "deepseek", res.Model)
	assert.True(t, res.FellBack)

	recs, err := f.store.Since(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "deepseek", recs[0].Model)
}

func TestExecuteFallbackAlsoFails(t *testing.T) {
	f := newFixture(t)
	srv := fakeUpstream(t, map[string]bool{"gpt-4o": true, "deepseek": true, "mini": true}, 0)
	d := New(catalog, registry(srv.URL), f.router, f.ledger)

	_, err := d.Execute(context.Background(), models.RoutingDecision{Model: "gpt-4o"}, Request{Prompt: "x"})
	require.Error(t, err)

	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "deepseek", de.Model)
	assert.Equal(t, "gpt-4o", de.Original)
	assert.True(t, de.HasFallback)

	var se *provider.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)

	// No second hop to mini.
	recs, err := f.store.Since(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestExecuteNoFallback(t *testing.T) {
	f := newFixture(t)
	srv := fakeUpstream(t, map[string]bool{"llama": true}, 0)
	d := New(catalog, registry(srv.URL), f.router, f.ledger)

	_, err := d.Execute(context.Background(), models.RoutingDecision{Model: "llama"}, Request{Prompt: "x"})
	var de *Error
	require.True(t, errors.As(err, &de))
	assert.False(t, de.HasFallback)
	assert.Equal(t, "llama", de.Model)
	assert.Contains(t, err.Error(), "no fallback")
}

func TestExecuteTimeoutTriggersFallback(t *testing.T) {
	f := newFixture(t)
	slow := fakeUpstream(t, nil, 2*time.Second)
	fast := fakeUpstream(t, nil, 0)
	reg := provider.NewRegistry(
		&provider.OpenAI{BaseURL: slow.URL, APIKey: "k"},
		&provider.OpenRouter{BaseURL: fast.URL, APIKey: "k"},
	)
	d := New(catalog, reg, f.router, f.ledger, WithTimeout(100*time.Millisecond))

	res, err := d.Execute(context.Background(), models.RoutingDecision{Model: "gpt-4o"}, Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "deepseek", res.Model)
}

type countingWindow struct{ n atomic.Int32 }

func (w *countingWindow) Record(context.Context) error {
	w.n.Add(1)
	return nil
}

func (w *countingWindow) NearCap(context.Context) (bool, error) { return false, nil }

func TestExecuteCLIRecordsWindow(t *testing.T) {
	f := newFixture(t)
	script := filepath.Join(t.TempDir(), "assistant")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho '{\"result\":\"patched\",\"usage\":{\"input_tokens\":9,\"output_tokens\":4}}'\n"), 0o755))

	w := &countingWindow{}
	d := New(catalog, provider.NewRegistry(&provider.CLI{Command: script}), f.router, f.ledger, WithLimiter(w))

	res, err := d.Execute(context.Background(), models.RoutingDecision{Model: "cli"}, Request{Prompt: "fix it"})
	require.NoError(t, err)
	assert.Equal(t, "patched", res.Content)
	assert.Zero(t, res.Cost)
	assert.Equal(t, int32(1), w.n.Load())
}

type failingRecorder struct{}

func (failingRecorder) RecordUsage(context.Context, ledger.UsageInput) (models.UsageRecord, error) {
	return models.UsageRecord{Cost: 0.5}, errors.New("disk full")
}

func TestExecuteRecordFailureNotReturned(t *testing.T) {
	f := newFixture(t)
	srv := fakeUpstream(t, nil, 0)
	d := New(catalog, registry(srv.URL), f.router, failingRecorder{})

	res, err := d.Execute(context.Background(), models.RoutingDecision{Model: "mini"}, Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Empty(t, res.UsageID)
}

func TestEndToEndFiveTiers(t *testing.T) {
	f := newFixture(t)
	srv := fakeUpstream(t, nil, 0)
	d := New(catalog, registry(srv.URL), f.router, f.ledger)
	ctx := context.Background()

	var want float64
	for _, c := range models.Complexities {
		dec := f.router.Route(ctx, models.Criteria{Complexity: c})
		res, err := d.Execute(ctx, dec, Request{Prompt: "task"})
		require.NoError(t, err)
		want += pricing.CalculateCost(catalog, res.Model, inTokens, outTokens, 0)
	}

	report, err := f.ledger.CostReport(ctx, models.PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, 5, report.RequestCount)
	assert.InDelta(t, want, report.TotalCost, 1e-12)
	assert.Len(t, report.ByModel, 5)
}
