package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pario-ai/llmrouter/pkg/models"
)

// Ollama calls a local inference daemon's chat endpoint.
type Ollama struct {
	BaseURL string
	HTTP    *http.Client
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message         chatMessage `json:"message"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

// Kind implements Client.
func (o *Ollama) Kind() models.Provider { return models.ProviderOllama }

func (o *Ollama) sealed() {}

// Complete implements Client.
func (o *Ollama) Complete(ctx context.Context, prompt string, opts Options) (*Completion, error) {
	body := ollamaRequest{
		Model:    opts.Model,
		Messages: chatMessages(prompt, opts),
	}
	if opts.Temperature != nil || opts.MaxTokens > 0 {
		body.Options = &ollamaOptions{Temperature: opts.Temperature, NumPredict: opts.MaxTokens}
	}

	start := time.Now()
	var resp ollamaResponse
	if err := postJSON(ctx, httpClient(o.HTTP), o.Kind(), strings.TrimRight(o.BaseURL, "/")+"/api/chat", nil, body, &resp); err != nil {
		return nil, err
	}
	return &Completion{
		Content:      resp.Message.Content,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
		LatencyMs:    elapsedMs(start),
	}, nil
}
