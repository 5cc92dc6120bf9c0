package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pario-ai/llmrouter/pkg/models"
)

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func chatCompletion(ctx context.Context, client *http.Client, kind models.Provider, baseURL string, headers map[string]string, prompt string, opts Options) (*Completion, error) {
	body := chatCompletionRequest{
		Model:       opts.Model,
		Messages:    chatMessages(prompt, opts),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	start := time.Now()
	var resp chatCompletionResponse
	if err := postJSON(ctx, client, kind, strings.TrimRight(baseURL, "/")+"/v1/chat/completions", headers, body, &resp); err != nil {
		return nil, err
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	return &Completion{
		Content:      content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		LatencyMs:    elapsedMs(start),
	}, nil
}

// OpenAI calls the Chat Completions API.
type OpenAI struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// Kind implements Client.
func (o *OpenAI) Kind() models.Provider { return models.ProviderOpenAI }

func (o *OpenAI) sealed() {}

// Complete implements Client.
func (o *OpenAI) Complete(ctx context.Context, prompt string, opts Options) (*Completion, error) {
	headers := map[string]string{"Authorization": "Bearer " + o.APIKey}
	return chatCompletion(ctx, httpClient(o.HTTP), o.Kind(), o.BaseURL, headers, prompt, opts)
}

// OpenRouter calls the aggregator's OpenAI-compatible endpoint.
type OpenRouter struct {
	BaseURL string
	APIKey  string
	// Referer and Title identify the app on the aggregator's dashboard.
	Referer string
	Title   string
	HTTP    *http.Client
}

// Kind implements Client.
func (o *OpenRouter) Kind() models.Provider { return models.ProviderOpenRouter }

func (o *OpenRouter) sealed() {}

// Complete implements Client.
func (o *OpenRouter) Complete(ctx context.Context, prompt string, opts Options) (*Completion, error) {
	headers := map[string]string{"Authorization": "Bearer " + o.APIKey}
	if o.Referer != "" {
		headers["HTTP-Referer"] = o.Referer
	}
	if o.Title != "" {
		headers["X-Title"] = o.Title
	}
	return chatCompletion(ctx, httpClient(o.HTTP), o.Kind(), o.BaseURL, headers, prompt, opts)
}
