package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pario-ai/llmrouter/pkg/models"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096
)

// Anthropic calls the Messages API.
type Anthropic struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Kind implements Client.
func (a *Anthropic) Kind() models.Provider { return models.ProviderAnthropic }

func (a *Anthropic) sealed() {}

// Complete implements Client.
func (a *Anthropic) Complete(ctx context.Context, prompt string, opts Options) (*Completion, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	body := anthropicRequest{
		Model:       opts.Model,
		System:      opts.SystemPrompt,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
	}
	headers := map[string]string{
		"x-api-key":         a.APIKey,
		"anthropic-version": anthropicVersion,
	}

	start := time.Now()
	var resp anthropicResponse
	if err := postJSON(ctx, httpClient(a.HTTP), a.Kind(), strings.TrimRight(a.BaseURL, "/")+"/v1/messages", headers, body, &resp); err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			content.WriteString(c.Text)
		}
	}
	return &Completion{
		Content:      content.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		LatencyMs:    elapsedMs(start),
	}, nil
}
