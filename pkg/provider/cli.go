package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pario-ai/llmrouter/pkg/models"
)

// CLI runs a local command-line coding assistant in print mode. The
// assistant is billed by subscription, so its calls have zero marginal cost.
type CLI struct {
	Command string
	// ExtraArgs are appended after the prompt flags.
	ExtraArgs []string
}

type cliResult struct {
	Result string `json:"result"`
	Usage  struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Kind implements Client.
func (c *CLI) Kind() models.Provider { return models.ProviderCLI }

func (c *CLI) sealed() {}

// Complete implements Client. Output that is not the expected JSON envelope
// is returned verbatim with zero token counts.
func (c *CLI) Complete(ctx context.Context, prompt string, opts Options) (*Completion, error) {
	args := []string{"-p", prompt, "--output-format", "json"}
	if opts.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", opts.SystemPrompt)
	}
	args = append(args, c.ExtraArgs...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", c.Kind(), ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s: run %s: %w", c.Kind(), c.Command, err)
		}
		return nil, fmt.Errorf("%s: run %s: %w: %s", c.Kind(), c.Command, err, msg)
	}
	latency := elapsedMs(start)

	out := bytes.TrimSpace(stdout.Bytes())
	var res cliResult
	if err := json.Unmarshal(out, &res); err != nil || res.Result == "" {
		return &Completion{Content: string(out), LatencyMs: latency}, nil
	}
	return &Completion{
		Content:      res.Result,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		LatencyMs:    latency,
	}, nil
}
