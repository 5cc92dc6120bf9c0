package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/llmrouter/pkg/dispatch"
	"github.com/pario-ai/llmrouter/pkg/models"
)

func newCompleteCmd(flags *globalFlags) *cobra.Command {
	var (
		cf        criteriaFlags
		override  string
		system    string
		maxTokens int
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "complete [prompt]",
		Short: "Route a prompt and run it on the chosen model",
		Long:  "Route a prompt and run it on the chosen model. With no argument the prompt is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := cf.criteria()
			if err != nil {
				return err
			}

			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var d models.RoutingDecision
			if override != "" {
				d = a.router.RouteWithOverride(cmd.Context(), override, criteria)
			} else {
				d = a.router.Route(cmd.Context(), criteria)
			}

			res, err := a.dispatcher.Execute(cmd.Context(), d, dispatch.Request{
				Prompt:       prompt,
				SystemPrompt: system,
				MaxTokens:    maxTokens,
				TaskType:     criteria.TaskType,
				ProjectID:    a.cfg.Usage.ProjectID,
			})
			if err != nil {
				return err
			}

			fmt.Println(res.Content)
			if !quiet {
				note := ""
				if res.FellBack {
					note = ", fell back from " + d.Model
				}
				fmt.Fprintf(os.Stderr, "\n[%s via %s, %d in / %d out tokens, %dms, $%.6f%s]\n",
					res.Model, res.Provider, res.InputTokens, res.OutputTokens, res.LatencyMs, res.Cost, note)
			}
			return nil
		},
	}

	cf.register(cmd, "")
	cmd.Flags().StringVar(&override, "model", "", "force a model instead of matching a rule")
	cmd.Flags().StringVar(&system, "system", "", "system prompt")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "maximum output tokens (provider default when 0)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "omit the usage footer")
	return cmd
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	return prompt, nil
}
