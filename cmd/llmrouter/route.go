package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/llmrouter/pkg/models"
)

// criteriaFlags are the routing inputs shared by route, suggest and complete.
type criteriaFlags struct {
	complexity string
	category   string
	taskType   string
	tokens     int
}

func (f *criteriaFlags) register(cmd *cobra.Command, defaultCategory string) {
	cmd.Flags().StringVar(&f.complexity, "complexity", "moderate", "task complexity (trivial, simple, moderate, complex, expert)")
	cmd.Flags().StringVar(&f.category, "category", defaultCategory, "task category, e.g. coding")
	cmd.Flags().StringVar(&f.taskType, "task-type", "", "task type, e.g. refactor")
	cmd.Flags().IntVar(&f.tokens, "tokens", 0, "estimated tokens each way (default from config)")
}

func (f *criteriaFlags) criteria() (models.Criteria, error) {
	c, err := models.ParseComplexity(f.complexity)
	if err != nil {
		return models.Criteria{}, err
	}
	if f.tokens < 0 {
		return models.Criteria{}, fmt.Errorf("--tokens must not be negative")
	}
	return models.Criteria{
		Complexity:      c,
		Category:        f.category,
		TaskType:        f.taskType,
		EstimatedTokens: f.tokens,
	}, nil
}

func newRouteCmd(flags *globalFlags) *cobra.Command {
	var (
		cf       criteriaFlags
		override string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Show which model a task would be routed to",
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := cf.criteria()
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

			if asJSON {
				return printJSON(d)
			}
			fmt.Printf("Model:          %s (%s)\n", d.Model, d.Provider)
			fmt.Printf("Estimated cost: $%.6f\n", d.EstimatedCost)
			fmt.Printf("Has fallback:   %t\n", d.HasFallback)
			fmt.Printf("Reason:         %s\n", d.Justification)
			if d.OverCeiling {
				fmt.Println("Note:           estimated cost exceeds this tier's ceiling")
			}
			return nil
		},
	}

	cf.register(cmd, "")
	cmd.Flags().StringVar(&override, "model", "", "force a model instead of matching a rule")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the decision as JSON")
	return cmd
}

func newSuggestCmd(flags *globalFlags) *cobra.Command {
	var (
		cf     criteriaFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "suggest [description]",
		Short: "Check whether a coding task should use the zero-cost CLI assistant",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := cf.criteria()
			if err != nil {
				return err
			}
			var description string
			if len(args) == 1 {
				description = args[0]
			}

			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			s := a.router.SuggestZeroCostPath(cmd.Context(), criteria, description)
			if asJSON {
				return printJSON(s)
			}
			verdict := "no"
			if s.Recommended {
				verdict = "yes"
			}
			fmt.Printf("Use %s: %s\n", defaultStr(s.ZeroCostModel, "CLI assistant"), verdict)
			fmt.Printf("  Routed model: %s ($%.6f)\n", s.RoutedModel, s.RoutedCost)
			fmt.Printf("  Savings:      $%.6f\n", s.EstimatedSavings)
			fmt.Printf("  Reason:       %s\n", s.Reason)
			return nil
		},
	}

	cf.register(cmd, "coding")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the suggestion as JSON")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
