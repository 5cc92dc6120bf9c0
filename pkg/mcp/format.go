package mcp

import (
	"fmt"
	"strings"

	"github.com/pario-ai/llmrouter/pkg/ledger"
	"github.com/pario-ai/llmrouter/pkg/models"
)

func formatDecision(d models.RoutingDecision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model:          %s (%s)\n", d.Model, d.Provider)
	fmt.Fprintf(&b, "Estimated cost: $%.6f\n", d.EstimatedCost)
	fmt.Fprintf(&b, "Fallback:       %t\n", d.HasFallback)
	fmt.Fprintf(&b, "Reason:         %s\n", d.Justification)
	if d.OverCeiling {
		b.WriteString("Note:           estimated cost is above this tier's ceiling\n")
	}
	return b.String()
}

func formatSuggestion(s models.Suggestion) string {
	verdict := "no"
	if s.Recommended {
		verdict = "yes"
	}
	tool := s.ZeroCostModel
	if tool == "" {
		tool = "zero-cost CLI"
	}
	return fmt.Sprintf("Use %s: %s\n"+
		"  Routed model:   %s ($%.6f)\n"+
		"  Savings:        $%.6f\n"+
		"  Reason:         %s\n",
		tool, verdict,
		s.RoutedModel, s.RoutedCost, s.EstimatedSavings, s.Reason)
}

// formatBudget renders spend against limits as a text table.
func formatBudget(st models.BudgetStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-18s %12s %12s\n", "Scope", "Spent", "Remaining")
	b.WriteString(strings.Repeat("-", 44) + "\n")
	row := func(name string, spent, remaining float64) {
		fmt.Fprintf(&b, "%-18s $%11.4f $%11.4f\n", name, spent, remaining)
	}
	row("project today", st.ProjectDaily, st.ProjectDailyRemaining)
	row("project month", st.ProjectMonthly, st.ProjectMonthlyRemaining)
	row("global today", st.GlobalDaily, st.GlobalDailyRemaining)
	row("global month", st.GlobalMonthly, st.GlobalMonthlyRemaining)
	fmt.Fprintf(&b, "\nProject usage: %.1f%%  Global usage: %.1f%%\n", st.PercentUsed, st.GlobalPercentUsed)

	warnings := ledger.Warnings(st)
	if len(warnings) == 0 {
		b.WriteString("Within budget.\n")
	}
	for _, w := range warnings {
		b.WriteString("WARNING: " + w + "\n")
	}
	return b.String()
}
