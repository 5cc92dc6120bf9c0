package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/llmrouter/pkg/ledger"
	"github.com/pario-ai/llmrouter/pkg/models"
)

func newBudgetCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show spend against budget limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			st, err := a.ledger.CheckBudget(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(st)
			}

			cfg := a.cfg.Budget
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCOPE\tPERIOD\tSPENT\tLIMIT\tREMAINING")
			row := func(scope, period string, spent, limit, remaining float64) {
				fmt.Fprintf(w, "%s\t%s\t$%.4f\t%s\t%s\n", scope, period, spent, limitStr(limit), limitStr(remaining))
			}
			row("project", "day", st.ProjectDaily, cfg.ProjectDaily, st.ProjectDailyRemaining)
			row("project", "month", st.ProjectMonthly, cfg.ProjectMonthly, st.ProjectMonthlyRemaining)
			row("global", "day", st.GlobalDaily, cfg.GlobalDaily, st.GlobalDailyRemaining)
			row("global", "month", st.GlobalMonthly, cfg.GlobalMonthly, st.GlobalMonthlyRemaining)
			if m := a.ledger.PriciestModel(); m != "" {
				row(m, "day", st.PriciestDaily, cfg.PriciestDaily, remainingOf(cfg.PriciestDaily, st.PriciestDaily))
				row(m, "month", st.PriciestMonthly, cfg.PriciestMonthly, remainingOf(cfg.PriciestMonthly, st.PriciestMonthly))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Printf("\nProject usage %.1f%%, global usage %.1f%%\n", st.PercentUsed, st.GlobalPercentUsed)
			printWarnings(st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func printWarnings(st models.BudgetStatus) {
	for _, w := range ledger.Warnings(st) {
		fmt.Println("WARNING: " + w)
	}
}

// limitStr renders a limit, where zero means unlimited.
func limitStr(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("$%.4f", v)
}

func remainingOf(limit, spent float64) float64 {
	if limit <= 0 {
		return 0
	}
	return max(limit-spent, 0)
}
