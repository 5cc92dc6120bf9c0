package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pario-ai/llmrouter/pkg/ledger"
	"github.com/pario-ai/llmrouter/pkg/models"
)

func newCostCmd(flags *globalFlags) *cobra.Command {
	var (
		period string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Show spend for the last day, week or month",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := models.ParsePeriod(period)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			r, err := a.ledger.CostReport(cmd.Context(), p)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(r)
			}
			fmt.Print(ledger.FormatReport(r))
			return nil
		},
	}

	cmd.Flags().StringVarP(&period, "period", "p", "day", "report period (day, week, month)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
