package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/llmrouter/pkg/models"
)

func newHealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe every configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			kinds := make([]models.Provider, 0, len(a.cfg.Providers))
			for k := range a.cfg.Providers {
				kinds = append(kinds, k)
			}
			sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

			for _, k := range kinds {
				a.monitor.Healthy(cmd.Context(), k)
			}
			snap := a.monitor.Snapshot()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tSTATUS\tDETAIL")
			for _, k := range kinds {
				e := snap[k]
				status := "healthy"
				if !e.Healthy {
					status = "unhealthy"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", k, status, e.Error)
			}
			return w.Flush()
		},
	}
}
