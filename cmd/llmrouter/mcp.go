package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/llmrouter/pkg/mcp"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve routing tools to agent hosts over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			srv := mcp.New(mcp.Deps{
				Router:   a.router,
				Ledger:   a.ledger,
				Executor: a.dispatcher,
				Health:   a.monitor,
				Logger:   a.logger.Named("mcp"),
			}, version)
			return srv.Run(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}
