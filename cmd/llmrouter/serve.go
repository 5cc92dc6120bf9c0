package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/llmrouter/pkg/server"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the routing HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			addr := a.cfg.Listen
			if listen != "" {
				addr = listen
			}

			srv := server.New(server.Deps{
				Router:      a.router,
				Executor:    a.dispatcher,
				Ledger:      a.ledger,
				Health:      a.monitor,
				Logger:      a.logger.Named("http"),
				CORSOrigins: a.cfg.CORSOrigins,
			})
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}
