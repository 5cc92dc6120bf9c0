package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/llmrouter/pkg/config"
	"github.com/pario-ai/llmrouter/pkg/ledger"
	"github.com/pario-ai/llmrouter/pkg/models"
)

func newTopCmd(flags *globalFlags) *cobra.Command {
	var (
		period   string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Live view of spend, refreshed as usage is recorded",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := models.ParsePeriod(period)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			render := func() {
				r, err := a.ledger.CostReport(ctx, p)
				if err != nil {
					a.logger.Warn("cost report failed", zap.Error(err))
					return
				}
				fmt.Print("\033[H\033[2J")
				fmt.Print(ledger.FormatReport(r))
				fmt.Printf("\nUpdated %s. Ctrl-C to exit.\n", time.Now().Format("15:04:05"))
			}

			events, closeWatch, err := watchUsage(a.cfg.Usage)
			if err != nil {
				return err
			}
			defer closeWatch()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			render()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					render()
				case _, ok := <-events:
					if !ok {
						events = nil
						continue
					}
					render()
				}
			}
		},
	}

	cmd.Flags().StringVarP(&period, "period", "p", "day", "report period (day, week, month)")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "refresh interval when no writes are seen")
	return cmd
}

// watchUsage signals on writes to a file-backed usage log. Postgres logs have
// no local file, so the returned channel is nil and only the ticker refreshes.
func watchUsage(cfg config.UsageConfig) (<-chan struct{}, func(), error) {
	if cfg.Driver == config.DriverPostgres {
		return nil, func() {}, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(cfg.Path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	base := filepath.Base(cfg.Path)
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, func() { _ = w.Close() }, nil
}
