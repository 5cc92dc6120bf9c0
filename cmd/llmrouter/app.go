package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pario-ai/llmrouter/pkg/config"
	"github.com/pario-ai/llmrouter/pkg/dispatch"
	"github.com/pario-ai/llmrouter/pkg/health"
	"github.com/pario-ai/llmrouter/pkg/ledger"
	"github.com/pario-ai/llmrouter/pkg/logging"
	"github.com/pario-ai/llmrouter/pkg/ratelimit"
	"github.com/pario-ai/llmrouter/pkg/router"
	"github.com/pario-ai/llmrouter/pkg/usagelog"
	"github.com/pario-ai/llmrouter/pkg/usagelog/postgres"
	"github.com/pario-ai/llmrouter/pkg/usagelog/sqlite"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	ledger     *ledger.Ledger
	monitor    *health.Monitor
	limiter    ratelimit.Window
	router     *router.Router
	dispatcher *dispatch.Dispatcher

	closers []func() error
}

func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := config.LoadOrDefault(flags.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	logger, err := logging.New(level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	project, err := openStore(ctx, cfg.Usage.Driver, cfg.Usage.Path)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open usage log: %w", err)
	}
	a.closers = append(a.closers, project.Close)

	var global usagelog.Store
	if cfg.Usage.GlobalPath != "" {
		global, err = openStore(ctx, cfg.Usage.Driver, cfg.Usage.GlobalPath)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open global usage log: %w", err)
		}
		a.closers = append(a.closers, global.Close)
	}

	a.ledger = ledger.New(project, ledger.Options{
		Catalog:       cfg.Models,
		Budget:        cfg.Budget,
		PriciestModel: cfg.Routing.PriciestModel,
		ProjectID:     cfg.Usage.ProjectID,
		Global:        global,
		Logger:        logger.Named("ledger"),
	})

	a.monitor = health.NewMonitor(cfg.Probes(),
		health.WithTTL(cfg.Health.TTL),
		health.WithProbeTimeout(cfg.Health.ProbeTimeout),
		health.WithLogger(logger.Named("health")),
	)

	a.limiter = a.newLimiter()

	a.router = router.New(cfg.RouterConfig(), a.ledger, a.monitor,
		router.WithLogger(logger.Named("router")),
		router.WithLimiter(a.limiter),
	)

	a.dispatcher = dispatch.New(cfg.Models, cfg.Clients(), a.router, a.ledger,
		dispatch.WithTimeout(cfg.Dispatch.Timeout),
		dispatch.WithLimiter(a.limiter),
		dispatch.WithLogger(logger.Named("dispatch")),
	)
	return a, nil
}

// newLimiter picks the shared Redis window when configured, else an
// in-process one.
func (a *app) newLimiter() ratelimit.Window {
	zc := a.cfg.ZeroCost
	ratio := zc.NearCapPercent / 100
	if zc.RedisAddr == "" {
		return ratelimit.NewLocalWindow(zc.Limit, zc.Window, ratio)
	}
	client := redis.NewClient(&redis.Options{Addr: zc.RedisAddr})
	a.closers = append(a.closers, client.Close)
	return ratelimit.NewRedisWindow(client, "cli", zc.Limit, zc.Window, ratio)
}

// Close releases stores and clients in reverse order of creation.
func (a *app) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	return err
}

func openStore(ctx context.Context, driver, path string) (usagelog.Store, error) {
	switch driver {
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create usage db dir: %w", err)
		}
		return sqlite.New(path)
	case config.DriverPostgres:
		return postgres.Open(ctx, path)
	default:
		return usagelog.NewFileStore(path)
	}
}
