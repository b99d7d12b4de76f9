package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Strob0t/taskcrew/internal/adapter/memstore"
	tcnats "github.com/Strob0t/taskcrew/internal/adapter/nats"
	"github.com/Strob0t/taskcrew/internal/adapter/postgres"
	"github.com/Strob0t/taskcrew/internal/adapter/slack"
	"github.com/Strob0t/taskcrew/internal/config"
	"github.com/Strob0t/taskcrew/internal/logger"
	"github.com/Strob0t/taskcrew/internal/port/database"
	"github.com/Strob0t/taskcrew/internal/port/notifier"
	"github.com/Strob0t/taskcrew/internal/port/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taskcrew",
		Short:         "Task orchestration for a crew of role-specialised workers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "path to the YAML config file (default "+config.DefaultConfigFile+")")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("dsn", "", "PostgreSQL connection string")
	pf.String("nats-url", "", "NATS server URL")
	pf.String("store", "", "task store driver (postgres, memory)")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newProcessQueueCmd(),
		newWorkerCmd(),
	)
	return root
}

// loadConfig resolves the config hierarchy, applying only the persistent
// flags that were set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var flags config.CLIFlags
	set := func(name string, dst **string) {
		if !cmd.Flags().Changed(name) {
			return
		}
		v, err := cmd.Flags().GetString(name)
		if err == nil {
			*dst = &v
		}
	}
	set("config", &flags.ConfigPath)
	set("port", &flags.Port)
	set("log-level", &flags.LogLevel)
	set("dsn", &flags.DSN)
	set("nats-url", &flags.NatsURL)
	set("store", &flags.StoreDriver)

	cfg, path, err := config.LoadWithCLI(flags)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// setupLogger installs the configured logger as the slog default.
func setupLogger(cfg *config.Config) (*slog.Logger, logger.Closer) {
	log, closer := logger.New(cfg.Logging)
	slog.SetDefault(log)
	return log, closer
}

// storeHandle bundles a task store with its health check and cleanup.
type storeHandle struct {
	database.Store
	ping  func(context.Context) error
	close func()
}

// openStore connects the configured backend. The postgres driver applies
// pending migrations before returning.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*storeHandle, error) {
	if cfg.Store.Driver == "memory" {
		log.Warn("using in-memory task store; state is lost on exit")
		return &storeHandle{Store: memstore.New(), close: func() {}}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	log.Info("postgres connected", "max_conns", cfg.Postgres.MaxConns)

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	return &storeHandle{
		Store: postgres.NewStore(pool),
		ping:  pool.Ping,
		close: pool.Close,
	}, nil
}

// newInvoker builds the worker invoker for the configured transport.
func newInvoker(cfg *config.Config) (worker.Invoker, error) {
	inv, err := worker.New(cfg.Worker.Transport, worker.Options{
		BaseURL:              cfg.Worker.BaseURL,
		APIKey:               cfg.Worker.APIKey,
		NATSURL:              cfg.NATS.URL,
		Timeout:              cfg.Worker.Timeout,
		MaxRetries:           cfg.Worker.MaxRetries,
		RetryInitialInterval: cfg.Worker.RetryInitialInterval,
		BreakerMaxFailures:   cfg.Breaker.MaxFailures,
		BreakerTimeout:       cfg.Breaker.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("worker invoker (available: %v): %w", worker.Available(), err)
	}
	return worker.Limited(inv, cfg.Worker.MaxInFlight), nil
}

// connectQueue connects to NATS when a URL is configured. NATS is optional:
// a failed connection is logged and nil is returned.
func connectQueue(ctx context.Context, cfg *config.Config, log *slog.Logger) *tcnats.Queue {
	if cfg.NATS.URL == "" {
		return nil
	}
	q, err := tcnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		log.Warn("nats unavailable, change events stay local", "url", cfg.NATS.URL, "error", err)
		return nil
	}
	return q
}

// outboundSinks returns the change sinks that leave the process: the NATS
// change subject when q is set and the Slack alert hook when configured.
func outboundSinks(cfg *config.Config, q *tcnats.Queue) []notifier.Notifier {
	var sinks []notifier.Notifier
	if q != nil {
		sinks = append(sinks, tcnats.NewNotifier(q))
	}
	if cfg.Alerts.SlackWebhookURL != "" {
		sinks = append(sinks, slack.NewNotifier(cfg.Alerts.SlackWebhookURL))
	}
	return sinks
}
