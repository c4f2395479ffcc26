// Package main implements the entry point for the tasks API server, which
// accepts task commands over HTTP and queues them on RabbitMQ for
// asynchronous processing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phrazzld/tasks-api/internal/config"
	"github.com/phrazzld/tasks-api/internal/platform/postgres"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

// run parses flags, loads configuration and either executes a migration
// command or serves HTTP until a shutdown signal arrives.
func run(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	migrateCmd := fs.String("migrate", "", "run a migration command (up, down, reset, status, version) and exit")
	configPath := fs.String("config", "", "path to a config file (defaults to ./config.yaml when present)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAppConfig(*configPath)
	if err != nil {
		return err
	}

	log, err := setupAppLogger(cfg)
	if err != nil {
		return err
	}
	log.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"queue", cfg.Broker.QueueName,
		"breaker_enabled", cfg.Dispatch.BreakerEnabled)

	shutdownTracing, err := setupAppTracing(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("Failed to flush traces", "error", err)
		}
	}()

	db, err := setupAppDatabase(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *migrateCmd != "" {
		defer func() { _ = db.Close() }()
		return postgres.RunMigrations(ctx, db, *migrateCmd, log)
	}

	app, err := newApplication(ctx, cfg, log, db, newAMQPDialer(cfg))
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	return app.startHTTPServer(ctx, app.setupRouter())
}

func loadAppConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
