package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/tasks-api/internal/api"
	"github.com/phrazzld/tasks-api/internal/broker"
	"github.com/phrazzld/tasks-api/internal/command"
	"github.com/phrazzld/tasks-api/internal/config"
	"github.com/phrazzld/tasks-api/internal/dispatch"
	"github.com/phrazzld/tasks-api/internal/events"
	"github.com/phrazzld/tasks-api/internal/platform/postgres"
	"github.com/phrazzld/tasks-api/internal/redact"
	"github.com/phrazzld/tasks-api/internal/service/auth"
	"github.com/phrazzld/tasks-api/internal/store"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	jwtService auth.JWTService
	taskStore  store.TaskStore
	dispatcher dispatch.Service

	// brokerStatus and breakerStatus feed the health endpoint.
	brokerStatus  api.BrokerStatus
	breakerStatus api.BreakerStatus

	manager *broker.Manager
}

func newAMQPDialer(cfg *config.Config) broker.Dialer {
	return broker.AMQPDialer{
		Heartbeat:      cfg.Broker.Heartbeat,
		Timeout:        cfg.Broker.DialTimeout,
		ConnectionName: cfg.Broker.Source,
	}
}

// queueDescriptor is the work queue every task command is sent to.
func queueDescriptor(cfg config.BrokerConfig) broker.QueueDescriptor {
	return broker.QueueDescriptor{
		Name:               cfg.QueueName,
		Durable:            true,
		DeadLetterExchange: cfg.DeadLetterExchange,
		DeadLetterQueue:    cfg.DeadLetterQueue,
	}
}

// newApplication wires the broker stack, dispatcher, stores and auth. The
// broker connection and queue are established before it returns; failure
// of either is fatal.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
	dialer broker.Dialer,
) (*application, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.RegisterHandler(events.NewLoggingHandler(logger))

	manager := broker.NewManager(dialer, broker.ManagerConfig{
		URL:               cfg.Broker.URL,
		PublisherConfirms: cfg.Broker.PublisherConfirms,
	}, emitter, logger)

	logger.Info("Connecting to broker", "url", redact.URL(cfg.Broker.URL))
	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	provisioner := broker.NewProvisioner(manager, broker.ProvisionerConfig{
		Attempts:   cfg.Broker.ProvisionAttempts,
		RetryDelay: cfg.Broker.ProvisionRetryDelay,
	}, logger)

	queue := queueDescriptor(cfg.Broker)
	if err := provisioner.EnsureQueue(ctx, queue); err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("failed to provision queue %q: %w", queue.Name, err)
	}

	publisher := broker.NewPublisher(manager, provisioner, broker.PublisherConfig{
		Queue:          queue,
		Confirms:       cfg.Broker.PublisherConfirms,
		ConfirmTimeout: cfg.Broker.ConfirmTimeout,
	}, logger)

	dispatcher := dispatch.NewDispatcher(
		publisher,
		command.NewBuilder(cfg.Broker.Source),
		dispatch.Config{
			BreakerEnabled:          cfg.Dispatch.BreakerEnabled,
			BreakerFailureThreshold: cfg.Dispatch.BreakerFailureThreshold,
			BreakerTimeout:          cfg.Dispatch.BreakerTimeout,
		},
		logger,
	)

	app := &application{
		config:        cfg,
		logger:        logger,
		db:            db,
		jwtService:    jwtService,
		taskStore:     postgres.NewPostgresTaskStore(db, logger),
		dispatcher:    dispatcher,
		brokerStatus:  manager,
		breakerStatus: dispatcher,
		manager:       manager,
	}

	logger.Info("Application initialized",
		"queue", queue.Name,
		"dead_letter_exchange", queue.DeadLetterExchange,
		"publisher_confirms", cfg.Broker.PublisherConfirms)
	return app, nil
}

// cleanup releases the broker connection and then the database pool.
func (app *application) cleanup() {
	if app.manager != nil {
		if err := app.manager.Close(); err != nil {
			app.logger.Error("Failed to close broker connection", "error", err)
		}
	}
	if app.db != nil {
		done := make(chan error, 1)
		go func() { done <- app.db.Close() }()
		select {
		case err := <-done:
			if err != nil {
				app.logger.Error("Failed to close database connection", "error", err)
			}
		case <-time.After(5 * time.Second):
			app.logger.Warn("Timed out closing database connection")
		}
	}
	app.logger.Info("Application resources released")
}
