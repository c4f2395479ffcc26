package main

import (
	"context"
	"fmt"

	"github.com/phrazzld/tasks-api/internal/config"
	"github.com/phrazzld/tasks-api/internal/platform/tracing"
)

// setupAppTracing installs the global tracer provider and propagator.
func setupAppTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	shutdown, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	return shutdown, nil
}
