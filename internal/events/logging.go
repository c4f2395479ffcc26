package events

import (
	"context"
	"log/slog"

	"github.com/phrazzld/tasks-api/internal/redact"
)

// LoggingHandler writes each broker event as a structured log record.
// It is the only place broker lifecycle transitions are logged. Connection
// failures are logged at error level, losses at warn, everything else at info.
type LoggingHandler struct {
	logger *slog.Logger
}

// NewLoggingHandler creates a LoggingHandler.
func NewLoggingHandler(logger *slog.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger.With("component", "broker_events")}
}

// HandleEvent implements EventHandler.
func (h *LoggingHandler) HandleEvent(ctx context.Context, event *BrokerEvent) error {
	attrs := []any{
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.Type),
		slog.Uint64("generation", event.Generation),
		slog.String("state", event.State),
	}
	if event.Err != nil {
		attrs = append(attrs, slog.String("error", redact.Error(event.Err)))
	}

	switch event.Type {
	case TypeBrokerConnectFailed:
		h.logger.ErrorContext(ctx, "broker state changed", attrs...)
	case TypeBrokerConnectionLost, TypeBrokerChannelLost:
		h.logger.WarnContext(ctx, "broker state changed", attrs...)
	default:
		h.logger.InfoContext(ctx, "broker state changed", attrs...)
	}
	return nil
}
