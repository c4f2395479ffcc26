package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/tasks-api/internal/command"
	"github.com/phrazzld/tasks-api/internal/platform/logger"
	"github.com/phrazzld/tasks-api/internal/redact"
	"github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultConfirmTimeout bounds the wait for a publisher confirm.
const DefaultConfirmTimeout = 5 * time.Second

// TraceIDHeader carries the request trace ID on every published message,
// alongside the W3C traceparent header when a span is active.
const TraceIDHeader = "x-trace-id"

// ConnectionSource is what a Publisher needs from the connection manager.
// *Manager implements it.
type ConnectionSource interface {
	Channel() (Channel, uint64, error)
	Reconnect(ctx context.Context) error
}

// QueueEnsurer asserts a queue before publishing. *Provisioner implements it.
type QueueEnsurer interface {
	EnsureQueue(ctx context.Context, desc QueueDescriptor) error
}

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	Queue QueueDescriptor
	// Confirms waits for a broker ack on every publish. The Manager must
	// open channels in confirm mode as well.
	Confirms       bool
	ConfirmTimeout time.Duration
}

// Publisher sends command envelopes to the work queue as persistent messages.
type Publisher struct {
	source      ConnectionSource
	provisioner QueueEnsurer
	cfg         PublisherConfig
	logger      *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(
	source ConnectionSource,
	provisioner QueueEnsurer,
	cfg PublisherConfig,
	logger *slog.Logger,
) *Publisher {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	return &Publisher{
		source:      source,
		provisioner: provisioner,
		cfg:         cfg,
		logger:      logger.With("component", "command_publisher"),
	}
}

// Queue returns the name of the queue messages are sent to.
func (p *Publisher) Queue() string {
	return p.cfg.Queue.Name
}

// Publish sends env to the work queue. If no channel is available it makes
// exactly one reconnection attempt; the queue is asserted for the current
// channel generation before sending. Nothing is retried beyond that.
//
// Errors are ErrNotConnected (possibly wrapping the reconnect failure),
// *QueueProvisionError or *PublishError.
func (p *Publisher) Publish(ctx context.Context, env *command.Envelope) error {
	log := logger.FromContextOrDefault(ctx, p.logger).With(
		"message_id", env.MessageID(),
		"action", string(env.Action()),
		"queue", p.cfg.Queue.Name,
	)

	body, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	if err := p.ready(ctx, log); err != nil {
		log.ErrorContext(ctx, "command not published", "error", redact.Error(err))
		return err
	}

	ch, gen, err := p.source.Channel()
	if err != nil {
		log.ErrorContext(ctx, "command not published", "error", redact.Error(err))
		return err
	}

	msg := amqp091.Publishing{
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
		DeliveryMode:    amqp091.Persistent,
		MessageId:       env.MessageID(),
		Timestamp:       env.Metadata().CreatedAt,
		Type:            string(env.Action()),
		AppId:           env.Metadata().Source,
		Headers:         amqp091.Table{},
		Body:            body,
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(msg.Headers))
	if traceID := traceIDFromContext(ctx); traceID != "" {
		msg.Headers[TraceIDHeader] = traceID
	}

	if err := p.send(ctx, ch, msg); err != nil {
		perr := &PublishError{Queue: p.cfg.Queue.Name, MessageID: env.MessageID(), Err: err}
		log.ErrorContext(ctx, "broker rejected publish",
			"generation", gen,
			"error", redact.Error(err))
		return perr
	}

	log.InfoContext(ctx, "command published",
		"generation", gen,
		"confirmed", p.cfg.Confirms,
		"bytes", len(body))
	return nil
}

// ready makes sure a channel exists and the queue is asserted on it.
func (p *Publisher) ready(ctx context.Context, log *slog.Logger) error {
	if _, _, err := p.source.Channel(); err != nil {
		if !errors.Is(err, ErrNotConnected) {
			return err
		}
		log.WarnContext(ctx, "broker not connected, attempting reconnection")
		if rerr := p.source.Reconnect(ctx); rerr != nil {
			return fmt.Errorf("%w: %w", ErrNotConnected, rerr)
		}
	}
	return p.provisioner.EnsureQueue(ctx, p.cfg.Queue)
}

func (p *Publisher) send(ctx context.Context, ch Channel, msg amqp091.Publishing) error {
	if !p.cfg.Confirms {
		return ch.PublishWithContext(ctx, "", p.cfg.Queue.Name, false, false, msg)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
	defer cancel()

	acked, err := ch.PublishAndConfirm(confirmCtx, "", p.cfg.Queue.Name, msg)
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return ErrConfirmTimeout
	case err != nil:
		return err
	case !acked:
		return ErrPublishNacked
	default:
		return nil
	}
}

// traceIDFromContext prefers the request trace ID and falls back to the
// active span's.
func traceIDFromContext(ctx context.Context) string {
	if id := logger.TraceIDFromContext(ctx); id != "" {
		return id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
