package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/tasks-api/internal/command"
	"github.com/phrazzld/tasks-api/internal/domain"
	"github.com/phrazzld/tasks-api/internal/platform/logger"
	"github.com/phrazzld/tasks-api/internal/redact"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/phrazzld/tasks-api/internal/dispatch"

// Publisher hands a built envelope to the broker.
type Publisher interface {
	Publish(ctx context.Context, env *command.Envelope) error
}

// Service is the dispatch API consumed by HTTP handlers.
type Service interface {
	SubmitCreate(ctx context.Context, fields domain.TaskFields, actor domain.Actor) (*Receipt, error)
	SubmitUpdate(ctx context.Context, resourceID string, fields domain.TaskFields, actor domain.Actor) (*Receipt, error)
	SubmitDelete(ctx context.Context, resourceID string, actor domain.Actor) (*Receipt, error)
}

// Receipt acknowledges that a command was enqueued.
type Receipt struct {
	MessageID  string
	Action     command.Action
	ResourceID string
}

// Config configures the optional circuit breaker around publishing.
type Config struct {
	BreakerEnabled bool
	// BreakerFailureThreshold is the number of consecutive publish failures
	// that opens the breaker.
	BreakerFailureThreshold uint32
	// BreakerTimeout is how long the breaker stays open before letting a
	// trial request through.
	BreakerTimeout time.Duration
	// TracerProvider creates the dispatch spans. Nil uses the global provider.
	TracerProvider trace.TracerProvider
}

// Dispatcher implements Service.
type Dispatcher struct {
	publisher Publisher
	builder   *command.Builder
	breaker   *gobreaker.CircuitBreaker
	tracer    trace.Tracer
	logger    *slog.Logger
}

var _ Service = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
func NewDispatcher(publisher Publisher, builder *command.Builder, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	d := &Dispatcher{
		publisher: publisher,
		builder:   builder,
		tracer:    tp.Tracer(tracerName),
		logger:    logger.With("component", "dispatcher"),
	}

	if cfg.BreakerEnabled {
		threshold := cfg.BreakerFailureThreshold
		if threshold == 0 {
			threshold = 5
		}
		d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "task-command-publish",
			MaxRequests: 1,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				d.logger.Warn("circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String())
			},
		})
	}

	return d
}

// BreakerState reports the circuit breaker state, or "disabled".
func (d *Dispatcher) BreakerState() string {
	if d.breaker == nil {
		return "disabled"
	}
	return d.breaker.State().String()
}

// SubmitCreate enqueues a create command.
func (d *Dispatcher) SubmitCreate(ctx context.Context, fields domain.TaskFields, actor domain.Actor) (*Receipt, error) {
	return d.submit(ctx, command.ActionCreate, "", func() (*command.Envelope, error) {
		return d.builder.Create(fields, actor)
	})
}

// SubmitUpdate enqueues an update command for resourceID.
func (d *Dispatcher) SubmitUpdate(
	ctx context.Context,
	resourceID string,
	fields domain.TaskFields,
	actor domain.Actor,
) (*Receipt, error) {
	return d.submit(ctx, command.ActionUpdate, resourceID, func() (*command.Envelope, error) {
		return d.builder.Update(resourceID, fields, actor)
	})
}

// SubmitDelete enqueues a delete command for resourceID.
func (d *Dispatcher) SubmitDelete(ctx context.Context, resourceID string, actor domain.Actor) (*Receipt, error) {
	return d.submit(ctx, command.ActionDelete, resourceID, func() (*command.Envelope, error) {
		return d.builder.Delete(resourceID, actor)
	})
}

func (d *Dispatcher) submit(
	ctx context.Context,
	action command.Action,
	resourceID string,
	build func() (*command.Envelope, error),
) (*Receipt, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch."+string(action),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("task.action", string(action)),
			attribute.String("task.resource_id", resourceID),
		))
	defer span.End()

	log := logger.FromContextOrDefault(ctx, d.logger).With(
		"action", string(action),
		"resource_id", resourceID,
	)

	env, err := build()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid command")
		log.WarnContext(ctx, "command rejected", "stage", string(StageBuild), "error", redact.Error(err))
		return nil, &DispatchError{Action: action, ResourceID: resourceID, Stage: StageBuild, Err: err}
	}

	messageID := env.MessageID()
	span.SetAttributes(attribute.String("messaging.message.id", messageID))
	log = log.With("message_id", messageID)

	if err := d.publish(ctx, env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		log.ErrorContext(ctx, "command rejected", "stage", string(StagePublish), "error", redact.Error(err))
		return nil, &DispatchError{
			Action:     action,
			ResourceID: resourceID,
			MessageID:  messageID,
			Stage:      StagePublish,
			Err:        err,
		}
	}

	log.InfoContext(ctx, "command enqueued")
	return &Receipt{MessageID: messageID, Action: action, ResourceID: resourceID}, nil
}

func (d *Dispatcher) publish(ctx context.Context, env *command.Envelope) error {
	if d.breaker == nil {
		return d.publisher.Publish(ctx, env)
	}

	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.publisher.Publish(ctx, env)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return err
}
