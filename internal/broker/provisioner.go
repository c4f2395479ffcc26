package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/tasks-api/internal/platform/logger"
	"github.com/phrazzld/tasks-api/internal/redact"
	"github.com/rabbitmq/amqp091-go"
)

// Provisioning defaults.
const (
	DefaultProvisionAttempts   = 5
	DefaultProvisionRetryDelay = 500 * time.Millisecond
)

// deadLetterExchangeArg is the queue argument RabbitMQ reads to route
// rejected and expired messages.
const deadLetterExchangeArg = "x-dead-letter-exchange"

// QueueDescriptor describes a work queue and its dead-letter routing.
type QueueDescriptor struct {
	Name    string
	Durable bool
	// DeadLetterExchange receives messages the consumer rejects.
	DeadLetterExchange string
	// DeadLetterQueue, if set, is declared and bound to DeadLetterExchange
	// so dead-lettered messages are retained.
	DeadLetterQueue string
}

// Validate checks that the descriptor can be declared.
func (d QueueDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: queue name is required", ErrInvalidQueueDescriptor)
	}
	if d.DeadLetterQueue != "" && d.DeadLetterExchange == "" {
		return fmt.Errorf("%w: dead-letter queue %q needs a dead-letter exchange",
			ErrInvalidQueueDescriptor, d.DeadLetterQueue)
	}
	return nil
}

// Arguments returns the queue declaration arguments.
func (d QueueDescriptor) Arguments() amqp091.Table {
	if d.DeadLetterExchange == "" {
		return nil
	}
	return amqp091.Table{deadLetterExchangeArg: d.DeadLetterExchange}
}

// ChannelSource supplies the current channel and can reopen it on a live
// connection. *Manager implements it.
type ChannelSource interface {
	Channel() (Channel, uint64, error)
	RecoverChannel(ctx context.Context) error
	// ChannelFailed reports that an operation on generation gen failed
	// with a channel exception.
	ChannelFailed(gen uint64, cause error)
}

// ProvisionerConfig configures a Provisioner.
type ProvisionerConfig struct {
	Attempts   int
	RetryDelay time.Duration
}

// Provisioner declares queues and remembers, per channel generation, which
// ones are already in place.
type Provisioner struct {
	source     ChannelSource
	attempts   int
	retryDelay time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	asserted map[string]uint64
}

// NewProvisioner creates a Provisioner. Non-positive values in cfg fall
// back to the package defaults.
func NewProvisioner(source ChannelSource, cfg ProvisionerConfig, logger *slog.Logger) *Provisioner {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultProvisionAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = DefaultProvisionRetryDelay
	}
	return &Provisioner{
		source:     source,
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
		logger:     logger.With("component", "queue_provisioner"),
		asserted:   make(map[string]uint64),
	}
}

// EnsureQueue asserts the queue described by desc on the current channel.
// It is a no-op when the queue was already asserted on this channel
// generation. Otherwise it makes up to the configured number of attempts,
// waiting RetryDelay between them, and returns *QueueProvisionError when
// all of them fail.
func (p *Provisioner) EnsureQueue(ctx context.Context, desc QueueDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	// Held across retries so concurrent publishers wait for one provisioning
	// cycle instead of racing their own.
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isAsserted(desc.Name) {
		return nil
	}

	log := logger.FromContextOrDefault(ctx, p.logger).With("queue", desc.Name)

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		log.DebugContext(ctx, "asserting queue", "attempt", attempt, "max_attempts", p.attempts)

		gen, err := p.assert(ctx, desc)
		if err == nil {
			p.asserted[desc.Name] = gen
			log.InfoContext(ctx, "queue asserted",
				"attempt", attempt,
				"generation", gen,
				"dead_letter_exchange", desc.DeadLetterExchange)
			return nil
		}

		lastErr = err
		log.WarnContext(ctx, "queue assertion failed",
			"attempt", attempt,
			"max_attempts", p.attempts,
			"error", redact.Error(err))

		if attempt == p.attempts {
			break
		}
		if err := p.wait(ctx); err != nil {
			return &QueueProvisionError{Queue: desc.Name, Attempts: attempt, Err: err}
		}
	}

	log.ErrorContext(ctx, "queue provisioning exhausted",
		"max_attempts", p.attempts,
		"error", redact.Error(lastErr))
	return &QueueProvisionError{Queue: desc.Name, Attempts: p.attempts, Err: lastErr}
}

// Forget drops the cached assertion for queue.
func (p *Provisioner) Forget(queue string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.asserted, queue)
}

// isAsserted must be called with p.mu held.
func (p *Provisioner) isAsserted(queue string) bool {
	gen, ok := p.asserted[queue]
	if !ok {
		return false
	}
	_, current, err := p.source.Channel()
	return err == nil && current != 0 && current == gen
}

func (p *Provisioner) assert(ctx context.Context, desc QueueDescriptor) (uint64, error) {
	ch, gen, err := p.source.Channel()
	if errors.Is(err, ErrNotConnected) {
		// A failed declaration closes the channel; reopen it so the next
		// attempt has something to work with.
		if rerr := p.source.RecoverChannel(ctx); rerr != nil {
			return 0, err
		}
		ch, gen, err = p.source.Channel()
	}
	if err != nil {
		return 0, err
	}

	if err := declare(ch, desc); err != nil {
		var amqpErr *amqp091.Error
		if errors.As(err, &amqpErr) {
			// The broker closes a channel on any exception, including 504
			// for an already-closed one.
			p.source.ChannelFailed(gen, err)
		}
		return 0, err
	}
	return gen, nil
}

func declare(ch Channel, desc QueueDescriptor) error {
	if desc.DeadLetterExchange != "" {
		if err := ch.ExchangeDeclare(desc.DeadLetterExchange, amqp091.ExchangeFanout,
			true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead-letter exchange %q: %w", desc.DeadLetterExchange, err)
		}
		if desc.DeadLetterQueue != "" {
			if _, err := ch.QueueDeclare(desc.DeadLetterQueue, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare dead-letter queue %q: %w", desc.DeadLetterQueue, err)
			}
			if err := ch.QueueBind(desc.DeadLetterQueue, "", desc.DeadLetterExchange, false, nil); err != nil {
				return fmt.Errorf("bind dead-letter queue %q: %w", desc.DeadLetterQueue, err)
			}
		}
	}

	if _, err := ch.QueueDeclare(desc.Name, desc.Durable, false, false, false, desc.Arguments()); err != nil {
		return fmt.Errorf("declare queue %q: %w", desc.Name, err)
	}
	return nil
}

func (p *Provisioner) wait(ctx context.Context) error {
	if p.retryDelay == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.retryDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
