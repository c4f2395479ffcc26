package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Dialer opens transport connections to the broker.
type Dialer interface {
	Dial(ctx context.Context, url string) (Connection, error)
}

// Connection is the subset of *amqp091.Connection the Manager uses.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp091.Error) chan *amqp091.Error
	IsClosed() bool
	Close() error
}

// Channel is the subset of *amqp091.Channel used for provisioning and publishing.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	Confirm(noWait bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	// PublishAndConfirm publishes msg and blocks until the broker acks or
	// nacks it. The channel must be in confirm mode.
	PublishAndConfirm(ctx context.Context, exchange, key string, msg amqp091.Publishing) (bool, error)
	NotifyClose(receiver chan *amqp091.Error) chan *amqp091.Error
	Close() error
}

// AMQPDialer dials real RabbitMQ connections.
type AMQPDialer struct {
	Heartbeat      time.Duration
	Timeout        time.Duration
	ConnectionName string
}

// Dial implements Dialer.
func (d AMQPDialer) Dial(ctx context.Context, url string) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	props := amqp091.NewConnectionProperties()
	if d.ConnectionName != "" {
		props.SetClientConnectionName(d.ConnectionName)
	}

	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat:  d.Heartbeat,
		Dial:       amqp091.DefaultDial(d.Timeout),
		Properties: props,
	})
	if err != nil {
		return nil, err
	}
	return &amqpConnection{Connection: conn}, nil
}

type amqpConnection struct {
	*amqp091.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return &amqpChannel{Channel: ch}, nil
}

type amqpChannel struct {
	*amqp091.Channel
}

func (c *amqpChannel) PublishAndConfirm(
	ctx context.Context,
	exchange, key string,
	msg amqp091.Publishing,
) (bool, error) {
	confirm, err := c.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return false, err
	}
	if confirm == nil {
		return false, errors.New("channel is not in confirm mode")
	}
	return confirm.WaitContext(ctx)
}

// closeCause converts a close notification into an error.
// A nil reason means a graceful close.
func closeCause(reason *amqp091.Error) error {
	if reason == nil {
		return amqp091.ErrClosed
	}
	return reason
}
