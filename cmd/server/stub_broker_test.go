package main

import (
	"context"
	"errors"
	"sync"

	"github.com/phrazzld/tasks-api/internal/broker"
	"github.com/rabbitmq/amqp091-go"
)

// stubDialer is an in-memory broker.Dialer recording declarations and
// publishes made on its channels.
type stubDialer struct {
	mu         sync.Mutex
	dialErr    error
	declareErr error
	dials      int
	queues     map[string]amqp091.Table
	exchanges  []string
	published  []amqp091.Publishing
}

func newStubDialer() *stubDialer {
	return &stubDialer{queues: map[string]amqp091.Table{}}
}

func (d *stubDialer) Dial(context.Context, string) (broker.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return &stubConn{dialer: d}, nil
}

func (d *stubDialer) queueArgs(name string) (amqp091.Table, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	args, ok := d.queues[name]
	return args, ok
}

func (d *stubDialer) messages() []amqp091.Publishing {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]amqp091.Publishing(nil), d.published...)
}

type stubConn struct {
	dialer *stubDialer
	mu     sync.Mutex
	closed bool
}

func (c *stubConn) Channel() (broker.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp091.ErrClosed
	}
	return &stubChannel{dialer: c.dialer}, nil
}

func (c *stubConn) NotifyClose(receiver chan *amqp091.Error) chan *amqp091.Error { return receiver }

func (c *stubConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp091.ErrClosed
	}
	c.closed = true
	return nil
}

type stubChannel struct {
	dialer *stubDialer
}

func (ch *stubChannel) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp091.Table) error {
	ch.dialer.mu.Lock()
	defer ch.dialer.mu.Unlock()
	ch.dialer.exchanges = append(ch.dialer.exchanges, name)
	return nil
}

func (ch *stubChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp091.Table) (amqp091.Queue, error) {
	ch.dialer.mu.Lock()
	defer ch.dialer.mu.Unlock()
	if ch.dialer.declareErr != nil {
		return amqp091.Queue{}, ch.dialer.declareErr
	}
	ch.dialer.queues[name] = args
	return amqp091.Queue{Name: name}, nil
}

func (ch *stubChannel) QueueBind(string, string, string, bool, amqp091.Table) error { return nil }

func (ch *stubChannel) Confirm(bool) error { return nil }

func (ch *stubChannel) PublishWithContext(
	_ context.Context,
	_, _ string,
	_, _ bool,
	msg amqp091.Publishing,
) error {
	ch.dialer.mu.Lock()
	defer ch.dialer.mu.Unlock()
	ch.dialer.published = append(ch.dialer.published, msg)
	return nil
}

func (ch *stubChannel) PublishAndConfirm(
	ctx context.Context,
	exchange, key string,
	msg amqp091.Publishing,
) (bool, error) {
	return true, ch.PublishWithContext(ctx, exchange, key, false, false, msg)
}

func (ch *stubChannel) NotifyClose(receiver chan *amqp091.Error) chan *amqp091.Error { return receiver }

func (ch *stubChannel) Close() error { return nil }

var errStubDial = errors.New("dial tcp: connection refused")
