package broker

import (
	"context"
	"errors"
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

// fakeBroker is an in-memory Dialer whose connections and channels behave
// like amqp091 ones closely enough for the Manager, Provisioner and
// Publisher. Faults are scripted through its fields.
type fakeBroker struct {
	mu sync.Mutex

	dials    int
	dialErrs []error // consumed one per dial before dialErr applies
	dialErr  error
	conns    []*fakeConn

	queueDeclareFailures int
	closeOnDeclareFail   bool
	exchangeDeclares     int
	queueDeclares        int
	declared             map[string]amqp091.Table
	bindings             []string

	publishErr    error
	beforePublish func(ch *fakeChannel)
	nack          bool
	published     []amqp091.Publishing

	channelCloseErr error
	closeLog        []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{declared: make(map[string]amqp091.Table)}
}

func (b *fakeBroker) Dial(_ context.Context, _ string) (Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++
	err := b.dialErr
	if len(b.dialErrs) > 0 {
		err, b.dialErrs = b.dialErrs[0], b.dialErrs[1:]
	}
	if err != nil {
		return nil, err
	}

	conn := &fakeConn{broker: b}
	b.conns = append(b.conns, conn)
	return conn, nil
}

func (b *fakeBroker) setDialErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErr = err
}

func (b *fakeBroker) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *fakeBroker) lastConn() *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.conns) == 0 {
		return nil
	}
	return b.conns[len(b.conns)-1]
}

func (b *fakeBroker) publishedMessages() []amqp091.Publishing {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]amqp091.Publishing, len(b.published))
	copy(out, b.published)
	return out
}

func (b *fakeBroker) exchangeDeclareCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exchangeDeclares
}

func (b *fakeBroker) logClose(what string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLog = append(b.closeLog, what)
}

type fakeConn struct {
	broker *fakeBroker

	mu       sync.Mutex
	closed   bool
	notifies []chan *amqp091.Error
	channels []*fakeChannel
}

func (c *fakeConn) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp091.ErrClosed
	}
	ch := &fakeChannel{broker: c.broker, conn: c}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConn) lastChannel() *fakeChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.channels) == 0 {
		return nil
	}
	return c.channels[len(c.channels)-1]
}

func (c *fakeConn) NotifyClose(receiver chan *amqp091.Error) chan *amqp091.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(receiver)
		return receiver
	}
	c.notifies = append(c.notifies, receiver)
	return receiver
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.broker.logClose("connection")
	return c.shutdown(nil)
}

// breakWith simulates the broker dropping the connection.
func (c *fakeConn) breakWith(reason *amqp091.Error) {
	_ = c.shutdown(reason)
}

func (c *fakeConn) shutdown(reason *amqp091.Error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return amqp091.ErrClosed
	}
	c.closed = true
	notifies := c.notifies
	c.notifies = nil
	channels := append([]*fakeChannel(nil), c.channels...)
	c.mu.Unlock()

	for _, ch := range channels {
		_ = ch.shutdown(reason)
	}
	for _, n := range notifies {
		if reason != nil {
			n <- reason
		}
		close(n)
	}
	return nil
}

type fakeChannel struct {
	broker *fakeBroker
	conn   *fakeConn

	mu          sync.Mutex
	closed      bool
	confirmMode bool
	notifies    []chan *amqp091.Error
}

func (ch *fakeChannel) isClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

func (ch *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp091.Table) error {
	if ch.isClosed() {
		return amqp091.ErrClosed
	}
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exchangeDeclares++
	b.declared["exchange:"+name] = amqp091.Table{"kind": kind, "durable": durable}
	return nil
}

func (ch *fakeChannel) QueueDeclare(
	name string,
	durable, _, _, _ bool,
	args amqp091.Table,
) (amqp091.Queue, error) {
	if ch.isClosed() {
		return amqp091.Queue{}, amqp091.ErrClosed
	}

	b := ch.broker
	b.mu.Lock()
	b.queueDeclares++
	if b.queueDeclareFailures > 0 {
		b.queueDeclareFailures--
		closeIt := b.closeOnDeclareFail
		b.mu.Unlock()
		reason := &amqp091.Error{Code: amqp091.PreconditionFailed, Reason: "PRECONDITION_FAILED - inequivalent arg"}
		if closeIt {
			_ = ch.shutdown(reason)
		}
		return amqp091.Queue{}, reason
	}
	stored := amqp091.Table{"durable": durable}
	for k, v := range args {
		stored[k] = v
	}
	b.declared["queue:"+name] = stored
	b.mu.Unlock()

	return amqp091.Queue{Name: name}, nil
}

func (ch *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp091.Table) error {
	if ch.isClosed() {
		return amqp091.ErrClosed
	}
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindings = append(b.bindings, exchange+"->"+name+"#"+key)
	return nil
}

func (ch *fakeChannel) Confirm(_ bool) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return amqp091.ErrClosed
	}
	ch.confirmMode = true
	return nil
}

func (ch *fakeChannel) PublishWithContext(
	ctx context.Context,
	_, key string,
	_, _ bool,
	msg amqp091.Publishing,
) error {
	b := ch.broker
	b.mu.Lock()
	hook := b.beforePublish
	b.mu.Unlock()
	if hook != nil {
		hook(ch)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if ch.isClosed() {
		return amqp091.ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	if _, ok := b.declared["queue:"+key]; !ok {
		return errors.New("NOT_FOUND - no queue '" + key + "'")
	}
	b.published = append(b.published, msg)
	return nil
}

func (ch *fakeChannel) PublishAndConfirm(
	ctx context.Context,
	exchange, key string,
	msg amqp091.Publishing,
) (bool, error) {
	ch.mu.Lock()
	confirm := ch.confirmMode
	ch.mu.Unlock()
	if !confirm {
		return false, errors.New("channel is not in confirm mode")
	}

	if err := ch.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return false, err
	}

	b := ch.broker
	b.mu.Lock()
	nack := b.nack
	b.mu.Unlock()
	return !nack, nil
}

func (ch *fakeChannel) NotifyClose(receiver chan *amqp091.Error) chan *amqp091.Error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		close(receiver)
		return receiver
	}
	ch.notifies = append(ch.notifies, receiver)
	return receiver
}

func (ch *fakeChannel) Close() error {
	ch.broker.logClose("channel")
	if err := ch.shutdown(nil); err != nil {
		return err
	}
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	return ch.broker.channelCloseErr
}

// breakWith simulates the broker closing the channel with an exception.
func (ch *fakeChannel) breakWith(reason *amqp091.Error) {
	_ = ch.shutdown(reason)
}

func (ch *fakeChannel) shutdown(reason *amqp091.Error) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return amqp091.ErrClosed
	}
	ch.closed = true
	notifies := ch.notifies
	ch.notifies = nil
	ch.mu.Unlock()

	for _, n := range notifies {
		if reason != nil {
			n <- reason
		}
		close(n)
	}
	return nil
}
