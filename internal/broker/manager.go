package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/phrazzld/tasks-api/internal/events"
	"github.com/phrazzld/tasks-api/internal/redact"
	"github.com/rabbitmq/amqp091-go"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	URL string
	// PublisherConfirms puts every channel the Manager opens into confirm mode.
	PublisherConfirms bool
}

// Manager owns the single connection/channel pair used by the process.
//
// Broker-initiated closures are observed asynchronously and move the
// Manager to StateDisconnected (connection lost) or StateDegraded (channel
// lost on a live connection). Recovery only happens when a caller asks for
// it through Reconnect or RecoverChannel.
type Manager struct {
	dialer  Dialer
	cfg     ManagerConfig
	emitter events.EventEmitter
	logger  *slog.Logger

	mu         sync.RWMutex
	conn       Connection
	ch         Channel
	state      State
	generation uint64
	superseded chan struct{}

	// reconnectMu serializes Connect, Reconnect and RecoverChannel.
	reconnectMu sync.Mutex
	closing     atomic.Bool
	stopCh      chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// NewManager creates a Manager. It does not connect. Lifecycle transitions
// are reported only through emitter; register events.LoggingHandler to log
// them.
func NewManager(dialer Dialer, cfg ManagerConfig, emitter events.EventEmitter, logger *slog.Logger) *Manager {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Manager{
		dialer:  dialer,
		cfg:     cfg,
		emitter: emitter,
		logger:  logger.With("component", "broker_manager"),
		state:   StateDisconnected,
		stopCh:  make(chan struct{}),
	}
}

// Connect dials the broker and opens the channel. It is a no-op when
// already connected; a degraded pair is released before dialing. Failures
// are returned as *ConnectionError.
func (m *Manager) Connect(ctx context.Context) error {
	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()

	if m.closing.Load() {
		return ErrManagerClosed
	}
	if m.State() == StateConnected {
		return nil
	}
	m.release(ctx)
	return m.dial(ctx)
}

// Reconnect restores a usable channel. A degraded Manager first tries to
// reopen the channel on its existing connection; otherwise the old
// connection is released and a single dial is made.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()

	if m.closing.Load() {
		return ErrManagerClosed
	}

	m.mu.RLock()
	state, gen := m.state, m.generation
	m.mu.RUnlock()

	if state == StateConnected {
		return nil
	}

	m.emit(ctx, events.TypeBrokerReconnecting, gen, state, nil)

	if state == StateDegraded {
		err := m.reopenChannel(ctx)
		if err == nil {
			return nil
		}
		m.logger.WarnContext(ctx, "failed to reopen channel, redialing",
			"error", redact.Error(err),
			"generation", gen)
	}

	m.release(ctx)
	return m.dial(ctx)
}

// RecoverChannel reopens the channel on a live connection without dialing.
// It returns ErrNotConnected when there is no live connection.
func (m *Manager) RecoverChannel(ctx context.Context) error {
	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()

	if m.closing.Load() {
		return ErrManagerClosed
	}
	switch m.State() {
	case StateConnected:
		return nil
	case StateDegraded:
		return m.reopenChannel(ctx)
	default:
		return ErrNotConnected
	}
}

// Channel returns the current channel and its generation.
func (m *Manager) Channel() (Channel, uint64, error) {
	if m.closing.Load() {
		return nil, 0, ErrManagerClosed
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != StateConnected || m.ch == nil {
		return nil, 0, ErrNotConnected
	}
	return m.ch, m.generation, nil
}

// State returns the current connectivity state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Generation returns the generation of the most recently installed channel.
func (m *Manager) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// Close shuts the Manager down, closing the channel and then the
// connection. Errors from either step are logged and returned together;
// both resources are released regardless. Close is idempotent.
func (m *Manager) Close() error {
	var result error

	m.closeOnce.Do(func() {
		ctx := context.Background()
		m.closing.Store(true)
		close(m.stopCh)

		m.mu.Lock()
		conn, ch, gen := m.conn, m.ch, m.generation
		m.conn, m.ch = nil, nil
		m.state = StateDisconnected
		m.mu.Unlock()

		var errs *multierror.Error
		if ch != nil {
			if err := ch.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
				m.logger.ErrorContext(ctx, "failed to close broker channel", "error", redact.Error(err))
				errs = multierror.Append(errs, fmt.Errorf("close channel: %w", err))
			}
		}
		if conn != nil {
			if err := conn.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
				m.logger.ErrorContext(ctx, "failed to close broker connection", "error", redact.Error(err))
				errs = multierror.Append(errs, fmt.Errorf("close connection: %w", err))
			}
		}

		m.wg.Wait()
		m.emit(ctx, events.TypeBrokerClosed, gen, StateDisconnected, nil)
		result = errs.ErrorOrNil()
	})

	return result
}

func (m *Manager) dial(ctx context.Context) error {
	m.setState(StateConnecting)

	conn, err := m.dialer.Dial(ctx, m.cfg.URL)
	if err != nil {
		return m.connectFailed(ctx, err)
	}

	ch, err := m.openChannel(conn)
	if err != nil {
		_ = conn.Close()
		return m.connectFailed(ctx, err)
	}

	return m.install(ctx, conn, ch)
}

func (m *Manager) reopenChannel(ctx context.Context) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return ErrNotConnected
	}

	ch, err := m.openChannel(conn)
	if err != nil {
		return err
	}
	return m.install(ctx, conn, ch)
}

func (m *Manager) openChannel(conn Connection) (Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if m.cfg.PublisherConfirms {
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("enable publisher confirms: %w", err)
		}
	}
	return ch, nil
}

func (m *Manager) connectFailed(ctx context.Context, err error) error {
	m.setState(StateDisconnected)

	cerr := &ConnectionError{URL: redact.URL(m.cfg.URL), Err: err}
	m.emit(ctx, events.TypeBrokerConnectFailed, m.Generation(), StateDisconnected, cerr)
	return cerr
}

// install makes conn/ch the current pair under a new generation and starts
// watching them for closure.
func (m *Manager) install(ctx context.Context, conn Connection, ch Channel) error {
	connClosed := conn.NotifyClose(make(chan *amqp091.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp091.Error, 1))

	m.mu.Lock()
	if m.closing.Load() {
		m.mu.Unlock()
		_ = ch.Close()
		_ = conn.Close()
		return ErrManagerClosed
	}
	if m.superseded != nil {
		close(m.superseded)
	}
	superseded := make(chan struct{})
	m.superseded = superseded
	m.generation++
	gen := m.generation
	m.conn, m.ch, m.state = conn, ch, StateConnected
	m.wg.Add(1)
	m.mu.Unlock()

	go m.watch(gen, connClosed, chClosed, superseded)

	m.emit(ctx, events.TypeBrokerConnected, gen, StateConnected, nil)
	return nil
}

// watch observes close notifications for one generation. A channel closure
// leaves the connection watched, so a later connection loss still moves the
// Manager to StateDisconnected.
func (m *Manager) watch(gen uint64, connClosed, chClosed <-chan *amqp091.Error, superseded <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case reason, ok := <-connClosed:
			if ok {
				m.connectionLost(gen, closeCause(reason))
			} else {
				m.connectionLost(gen, amqp091.ErrClosed)
			}
			return
		case reason, ok := <-chClosed:
			chClosed = nil
			if ok {
				m.channelLost(gen, closeCause(reason))
			} else {
				m.channelLost(gen, amqp091.ErrClosed)
			}
		case <-superseded:
			return
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) connectionLost(gen uint64, cause error) {
	m.mu.Lock()
	if m.closing.Load() || gen != m.generation || m.conn == nil {
		m.mu.Unlock()
		return
	}
	m.conn, m.ch = nil, nil
	m.state = StateDisconnected
	m.mu.Unlock()

	m.emit(context.Background(), events.TypeBrokerConnectionLost, gen, StateDisconnected, cause)
}

// ChannelFailed marks the channel of generation gen unusable after an
// operation on it failed with a channel exception, without waiting for the
// broker's close notification. Stale generations are ignored.
func (m *Manager) ChannelFailed(gen uint64, cause error) {
	ch := m.channelLost(gen, cause)
	if ch == nil {
		return
	}
	if err := ch.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
		m.logger.Debug("closing failed channel", "error", redact.Error(err), "generation", gen)
	}
}

// channelLost drops the channel of generation gen and returns it, or nil
// when gen is stale or the channel was already dropped.
func (m *Manager) channelLost(gen uint64, cause error) Channel {
	m.mu.Lock()
	if m.closing.Load() || gen != m.generation || m.conn == nil || m.ch == nil {
		m.mu.Unlock()
		return nil
	}
	ch := m.ch
	m.ch = nil
	state := StateDegraded
	if m.conn.IsClosed() {
		m.conn = nil
		state = StateDisconnected
	}
	m.state = state
	m.mu.Unlock()

	m.emit(context.Background(), events.TypeBrokerChannelLost, gen, state, cause)
	return ch
}

// release drops the current pair so a fresh dial can replace it.
func (m *Manager) release(ctx context.Context) {
	m.mu.Lock()
	conn, ch := m.conn, m.ch
	m.conn, m.ch = nil, nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
			m.logger.DebugContext(ctx, "closing stale channel", "error", redact.Error(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
			m.logger.DebugContext(ctx, "closing stale connection", "error", redact.Error(err))
		}
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) emit(ctx context.Context, eventType string, gen uint64, state State, err error) {
	// The emitter logs handler failures itself.
	_ = m.emitter.EmitEvent(ctx, events.NewBrokerEvent(eventType, gen, state.String(), err))
}
