package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Broker lifecycle event types.
const (
	TypeBrokerConnected      = "broker.connected"
	TypeBrokerConnectFailed  = "broker.connect_failed"
	TypeBrokerConnectionLost = "broker.connection_lost"
	TypeBrokerChannelLost    = "broker.channel_lost"
	TypeBrokerReconnecting   = "broker.reconnecting"
	TypeBrokerClosed         = "broker.closed"
)

// BrokerEvent describes a transition of the broker connection.
type BrokerEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the TypeBroker* constants
	Type string `json:"type"`

	// Generation is the channel generation the event refers to
	Generation uint64 `json:"generation"`

	// State is the connection state after the transition
	State string `json:"state"`

	// Err is the cause reported by the broker, if any
	Err error `json:"-"`

	// OccurredAt is when the transition was observed
	OccurredAt time.Time `json:"occurred_at"`
}

// NewBrokerEvent creates a BrokerEvent stamped with a fresh id and time.
func NewBrokerEvent(eventType string, generation uint64, state string, err error) *BrokerEvent {
	return &BrokerEvent{
		ID:         uuid.New(),
		Type:       eventType,
		Generation: generation,
		State:      state,
		Err:        err,
		OccurredAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that observe broker events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *BrokerEvent) error
}

// EventEmitter defines an interface for components that can emit events.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *BrokerEvent) error
}

// HandlerFunc adapts an ordinary function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *BrokerEvent) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *BrokerEvent) error {
	return f(ctx, event)
}
