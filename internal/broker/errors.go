package broker

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the broker package.
var (
	// ErrNotConnected is returned when no usable channel is available.
	ErrNotConnected = errors.New("broker not connected")

	// ErrManagerClosed is returned by a Manager after Close.
	ErrManagerClosed = errors.New("broker manager closed")

	// ErrPublishNacked is returned when the broker negatively acknowledges a publish.
	ErrPublishNacked = errors.New("publish not acknowledged by broker")

	// ErrConfirmTimeout is returned when a publisher confirm does not arrive in time.
	ErrConfirmTimeout = errors.New("timed out waiting for publisher confirm")

	// ErrInvalidQueueDescriptor is returned for an incomplete QueueDescriptor.
	ErrInvalidQueueDescriptor = errors.New("invalid queue descriptor")
)

// ConnectionError reports a failure to reach or authenticate to the broker.
type ConnectionError struct {
	// URL is the broker URL with credentials redacted.
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to broker %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueueProvisionError reports that a queue could not be asserted within
// the attempt budget.
type QueueProvisionError struct {
	Queue    string
	Attempts int
	Err      error
}

func (e *QueueProvisionError) Error() string {
	return fmt.Sprintf("provision queue %q failed after %d attempt(s): %v", e.Queue, e.Attempts, e.Err)
}

func (e *QueueProvisionError) Unwrap() error { return e.Err }

// PublishError reports that the broker rejected a send.
type PublishError struct {
	Queue     string
	MessageID string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish message %s to queue %q: %v", e.MessageID, e.Queue, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
