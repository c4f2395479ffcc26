package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/tasks-api/internal/command"
	"github.com/phrazzld/tasks-api/internal/dispatch"
)

// MockCommandPublisher implements dispatch.Publisher for testing
type MockCommandPublisher struct {
	PublishFn func(ctx context.Context, env *command.Envelope) error

	// Err is returned when PublishFn is not set
	Err error

	mu        sync.Mutex
	published []*command.Envelope
}

var _ dispatch.Publisher = (*MockCommandPublisher)(nil)

// Publish implements dispatch.Publisher.Publish
func (m *MockCommandPublisher) Publish(ctx context.Context, env *command.Envelope) error {
	m.mu.Lock()
	m.published = append(m.published, env)
	m.mu.Unlock()

	if m.PublishFn != nil {
		return m.PublishFn(ctx, env)
	}
	return m.Err
}

// Published returns every envelope handed to Publish, in call order.
func (m *MockCommandPublisher) Published() []*command.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*command.Envelope(nil), m.published...)
}
