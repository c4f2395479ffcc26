package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/tasks-api/internal/command"
	"github.com/phrazzld/tasks-api/internal/dispatch"
	"github.com/phrazzld/tasks-api/internal/domain"
)

// SubmitCall records one call made to MockDispatchService.
type SubmitCall struct {
	Action     command.Action
	ResourceID string
	Fields     domain.TaskFields
	Actor      domain.Actor
}

// MockDispatchService implements dispatch.Service for testing
type MockDispatchService struct {
	SubmitCreateFn func(ctx context.Context, fields domain.TaskFields, actor domain.Actor) (*dispatch.Receipt, error)
	SubmitUpdateFn func(ctx context.Context, resourceID string, fields domain.TaskFields, actor domain.Actor) (*dispatch.Receipt, error)
	SubmitDeleteFn func(ctx context.Context, resourceID string, actor domain.Actor) (*dispatch.Receipt, error)

	// MessageID is returned in the default receipt
	MessageID    string
	DefaultError error

	mu    sync.Mutex
	calls []SubmitCall
}

var _ dispatch.Service = (*MockDispatchService)(nil)

// SubmitCreate implements dispatch.Service.SubmitCreate
func (m *MockDispatchService) SubmitCreate(
	ctx context.Context,
	fields domain.TaskFields,
	actor domain.Actor,
) (*dispatch.Receipt, error) {
	m.record(SubmitCall{Action: command.ActionCreate, Fields: fields, Actor: actor})
	if m.SubmitCreateFn != nil {
		return m.SubmitCreateFn(ctx, fields, actor)
	}
	return m.receipt(command.ActionCreate, "")
}

// SubmitUpdate implements dispatch.Service.SubmitUpdate
func (m *MockDispatchService) SubmitUpdate(
	ctx context.Context,
	resourceID string,
	fields domain.TaskFields,
	actor domain.Actor,
) (*dispatch.Receipt, error) {
	m.record(SubmitCall{Action: command.ActionUpdate, ResourceID: resourceID, Fields: fields, Actor: actor})
	if m.SubmitUpdateFn != nil {
		return m.SubmitUpdateFn(ctx, resourceID, fields, actor)
	}
	return m.receipt(command.ActionUpdate, resourceID)
}

// SubmitDelete implements dispatch.Service.SubmitDelete
func (m *MockDispatchService) SubmitDelete(
	ctx context.Context,
	resourceID string,
	actor domain.Actor,
) (*dispatch.Receipt, error) {
	m.record(SubmitCall{Action: command.ActionDelete, ResourceID: resourceID, Actor: actor})
	if m.SubmitDeleteFn != nil {
		return m.SubmitDeleteFn(ctx, resourceID, actor)
	}
	return m.receipt(command.ActionDelete, resourceID)
}

// Calls returns a copy of the recorded calls.
func (m *MockDispatchService) Calls() []SubmitCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SubmitCall(nil), m.calls...)
}

func (m *MockDispatchService) record(call SubmitCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *MockDispatchService) receipt(action command.Action, resourceID string) (*dispatch.Receipt, error) {
	if m.DefaultError != nil {
		return nil, m.DefaultError
	}
	return &dispatch.Receipt{MessageID: m.MessageID, Action: action, ResourceID: resourceID}, nil
}
