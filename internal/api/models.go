package api

import (
	"time"

	"github.com/phrazzld/tasks-api/internal/domain"
)

// TaskPayload carries the user-writable task fields of a write request.
type TaskPayload struct {
	Title       string     `json:"title"                 validate:"required,max=500"`
	Description string     `json:"description"           validate:"required,max=10000"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Status      string     `json:"status,omitempty"      validate:"omitempty,oneof=pending in-progress completed"`
}

// TaskRequest is the body of POST /api/tasks and PUT /api/tasks/{id}.
type TaskRequest struct {
	Task *TaskPayload `json:"task" validate:"required"`
}

// Fields converts the payload to normalized domain fields.
func (p *TaskPayload) Fields() domain.TaskFields {
	return domain.TaskFields{
		Title:       p.Title,
		Description: p.Description,
		DueDate:     p.DueDate,
		Status:      domain.TaskStatus(p.Status),
	}.Normalize()
}

// AcceptedResponse acknowledges that a task command was queued for
// asynchronous processing.
type AcceptedResponse struct {
	Status     string `json:"status"`
	MessageID  string `json:"messageId"`
	Action     string `json:"action"`
	ResourceID string `json:"resourceId,omitempty"`
}

// TaskListResponse is the body of GET /api/tasks.
type TaskListResponse struct {
	Status string         `json:"status"`
	Tasks  []*domain.Task `json:"tasks"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// TaskResponse is the body of GET /api/tasks/{id}.
type TaskResponse struct {
	Status string       `json:"status"`
	Task   *domain.Task `json:"task"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Broker  string `json:"broker"`
	Breaker string `json:"breaker,omitempty"`
}
