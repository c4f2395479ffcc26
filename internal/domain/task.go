package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// TaskFields are the user-writable fields of a task. They travel inside
// create and update commands.
type TaskFields struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Status      TaskStatus `json:"status,omitempty"`
}

// Normalize trims text fields and converts the due date to UTC.
func (f TaskFields) Normalize() TaskFields {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	if f.DueDate != nil {
		due := f.DueDate.UTC()
		f.DueDate = &due
	}
	return f
}

// Validate checks the fields the way the write API requires them:
// title and description are mandatory, status is optional but must be known.
func (f TaskFields) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return NewValidationError("title", "is required and must be a non-empty string", ErrValidation)
	}
	if strings.TrimSpace(f.Description) == "" {
		return NewValidationError("description", "is required and must be a non-empty string", ErrValidation)
	}
	if f.Status != "" && !f.Status.Valid() {
		return NewValidationError(
			"status",
			"must be 'pending', 'in-progress', or 'completed'",
			ErrInvalidTaskStatus,
		)
	}
	return nil
}

// Task is the read model of a task as materialized by the downstream
// consumer. The API never writes it directly.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
