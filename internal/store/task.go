package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/tasks-api/internal/domain"
)

// DefaultListLimit is used when a caller asks for a non-positive page size.
const DefaultListLimit = 50

// MaxListLimit caps a single page of results.
const MaxListLimit = 200

// TaskStore defines read access to the task projection.
// Rows are written by the command consumer; this service only reads them.
type TaskStore interface {
	// ListByUser returns a page of the user's tasks, newest first.
	// The limit is clamped to [1, MaxListLimit].
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Task, error)

	// GetByID returns the task with the given id owned by userID.
	// Returns ErrTaskNotFound if it does not exist or belongs to another user.
	GetByID(ctx context.Context, id uuid.UUID, userID string) (*domain.Task, error)
}

// ClampLimit normalizes a requested page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
