package postgres_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/tasks-api/internal/platform/postgres"
	"github.com/phrazzld/tasks-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func newPgError(code string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		Message:        "error message",
		TableName:      "tasks",
		ConstraintName: "tasks_status_check",
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	other := errors.New("boom")
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{name: "no rows", err: sql.ErrNoRows, target: store.ErrNotFound},
		{name: "unique violation", err: newPgError("23505"), target: store.ErrDuplicate},
		{name: "check violation", err: newPgError("23514"), target: store.ErrInvalidEntity},
		{name: "bad text representation", err: newPgError("22P02"), target: store.ErrInvalidEntity},
		{name: "wrapped pg error", err: fmt.Errorf("query: %w", newPgError("23505")), target: store.ErrDuplicate},
		{name: "passthrough", err: other, target: other},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, postgres.MapError(tt.err), tt.target)
		})
	}

	assert.NoError(t, postgres.MapError(nil))

	undefined := postgres.MapError(newPgError("42P01"))
	assert.Contains(t, undefined.Error(), "schema not migrated")
	var pgErr *pgconn.PgError
	assert.ErrorAs(t, undefined, &pgErr)
}

func TestErrorPredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, postgres.IsUniqueViolation(newPgError("23505")))
	assert.False(t, postgres.IsUniqueViolation(newPgError("23514")))
	assert.False(t, postgres.IsUniqueViolation(nil))

	assert.True(t, postgres.IsNotFoundError(sql.ErrNoRows))
	assert.True(t, postgres.IsNotFoundError(store.ErrTaskNotFound))
	assert.False(t, postgres.IsNotFoundError(errors.New("other")))
}
