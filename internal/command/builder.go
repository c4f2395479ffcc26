package command

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasks-api/internal/domain"
)

// Builder assembles validated envelopes stamped with fresh metadata.
type Builder struct {
	source string
	now    func() time.Time
	newID  func() string
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithIDGenerator overrides the message id generator. Intended for tests.
func WithIDGenerator(newID func() string) BuilderOption {
	return func(b *Builder) { b.newID = newID }
}

// NewBuilder creates a Builder that tags every envelope with source.
func NewBuilder(source string, opts ...BuilderOption) *Builder {
	b := &Builder{
		source: source,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Create builds a create command. A missing status defaults to pending.
func (b *Builder) Create(fields domain.TaskFields, actor domain.Actor) (*Envelope, error) {
	fields = fields.Normalize()
	if fields.Status == "" {
		fields.Status = domain.TaskStatusPending
	}
	return b.build(ActionCreate, "", &fields, actor)
}

// Update builds an update command for resourceID.
func (b *Builder) Update(resourceID string, fields domain.TaskFields, actor domain.Actor) (*Envelope, error) {
	fields = fields.Normalize()
	return b.build(ActionUpdate, resourceID, &fields, actor)
}

// Delete builds a delete command for resourceID.
func (b *Builder) Delete(resourceID string, actor domain.Actor) (*Envelope, error) {
	return b.build(ActionDelete, resourceID, nil, actor)
}

func (b *Builder) build(
	action Action,
	resourceID string,
	fields *domain.TaskFields,
	actor domain.Actor,
) (*Envelope, error) {
	env := &Envelope{
		action:     action,
		resourceID: resourceID,
		task:       fields,
		actor:      actor,
		metadata: Metadata{
			MessageID: b.newID(),
			CreatedAt: b.now().UTC(),
			Source:    b.source,
		},
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}
