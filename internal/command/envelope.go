package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phrazzld/tasks-api/internal/domain"
)

// ErrInvalidEnvelope is returned when an envelope does not satisfy the
// shape required for its action.
var ErrInvalidEnvelope = errors.New("invalid command envelope")

// Action is the kind of mutation a command requests.
type Action string

// Supported actions
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is a supported action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// Metadata carries tracing information attached to every command.
type Metadata struct {
	MessageID string    `json:"messageId"`
	CreatedAt time.Time `json:"createdAt"`
	Source    string    `json:"source"`
}

// Envelope is a single task command. Use a Builder to create one.
type Envelope struct {
	action     Action
	resourceID string
	task       *domain.TaskFields
	actor      domain.Actor
	metadata   Metadata
}

// wireEnvelope is the JSON shape of an Envelope.
type wireEnvelope struct {
	Action     Action             `json:"action"`
	ResourceID string             `json:"resourceId,omitempty"`
	Task       *domain.TaskFields `json:"task,omitempty"`
	Actor      domain.Actor       `json:"actor"`
	Metadata   Metadata           `json:"metadata"`
}

// Action returns the requested mutation.
func (e *Envelope) Action() Action { return e.action }

// ResourceID returns the target task id. Empty for create commands.
func (e *Envelope) ResourceID() string { return e.resourceID }

// Task returns a copy of the task fields, or nil for delete commands.
func (e *Envelope) Task() *domain.TaskFields {
	if e.task == nil {
		return nil
	}
	fields := *e.task
	return &fields
}

// Actor returns the caller the command was issued for.
func (e *Envelope) Actor() domain.Actor { return e.actor }

// Metadata returns the tracing metadata.
func (e *Envelope) Metadata() Metadata { return e.metadata }

// MessageID is shorthand for Metadata().MessageID.
func (e *Envelope) MessageID() string { return e.metadata.MessageID }

// Validate checks the envelope shape for its action.
func (e *Envelope) Validate() error {
	if !e.action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEnvelope, e.action)
	}

	switch e.action {
	case ActionCreate:
		if e.resourceID != "" {
			return fmt.Errorf("%w: create must not carry a resource id", ErrInvalidEnvelope)
		}
		if e.task == nil {
			return fmt.Errorf("%w: create requires task fields", ErrInvalidEnvelope)
		}
	case ActionUpdate:
		if strings.TrimSpace(e.resourceID) == "" {
			return fmt.Errorf("%w: update requires a resource id", ErrInvalidEnvelope)
		}
		if e.task == nil {
			return fmt.Errorf("%w: update requires task fields", ErrInvalidEnvelope)
		}
	case ActionDelete:
		if strings.TrimSpace(e.resourceID) == "" {
			return fmt.Errorf("%w: delete requires a resource id", ErrInvalidEnvelope)
		}
		if e.task != nil {
			return fmt.Errorf("%w: delete must not carry task fields", ErrInvalidEnvelope)
		}
	}

	if e.task != nil {
		if err := e.task.Validate(); err != nil {
			return err
		}
	}
	if err := e.actor.Validate(); err != nil {
		return err
	}

	if e.metadata.MessageID == "" {
		return fmt.Errorf("%w: missing message id", ErrInvalidEnvelope)
	}
	if e.metadata.Source == "" {
		return fmt.Errorf("%w: missing source", ErrInvalidEnvelope)
	}
	if e.metadata.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing creation timestamp", ErrInvalidEnvelope)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEnvelope{
		Action:     e.action,
		ResourceID: e.resourceID,
		Task:       e.task,
		Actor:      e.actor,
		Metadata:   e.metadata,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.action = w.Action
	e.resourceID = w.ResourceID
	e.task = w.Task
	e.actor = w.Actor
	e.metadata = w.Metadata
	e.metadata.CreatedAt = e.metadata.CreatedAt.UTC()
	return nil
}

// Marshal validates the envelope and encodes it as the queue payload.
func (e *Envelope) Marshal() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode parses and validates a queue payload.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}
