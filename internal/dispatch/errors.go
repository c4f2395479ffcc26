package dispatch

import (
	"errors"
	"fmt"

	"github.com/phrazzld/tasks-api/internal/command"
)

// ErrCircuitOpen is returned while the publish circuit breaker is open.
var ErrCircuitOpen = errors.New("dispatch circuit open")

// Stage identifies where a submission was rejected.
type Stage string

// Rejection stages
const (
	// StageBuild means the write-intent could not be turned into a valid envelope.
	StageBuild Stage = "build"
	// StagePublish means the envelope could not be handed to the broker.
	StagePublish Stage = "publish"
)

// DispatchError wraps any failure of a submission. MessageID is empty when
// the envelope was never built.
type DispatchError struct {
	Action     command.Action
	ResourceID string
	MessageID  string
	Stage      Stage
	Err        error
}

func (e *DispatchError) Error() string {
	if e.MessageID == "" {
		return fmt.Sprintf("dispatch %s rejected at %s: %v", e.Action, e.Stage, e.Err)
	}
	return fmt.Sprintf("dispatch %s (message %s) rejected at %s: %v", e.Action, e.MessageID, e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// IsBuildFailure reports whether err is a DispatchError raised before
// anything reached the broker, i.e. the caller sent an invalid write.
func IsBuildFailure(err error) bool {
	var dErr *DispatchError
	return errors.As(err, &dErr) && dErr.Stage == StageBuild
}
