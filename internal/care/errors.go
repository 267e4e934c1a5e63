package care

import (
	"errors"
	"fmt"
)

// Errors returned by trackers.
var (
	ErrNoActiveSession = errors.New("no active care session")
	ErrNotCareMode     = errors.New("tracker is not in care mode")
	ErrTrackerNotFound = errors.New("tracker not found")
	ErrNudgeInjected   = errors.New("nudge events are generated by the server")
	ErrMissingImage    = errors.New("finalize needs canvas PNG bytes or an image id")
	ErrInvalidCanvas   = errors.New("canvas dimensions must be positive")
	ErrNoStore         = errors.New("no session store configured")
)

// EventError reports a rejected event.
type EventError struct {
	Kind string
	Err  error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("invalid %q event: %v", e.Kind, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}
