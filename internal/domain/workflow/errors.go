package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation is not legal from the current status
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrAmbiguousTransition is returned when a branch target is required but not supplied
	ErrAmbiguousTransition = errors.New("ambiguous transition: target state required")

	// ErrInvalidTarget is returned when the supplied target is not a legal transition
	ErrInvalidTarget = errors.New("invalid transition target")

	// ErrConcurrentModification is returned when the entity changed since it was loaded
	ErrConcurrentModification = errors.New("entity was concurrently modified")

	// ErrInvalidEntityType is returned for an unknown entity type tag
	ErrInvalidEntityType = errors.New("invalid entity type")
)

// TransitionError carries the context of a rejected transition.
// errors.Is matches it against the wrapped sentinel.
type TransitionError struct {
	Err        error
	EntityType EntityType
	Status     State
	Action     string
	Target     State
}

// NewTransitionError builds a TransitionError for the given sentinel
func NewTransitionError(err error, entityType EntityType, status State, action string, target State) *TransitionError {
	return &TransitionError{
		Err:        err,
		EntityType: entityType,
		Status:     status,
		Action:     action,
		Target:     target,
	}
}

func (e *TransitionError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%v: %s %s from %s to %s", e.Err, e.EntityType, e.Action, e.Status, e.Target)
	}
	return fmt.Sprintf("%v: %s %s from %s", e.Err, e.EntityType, e.Action, e.Status)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
