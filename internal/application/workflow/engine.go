package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harshangpate/hospital-crm/internal/domain/entity"
	domainwf "github.com/harshangpate/hospital-crm/internal/domain/workflow"
)

var (
	// ErrInvalidRequest is returned when a create request is missing required data
	ErrInvalidRequest = errors.New("invalid request")

	// ErrCollaboratorFailed wraps a collaborator error that aborted an operation
	ErrCollaboratorFailed = errors.New("collaborator call failed")
)

// Engine validates and applies one transition to an in-memory entity.
// The input entity is never modified; callers persist Result.Entity.
type Engine interface {
	// Create builds a new entity in its type's initial state
	Create(ctx context.Context, req CreateRequest) (*Result, error)

	// Confirm moves an entity out of PENDING_CONFIRMATION and raises an invoice
	Confirm(ctx context.Context, e *entity.WorkflowEntity) (*Result, error)

	// Advance moves to the table's next state, or to target when one is given
	Advance(ctx context.Context, e *entity.WorkflowEntity, target domainwf.State) (*Result, error)

	// MarkCritical flags the entity and notifies at most once per status
	MarkCritical(ctx context.Context, e *entity.WorkflowEntity) (*Result, error)

	// Cancel terminates the entity with a reason
	Cancel(ctx context.Context, e *entity.WorkflowEntity, reason string) (*Result, error)
}

// CreateRequest describes a new order
type CreateRequest struct {
	EntityType  domainwf.EntityType
	PatientID   string
	Description string
	OrderedBy   string
	// BedRef is required for admissions and rejected for everything else
	BedRef string
}

// Result is the outcome of an engine operation
type Result struct {
	Entity         *entity.WorkflowEntity
	Action         string
	PreviousStatus domainwf.State
	// Changed is false when the operation was an idempotent no-op
	Changed  bool
	Warnings []Warning
}

// Warning records a collaborator failure tolerated by the engine
type Warning struct {
	Collaborator string
	Err          error
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s: %v", w.Collaborator, w.Err)
}

func (w Warning) Unwrap() error {
	return w.Err
}

// FailurePolicy decides what a collaborator failure does to a transition
type FailurePolicy string

const (
	// PolicyTolerate commits the transition and reports the failure as a warning
	PolicyTolerate FailurePolicy = "tolerate"

	// PolicyStrict aborts the transition and leaves the entity unchanged
	PolicyStrict FailurePolicy = "strict"
)

// ParseFailurePolicy converts a config value to a FailurePolicy
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyTolerate, PolicyStrict:
		return p, nil
	case "":
		return PolicyTolerate, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// Collaborator names used in warnings, logs and metrics
const (
	CollaboratorBilling      = "billing"
	CollaboratorNotification = "notification"
	CollaboratorBeds         = "beds"
)
