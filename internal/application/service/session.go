package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	appwf "github.com/harshangpate/hospital-crm/internal/application/workflow"
	domainwf "github.com/harshangpate/hospital-crm/internal/domain/workflow"
)

var (
	// ErrNotFound is returned when the requested record does not exist
	ErrNotFound = errors.New("not found")

	// ErrMissingActor is returned when an operation is attempted without a session actor
	ErrMissingActor = errors.New("session actor is required")

	// ErrInvalidFilter is returned for unusable listing parameters
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrInvoiceAlreadyPaid is returned when paying a settled invoice
	ErrInvoiceAlreadyPaid = errors.New("invoice already paid")
)

// Session identifies who is acting. Authentication happens upstream;
// the session is handed to every mutating operation explicitly.
type Session struct {
	ActorID string
	Role    string
}

// SystemSession is used by background workers
func SystemSession(worker string) Session {
	return Session{ActorID: "system:" + worker, Role: "system"}
}

// Validate checks that the session names an actor
func (s Session) Validate() error {
	if strings.TrimSpace(s.ActorID) == "" {
		return ErrMissingActor
	}
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// Stable error codes for API clients and metrics labels
const (
	CodeOK                     = "OK"
	CodeInvalidState           = "INVALID_STATE"
	CodeAmbiguousTransition    = "AMBIGUOUS_TRANSITION"
	CodeInvalidTarget          = "INVALID_TARGET"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeInvalidEntityType      = "INVALID_ENTITY_TYPE"
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeNotFound               = "NOT_FOUND"
	CodeMissingActor           = "MISSING_ACTOR"
	CodeInvoiceAlreadyPaid     = "INVOICE_ALREADY_PAID"
	CodeBedUnavailable         = "BED_UNAVAILABLE"
	CodeBedNotFound            = "BED_NOT_FOUND"
	CodeCollaboratorFailed     = "COLLABORATOR_FAILED"
	CodeInternal               = "INTERNAL"
)

// ErrorCode classifies err by the sentinel it wraps
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, domainwf.ErrConcurrentModification):
		return CodeConcurrentModification
	case errors.Is(err, domainwf.ErrAmbiguousTransition):
		return CodeAmbiguousTransition
	case errors.Is(err, domainwf.ErrInvalidTarget):
		return CodeInvalidTarget
	case errors.Is(err, domainwf.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, domainwf.ErrInvalidEntityType):
		return CodeInvalidEntityType
	case errors.Is(err, appwf.ErrInvalidRequest), errors.Is(err, ErrInvalidFilter):
		return CodeInvalidRequest
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrMissingActor):
		return CodeMissingActor
	case errors.Is(err, ErrInvoiceAlreadyPaid):
		return CodeInvoiceAlreadyPaid
	case errors.Is(err, port.ErrBedUnavailable):
		return CodeBedUnavailable
	case errors.Is(err, port.ErrBedNotFound):
		return CodeBedNotFound
	case errors.Is(err, appwf.ErrCollaboratorFailed):
		return CodeCollaboratorFailed
	default:
		return CodeInternal
	}
}
