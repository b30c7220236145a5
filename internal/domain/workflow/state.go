package workflow

import (
	"fmt"
	"strings"
)

// EntityType tags the kind of order-like record a table governs
type EntityType string

const (
	EntityLabTest       EntityType = "LAB_TEST"
	EntityRadiologyTest EntityType = "RADIOLOGY_TEST"
	EntityAdmission     EntityType = "ADMISSION"
	EntitySurgery       EntityType = "SURGERY"
)

// EntityTypes lists every supported entity type in display order
var EntityTypes = []EntityType{
	EntityLabTest,
	EntityRadiologyTest,
	EntityAdmission,
	EntitySurgery,
}

// String returns the string representation of the entity type
func (t EntityType) String() string {
	return string(t)
}

// IsValid returns true if the entity type is one of the defined constants
func (t EntityType) IsValid() bool {
	switch t {
	case EntityLabTest, EntityRadiologyTest, EntityAdmission, EntitySurgery:
		return true
	default:
		return false
	}
}

// ParseEntityType accepts "lab_test", "LAB-TEST" and similar spellings
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntityType, s)
	}
	return t, nil
}

// State represents a status in one of the order workflows
type State string

const (
	StatePendingConfirmation State = "PENDING_CONFIRMATION"
	StateOrdered             State = "ORDERED"
	StateSampleCollected     State = "SAMPLE_COLLECTED"
	StateScheduled           State = "SCHEDULED"
	StatePreOp               State = "PRE_OP"
	StateInProgress          State = "IN_PROGRESS"
	StatePerformed           State = "PERFORMED"
	StatePostOp              State = "POST_OP"
	StatePendingReport       State = "PENDING_REPORT"
	StatePendingApproval     State = "PENDING_APPROVAL"
	StateAdmitted            State = "ADMITTED"
	StateCompleted           State = "COMPLETED"
	StateDischarged          State = "DISCHARGED"
	StateTransferred         State = "TRANSFERRED"
	StateCancelled           State = "CANCELLED"
)

var knownStates = map[State]bool{
	StatePendingConfirmation: true,
	StateOrdered:             true,
	StateSampleCollected:     true,
	StateScheduled:           true,
	StatePreOp:               true,
	StateInProgress:          true,
	StatePerformed:           true,
	StatePostOp:              true,
	StatePendingReport:       true,
	StatePendingApproval:     true,
	StateAdmitted:            true,
	StateCompleted:           true,
	StateDischarged:          true,
	StateTransferred:         true,
	StateCancelled:           true,
}

var terminalStates = map[State]bool{
	StateCompleted:   true,
	StateDischarged:  true,
	StateTransferred: true,
	StateCancelled:   true,
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsKnown returns true if the state belongs to any workflow.
// Membership in a particular entity type's state set is checked by Table.IsValid.
func (s State) IsKnown() bool {
	return knownStates[s]
}
