package workflow

import "fmt"

// BuildLabTestTable creates the lab test workflow.
// Sample work starts only after the order is confirmed and billed.
func BuildLabTestTable() Table {
	builder := NewBuilder(EntityLabTest, StatePendingConfirmation)

	builder.Configure(StatePendingConfirmation).
		Permit(TriggerConfirm, StateOrdered)
	builder.Configure(StateOrdered).
		Permit(TriggerAdvance, StateSampleCollected)
	builder.Configure(StateSampleCollected).
		Permit(TriggerAdvance, StateInProgress)
	builder.Configure(StateInProgress).
		Permit(TriggerAdvance, StatePendingApproval)
	builder.Configure(StatePendingApproval).
		Permit(TriggerAdvance, StateCompleted)

	builder.PermitFromActive(TriggerCancel, StateCancelled)

	return builder.Build()
}

// BuildRadiologyTestTable creates the radiology test workflow
func BuildRadiologyTestTable() Table {
	builder := NewBuilder(EntityRadiologyTest, StateOrdered)

	builder.Configure(StateOrdered).
		Permit(TriggerAdvance, StateScheduled)
	builder.Configure(StateScheduled).
		Permit(TriggerAdvance, StateInProgress)
	builder.Configure(StateInProgress).
		Permit(TriggerAdvance, StatePerformed)
	builder.Configure(StatePerformed).
		Permit(TriggerAdvance, StatePendingReport)
	builder.Configure(StatePendingReport).
		Permit(TriggerAdvance, StatePendingApproval)
	builder.Configure(StatePendingApproval).
		Permit(TriggerAdvance, StateCompleted)

	builder.PermitFromActive(TriggerCancel, StateCancelled)

	return builder.Build()
}

// BuildAdmissionTable creates the admission workflow.
// Disposition is a branch: the operator picks discharge or transfer.
func BuildAdmissionTable() Table {
	builder := NewBuilder(EntityAdmission, StateAdmitted)

	builder.Configure(StateAdmitted).
		Permit(TriggerAdvance, StateDischarged).
		Permit(TriggerAdvance, StateTransferred)

	builder.PermitFromActive(TriggerCancel, StateCancelled)

	return builder.Build()
}

// BuildSurgeryTable creates the surgery booking workflow
func BuildSurgeryTable() Table {
	builder := NewBuilder(EntitySurgery, StatePendingConfirmation)

	builder.Configure(StatePendingConfirmation).
		Permit(TriggerConfirm, StateScheduled)
	builder.Configure(StateScheduled).
		Permit(TriggerAdvance, StatePreOp)
	builder.Configure(StatePreOp).
		Permit(TriggerAdvance, StateInProgress)
	builder.Configure(StateInProgress).
		Permit(TriggerAdvance, StatePostOp)
	builder.Configure(StatePostOp).
		Permit(TriggerAdvance, StateCompleted)

	builder.PermitFromActive(TriggerCancel, StateCancelled)

	return builder.Build()
}

var registry = map[EntityType]Table{
	EntityLabTest:       BuildLabTestTable(),
	EntityRadiologyTest: BuildRadiologyTestTable(),
	EntityAdmission:     BuildAdmissionTable(),
	EntitySurgery:       BuildSurgeryTable(),
}

// TableFor returns the shared table of an entity type
func TableFor(entityType EntityType) (Table, error) {
	t, exists := registry[entityType]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntityType, entityType)
	}
	return t, nil
}

// Tables returns every registered table in EntityTypes order
func Tables() []Table {
	result := make([]Table, 0, len(EntityTypes))
	for _, t := range EntityTypes {
		result = append(result, registry[t])
	}
	return result
}
