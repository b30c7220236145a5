package entity

import "time"

// Action names recorded in the transition history
const (
	ActionCreate           = "CREATE"
	ActionConfirm          = "CONFIRM"
	ActionAdvance          = "ADVANCE"
	ActionCancel           = "CANCEL"
	ActionMarkCritical     = "MARK_CRITICAL"
	ActionInvoiceReconcile = "INVOICE_RECONCILED"
)

// TransitionRecord is the append-only audit trail of a workflow entity
type TransitionRecord struct {
	ID             int64     `json:"id"`
	EntityID       string    `json:"entity_id"`
	ActorID        string    `json:"actor_id"`
	ActorRole      string    `json:"actor_role,omitempty"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Action         string    `json:"action"`
	Detail         string    `json:"detail,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
