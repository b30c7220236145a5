package entity

import (
	"time"

	"github.com/harshangpate/hospital-crm/internal/domain/workflow"
)

// WorkflowEntity is an order-like clinical record advanced through a fixed
// status sequence: a lab test, radiology test, admission or surgery booking.
type WorkflowEntity struct {
	ID         string              `json:"id"`
	EntityType workflow.EntityType `json:"entity_type"`
	Status     workflow.State      `json:"status"`
	IsCritical bool                `json:"is_critical"`
	// CriticalNotifiedStatus is the status at which the last critical
	// notification went out; empty when none has been sent.
	CriticalNotifiedStatus workflow.State `json:"critical_notified_status,omitempty"`
	PatientID              string         `json:"patient_id"`
	Description            string         `json:"description,omitempty"`
	OrderedBy              string         `json:"ordered_by,omitempty"`
	BedRef                 string         `json:"bed_ref,omitempty"`
	InvoiceID              string         `json:"invoice_id,omitempty"`
	// BillingPending marks a confirmed entity whose invoice could not be created yet
	BillingPending bool      `json:"billing_pending"`
	CancelReason   string    `json:"cancel_reason,omitempty"`
	OrderedAt      time.Time `json:"ordered_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Ref returns the collaborator-facing view of the entity
func (e *WorkflowEntity) Ref() EntityRef {
	return EntityRef{
		ID:          e.ID,
		EntityType:  e.EntityType,
		Status:      e.Status,
		PatientID:   e.PatientID,
		Description: e.Description,
		BedRef:      e.BedRef,
		IsCritical:  e.IsCritical,
	}
}

// EntityRef is what collaborators (billing, notification) receive
type EntityRef struct {
	ID          string              `json:"id"`
	EntityType  workflow.EntityType `json:"entity_type"`
	Status      workflow.State      `json:"status"`
	PatientID   string              `json:"patient_id"`
	Description string              `json:"description,omitempty"`
	BedRef      string              `json:"bed_ref,omitempty"`
	IsCritical  bool                `json:"is_critical"`
}
