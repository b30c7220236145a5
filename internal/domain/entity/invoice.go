package entity

import (
	"time"

	"github.com/harshangpate/hospital-crm/internal/domain/workflow"
)

// Invoice status constants
const (
	InvoiceStatusUnpaid = "UNPAID"
	InvoiceStatusPaid   = "PAID"
)

// Invoice is the billing record raised when an order is confirmed.
// At most one invoice exists per workflow entity.
type Invoice struct {
	ID          string              `json:"id"`
	EntityID    string              `json:"entity_id"`
	EntityType  workflow.EntityType `json:"entity_type"`
	PatientID   string              `json:"patient_id"`
	AmountCents int64               `json:"amount_cents"`
	Status      string              `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	PaidAt      *time.Time          `json:"paid_at,omitempty"`
}

// IsPaid returns true once the invoice has been settled
func (i *Invoice) IsPaid() bool {
	return i.Status == InvoiceStatusPaid
}
