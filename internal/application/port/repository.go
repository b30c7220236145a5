package port

import (
	"context"
	"time"

	"github.com/harshangpate/hospital-crm/internal/domain/entity"
	"github.com/harshangpate/hospital-crm/internal/domain/workflow"
)

// OrderFilter narrows a workflow entity listing. Zero values match everything.
type OrderFilter struct {
	EntityType workflow.EntityType
	Status     workflow.State
	PatientID  string
	Critical   *bool
	Limit      int
	Offset     int
}

// OrderRepository defines persistence operations for WorkflowEntity.
// Get methods return (nil, nil) when the row does not exist.
type OrderRepository interface {
	Create(ctx context.Context, e *entity.WorkflowEntity) error
	GetByID(ctx context.Context, id string) (*entity.WorkflowEntity, error)
	List(ctx context.Context, filter OrderFilter) ([]*entity.WorkflowEntity, int, error)

	// CompareAndSwap writes e only if the stored updated_at still equals
	// expectedUpdatedAt. It returns false when another writer got there first.
	CompareAndSwap(ctx context.Context, e *entity.WorkflowEntity, expectedUpdatedAt time.Time) (bool, error)

	// ListBillingPending returns confirmed entities still waiting for an invoice
	ListBillingPending(ctx context.Context, limit int) ([]*entity.WorkflowEntity, error)

	// SetInvoice records the invoice, clears the billing-pending flag and moves
	// updated_at, but only if updated_at still equals expectedUpdatedAt.
	SetInvoice(ctx context.Context, id string, invoiceID string, expectedUpdatedAt, updatedAt time.Time) (bool, error)
}

// HistoryRepository defines persistence operations for TransitionRecord
type HistoryRepository interface {
	Create(ctx context.Context, record *entity.TransitionRecord) error
	GetByEntityID(ctx context.Context, entityID string) ([]*entity.TransitionRecord, error)
}

// InvoiceRepository defines persistence operations for Invoice
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *entity.Invoice) error
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	GetByEntityID(ctx context.Context, entityID string) (*entity.Invoice, error)
	List(ctx context.Context, status string, limit, offset int) ([]*entity.Invoice, error)

	// MarkPaid settles an unpaid invoice; false means it was not unpaid
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error)
}

// BedRepository defines persistence operations for Bed
type BedRepository interface {
	Upsert(ctx context.Context, bed *entity.Bed) error
	Get(ctx context.Context, ref string) (*entity.Bed, error)
	List(ctx context.Context, ward string) ([]*entity.Bed, error)

	// Occupy claims a free bed; false means it is already occupied
	Occupy(ctx context.Context, ref, entityID string) (bool, error)
	Vacate(ctx context.Context, ref string) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
