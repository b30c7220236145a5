package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
	"github.com/harshangpate/hospital-crm/internal/domain/workflow"
)

// PriceList maps an entity type to its flat charge in cents
type PriceList map[workflow.EntityType]int64

// Ledger implements port.BillingService against the local invoices table
type Ledger struct {
	invoices port.InvoiceRepository
	prices   PriceList
	now      func() time.Time
	logger   *zap.Logger
}

// NewLedger creates a billing ledger. Entity types missing from prices are billed at zero.
func NewLedger(invoices port.InvoiceRepository, prices PriceList, logger *zap.Logger) *Ledger {
	return &Ledger{
		invoices: invoices,
		prices:   prices,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// CreateInvoice raises the invoice for ref, or returns the existing one
func (l *Ledger) CreateInvoice(ctx context.Context, ref entity.EntityRef) (string, error) {
	if ref.ID == "" {
		return "", fmt.Errorf("entity id is required")
	}

	existing, err := l.invoices.GetByEntityID(ctx, ref.ID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}

	invoice := &entity.Invoice{
		ID:          uuid.NewString(),
		EntityID:    ref.ID,
		EntityType:  ref.EntityType,
		PatientID:   ref.PatientID,
		AmountCents: l.prices[ref.EntityType],
		Status:      entity.InvoiceStatusUnpaid,
		CreatedAt:   l.now(),
	}

	if err := l.invoices.Create(ctx, invoice); err != nil {
		// lost a race on the unique entity_id
		if again, getErr := l.invoices.GetByEntityID(ctx, ref.ID); getErr == nil && again != nil {
			return again.ID, nil
		}
		return "", err
	}

	l.logger.Info("Invoice created",
		zap.String("invoice_id", invoice.ID),
		zap.String("entity_id", ref.ID),
		zap.String("entity_type", ref.EntityType.String()),
		zap.Int64("amount_cents", invoice.AmountCents))

	return invoice.ID, nil
}

var _ port.BillingService = (*Ledger)(nil)
