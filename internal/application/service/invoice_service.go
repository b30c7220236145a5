package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harshangpate/hospital-crm/internal/application/dispatcher"
	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
	"github.com/harshangpate/hospital-crm/internal/domain/event"
)

var errReconcileLost = errors.New("entity changed during reconcile")

// InvoiceService exposes the invoice ledger and settles billing left
// pending by tolerated collaborator failures
type InvoiceService interface {
	Get(ctx context.Context, id string) (*entity.Invoice, error)
	GetByEntity(ctx context.Context, entityID string) (*entity.Invoice, error)
	List(ctx context.Context, status string, limit, offset int) ([]*entity.Invoice, error)
	MarkPaid(ctx context.Context, session Session, id string) (*entity.Invoice, error)

	// ReconcilePending retries invoice creation for up to limit
	// billing-pending entities and returns how many were settled
	ReconcilePending(ctx context.Context, limit int) (int, error)
}

type invoiceServiceImpl struct {
	invoices   port.InvoiceRepository
	orders     port.OrderRepository
	history    port.HistoryRepository
	txManager  port.TransactionManager
	billing    port.BillingService
	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time
}

// NewInvoiceService creates a new InvoiceService. d may be nil.
func NewInvoiceService(
	invoices port.InvoiceRepository,
	orders port.OrderRepository,
	history port.HistoryRepository,
	txManager port.TransactionManager,
	billing port.BillingService,
	d dispatcher.Dispatcher,
	logger Logger,
) InvoiceService {
	return &invoiceServiceImpl{
		invoices:   invoices,
		orders:     orders,
		history:    history,
		txManager:  txManager,
		billing:    billing,
		dispatcher: d,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *invoiceServiceImpl) Get(ctx context.Context, id string) (*entity.Invoice, error) {
	invoice, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get invoice", "error", err, "id", id)
		return nil, err
	}
	if invoice == nil {
		return nil, notFound("invoice", id)
	}
	return invoice, nil
}

func (s *invoiceServiceImpl) GetByEntity(ctx context.Context, entityID string) (*entity.Invoice, error) {
	invoice, err := s.invoices.GetByEntityID(ctx, entityID)
	if err != nil {
		s.logger.Error("Failed to get invoice by entity", "error", err, "entity_id", entityID)
		return nil, err
	}
	if invoice == nil {
		return nil, notFound("invoice for order", entityID)
	}
	return invoice, nil
}

func (s *invoiceServiceImpl) List(ctx context.Context, status string, limit, offset int) ([]*entity.Invoice, error) {
	switch status {
	case "", entity.InvoiceStatusPaid, entity.InvoiceStatusUnpaid:
	default:
		return nil, fmt.Errorf("%w: invoice status %q", ErrInvalidFilter, status)
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}

	invoices, err := s.invoices.List(ctx, status, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list invoices", "error", err)
		return nil, err
	}
	if invoices == nil {
		invoices = []*entity.Invoice{}
	}
	return invoices, nil
}

// MarkPaid settles an unpaid invoice
func (s *invoiceServiceImpl) MarkPaid(ctx context.Context, session Session, id string) (*entity.Invoice, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}

	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.IsPaid() {
		return nil, fmt.Errorf("%w: %s", ErrInvoiceAlreadyPaid, id)
	}

	paidAt := s.now().UTC()
	ok, err := s.invoices.MarkPaid(ctx, id, paidAt)
	if err != nil {
		s.logger.Error("Failed to mark invoice paid", "error", err, "id", id)
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvoiceAlreadyPaid, id)
	}

	invoice.Status = entity.InvoiceStatusPaid
	invoice.PaidAt = &paidAt

	s.logger.Info("Invoice paid", "id", id, "entity_id", invoice.EntityID, "actor_id", session.ActorID)
	return invoice, nil
}

// ReconcilePending is driven by the billing reconciler worker
func (s *invoiceServiceImpl) ReconcilePending(ctx context.Context, limit int) (int, error) {
	pending, err := s.orders.ListBillingPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list billing pending: %w", err)
	}

	session := SystemSession("billing-reconciler")
	reconciled := 0
	for _, e := range pending {
		if ctx.Err() != nil {
			return reconciled, ctx.Err()
		}

		invoiceID, err := s.billing.CreateInvoice(ctx, e.Ref())
		if err != nil {
			s.logger.Error("Invoice retry failed", "error", err, "entity_id", e.ID)
			continue
		}

		updatedAt := s.now()
		if !updatedAt.After(e.UpdatedAt) {
			updatedAt = e.UpdatedAt.Add(time.Nanosecond)
		}

		err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			swapped, err := s.orders.SetInvoice(txCtx, e.ID, invoiceID, e.UpdatedAt, updatedAt)
			if err != nil {
				return err
			}
			if !swapped {
				return errReconcileLost
			}
			return s.history.Create(txCtx, &entity.TransitionRecord{
				EntityID:       e.ID,
				ActorID:        session.ActorID,
				ActorRole:      session.Role,
				PreviousStatus: string(e.Status),
				NewStatus:      string(e.Status),
				Action:         entity.ActionInvoiceReconcile,
				Detail:         "invoice " + invoiceID,
				Timestamp:      updatedAt,
			})
		})
		if errors.Is(err, errReconcileLost) {
			// the entity moved on; the next pass sees the fresh row and reuses the invoice
			s.logger.Info("Invoice reconcile skipped, entity changed", "entity_id", e.ID)
			continue
		}
		if err != nil {
			s.logger.Error("Failed to record reconciled invoice", "error", err, "entity_id", e.ID)
			continue
		}

		reconciled++
		if s.dispatcher != nil {
			s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeInvoiceReconciled, e.ID, map[string]interface{}{
				event.KeyEntityType: e.EntityType,
				event.KeyInvoiceID:  invoiceID,
				event.KeyActorID:    session.ActorID,
			}))
		}
		s.logger.Info("Invoice reconciled", "entity_id", e.ID, "invoice_id", invoiceID)
	}

	return reconciled, nil
}
