package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
	"github.com/harshangpate/hospital-crm/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const orderColumns = `
	id, entity_type, status, is_critical, critical_notified_status,
	patient_id, description, ordered_by, bed_ref, invoice_id,
	billing_pending, cancel_reason, ordered_at, updated_at`

// OrderRepository implements port.OrderRepository
type OrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new workflow entity repository
func NewOrderRepository(db *sql.DB, logger *zap.Logger) port.OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new workflow entity
func (r *OrderRepository) Create(ctx context.Context, e *entity.WorkflowEntity) error {
	query := `INSERT INTO workflow_entities (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.exec(ctx).ExecContext(ctx, query,
		e.ID,
		e.EntityType,
		e.Status,
		e.IsCritical,
		e.CriticalNotifiedStatus,
		e.PatientID,
		e.Description,
		e.OrderedBy,
		e.BedRef,
		e.InvoiceID,
		e.BillingPending,
		e.CancelReason,
		toNanos(e.OrderedAt),
		toNanos(e.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create workflow entity", zap.String("id", e.ID), zap.Error(err))
		return fmt.Errorf("failed to create workflow entity: %w", err)
	}

	return nil
}

// GetByID retrieves a workflow entity by ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*entity.WorkflowEntity, error) {
	query := `SELECT ` + orderColumns + ` FROM workflow_entities WHERE id = ?`

	e, err := scanOrder(r.exec(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow entity", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow entity: %w", err)
	}

	return e, nil
}

// List returns one page of matching entities, newest first, and the total match count
func (r *OrderRepository) List(ctx context.Context, filter port.OrderFilter) ([]*entity.WorkflowEntity, int, error) {
	var conditions []string
	var args []interface{}

	if filter.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.PatientID != "" {
		conditions = append(conditions, "patient_id = ?")
		args = append(args, filter.PatientID)
	}
	if filter.Critical != nil {
		conditions = append(conditions, "is_critical = ?")
		args = append(args, *filter.Critical)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM workflow_entities` + where
	if err := r.exec(ctx).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count workflow entities", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count workflow entities: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + orderColumns + ` FROM workflow_entities` + where +
		` ORDER BY ordered_at DESC, id LIMIT ? OFFSET ?`
	pageArgs := append(append([]interface{}{}, args...), limit, filter.Offset)

	rows, err := r.exec(ctx).QueryContext(ctx, query, pageArgs...)
	if err != nil {
		r.logger.Error("Failed to list workflow entities", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list workflow entities: %w", err)
	}
	defer rows.Close()

	entities, err := scanOrders(rows)
	if err != nil {
		return nil, 0, err
	}

	return entities, total, nil
}

// CompareAndSwap writes every mutable column when updated_at still matches
func (r *OrderRepository) CompareAndSwap(ctx context.Context, e *entity.WorkflowEntity, expectedUpdatedAt time.Time) (bool, error) {
	query := `
		UPDATE workflow_entities SET
			status = ?, is_critical = ?, critical_notified_status = ?,
			bed_ref = ?, invoice_id = ?, billing_pending = ?,
			cancel_reason = ?, updated_at = ?
		WHERE id = ? AND updated_at = ?
	`

	result, err := r.exec(ctx).ExecContext(ctx, query,
		e.Status,
		e.IsCritical,
		e.CriticalNotifiedStatus,
		e.BedRef,
		e.InvoiceID,
		e.BillingPending,
		e.CancelReason,
		toNanos(e.UpdatedAt),
		e.ID,
		toNanos(expectedUpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to update workflow entity", zap.String("id", e.ID), zap.Error(err))
		return false, fmt.Errorf("failed to update workflow entity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		r.logger.Info("Compare-and-swap lost",
			zap.String("id", e.ID),
			zap.Time("expected_updated_at", expectedUpdatedAt))
	}
	return affected == 1, nil
}

// ListBillingPending returns the oldest entities waiting for an invoice
func (r *OrderRepository) ListBillingPending(ctx context.Context, limit int) ([]*entity.WorkflowEntity, error) {
	query := `SELECT ` + orderColumns + ` FROM workflow_entities
		WHERE billing_pending = 1
		ORDER BY updated_at
		LIMIT ?`

	rows, err := r.exec(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		r.logger.Error("Failed to list billing-pending entities", zap.Error(err))
		return nil, fmt.Errorf("failed to list billing-pending entities: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// SetInvoice records a reconciled invoice under the same updated_at guard as CompareAndSwap
func (r *OrderRepository) SetInvoice(ctx context.Context, id string, invoiceID string, expectedUpdatedAt, updatedAt time.Time) (bool, error) {
	query := `
		UPDATE workflow_entities SET invoice_id = ?, billing_pending = 0, updated_at = ?
		WHERE id = ? AND updated_at = ?
	`

	result, err := r.exec(ctx).ExecContext(ctx, query, invoiceID, toNanos(updatedAt), id, toNanos(expectedUpdatedAt))
	if err != nil {
		r.logger.Error("Failed to set invoice", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to set invoice: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *OrderRepository) exec(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s rowScanner) (*entity.WorkflowEntity, error) {
	var e entity.WorkflowEntity
	var orderedAt, updatedAt int64

	err := s.Scan(
		&e.ID,
		&e.EntityType,
		&e.Status,
		&e.IsCritical,
		&e.CriticalNotifiedStatus,
		&e.PatientID,
		&e.Description,
		&e.OrderedBy,
		&e.BedRef,
		&e.InvoiceID,
		&e.BillingPending,
		&e.CancelReason,
		&orderedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.OrderedAt = fromNanos(orderedAt)
	e.UpdatedAt = fromNanos(updatedAt)
	return &e, nil
}

func scanOrders(rows *sql.Rows) ([]*entity.WorkflowEntity, error) {
	var entities []*entity.WorkflowEntity
	for rows.Next() {
		e, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// toNanos and fromNanos keep full timestamp precision so that
// updated_at comparisons are exact across drivers
func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// Verify interface compliance
var _ port.OrderRepository = (*OrderRepository)(nil)
