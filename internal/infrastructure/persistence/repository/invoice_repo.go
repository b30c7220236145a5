package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
	"github.com/harshangpate/hospital-crm/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const invoiceColumns = `id, entity_id, entity_type, patient_id, amount_cents, status, created_at, paid_at`

// InvoiceRepository implements port.InvoiceRepository
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) port.InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an invoice; entity_id is unique
func (r *InvoiceRepository) Create(ctx context.Context, invoice *entity.Invoice) error {
	query := `INSERT INTO invoices (` + invoiceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var paidAt sql.NullInt64
	if invoice.PaidAt != nil {
		paidAt = sql.NullInt64{Int64: toNanos(*invoice.PaidAt), Valid: true}
	}

	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		invoice.ID,
		invoice.EntityID,
		invoice.EntityType,
		invoice.PatientID,
		invoice.AmountCents,
		invoice.Status,
		toNanos(invoice.CreatedAt),
		paidAt,
	)
	if err != nil {
		r.logger.Error("Failed to create invoice",
			zap.String("entity_id", invoice.EntityID), zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	return nil
}

// GetByID retrieves an invoice by ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	return r.getOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
}

// GetByEntityID retrieves the invoice raised for a workflow entity
func (r *InvoiceRepository) GetByEntityID(ctx context.Context, entityID string) (*entity.Invoice, error) {
	return r.getOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE entity_id = ?`, entityID)
}

func (r *InvoiceRepository) getOne(ctx context.Context, query string, arg string) (*entity.Invoice, error) {
	invoice, err := scanInvoice(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice", zap.String("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return invoice, nil
}

// List returns invoices, newest first, optionally filtered by status
func (r *InvoiceRepository) List(ctx context.Context, status string, limit, offset int) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list invoices", zap.Error(err))
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*entity.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}

	return invoices, rows.Err()
}

// MarkPaid settles an unpaid invoice
func (r *InvoiceRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	query := `UPDATE invoices SET status = ?, paid_at = ? WHERE id = ? AND status = ?`

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		entity.InvoiceStatusPaid,
		toNanos(paidAt),
		id,
		entity.InvoiceStatusUnpaid,
	)
	if err != nil {
		r.logger.Error("Failed to mark invoice paid", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark invoice paid: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

func scanInvoice(s rowScanner) (*entity.Invoice, error) {
	var invoice entity.Invoice
	var createdAt int64
	var paidAt sql.NullInt64

	if err := s.Scan(
		&invoice.ID,
		&invoice.EntityID,
		&invoice.EntityType,
		&invoice.PatientID,
		&invoice.AmountCents,
		&invoice.Status,
		&createdAt,
		&paidAt,
	); err != nil {
		return nil, err
	}

	invoice.CreatedAt = fromNanos(createdAt)
	if paidAt.Valid {
		t := fromNanos(paidAt.Int64)
		invoice.PaidAt = &t
	}
	return &invoice, nil
}

// Verify interface compliance
var _ port.InvoiceRepository = (*InvoiceRepository)(nil)
