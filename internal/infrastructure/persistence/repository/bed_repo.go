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

// BedRepository implements port.BedRepository
type BedRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBedRepository creates a new bed repository
func NewBedRepository(db *sql.DB, logger *zap.Logger) port.BedRepository {
	return &BedRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert creates a bed or moves it to another ward; occupancy is preserved
func (r *BedRepository) Upsert(ctx context.Context, bed *entity.Bed) error {
	query := `
		INSERT INTO beds (ref, ward, occupied_by, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET ward = excluded.ward, updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query, bed.Ref, bed.Ward, bed.OccupiedBy, toNanos(now))
	if err != nil {
		r.logger.Error("Failed to upsert bed", zap.String("ref", bed.Ref), zap.Error(err))
		return fmt.Errorf("failed to upsert bed: %w", err)
	}

	bed.UpdatedAt = now
	return nil
}

// Get retrieves a bed by reference
func (r *BedRepository) Get(ctx context.Context, ref string) (*entity.Bed, error) {
	query := `SELECT ref, ward, occupied_by, updated_at FROM beds WHERE ref = ?`

	bed, err := scanBed(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get bed", zap.String("ref", ref), zap.Error(err))
		return nil, fmt.Errorf("failed to get bed: %w", err)
	}
	return bed, nil
}

// List returns beds ordered by ward then reference
func (r *BedRepository) List(ctx context.Context, ward string) ([]*entity.Bed, error) {
	query := `SELECT ref, ward, occupied_by, updated_at FROM beds`
	var args []interface{}
	if ward != "" {
		query += ` WHERE ward = ?`
		args = append(args, ward)
	}
	query += ` ORDER BY ward, ref`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list beds", zap.Error(err))
		return nil, fmt.Errorf("failed to list beds: %w", err)
	}
	defer rows.Close()

	var beds []*entity.Bed
	for rows.Next() {
		bed, err := scanBed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bed: %w", err)
		}
		beds = append(beds, bed)
	}
	return beds, rows.Err()
}

// Occupy claims a free bed for an admission
func (r *BedRepository) Occupy(ctx context.Context, ref, entityID string) (bool, error) {
	query := `UPDATE beds SET occupied_by = ?, updated_at = ? WHERE ref = ? AND occupied_by = ''`

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query, entityID, toNanos(time.Now()), ref)
	if err != nil {
		r.logger.Error("Failed to occupy bed", zap.String("ref", ref), zap.Error(err))
		return false, fmt.Errorf("failed to occupy bed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// Vacate frees a bed
func (r *BedRepository) Vacate(ctx context.Context, ref string) error {
	query := `UPDATE beds SET occupied_by = '', updated_at = ? WHERE ref = ?`

	if _, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query, toNanos(time.Now()), ref); err != nil {
		r.logger.Error("Failed to vacate bed", zap.String("ref", ref), zap.Error(err))
		return fmt.Errorf("failed to vacate bed: %w", err)
	}
	return nil
}

func scanBed(s rowScanner) (*entity.Bed, error) {
	var bed entity.Bed
	var updatedAt int64
	if err := s.Scan(&bed.Ref, &bed.Ward, &bed.OccupiedBy, &updatedAt); err != nil {
		return nil, err
	}
	bed.UpdatedAt = fromNanos(updatedAt)
	return &bed, nil
}

// Verify interface compliance
var _ port.BedRepository = (*BedRepository)(nil)
