package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
	"github.com/harshangpate/hospital-crm/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a transition record
func (r *HistoryRepository) Create(ctx context.Context, record *entity.TransitionRecord) error {
	query := `
		INSERT INTO transition_history (
			entity_id, actor_id, actor_role, previous_status, new_status,
			action, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		record.EntityID,
		record.ActorID,
		record.ActorRole,
		record.PreviousStatus,
		record.NewStatus,
		record.Action,
		record.Detail,
		toNanos(record.Timestamp),
	)
	if err != nil {
		r.logger.Error("Failed to create history record",
			zap.String("entity_id", record.EntityID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	record.ID = id
	return nil
}

// GetByEntityID retrieves the history of an entity in insertion order
func (r *HistoryRepository) GetByEntityID(ctx context.Context, entityID string) ([]*entity.TransitionRecord, error) {
	query := `
		SELECT id, entity_id, actor_id, actor_role, previous_status, new_status,
			action, detail, created_at
		FROM transition_history
		WHERE entity_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, entityID)
	if err != nil {
		r.logger.Error("Failed to get history", zap.String("entity_id", entityID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.TransitionRecord
	for rows.Next() {
		var record entity.TransitionRecord
		var createdAt int64
		if err := rows.Scan(
			&record.ID,
			&record.EntityID,
			&record.ActorID,
			&record.ActorRole,
			&record.PreviousStatus,
			&record.NewStatus,
			&record.Action,
			&record.Detail,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		record.Timestamp = fromNanos(createdAt)
		records = append(records, &record)
	}

	return records, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
