package beds

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
)

// Inventory implements port.BedInventoryService over the beds table
type Inventory struct {
	beds   port.BedRepository
	logger *zap.Logger
}

// NewInventory creates a bed inventory
func NewInventory(beds port.BedRepository, logger *zap.Logger) *Inventory {
	return &Inventory{
		beds:   beds,
		logger: logger,
	}
}

// Reserve claims bedRef for entityID. Reserving a bed the same entity
// already holds succeeds.
func (i *Inventory) Reserve(ctx context.Context, bedRef string, entityID string) error {
	bed, err := i.beds.Get(ctx, bedRef)
	if err != nil {
		return err
	}
	if bed == nil {
		return fmt.Errorf("%w: %s", port.ErrBedNotFound, bedRef)
	}
	if bed.OccupiedBy == entityID {
		return nil
	}

	ok, err := i.beds.Occupy(ctx, bedRef, entityID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", port.ErrBedUnavailable, bedRef)
	}

	i.logger.Info("Bed reserved", zap.String("bed", bedRef), zap.String("entity_id", entityID))
	return nil
}

// Release frees bedRef
func (i *Inventory) Release(ctx context.Context, bedRef string) error {
	if err := i.beds.Vacate(ctx, bedRef); err != nil {
		return err
	}
	i.logger.Info("Bed released", zap.String("bed", bedRef))
	return nil
}

// Seed registers beds, keeping the occupancy of those already known
func (i *Inventory) Seed(ctx context.Context, wards map[string][]string) error {
	now := time.Now().UTC()
	count := 0
	for ward, refs := range wards {
		for _, ref := range refs {
			if err := i.beds.Upsert(ctx, &entity.Bed{Ref: ref, Ward: ward, UpdatedAt: now}); err != nil {
				return fmt.Errorf("seed bed %s: %w", ref, err)
			}
			count++
		}
	}
	if count > 0 {
		i.logger.Info("Bed inventory seeded", zap.Int("beds", count), zap.Int("wards", len(wards)))
	}
	return nil
}

var _ port.BedInventoryService = (*Inventory)(nil)
