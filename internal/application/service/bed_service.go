package service

import (
	"context"
	"strings"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
)

// BedService is the read side of the bed inventory
type BedService interface {
	List(ctx context.Context, ward string) ([]*entity.Bed, error)
}

type bedServiceImpl struct {
	beds   port.BedRepository
	logger Logger
}

// NewBedService creates a new BedService
func NewBedService(beds port.BedRepository, logger Logger) BedService {
	return &bedServiceImpl{beds: beds, logger: logger}
}

func (s *bedServiceImpl) List(ctx context.Context, ward string) ([]*entity.Bed, error) {
	beds, err := s.beds.List(ctx, strings.TrimSpace(ward))
	if err != nil {
		s.logger.Error("Failed to list beds", "error", err, "ward", ward)
		return nil, err
	}
	if beds == nil {
		beds = []*entity.Bed{}
	}
	return beds, nil
}
