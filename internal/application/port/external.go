package port

import (
	"context"
	"errors"

	"github.com/harshangpate/hospital-crm/internal/domain/entity"
)

var (
	// ErrBedNotFound is returned when the bed reference is unknown
	ErrBedNotFound = errors.New("bed not found")

	// ErrBedUnavailable is returned when the bed is held by another admission
	ErrBedUnavailable = errors.New("bed unavailable")
)

// BillingService raises invoices for confirmed orders.
// CreateInvoice is idempotent per entity: a repeated call returns the existing invoice ID.
type BillingService interface {
	CreateInvoice(ctx context.Context, ref entity.EntityRef) (string, error)
}

// NotificationService alerts clinical staff about critical results
type NotificationService interface {
	NotifyCritical(ctx context.Context, ref entity.EntityRef) error
}

// BedInventoryService tracks ward bed occupancy
type BedInventoryService interface {
	Reserve(ctx context.Context, bedRef string, entityID string) error
	Release(ctx context.Context, bedRef string) error
}

// MessageSender defines chat message operations used by notifiers
type MessageSender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, content string) error
}
