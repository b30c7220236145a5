package lark

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
)

// CriticalNotifier implements port.NotificationService by posting to a
// clinical alerts chat
type CriticalNotifier struct {
	sender        port.MessageSender
	receiveIDType string
	receiveID     string
	logger        *zap.Logger
}

// NewCriticalNotifier creates a notifier that posts to receiveID (a chat_id by default)
func NewCriticalNotifier(sender port.MessageSender, receiveIDType, receiveID string, logger *zap.Logger) *CriticalNotifier {
	if receiveIDType == "" {
		receiveIDType = "chat_id"
	}
	return &CriticalNotifier{
		sender:        sender,
		receiveIDType: receiveIDType,
		receiveID:     receiveID,
		logger:        logger,
	}
}

// NotifyCritical sends one alert for the entity
func (n *CriticalNotifier) NotifyCritical(ctx context.Context, ref entity.EntityRef) error {
	if err := n.sender.SendMessage(ctx, n.receiveIDType, n.receiveID, FormatCriticalAlert(ref)); err != nil {
		return fmt.Errorf("critical alert for %s: %w", ref.ID, err)
	}

	n.logger.Info("Critical alert sent",
		zap.String("entity_id", ref.ID),
		zap.String("entity_type", ref.EntityType.String()),
		zap.String("status", ref.Status.String()))
	return nil
}

// FormatCriticalAlert renders the alert text
func FormatCriticalAlert(ref entity.EntityRef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CRITICAL %s\n", strings.ReplaceAll(ref.EntityType.String(), "_", " "))
	fmt.Fprintf(&b, "Order: %s\n", ref.ID)
	fmt.Fprintf(&b, "Patient: %s\n", ref.PatientID)
	if ref.Description != "" {
		fmt.Fprintf(&b, "Item: %s\n", ref.Description)
	}
	if ref.BedRef != "" {
		fmt.Fprintf(&b, "Bed: %s\n", ref.BedRef)
	}
	fmt.Fprintf(&b, "Status: %s", ref.Status)
	return b.String()
}

// Verify interface compliance
var _ port.NotificationService = (*CriticalNotifier)(nil)
