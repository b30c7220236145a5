// Package notify holds the notifier used when no chat integration is configured.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
)

// LogNotifier writes critical alerts to the service log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyCritical logs the alert at warn level
func (n *LogNotifier) NotifyCritical(ctx context.Context, ref entity.EntityRef) error {
	n.logger.Warn("CRITICAL result",
		zap.String("entity_id", ref.ID),
		zap.String("entity_type", ref.EntityType.String()),
		zap.String("status", ref.Status.String()),
		zap.String("patient_id", ref.PatientID),
		zap.String("description", ref.Description))
	return nil
}

var _ port.NotificationService = (*LogNotifier)(nil)
