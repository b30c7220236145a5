package dispatcher

import (
	"context"

	"github.com/harshangpate/hospital-crm/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging.
// EventType is empty for wildcard handlers.
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}
