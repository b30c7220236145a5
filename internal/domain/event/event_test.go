package event

import (
	"testing"

	"github.com/harshangpate/hospital-crm/internal/domain/workflow"
)

func TestType_String(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      string
	}{
		{"order created", TypeOrderCreated, "order.created"},
		{"order confirmed", TypeOrderConfirmed, "order.confirmed"},
		{"status changed", TypeStatusChanged, "order.status_changed"},
		{"critical marked", TypeCriticalMarked, "order.critical_marked"},
		{"order cancelled", TypeOrderCancelled, "order.cancelled"},
		{"invoice reconciled", TypeInvoiceReconciled, "invoice.reconciled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.String(); got != tt.want {
				t.Errorf("Type.String() = %v, want %v", got, tt.want)
			}
			if !tt.eventType.IsValid() {
				t.Errorf("Type.IsValid() = false for %v", tt.eventType)
			}
		})
	}
}

func TestType_IsValid_Unknown(t *testing.T) {
	if Type("order.deleted").IsValid() {
		t.Error("order.deleted should not be a valid event type")
	}
	if Type("").IsValid() {
		t.Error("empty type should not be valid")
	}
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeStatusChanged, "entity-1", map[string]interface{}{
		KeyNewStatus: workflow.StateOrdered,
	})

	if evt.ID == "" {
		t.Error("expected generated ID")
	}
	if evt.CorrelationID == "" || evt.CorrelationID == evt.ID {
		t.Errorf("expected distinct correlation ID, got %q (id %q)", evt.CorrelationID, evt.ID)
	}
	if evt.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if evt.EntityID != "entity-1" {
		t.Errorf("EntityID = %v, want entity-1", evt.EntityID)
	}
	if got := evt.GetPayloadString(KeyNewStatus); got != "ORDERED" {
		t.Errorf("GetPayloadString() = %q, want ORDERED", got)
	}
}

func TestNewEventWithCorrelation(t *testing.T) {
	evt := NewEventWithCorrelation(TypeOrderCreated, "entity-1", nil, "corr-1")
	if evt.CorrelationID != "corr-1" {
		t.Errorf("CorrelationID = %v, want corr-1", evt.CorrelationID)
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeCriticalMarked, "entity-1", map[string]interface{}{"a": "1"})
	updated := original.WithPayload("b", true)

	if _, exists := original.Payload["b"]; exists {
		t.Error("WithPayload must not mutate the original event")
	}
	if !updated.GetPayloadBool("b") {
		t.Error("expected b=true on the new event")
	}
	if updated.GetPayloadString("a") != "1" {
		t.Error("expected existing payload to be carried over")
	}
	if updated.ID != original.ID || updated.CorrelationID != original.CorrelationID {
		t.Error("WithPayload should keep identity fields")
	}
}

func TestEvent_PayloadGettersMissingKeys(t *testing.T) {
	evt := NewEvent(TypeOrderCancelled, "entity-1", map[string]interface{}{"n": 3})

	if got := evt.GetPayloadString("missing"); got != "" {
		t.Errorf("GetPayloadString(missing) = %q, want empty", got)
	}
	if got := evt.GetPayloadString("n"); got != "" {
		t.Errorf("GetPayloadString(non-string) = %q, want empty", got)
	}
	if evt.GetPayloadBool("missing") {
		t.Error("GetPayloadBool(missing) should be false")
	}
}
