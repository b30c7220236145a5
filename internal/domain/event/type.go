package event

// Type identifies the type of domain event
type Type string

const (
	TypeOrderCreated      Type = "order.created"
	TypeOrderConfirmed    Type = "order.confirmed"
	TypeStatusChanged     Type = "order.status_changed"
	TypeCriticalMarked    Type = "order.critical_marked"
	TypeOrderCancelled    Type = "order.cancelled"
	TypeInvoiceReconciled Type = "invoice.reconciled"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeOrderCreated,
		TypeOrderConfirmed,
		TypeStatusChanged,
		TypeCriticalMarked,
		TypeOrderCancelled,
		TypeInvoiceReconciled:
		return true
	default:
		return false
	}
}
