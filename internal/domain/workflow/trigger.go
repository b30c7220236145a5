package workflow

// Trigger represents an operator action that can move an entity between states
type Trigger string

const (
	// TriggerConfirm passes a confirmation gate; it is the billing point
	TriggerConfirm Trigger = "CONFIRM"
	TriggerAdvance Trigger = "ADVANCE"
	TriggerCancel  Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
