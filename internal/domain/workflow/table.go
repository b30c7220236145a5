package workflow

// Table is the static transition table of one entity type.
// All methods are pure lookups; the same input always yields the same output.
type Table interface {
	// EntityType returns the entity type the table governs
	EntityType() EntityType

	// Initial returns the state new entities are created in
	Initial() State

	// States returns the valid state set in definition order
	States() []State

	// IsValid returns true if the state belongs to this entity type
	IsValid(state State) bool

	// IsTerminal returns true if the state is valid here and has no way out
	IsTerminal(state State) bool

	// Targets returns the states a trigger may lead to from the given state
	Targets(from State, trigger Trigger) []State

	// Permits returns true if trigger moves from -> to
	Permits(from State, trigger Trigger, to State) bool

	// Next returns the unique next state when advancing from the given state,
	// and the trigger that performs it. ok is false when the state is terminal
	// or branches and needs an actor-selected target.
	Next(from State) (next State, trigger Trigger, ok bool)

	// BranchTargets returns the actor-selectable targets of a branching state
	BranchTargets(from State) []State

	// Transitions lists every edge of the table
	Transitions() []Transition
}

// Transition is one edge of a table
type Transition struct {
	From    State   `json:"from"`
	Trigger Trigger `json:"trigger"`
	To      State   `json:"to"`
}

// table implements Table
type table struct {
	entityType   EntityType
	initial      State
	states       []State
	valid        map[State]bool
	transitions  map[State]map[Trigger][]State
	triggerOrder map[State][]Trigger
}

func (t *table) EntityType() EntityType {
	return t.entityType
}

func (t *table) Initial() State {
	return t.initial
}

func (t *table) States() []State {
	return append([]State{}, t.states...)
}

func (t *table) IsValid(state State) bool {
	return t.valid[state]
}

func (t *table) IsTerminal(state State) bool {
	return t.valid[state] && state.IsTerminal()
}

func (t *table) Targets(from State, trigger Trigger) []State {
	byTrigger, exists := t.transitions[from]
	if !exists {
		return nil
	}
	return append([]State{}, byTrigger[trigger]...)
}

func (t *table) Permits(from State, trigger Trigger, to State) bool {
	return containsState(t.transitions[from][trigger], to)
}

// Next prefers the advance edge; a state whose only forward edge is a
// confirmation gate advances through that gate.
func (t *table) Next(from State) (State, Trigger, bool) {
	byTrigger, exists := t.transitions[from]
	if !exists {
		return "", "", false
	}

	advance := byTrigger[TriggerAdvance]
	switch {
	case len(advance) == 1:
		return advance[0], TriggerAdvance, true
	case len(advance) > 1:
		return "", "", false
	}

	if confirm := byTrigger[TriggerConfirm]; len(confirm) == 1 {
		return confirm[0], TriggerConfirm, true
	}

	return "", "", false
}

func (t *table) BranchTargets(from State) []State {
	advance := t.transitions[from][TriggerAdvance]
	if len(advance) < 2 {
		return nil
	}
	return append([]State{}, advance...)
}

func (t *table) Transitions() []Transition {
	var result []Transition
	for _, from := range t.states {
		for _, trigger := range t.triggerOrder[from] {
			for _, to := range t.transitions[from][trigger] {
				result = append(result, Transition{From: from, Trigger: trigger, To: to})
			}
		}
	}
	return result
}
