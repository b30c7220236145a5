package workflow

import (
	"fmt"
)

// TableBuilder builds a transition table for one entity type
type TableBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// PermitFromActive allows the trigger from every non-terminal state of the table
	PermitFromActive(trigger Trigger, toState State) TableBuilder

	// Build freezes the configuration into an immutable Table
	Build() Table
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows a trigger to transition to the target state.
	// Permitting the same trigger twice from one state declares a branch.
	Permit(trigger Trigger, toState State) StateConfiguration
}

// stateConfig implements StateConfiguration
type stateConfig struct {
	fromState   State
	triggers    []Trigger
	transitions map[Trigger][]State
}

// tableBuilder implements TableBuilder
type tableBuilder struct {
	entityType     EntityType
	initial        State
	order          []State
	configurations map[State]*stateConfig
	fromActive     []Transition
}

// NewBuilder creates a new table builder for an entity type
func NewBuilder(entityType EntityType, initial State) TableBuilder {
	if !entityType.IsValid() {
		panic(fmt.Sprintf("invalid entity type: %s", entityType))
	}
	if !initial.IsKnown() || initial.IsTerminal() {
		panic(fmt.Sprintf("invalid initial state: %s", initial))
	}

	return &tableBuilder{
		entityType:     entityType,
		initial:        initial,
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns a state configuration for the given state
func (b *tableBuilder) Configure(state State) StateConfiguration {
	if !state.IsKnown() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if state.IsTerminal() {
		panic(fmt.Sprintf("terminal state %s cannot have outgoing transitions", state))
	}

	return b.configure(state)
}

func (b *tableBuilder) configure(state State) *stateConfig {
	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState:   state,
			transitions: make(map[Trigger][]State),
		}
		b.configurations[state] = config
		b.order = append(b.order, state)
	}
	return config
}

// PermitFromActive allows the trigger from every non-terminal state
func (b *tableBuilder) PermitFromActive(trigger Trigger, toState State) TableBuilder {
	if !toState.IsKnown() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	b.fromActive = append(b.fromActive, Transition{Trigger: trigger, To: toState})
	return b
}

// Permit allows a trigger to transition to the target state
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	if !toState.IsKnown() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	if _, exists := c.transitions[trigger]; !exists {
		c.triggers = append(c.triggers, trigger)
	}
	for _, existing := range c.transitions[trigger] {
		if existing == toState {
			return c
		}
	}
	c.transitions[trigger] = append(c.transitions[trigger], toState)

	return c
}

// Build freezes the configuration. It panics on a non-terminal state with no
// way out, which would leave entities stranded.
func (b *tableBuilder) Build() Table {
	b.configure(b.initial)

	// Collect every reachable state, configured states first
	states := make([]State, 0, len(b.order))
	seen := make(map[State]bool)
	add := func(s State) {
		if !seen[s] {
			seen[s] = true
			states = append(states, s)
		}
	}
	add(b.initial)
	for _, s := range b.order {
		add(s)
	}
	for _, s := range b.order {
		config := b.configurations[s]
		for _, trigger := range config.triggers {
			for _, to := range config.transitions[trigger] {
				add(to)
			}
		}
	}
	for _, t := range b.fromActive {
		add(t.To)
	}

	// Copy configurations so the table stays immutable
	transitions := make(map[State]map[Trigger][]State, len(states))
	triggerOrder := make(map[State][]Trigger, len(states))
	for _, s := range states {
		if s.IsTerminal() {
			continue
		}
		config, exists := b.configurations[s]
		if !exists {
			panic(fmt.Sprintf("%s: state %s is reachable but not configured", b.entityType, s))
		}

		copied := make(map[Trigger][]State, len(config.transitions)+len(b.fromActive))
		order := append([]Trigger{}, config.triggers...)
		for trigger, targets := range config.transitions {
			copied[trigger] = append([]State{}, targets...)
		}
		for _, t := range b.fromActive {
			if t.To == s {
				continue
			}
			if _, exists := copied[t.Trigger]; !exists {
				order = append(order, t.Trigger)
			}
			if !containsState(copied[t.Trigger], t.To) {
				copied[t.Trigger] = append(copied[t.Trigger], t.To)
			}
		}
		if len(copied) == 0 {
			panic(fmt.Sprintf("%s: non-terminal state %s has no transitions", b.entityType, s))
		}

		transitions[s] = copied
		triggerOrder[s] = order
	}

	valid := make(map[State]bool, len(states))
	for _, s := range states {
		valid[s] = true
	}

	return &table{
		entityType:   b.entityType,
		initial:      b.initial,
		states:       states,
		valid:        valid,
		transitions:  transitions,
		triggerOrder: triggerOrder,
	}
}

func containsState(states []State, s State) bool {
	for _, existing := range states {
		if existing == s {
			return true
		}
	}
	return false
}
