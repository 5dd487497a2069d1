package customer

import (
	"fmt"

	"github.com/terraskye/customers/eventsourcing"
)

// State is the entity's in-memory snapshot, a pure fold of its events.
// A nil Customer means the entity was never created.
type State struct {
	Customer *Customer
	Enabled  bool
}

// InitialState is the state of an entity with no history.
func InitialState() State {
	return State{Enabled: true}
}

// Evolve folds one event into the state. It has no failure path: an event
// type it does not know is an integrity violation and panics.
func Evolve(state State, envelope *eventsourcing.Envelope) State {
	switch ev := envelope.Event.(type) {
	case Added:
		c := ev.Customer
		state.Customer = &c
		state.Enabled = true
	case Disabled:
		state.Enabled = false
	default:
		panic(fmt.Sprintf("customer: cannot evolve unknown event %T", envelope.Event))
	}
	return state
}

// Decide validates a command against the current state and returns the events
// it produces. Domain errors are returned verbatim; Decide never mutates
// state.
func Decide(state State, cmd Command) ([]eventsourcing.Event, error) {
	switch c := cmd.(type) {
	case Add:
		if state.Customer != nil {
			return nil, fmt.Errorf("add customer %q: %w", c.Customer.ID, ErrAlreadyExists)
		}
		return []eventsourcing.Event{Added{Customer: c.Customer}}, nil

	case Get:
		if state.Customer == nil || !state.Enabled {
			return nil, fmt.Errorf("get customer %q: %w", c.ID, ErrNotFound)
		}
		return nil, nil

	case Disable:
		if state.Customer == nil {
			return nil, fmt.Errorf("disable customer %q: %w", c.ID, ErrNotFound)
		}
		if !state.Enabled {
			// Already disabled, nothing new to record.
			return nil, nil
		}
		return []eventsourcing.Event{Disabled{ID: c.ID}}, nil

	default:
		return nil, fmt.Errorf("customer: unknown command %T", cmd)
	}
}
