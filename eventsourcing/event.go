package eventsourcing

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

var now = time.Now

// Event is a domain event describing a change that has happened to an aggregate.
type Event interface {
	AggregateID() string
	EventType() string
}

// Envelope carries an Event together with the bookkeeping the store and the
// read side need. Version is the 1-based position of the event within its
// stream; GlobalVersion is the store-assigned position within the total order
// of all committed events and is only set on envelopes read back from a store.
type Envelope struct {
	EventID       uuid.UUID
	StreamID      string
	Metadata      map[string]any
	Event         Event
	Version       uint64
	GlobalVersion uint64
	OccurredAt    time.Time
}

// TypeName returns the bare type name of v, without package path or pointer
// marker. Used for log fields and handler routing diagnostics.
func TypeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

var (
	// registry maps event names to their factory functions.
	// Each factory must return a new instance of a concrete Event type.
	registry = map[string]func() Event{}

	// registryMu protects access to the registry for concurrent operations.
	registryMu sync.RWMutex
)

// RegisterEvent registers an Event type under the name returned by its
// EventType method. The factory must return a new pointer instance on every
// call; stores use it to rehydrate serialized payloads.
//
// Panics if the factory is nil, returns nil, or the name is already taken.
//
// Example Usage:
//
//	RegisterEvent(func() Event { return &CustomerAdded{} })
func RegisterEvent(fn func() Event) {
	if fn == nil {
		panic("eventsourcing: cannot register nil event factory")
	}
	ev := fn()
	if ev == nil {
		panic("eventsourcing: event factory returned nil")
	}
	RegisterEventByName(ev.EventType(), fn)
}

// RegisterEventByName registers an Event factory under a custom name,
// independent of EventType. Panics on nil factories and duplicate names.
func RegisterEventByName(name string, fn func() Event) {
	if fn == nil {
		panic("eventsourcing: cannot register nil event factory")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("eventsourcing: event already registered: %s", name))
	}

	ev := fn()
	if ev == nil {
		panic(fmt.Sprintf("eventsourcing: factory returned nil for event: %s", name))
	}

	registry[name] = fn
}

// NewEventByName creates a new instance of a registered Event by its name.
// Returns an error if the name is not registered or the factory returns nil.
func NewEventByName(name string) (Event, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("event not registered: %s", name)
	}
	ev := factory()
	if ev == nil {
		return nil, fmt.Errorf("factory returned nil for event: %s", name)
	}
	return ev, nil
}
