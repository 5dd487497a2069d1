package eventsourcing

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamNotFound is returned when loading a stream that has no events.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrStreamExists is returned when a NoStream append finds prior events.
	ErrStreamExists = errors.New("stream already exists")

	// ErrInvalidRevision is returned for unsupported revision arguments.
	ErrInvalidRevision = errors.New("invalid stream revision")

	// ErrInvalidEventBatch is returned when a batch mixes stream IDs.
	ErrInvalidEventBatch = errors.New("invalid event batch")

	// ErrDuplicateHandler is returned when two handlers claim the same event type.
	ErrDuplicateHandler = errors.New("duplicate handler")

	// ErrHandlerNotFound is returned when no handler is registered for a message.
	ErrHandlerNotFound = errors.New("handler not found")

	// ErrRegistryStopped is returned when dispatching to a stopped registry.
	ErrRegistryStopped = errors.New("entity registry is stopped")

	// ErrMalformedEvent marks an event the read side can never apply. The
	// projector halts its shard on it instead of skipping.
	ErrMalformedEvent = errors.New("malformed event")
)

// StreamRevisionConflictError reports an optimistic concurrency failure on append.
type StreamRevisionConflictError struct {
	Stream           string
	ExpectedRevision Revision
	ActualRevision   Revision
}

func (e *StreamRevisionConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on stream %q: (expected version %d, actual %d)",
		e.Stream, e.ExpectedRevision, e.ActualRevision)
}

// ErrSkippedEvent is returned when a handler cannot handle the event type.
type ErrSkippedEvent struct {
	Event Event
}

func (e *ErrSkippedEvent) Error() string {
	return fmt.Sprintf("skipped event of type %T", e.Event)
}

// EventStoreError wraps infrastructure failures so callers can tell them
// apart from domain errors.
type EventStoreError struct {
	Err error
}

func (e *EventStoreError) Error() string {
	return fmt.Sprintf("eventstore error: %v", e.Err)
}

func (e *EventStoreError) Unwrap() error {
	return e.Err
}

func WrapEventStoreError(err error) error {
	if err == nil {
		return nil
	}
	return &EventStoreError{Err: err}
}
