package eventsourcing

import (
	"context"
)

// EventStore defines the contract for an append-only event store
// used in event-sourced systems. An EventStore persists events
// associated with a given stream ID in sequential order, allowing
// for full reconstruction of aggregate state at any point in time.
//
// Implementations must guarantee:
//   - Events for a given stream are stored in order and never deleted
//     or reordered once committed.
//   - Save is atomic per call and durable before returning success.
//   - Concurrency control based on the stream's expected revision.
//   - Iteration order from all Load* methods is deterministic (oldest → newest).
//
// The returned iterators are lazy. They should be consumed immediately; no
// assumptions should be made about reusability or thread-safety after
// iteration completes.
type EventStore interface {
	// Save appends all events in the given slice to the event stream for a
	// single stream ID. All envelopes in a batch must share the same StreamID.
	//
	// The revision argument expresses the expected stream state:
	//   - Any: always append, do not check for conflicts.
	//   - NoStream: stream must not exist; fail if it does.
	//   - StreamExists: stream must exist; fail if it does not.
	//   - Revision(n): stream must be exactly at version n.
	//
	// Errors:
	//   - *StreamRevisionConflictError if a Revision check fails.
	//   - ErrStreamExists / ErrStreamNotFound for the existence checks.
	//   - Any store-specific persistence error.
	Save(ctx context.Context, events []Envelope, revision StreamState) (AppendResult, error)

	// LoadStream loads all events for the given stream ID from the beginning.
	// Returns ErrStreamNotFound (wrapped) if the stream has no events.
	LoadStream(ctx context.Context, id string) (*Iterator[*Envelope], error)

	// LoadStreamFrom loads events for the given stream ID with Version
	// greater than afterVersion.
	LoadStreamFrom(ctx context.Context, id string, afterVersion uint64) (*Iterator[*Envelope], error)

	// LoadFromAll loads events from all streams with GlobalVersion greater
	// than afterGlobal, in global commit order. This is the read-side tail.
	LoadFromAll(ctx context.Context, afterGlobal uint64) (*Iterator[*Envelope], error)

	// Tail returns a channel that receives a signal whenever new events are
	// committed. Signals are coalesced; consumers must drain new events with
	// LoadFromAll rather than count signals.
	Tail() <-chan struct{}

	// Close releases any resources held by the EventStore. Implementations
	// should make Close idempotent.
	Close() error
}

// AppendResult describes the outcome of an append operation.
type AppendResult struct {
	Successful          bool
	StreamID            string
	NextExpectedVersion uint64
}
