// Package memory provides an in-memory EventStore, suitable for tests and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/terraskye/customers/eventsourcing"
)

var _ eventsourcing.EventStore = (*MemoryStore)(nil)

type MemoryStore struct {
	mu     sync.RWMutex
	closed bool
	notify chan struct{}
	global []*eventsourcing.Envelope
	events map[string][]*eventsourcing.Envelope
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string][]*eventsourcing.Envelope),
		global: make([]*eventsourcing.Envelope, 0),
		notify: make(chan struct{}, 1),
	}
}

func (m *MemoryStore) Save(ctx context.Context, events []eventsourcing.Envelope, revision eventsourcing.StreamState) (eventsourcing.AppendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return eventsourcing.AppendResult{}, fmt.Errorf("store is closed")
	}

	if len(events) == 0 {
		return eventsourcing.AppendResult{Successful: true}, nil
	}

	streamID := events[0].StreamID
	// Validate all events are for same stream
	for i, env := range events {
		if env.StreamID != streamID {
			return eventsourcing.AppendResult{}, fmt.Errorf(
				"save events to stream %q: %w: event %d has different stream ID %q",
				streamID, eventsourcing.ErrInvalidEventBatch, i, env.StreamID,
			)
		}
	}

	currentVersion := uint64(len(m.events[streamID]))

	switch rev := revision.(type) {
	case eventsourcing.Any:
		// No concurrency check
	case eventsourcing.NoStream:
		if currentVersion != 0 {
			return eventsourcing.AppendResult{}, fmt.Errorf("stream %q: %w", streamID, eventsourcing.ErrStreamExists)
		}
	case eventsourcing.StreamExists:
		if currentVersion == 0 {
			return eventsourcing.AppendResult{}, fmt.Errorf("stream %q: %w", streamID, eventsourcing.ErrStreamNotFound)
		}
	case eventsourcing.Revision:
		if currentVersion != uint64(rev) {
			return eventsourcing.AppendResult{}, &eventsourcing.StreamRevisionConflictError{
				Stream:           streamID,
				ExpectedRevision: rev,
				ActualRevision:   eventsourcing.Revision(currentVersion),
			}
		}
	default:
		return eventsourcing.AppendResult{}, fmt.Errorf("unsupported revision type %T for stream %q: %w",
			revision, streamID, eventsourcing.ErrInvalidRevision)
	}

	for i := range events {
		stored := events[i]
		currentVersion++
		stored.Version = currentVersion
		stored.GlobalVersion = uint64(len(m.global)) + 1
		m.events[streamID] = append(m.events[streamID], &stored)
		m.global = append(m.global, &stored)
	}

	select {
	case m.notify <- struct{}{}:
	default:
		// A wakeup is already pending
	}

	return eventsourcing.AppendResult{
		Successful:          true,
		StreamID:            streamID,
		NextExpectedVersion: currentVersion,
	}, nil
}

func (m *MemoryStore) LoadStream(ctx context.Context, id string) (*eventsourcing.Iterator[*eventsourcing.Envelope], error) {
	m.mu.RLock()
	events, exists := m.events[id]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("load stream %q: %w", id, eventsourcing.ErrStreamNotFound)
	}

	return eventsourcing.NewSliceIterator(events), nil
}

func (m *MemoryStore) LoadStreamFrom(ctx context.Context, id string, afterVersion uint64) (*eventsourcing.Iterator[*eventsourcing.Envelope], error) {
	m.mu.RLock()
	events, exists := m.events[id]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("load stream %q: %w", id, eventsourcing.ErrStreamNotFound)
	}

	if afterVersion >= uint64(len(events)) {
		return eventsourcing.NewSliceIterator[*eventsourcing.Envelope](nil), nil
	}
	return eventsourcing.NewSliceIterator(events[afterVersion:]), nil
}

func (m *MemoryStore) LoadFromAll(ctx context.Context, afterGlobal uint64) (*eventsourcing.Iterator[*eventsourcing.Envelope], error) {
	m.mu.RLock()
	global := m.global
	m.mu.RUnlock()

	if afterGlobal >= uint64(len(global)) {
		return eventsourcing.NewSliceIterator[*eventsourcing.Envelope](nil), nil
	}
	return eventsourcing.NewSliceIterator(global[afterGlobal:]), nil
}

func (m *MemoryStore) Tail() <-chan struct{} {
	return m.notify
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.events = make(map[string][]*eventsourcing.Envelope)
	m.global = nil
	return nil
}
