package eventsourcing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Evolver evolves the given state into a new state with the event applied.
//
// The Evolver is a pure fold step: it must not perform side effects and has
// no failure path. A malformed event reaching an Evolver is an integrity
// violation, not a recoverable error.
type Evolver[T any] func(currentState T, envelope *Envelope) T

// Decider determines which events should occur based on the current state and
// a command.
//
// Returning an empty slice indicates that the command produces no events
// (e.g. it was idempotent or a pure read). A non-nil error is a domain error
// and is surfaced to the caller verbatim; the Decider must not mutate state.
type Decider[T any, C Command] func(state T, cmd C) ([]Event, error)

// Registry routes commands to the single live entity instance owning each
// aggregate ID.
//
// Guarantees:
//   - At most one in-memory instance exists per ID at any time.
//   - Commands for the same ID are processed one at a time, in arrival order.
//   - Commands for distinct IDs proceed fully in parallel.
//   - On first access an instance is rebuilt by replaying its full event
//     history before any command is admitted. Replay failures surface as
//     *EventStoreError, never as a domain error.
//
// Instances passivate after a configurable idle period and are rehydrated on
// the next Ask.
type Registry[T any, C Command] struct {
	store   EventStore
	initial T
	evolve  Evolver[T]
	decide  Decider[T, C]
	cfg     registryOptions
	tracer  trace.Tracer

	mu       sync.Mutex
	entities map[string]*mailbox[T, C]
	stopped  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// mailbox is the serial command queue owned by one entity worker. pending
// counts callers that have reserved a send under Registry.mu but have not
// finished enqueueing; a mailbox is only removed when both the queue and the
// reservation count are empty, so a reserved send can never be lost.
type mailbox[T any, C Command] struct {
	id      string
	queue   chan askRequest[T, C]
	pending int
}

type askRequest[T any, C Command] struct {
	ctx        context.Context
	cmd        C
	responseCh chan<- askResult[T]
}

type askResult[T any] struct {
	state  T
	result AppendResult
	err    error
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	mailboxSize     int
	passivateAfter  time.Duration
	conflictRetries uint64
	metadataFuncs   []func(ctx context.Context) map[string]any
}

// WithMailboxSize sets the per-entity command queue capacity.
func WithMailboxSize(n int) RegistryOption {
	return func(cfg *registryOptions) { cfg.mailboxSize = n }
}

// WithPassivateAfter stops idle entity instances after d. Zero disables
// passivation.
func WithPassivateAfter(d time.Duration) RegistryOption {
	return func(cfg *registryOptions) { cfg.passivateAfter = d }
}

// WithConflictRetries sets how many times an append is retried after a
// revision conflict before the conflict is surfaced as an infrastructure
// error.
func WithConflictRetries(n uint64) RegistryOption {
	return func(cfg *registryOptions) { cfg.conflictRetries = n }
}

// WithMetadataExtractor adds a metadata function. Each function is called for
// every command handled and can inject key-value pairs into the emitted
// envelopes. Multiple extractors are applied in registration order.
func WithMetadataExtractor(fn func(ctx context.Context) map[string]any) RegistryOption {
	return func(cfg *registryOptions) {
		cfg.metadataFuncs = append(cfg.metadataFuncs, fn)
	}
}

// NewRegistry creates a Registry for one entity type.
//
// The initial state, Evolver and Decider together define the entity state
// machine; the store provides its durable event log.
func NewRegistry[T any, C Command](
	store EventStore,
	initial T,
	evolve Evolver[T],
	decide Decider[T, C],
	opts ...RegistryOption,
) *Registry[T, C] {
	cfg := registryOptions{
		mailboxSize:     128,
		conflictRetries: 3,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.mailboxSize <= 0 {
		cfg.mailboxSize = 1
	}

	return &Registry[T, C]{
		store:    store,
		initial:  initial,
		evolve:   evolve,
		decide:   decide,
		cfg:      cfg,
		tracer:   otel.Tracer(instrumentationName),
		entities: make(map[string]*mailbox[T, C]),
		stopCh:   make(chan struct{}),
	}
}

// Ask routes cmd to the entity owning cmd.AggregateID() and waits for the
// result. It is safe to call concurrently.
//
// The returned state is the entity's state after the command was applied.
// Domain errors from the Decider are returned verbatim; replay and
// persistence failures are returned as *EventStoreError.
//
// Cancelling ctx abandons the wait but does not cancel a command that has
// already been admitted to the entity's serial queue.
func (r *Registry[T, C]) Ask(ctx context.Context, cmd C) (T, AppendResult, error) {
	var zero T

	id := cmd.AggregateID()
	if id == "" {
		return zero, AppendResult{}, fmt.Errorf("ask %T: empty aggregate ID", cmd)
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return zero, AppendResult{}, ErrRegistryStopped
	}
	mb, ok := r.entities[id]
	if !ok {
		mb = &mailbox[T, C]{id: id, queue: make(chan askRequest[T, C], r.cfg.mailboxSize)}
		r.entities[id] = mb
		r.wg.Add(1)
		go r.runEntity(mb)
	}
	mb.pending++
	r.mu.Unlock()

	responseCh := make(chan askResult[T], 1)

	select {
	case mb.queue <- askRequest[T, C]{ctx: ctx, cmd: cmd, responseCh: responseCh}:
		r.release(mb)
	case <-ctx.Done():
		r.release(mb)
		return zero, AppendResult{}, ctx.Err()
	}

	select {
	case res := <-responseCh:
		return res.state, res.result, res.err
	case <-ctx.Done():
		return zero, AppendResult{}, ctx.Err()
	}
}

func (r *Registry[T, C]) release(mb *mailbox[T, C]) {
	r.mu.Lock()
	mb.pending--
	r.mu.Unlock()
}

// Live returns the number of entity instances currently held in memory.
func (r *Registry[T, C]) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entities)
}

// Stop shuts the registry down. New asks fail with ErrRegistryStopped. The
// command each entity is executing at that moment runs to completion and its
// caller gets the result; commands still waiting in a mailbox are answered
// with ErrRegistryStopped. Stop returns once every entity worker has exited.
func (r *Registry[T, C]) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
}

// runEntity is the serial worker loop for a single aggregate ID.
func (r *Registry[T, C]) runEntity(mb *mailbox[T, C]) {
	defer r.wg.Done()

	state, version, err := r.hydrate(context.Background(), mb.id)
	if err != nil {
		r.failAndRemove(mb, err)
		return
	}

	var idleC <-chan time.Time
	var idleTimer *time.Timer
	if r.cfg.passivateAfter > 0 {
		idleTimer = time.NewTimer(r.cfg.passivateAfter)
		defer idleTimer.Stop()
		idleC = idleTimer.C
	}

	for {
		select {
		case req := <-mb.queue:
			res := r.handle(req.ctx, mb.id, &state, &version, req.cmd)
			req.responseCh <- res
			if idleTimer != nil {
				if !idleTimer.Stop() {
					select {
					case <-idleTimer.C:
					default:
					}
				}
				idleTimer.Reset(r.cfg.passivateAfter)
			}

		case <-idleC:
			r.mu.Lock()
			if mb.pending == 0 && len(mb.queue) == 0 {
				delete(r.entities, mb.id)
				r.mu.Unlock()
				return
			}
			r.mu.Unlock()
			idleTimer.Reset(r.cfg.passivateAfter)

		case <-r.stopCh:
			r.failAndRemove(mb, ErrRegistryStopped)
			return
		}
	}
}

// failAndRemove answers every queued or in-flight command with failErr, then
// unregisters the mailbox once no sender holds a reservation on it.
func (r *Registry[T, C]) failAndRemove(mb *mailbox[T, C], failErr error) {
	var zero T
	for {
		r.mu.Lock()
		if mb.pending == 0 && len(mb.queue) == 0 {
			if current, ok := r.entities[mb.id]; ok && current == mb {
				delete(r.entities, mb.id)
			}
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		select {
		case req := <-mb.queue:
			req.responseCh <- askResult[T]{state: zero, err: failErr}
		case <-time.After(time.Millisecond):
			// a sender reserved a slot but has not enqueued yet
		}
	}
}

// hydrate rebuilds entity state by replaying the full event history.
// A missing stream yields the initial state at version 0; any other failure
// is an infrastructure error.
func (r *Registry[T, C]) hydrate(ctx context.Context, id string) (T, uint64, error) {
	state := r.initial

	iter, err := r.store.LoadStream(ctx, id)
	if err != nil {
		if errors.Is(err, ErrStreamNotFound) {
			return state, 0, nil
		}
		return state, 0, WrapEventStoreError(fmt.Errorf("hydrate stream %q: %w", id, err))
	}

	var version uint64
	var loaded int64
	for iter.Next(ctx) {
		envelope := iter.Value()
		version = envelope.Version
		state = r.evolve(state, envelope)
		loaded++
	}
	if err := iter.Err(); err != nil {
		return state, 0, WrapEventStoreError(fmt.Errorf("hydrate stream %q: iter failed: %w", id, err))
	}

	EventsLoaded.Add(ctx, loaded,
		metric.WithAttributes(attribute.String("stream.id", id)),
	)

	return state, version, nil
}

// handle runs one command through decide, persists the emitted events and
// folds them into the in-memory state.
func (r *Registry[T, C]) handle(ctx context.Context, id string, state *T, version *uint64, cmd C) askResult[T] {
	// A caller that gave up must not cancel a command that was already
	// admitted to the serial queue.
	ctx = context.WithoutCancel(ctx)

	ctx, span := r.tracer.Start(ctx, "entity.ask",
		trace.WithAttributes(
			attribute.String("aggregate.id", id),
			attribute.String("command.type", TypeName(cmd)),
		),
	)
	defer span.End()

	started := now()
	attrs := metric.WithAttributes(attribute.String("command.type", TypeName(cmd)))

	CommandsInFlight.Add(ctx, 1, attrs)
	defer CommandsInFlight.Add(ctx, -1, attrs)

	operation := func() (AppendResult, error) {
		events, err := r.decide(*state, cmd)
		if err != nil {
			// Business rule violation; surfaced verbatim, never retried.
			return AppendResult{}, backoff.Permanent(err)
		}

		if len(events) == 0 {
			return AppendResult{Successful: true, StreamID: id, NextExpectedVersion: *version}, nil
		}

		envelopes := r.wrap(ctx, id, *version, events)

		result, err := r.store.Save(ctx, envelopes, Revision(*version))
		if err != nil {
			var conflict *StreamRevisionConflictError
			if errors.As(err, &conflict) {
				ConcurrencyConflicts.Add(ctx, 1, attrs)
				st, v, herr := r.hydrate(ctx, id)
				if herr != nil {
					return AppendResult{}, backoff.Permanent(herr)
				}
				*state, *version = st, v
				return AppendResult{}, conflict
			}
			return AppendResult{}, backoff.Permanent(WrapEventStoreError(
				fmt.Errorf("handle command %T for aggregate %q: save failed: %w", cmd, id, err)))
		}

		for i := range envelopes {
			*state = r.evolve(*state, &envelopes[i])
		}
		*version = envelopes[len(envelopes)-1].Version

		EventsAppended.Add(ctx, int64(len(envelopes)),
			metric.WithAttributes(attribute.String("stream.id", id)),
		)
		return result, nil
	}

	result, err := backoff.RetryWithData(operation,
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.cfg.conflictRetries))

	CommandsDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

	if err != nil {
		var conflict *StreamRevisionConflictError
		if errors.As(err, &conflict) {
			// The registry is the single writer; a conflict that survives the
			// retries means another process owns the stream.
			err = WrapEventStoreError(err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return askResult[T]{state: *state, err: err}
	}

	CommandsHandled.Add(ctx, 1, attrs)
	return askResult[T]{state: *state, result: result}
}

// wrap turns decided events into versioned envelopes for the stream.
func (r *Registry[T, C]) wrap(ctx context.Context, id string, version uint64, events []Event) []Envelope {
	baseMetadata := make(map[string]any)
	for _, fn := range r.cfg.metadataFuncs {
		for k, v := range fn(ctx) {
			baseMetadata[k] = v
		}
	}

	envelopes := make([]Envelope, len(events))
	for i, event := range events {
		version++
		envelopes[i] = Envelope{
			EventID:    uuid.New(),
			StreamID:   id,
			Event:      event,
			Metadata:   baseMetadata,
			Version:    version,
			OccurredAt: now(),
		}
	}
	return envelopes
}
