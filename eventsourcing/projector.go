package eventsourcing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// OffsetStore persists the last processed global offset per projection shard.
type OffsetStore interface {
	// CommittedOffset returns the last committed offset for the shard, or 0
	// if the shard has never committed.
	CommittedOffset(ctx context.Context, shard string) (uint64, error)

	// CommitOffset durably records the last processed offset for the shard.
	CommitOffset(ctx context.Context, shard string, offset uint64) error
}

// Projector tails the event store's global sequence and applies each event
// exactly once, in log order, to a read-side handler.
//
// Delivery is at-least-once: the row mutation always happens before the
// offset is committed, so a crash between the two replays the event on
// restart. Handlers must therefore be idempotent.
//
// Failure semantics:
//   - Transient handler and offset-store errors are retried indefinitely at
//     the same offset.
//   - ErrMalformedEvent halts the shard; Run returns the error. Skipping is
//     not an option because it would leave the projection permanently
//     inconsistent.
//   - Events with no registered handler advance the offset.
type Projector struct {
	shard         string
	store         EventStore
	offsets       OffsetStore
	handler       EventHandler
	logger        *slog.Logger
	pollInterval  time.Duration
	retryInterval time.Duration
	tracer        trace.Tracer
}

// ProjectorOption configures a Projector.
type ProjectorOption func(*Projector)

// WithPollInterval sets how often the projector re-checks the log when no
// tail signal arrives.
func WithPollInterval(d time.Duration) ProjectorOption {
	return func(p *Projector) { p.pollInterval = d }
}

// WithRetryInterval sets the initial backoff interval for transient apply
// and offset-commit retries.
func WithRetryInterval(d time.Duration) ProjectorOption {
	return func(p *Projector) { p.retryInterval = d }
}

// WithProjectorLogger sets the logger used for retry and halt reporting.
func WithProjectorLogger(logger *slog.Logger) ProjectorOption {
	return func(p *Projector) { p.logger = logger }
}

// NewProjector creates a projector for one shard of the event stream.
func NewProjector(shard string, store EventStore, offsets OffsetStore, handler EventHandler, opts ...ProjectorOption) *Projector {
	p := &Projector{
		shard:         shard,
		store:         store,
		offsets:       offsets,
		handler:       handler,
		logger:        slog.Default(),
		pollInterval:  250 * time.Millisecond,
		retryInterval: backoff.DefaultInitialInterval,
		tracer:        otel.Tracer(instrumentationName),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run tails the log until ctx is cancelled or the shard halts on a malformed
// event. It resumes from the last committed offset.
func (p *Projector) Run(ctx context.Context) error {
	offset, err := p.committedOffset(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if err := p.drain(ctx, &offset); err != nil {
			if !errors.Is(err, context.Canceled) {
				p.logger.ErrorContext(ctx, "projection shard halted",
					"shard", p.shard, "offset", offset, "error", err)
			}
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.store.Tail():
		case <-ticker.C:
		}
	}
}

// CatchUp processes everything committed to the log so far and returns. It is
// the synchronous core of Run, useful for tests and one-shot rebuilds.
func (p *Projector) CatchUp(ctx context.Context) error {
	offset, err := p.committedOffset(ctx)
	if err != nil {
		return err
	}
	return p.drain(ctx, &offset)
}

func (p *Projector) retryStrategy() *backoff.ExponentialBackOff {
	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = p.retryInterval
	strategy.MaxElapsedTime = 0
	return strategy
}

// committedOffset reads the shard's resume point, retrying transient
// offset-store failures so a briefly unavailable store at startup does not
// bring the shard down.
func (p *Projector) committedOffset(ctx context.Context) (uint64, error) {
	operation := func() (uint64, error) {
		offset, err := p.offsets.CommittedOffset(ctx, p.shard)
		if err != nil {
			p.logger.WarnContext(ctx, "committed offset read failed, retrying",
				"shard", p.shard, "error", err)
			return 0, err
		}
		return offset, nil
	}

	offset, err := backoff.RetryWithData(operation, backoff.WithContext(p.retryStrategy(), ctx))
	if err != nil {
		return 0, fmt.Errorf("projector %q: read committed offset: %w", p.shard, err)
	}
	return offset, nil
}

// drain applies all events currently past the offset, committing after each.
func (p *Projector) drain(ctx context.Context, offset *uint64) error {
	for {
		iter, err := p.store.LoadFromAll(ctx, *offset)
		if err != nil {
			// Transient read failure; the next tick retries from the same offset.
			p.logger.WarnContext(ctx, "event log read failed",
				"shard", p.shard, "offset", *offset, "error", err)
			return nil
		}

		progressed := false
		for iter.Next(ctx) {
			envelope := iter.Value()
			if err := p.apply(ctx, envelope); err != nil {
				return err
			}
			if err := p.commit(ctx, envelope.GlobalVersion); err != nil {
				return err
			}
			*offset = envelope.GlobalVersion
			progressed = true
		}
		if err := iter.Err(); err != nil {
			p.logger.WarnContext(ctx, "event log iteration failed",
				"shard", p.shard, "offset", *offset, "error", err)
			return nil
		}
		if !progressed {
			return nil
		}
	}
}

// apply hands one envelope to the read-side handler, retrying transient
// failures indefinitely at the same offset.
func (p *Projector) apply(ctx context.Context, envelope *Envelope) error {
	hctx := WithEnvelope(ctx, envelope)

	hctx, span := p.tracer.Start(hctx, "projection.apply",
		trace.WithAttributes(
			attribute.String("projection.shard", p.shard),
			attribute.String("event.type", envelope.Event.EventType()),
			attribute.Int64("event.global_version", int64(envelope.GlobalVersion)),
		),
	)
	defer span.End()

	attrs := metric.WithAttributes(
		attribute.String("projection.shard", p.shard),
		attribute.String("event.type", envelope.Event.EventType()),
	)

	operation := func() error {
		err := p.handler.Handle(hctx, envelope.Event)
		if err == nil {
			return nil
		}

		var skipped *ErrSkippedEvent
		if errors.As(err, &skipped) {
			// No handler for this event type; the offset still advances.
			return nil
		}
		if errors.Is(err, ErrMalformedEvent) {
			return backoff.Permanent(fmt.Errorf(
				"projector %q: event %s at offset %d: %w",
				p.shard, envelope.EventID, envelope.GlobalVersion, err))
		}

		ProjectionRetries.Add(hctx, 1, attrs)
		p.logger.WarnContext(hctx, "read-side apply failed, retrying",
			"shard", p.shard,
			"event", envelope.Event.EventType(),
			"offset", envelope.GlobalVersion,
			"error", err)
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(p.retryStrategy(), ctx)); err != nil {
		span.RecordError(err)
		return err
	}

	ProjectionEventsProcessed.Add(hctx, 1, attrs)
	return nil
}

// commit durably advances the shard offset, retrying transient offset-store
// failures. The event has already been applied at this point.
func (p *Projector) commit(ctx context.Context, offset uint64) error {
	operation := func() error {
		if err := p.offsets.CommitOffset(ctx, p.shard, offset); err != nil {
			p.logger.WarnContext(ctx, "offset commit failed, retrying",
				"shard", p.shard, "offset", offset, "error", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(p.retryStrategy(), ctx)); err != nil {
		return err
	}

	ProjectionOffset.Record(ctx, int64(offset),
		metric.WithAttributes(attribute.String("projection.shard", p.shard)),
	)
	return nil
}
