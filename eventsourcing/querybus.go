package eventsourcing

import (
	"context"
	"fmt"
	"time"

	"github.com/io-da/query"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// QueryHandler answers a single query type T with a result of type R.
// Query types carry the io-da query contract, so a handler registered here
// can also back an io-da bus attachment.
type QueryHandler[T query.Query, R any] interface {
	HandleQuery(ctx context.Context, qry T) (R, error)
}

type queryHandlerFunc[T query.Query, R any] func(ctx context.Context, qry T) (R, error)

// HandleQuery calls the underlying function.
func (f queryHandlerFunc[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	return f(ctx, qry)
}

// NewQueryHandlerFunc creates a QueryHandler from a function.
func NewQueryHandlerFunc[T query.Query, R any](fn func(ctx context.Context, qry T) (R, error)) QueryHandler[T, R] {
	return queryHandlerFunc[T, R](fn)
}

// QueryBus acts as a central registry for query handlers. Handlers are keyed
// by their query and result types, so multiple query types can live on a
// single bus, and are executed through a typed GenericQueryGateway.
type QueryBus struct {
	handlers map[string]any
	tracer   trace.Tracer
}

// NewQueryBus creates a new, empty bus ready for handler registration.
func NewQueryBus() *QueryBus {
	return &QueryBus{
		handlers: make(map[string]any),
		tracer:   otel.Tracer(instrumentationName),
	}
}

func queryKey[T query.Query, R any]() string {
	return fmt.Sprintf("%T|%T", *new(T), *new(R))
}

// RegisterQueryHandler registers a handler for query type T producing R on
// the bus. The handler is wrapped with tracing and metrics before it is
// stored; registering a second handler for the same pair replaces the first.
func RegisterQueryHandler[T query.Query, R any](bus *QueryBus, handler QueryHandler[T, R]) {
	wrapped := func(ctx context.Context, qry T) (R, error) {
		started := now()
		attrs := metric.WithAttributes(attribute.String("query.type", TypeName(qry)))

		ctx, span := bus.tracer.Start(ctx, "query.handle",
			trace.WithAttributes(
				attribute.String("query.type", TypeName(qry)),
				attribute.String("query.id", string(qry.ID())),
			),
		)
		defer span.End()

		QueriesInFlight.Add(ctx, 1, attrs)
		defer QueriesInFlight.Add(ctx, -1, attrs)

		result, err := handler.HandleQuery(ctx, qry)
		QueriesDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)
		if err != nil {
			QueriesFailed.Add(ctx, 1, attrs)
			span.RecordError(err)
			return result, err
		}

		QueriesHandled.Add(ctx, 1, attrs)
		return result, nil
	}

	bus.handlers[queryKey[T, R]()] = queryHandlerFunc[T, R](wrapped)
}

// GenericQueryGateway is a typed front for executing queries registered on a
// QueryBus. It implements QueryHandler[T, R] itself, so it can be used
// wherever a handler is expected.
type GenericQueryGateway[T query.Query, R any] struct {
	bus *QueryBus
}

// NewQueryGateway creates a typed gateway for one query type on the bus.
func NewQueryGateway[T query.Query, R any](bus *QueryBus) GenericQueryGateway[T, R] {
	return GenericQueryGateway[T, R]{bus: bus}
}

// HandleQuery executes the registered handler for qry. It returns
// ErrHandlerNotFound (wrapped) when nothing is registered for the
// query/result pair.
func (g GenericQueryGateway[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	var zero R

	h, ok := g.bus.handlers[queryKey[T, R]()]
	if !ok {
		return zero, fmt.Errorf("no handler registered for query %T -> %T: %w", qry, zero, ErrHandlerNotFound)
	}

	handler, ok := h.(QueryHandler[T, R])
	if !ok {
		return zero, fmt.Errorf("handler type mismatch for query %T -> %T", qry, zero)
	}

	return handler.HandleQuery(ctx, qry)
}
