package eventsourcing

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/terraskye/customers/eventsourcing"
)

var (
	meter metric.Meter

	// Command metrics
	CommandsHandled  metric.Int64Counter
	CommandsDuration metric.Float64Histogram
	CommandsInFlight metric.Int64UpDownCounter

	// Event metrics
	EventsAppended metric.Int64Counter
	EventsLoaded   metric.Int64Counter

	// Query metrics
	QueriesHandled  metric.Int64Counter
	QueriesFailed   metric.Int64Counter
	QueriesDuration metric.Float64Histogram
	QueriesInFlight metric.Int64UpDownCounter

	// Projection metrics
	ProjectionEventsProcessed metric.Int64Counter
	ProjectionRetries         metric.Int64Counter
	ProjectionOffset          metric.Int64Gauge

	// System metrics
	ConcurrencyConflicts metric.Int64Counter

	once        sync.Once
	initErr     error
	initialized bool
)

// The global meter defaults to a no-op provider and delegates once a real
// MeterProvider is installed, so creating the instruments eagerly is safe.
func init() {
	MustInit()
}

// Init initializes the global metrics. Idempotent.
func Init() error {
	once.Do(func() {
		meter = otel.Meter(instrumentationName)
		initErr = initializeMetrics()
		if initErr == nil {
			initialized = true
		}
	})
	return initErr
}

func initializeMetrics() error {
	var err error

	CommandsHandled, err = meter.Int64Counter(
		"customers.commands.handled",
		metric.WithDescription("Number of commands handled"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return err
	}

	CommandsDuration, err = meter.Float64Histogram(
		"customers.commands.duration",
		metric.WithDescription("Command handling duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return err
	}

	CommandsInFlight, err = meter.Int64UpDownCounter(
		"customers.commands.in_flight",
		metric.WithDescription("Number of commands currently being processed"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return err
	}

	EventsAppended, err = meter.Int64Counter(
		"customers.events.appended",
		metric.WithDescription("Number of events appended to streams"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	EventsLoaded, err = meter.Int64Counter(
		"customers.events.loaded",
		metric.WithDescription("Number of events loaded from streams"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	QueriesHandled, err = meter.Int64Counter(
		"customers.queries.handled",
		metric.WithDescription("Number of queries answered"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return err
	}

	QueriesFailed, err = meter.Int64Counter(
		"customers.queries.failed",
		metric.WithDescription("Number of queries that returned an error"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return err
	}

	QueriesDuration, err = meter.Float64Histogram(
		"customers.queries.duration",
		metric.WithDescription("Query handling duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return err
	}

	QueriesInFlight, err = meter.Int64UpDownCounter(
		"customers.queries.in_flight",
		metric.WithDescription("Number of queries currently being answered"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return err
	}

	ProjectionEventsProcessed, err = meter.Int64Counter(
		"customers.projection.events_processed",
		metric.WithDescription("Number of events applied to the read side"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	ProjectionRetries, err = meter.Int64Counter(
		"customers.projection.retries",
		metric.WithDescription("Number of read-side apply retries"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return err
	}

	ProjectionOffset, err = meter.Int64Gauge(
		"customers.projection.offset",
		metric.WithDescription("Last committed projection offset per shard"),
		metric.WithUnit("{offset}"),
	)
	if err != nil {
		return err
	}

	ConcurrencyConflicts, err = meter.Int64Counter(
		"customers.concurrency.conflicts",
		metric.WithDescription("Number of concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// IsInitialized returns whether metrics have been initialized.
func IsInitialized() bool {
	return initialized
}

// MustInit initializes metrics and panics on error.
func MustInit() {
	if err := Init(); err != nil {
		panic("failed to initialize metrics: " + err.Error())
	}
}
