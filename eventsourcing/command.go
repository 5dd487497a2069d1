package eventsourcing

import "context"

// Command is a transient request routed to the entity owning its aggregate ID.
// Commands are never persisted; only the events they produce are.
type Command interface {
	AggregateID() string
}

// AskFunc is the shape of Registry.Ask. Middleware such as
// logging.WithAskLogging wraps values of this type.
type AskFunc[T any, C Command] func(ctx context.Context, cmd C) (T, AppendResult, error)
