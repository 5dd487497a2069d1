package logging

import (
	"context"
	"reflect"

	"github.com/sirupsen/logrus"
	"github.com/terraskye/customers/eventsourcing"
)

// WithAskLogging wraps an AskFunc with logging functionality.
// It logs the command type and aggregate ID before execution, and logs
// errors if the command fails.
func WithAskLogging[T any, C eventsourcing.Command](logger *logrus.Entry, next eventsourcing.AskFunc[T, C]) eventsourcing.AskFunc[T, C] {
	return func(ctx context.Context, command C) (T, eventsourcing.AppendResult, error) {
		cmdType := reflect.TypeOf(command).String()
		logger.Infof("Ask: %s (aggregateID: %s)", cmdType, command.AggregateID())

		state, result, err := next(ctx, command)
		if err != nil {
			logger.Errorf("Ask failed: %s (aggregateID: %s): %v", cmdType, command.AggregateID(), err)
		}

		return state, result, err
	}
}
