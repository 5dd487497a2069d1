package eventsourcing

import (
	"errors"
	"fmt"
	"testing"
)

type dummyEvent struct{}

func (e *dummyEvent) AggregateID() string { return "" }
func (e *dummyEvent) EventType() string   { return "dummy" }

func TestErrorStrings(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "StreamRevisionConflictError",
			err: &StreamRevisionConflictError{
				Stream:           "stream-123",
				ExpectedRevision: Revision(5),
				ActualRevision:   Revision(7),
			},
			want: `concurrency conflict on stream "stream-123": (expected version 5, actual 7)`,
		},
		{
			name: "ErrSkippedEvent",
			err:  &ErrSkippedEvent{Event: &dummyEvent{}},
			want: "skipped event of type *eventsourcing.dummyEvent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapEventStoreError(t *testing.T) {
	if WrapEventStoreError(nil) != nil {
		t.Fatal("expected nil for nil input")
	}

	cause := errors.New("disk on fire")
	wrapped := WrapEventStoreError(fmt.Errorf("append: %w", cause))

	var storeErr *EventStoreError
	if !errors.As(wrapped, &storeErr) {
		t.Fatalf("expected *EventStoreError, got %T", wrapped)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("expected wrapped error to unwrap to the cause")
	}
}
