package eventsourcing

// StreamState expresses the expected state of a stream when appending.
type StreamState interface {
	streamState()
}

// Any means append without checking the current revision.
type Any struct{}

func (Any) streamState() {}

// NoStream means the stream should not exist yet.
type NoStream struct{}

func (NoStream) streamState() {}

// StreamExists means the stream must exist.
type StreamExists struct{}

func (StreamExists) streamState() {}

// Revision matches exactly a numeric stream revision.
type Revision uint64

func (Revision) streamState() {}
