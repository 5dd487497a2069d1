package eventsourcing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const (
	streamIDKey      ctxKey = "streamID"
	eventIDKey       ctxKey = "eventID"
	versionKey       ctxKey = "version"
	globalVersionKey ctxKey = "globalVersion"
	occurredAtKey    ctxKey = "occurredAt"
	metadataKey      ctxKey = "metadata"
)

// WithEnvelope adds the context of the Event to the context.
func WithEnvelope(ctx context.Context, env *Envelope) context.Context {
	ctx = context.WithValue(ctx, streamIDKey, env.StreamID)
	ctx = context.WithValue(ctx, eventIDKey, env.EventID)
	ctx = context.WithValue(ctx, versionKey, env.Version)
	ctx = context.WithValue(ctx, globalVersionKey, env.GlobalVersion)
	ctx = context.WithValue(ctx, occurredAtKey, env.OccurredAt)
	ctx = context.WithValue(ctx, metadataKey, env.Metadata)
	return ctx
}

// StreamIDFromContext returns the StreamID or "" if not present.
func StreamIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(streamIDKey).(string); ok {
		return v
	}
	return ""
}

// EventIDFromContext returns the EventID or uuid.Nil if not present.
func EventIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(eventIDKey).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// VersionFromContext returns the stream Version or 0 if not present.
func VersionFromContext(ctx context.Context) uint64 {
	if v, ok := ctx.Value(versionKey).(uint64); ok {
		return v
	}
	return 0
}

// GlobalVersionFromContext returns the GlobalVersion or 0 if not present.
func GlobalVersionFromContext(ctx context.Context) uint64 {
	if v, ok := ctx.Value(globalVersionKey).(uint64); ok {
		return v
	}
	return 0
}

// OccurredAtFromContext returns OccurredAt or zero time if not present.
func OccurredAtFromContext(ctx context.Context) time.Time {
	if v, ok := ctx.Value(occurredAtKey).(time.Time); ok {
		return v
	}
	return time.Time{}
}

// MetadataFromContext returns Metadata or nil if not present.
func MetadataFromContext(ctx context.Context) map[string]any {
	if v, ok := ctx.Value(metadataKey).(map[string]any); ok {
		return v
	}
	return nil
}
