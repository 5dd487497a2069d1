package customer

import (
	"context"
	"fmt"

	"github.com/terraskye/customers/eventsourcing"
)

// ProjectionShard is the offset-store shard name under which the customer
// projection tracks its progress.
const ProjectionShard = "customer"

// Projection applies customer events to the query store. Appliers are
// idempotent so at-least-once delivery from the projector is safe.
type Projection struct {
	store QueryStore
}

// NewProjection wires the projection's typed event handlers into a group
// processor ready to be driven by a Projector.
func NewProjection(store QueryStore) *eventsourcing.EventGroupProcessor {
	p := &Projection{store: store}
	return eventsourcing.NewEventGroupProcessor(
		eventsourcing.OnEvent(p.OnAdded),
		eventsourcing.OnEvent(p.OnDisabled),
	)
}

func (p *Projection) OnAdded(ctx context.Context, ev Added) error {
	if ev.Customer.ID == "" {
		return fmt.Errorf("customer added without an ID: %w", eventsourcing.ErrMalformedEvent)
	}
	return p.store.Upsert(ctx, ev.Customer)
}

// OnDisabled removes the row so disabled customers drop out of listings, the
// same way they vanish from direct lookup.
func (p *Projection) OnDisabled(ctx context.Context, ev Disabled) error {
	if ev.ID == "" {
		return fmt.Errorf("customer disabled without an ID: %w", eventsourcing.ErrMalformedEvent)
	}
	return p.store.Remove(ctx, ev.ID)
}
