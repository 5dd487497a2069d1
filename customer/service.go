package customer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/terraskye/customers/eventsourcing"
)

// Service is the transport-facing surface of the customer entity. Writes and
// direct lookups go through the entity registry for strong consistency; bulk
// listing dispatches through the query bus to the eventually consistent read
// side.
type Service struct {
	ask     eventsourcing.AskFunc[State, Command]
	queries *QueryProvider
}

// NewService builds a Service on top of an entity ask function and the
// read-side query provider. Decorate ask with logging.WithAskLogging before
// passing it in to get per-command logs.
func NewService(ask eventsourcing.AskFunc[State, Command], queries *QueryProvider) *Service {
	return &Service{ask: ask, queries: queries}
}

// AddCustomer assigns a fresh ID to the payload and creates the customer.
// Callers never supply the ID; any value in c.ID is overwritten.
func (s *Service) AddCustomer(ctx context.Context, c Customer) (Customer, error) {
	c.ID = uuid.NewString()

	state, _, err := s.ask(ctx, Add{Customer: c})
	if err != nil {
		return Customer{}, err
	}
	if state.Customer == nil {
		return Customer{}, fmt.Errorf("add customer %q: state missing after append", c.ID)
	}
	return *state.Customer, nil
}

// GetCustomer returns the customer by ID, or ErrNotFound if it never existed
// or has been disabled.
func (s *Service) GetCustomer(ctx context.Context, id string) (Customer, error) {
	state, _, err := s.ask(ctx, Get{ID: id})
	if err != nil {
		return Customer{}, err
	}
	return *state.Customer, nil
}

// DisableCustomer soft-deletes the customer. Disabling twice is a no-op;
// disabling an unknown ID is ErrNotFound.
func (s *Service) DisableCustomer(ctx context.Context, id string) error {
	_, _, err := s.ask(ctx, Disable{ID: id})
	return err
}

// ListCustomers returns all active customers from the read side. The result
// lags the event log by the projection delay.
func (s *Service) ListCustomers(ctx context.Context) ([]Customer, error) {
	return s.queries.ListCustomers(ctx)
}
