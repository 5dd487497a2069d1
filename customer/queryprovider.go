package customer

import (
	"context"

	"github.com/io-da/query"

	"github.com/terraskye/customers/eventsourcing"
)

// ListCustomersQuery asks the read side for all active customers.
type ListCustomersQuery struct{}

func (q *ListCustomersQuery) ID() []byte { return []byte("customers.list") }

// GetCustomerQuery asks the read side for one customer row. Unlike the Get
// command it reads the projection, so it is eventually consistent.
type GetCustomerQuery struct {
	CustomerID string
}

func (q *GetCustomerQuery) ID() []byte { return []byte("customers.get:" + q.CustomerID) }

var (
	_ query.Query = (*ListCustomersQuery)(nil)
	_ query.Query = (*GetCustomerQuery)(nil)
)

// RegisterQueryHandlers registers the read-side query handlers on the bus.
// Both answer from the query store, so results lag the event log by the
// projection delay.
func RegisterQueryHandlers(bus *eventsourcing.QueryBus, reads QueryStore) {
	eventsourcing.RegisterQueryHandler(bus, eventsourcing.NewQueryHandlerFunc(
		func(ctx context.Context, q *ListCustomersQuery) ([]Customer, error) {
			return reads.List(ctx)
		}))

	eventsourcing.RegisterQueryHandler(bus, eventsourcing.NewQueryHandlerFunc(
		func(ctx context.Context, q *GetCustomerQuery) (Customer, error) {
			return reads.Get(ctx, q.CustomerID)
		}))
}

// QueryProvider is the typed client side of the customer queries. It holds
// one gateway per query type registered by RegisterQueryHandlers.
type QueryProvider struct {
	list eventsourcing.GenericQueryGateway[*ListCustomersQuery, []Customer]
	get  eventsourcing.GenericQueryGateway[*GetCustomerQuery, Customer]
}

func NewQueryProvider(bus *eventsourcing.QueryBus) *QueryProvider {
	return &QueryProvider{
		list: eventsourcing.NewQueryGateway[*ListCustomersQuery, []Customer](bus),
		get:  eventsourcing.NewQueryGateway[*GetCustomerQuery, Customer](bus),
	}
}

// ListCustomers returns every customer currently in the projection.
func (p *QueryProvider) ListCustomers(ctx context.Context) ([]Customer, error) {
	return p.list.HandleQuery(ctx, &ListCustomersQuery{})
}

// GetCustomer returns one projected customer row, or ErrNotFound.
func (p *QueryProvider) GetCustomer(ctx context.Context, id string) (Customer, error) {
	return p.get.HandleQuery(ctx, &GetCustomerQuery{CustomerID: id})
}
