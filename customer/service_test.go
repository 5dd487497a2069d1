package customer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraskye/customers/customer"
	"github.com/terraskye/customers/customer/memory"
	"github.com/terraskye/customers/eventsourcing"
	storememory "github.com/terraskye/customers/eventsourcing/eventstore/memory"
)

type fixture struct {
	service   *customer.Service
	projector *eventsourcing.Projector
	reads     *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	eventStore := storememory.NewMemoryStore()
	t.Cleanup(func() { eventStore.Close() })

	registry := eventsourcing.NewRegistry(
		eventStore,
		customer.InitialState(),
		customer.Evolve,
		customer.Decide,
	)
	t.Cleanup(registry.Stop)

	reads := memory.NewStore()
	bus := eventsourcing.NewQueryBus()
	customer.RegisterQueryHandlers(bus, reads)

	return &fixture{
		service:   customer.NewService(registry.Ask, customer.NewQueryProvider(bus)),
		projector: eventsourcing.NewProjector(customer.ProjectionShard, eventStore, reads, customer.NewProjection(reads)),
		reads:     reads,
	}
}

// project drains everything committed so far into the read side.
func (f *fixture) project(t *testing.T) {
	t.Helper()
	require.NoError(t, f.projector.CatchUp(context.Background()))
}

func TestAddCustomer_GeneratesIDAndReturnsRecord(t *testing.T) {
	f := newFixture(t)

	created, err := f.service.AddCustomer(context.Background(), customer.Customer{
		Name: "Ann", City: "X", State: "Y", ZipCode: "1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Ann", created.Name)
	assert.Equal(t, "X", created.City)
	assert.Equal(t, "Y", created.State)
	assert.Equal(t, "1", created.ZipCode)

	got, err := f.service.GetCustomer(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestGetCustomer_UnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.GetCustomer(context.Background(), "never-created")
	assert.ErrorIs(t, err, customer.ErrNotFound)
}

func TestDisableCustomer_HidesFromLookup(t *testing.T) {
	f := newFixture(t)

	created, err := f.service.AddCustomer(context.Background(), customer.Customer{Name: "Ann"})
	require.NoError(t, err)

	require.NoError(t, f.service.DisableCustomer(context.Background(), created.ID))

	_, err = f.service.GetCustomer(context.Background(), created.ID)
	assert.ErrorIs(t, err, customer.ErrNotFound)
}

func TestDisableCustomer_Idempotent(t *testing.T) {
	f := newFixture(t)

	created, err := f.service.AddCustomer(context.Background(), customer.Customer{Name: "Ann"})
	require.NoError(t, err)

	require.NoError(t, f.service.DisableCustomer(context.Background(), created.ID))
	require.NoError(t, f.service.DisableCustomer(context.Background(), created.ID))
	require.NoError(t, f.service.DisableCustomer(context.Background(), created.ID))

	_, err = f.service.GetCustomer(context.Background(), created.ID)
	assert.ErrorIs(t, err, customer.ErrNotFound)
}

func TestDisableCustomer_Unknown(t *testing.T) {
	f := newFixture(t)

	err := f.service.DisableCustomer(context.Background(), "never-created")
	assert.ErrorIs(t, err, customer.ErrNotFound)
}

func TestListCustomers_ReflectsProjection(t *testing.T) {
	f := newFixture(t)

	ann, err := f.service.AddCustomer(context.Background(), customer.Customer{Name: "Ann", City: "X", State: "Y", ZipCode: "1"})
	require.NoError(t, err)
	bob, err := f.service.AddCustomer(context.Background(), customer.Customer{Name: "Bob", City: "Z"})
	require.NoError(t, err)

	// Nothing visible before the projector catches up.
	listed, err := f.service.ListCustomers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listed)

	f.project(t)

	listed, err = f.service.ListCustomers(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, ann, listed[0])
	assert.Equal(t, bob, listed[1])
}

func TestListCustomers_DisabledDropOut(t *testing.T) {
	f := newFixture(t)

	ann, err := f.service.AddCustomer(context.Background(), customer.Customer{Name: "Ann"})
	require.NoError(t, err)
	bob, err := f.service.AddCustomer(context.Background(), customer.Customer{Name: "Bob"})
	require.NoError(t, err)

	f.project(t)

	require.NoError(t, f.service.DisableCustomer(context.Background(), ann.ID))
	f.project(t)

	listed, err := f.service.ListCustomers(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, bob.ID, listed[0].ID)
}

func TestProjection_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)

	created, err := f.service.AddCustomer(context.Background(), customer.Customer{Name: "Ann"})
	require.NoError(t, err)

	f.project(t)
	// Re-applying the same events must not duplicate rows.
	require.NoError(t, f.reads.CommitOffset(context.Background(), customer.ProjectionShard, 0))
	f.project(t)

	listed, err := f.service.ListCustomers(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
}

func TestAddCustomers_DistinctIDsIndependent(t *testing.T) {
	f := newFixture(t)

	ann, err := f.service.AddCustomer(context.Background(), customer.Customer{Name: "Ann"})
	require.NoError(t, err)
	bob, err := f.service.AddCustomer(context.Background(), customer.Customer{Name: "Bob"})
	require.NoError(t, err)
	require.NotEqual(t, ann.ID, bob.ID)

	require.NoError(t, f.service.DisableCustomer(context.Background(), ann.ID))

	got, err := f.service.GetCustomer(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, got)
}
