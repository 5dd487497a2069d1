package eventsourcing_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	cqrs "github.com/terraskye/customers/eventsourcing"
)

type GetProfileQuery struct {
	ProfileID string
}

func (q GetProfileQuery) ID() []byte { return []byte(q.ProfileID) }

type ProfileResult struct {
	Name string
}

type ListProfilesQuery struct {
	Owner string
}

func (q ListProfilesQuery) ID() []byte { return []byte(q.Owner) }

func TestQueryGateway_HandleQuery(t *testing.T) {
	bus := cqrs.NewQueryBus()
	cqrs.RegisterQueryHandler(bus, cqrs.NewQueryHandlerFunc(func(ctx context.Context, q GetProfileQuery) (*ProfileResult, error) {
		return &ProfileResult{Name: "profile-" + q.ProfileID}, nil
	}))

	gateway := cqrs.NewQueryGateway[GetProfileQuery, *ProfileResult](bus)
	result, err := gateway.HandleQuery(context.Background(), GetProfileQuery{ProfileID: "42"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Name != "profile-42" {
		t.Errorf("Name = %q, want %q", result.Name, "profile-42")
	}
}

func TestQueryGateway_UnregisteredHandler(t *testing.T) {
	bus := cqrs.NewQueryBus()
	gateway := cqrs.NewQueryGateway[GetProfileQuery, *ProfileResult](bus)

	_, err := gateway.HandleQuery(context.Background(), GetProfileQuery{ProfileID: "1"})
	if err == nil {
		t.Fatal("expected error for unregistered handler")
	}
	if !errors.Is(err, cqrs.ErrHandlerNotFound) {
		t.Errorf("error = %v, want %v", err, cqrs.ErrHandlerNotFound)
	}
}

func TestQueryGateway_MultipleGateways(t *testing.T) {
	bus := cqrs.NewQueryBus()

	cqrs.RegisterQueryHandler(bus, cqrs.NewQueryHandlerFunc(func(ctx context.Context, q GetProfileQuery) (*ProfileResult, error) {
		return &ProfileResult{Name: "single:" + q.ProfileID}, nil
	}))

	cqrs.RegisterQueryHandler(bus, cqrs.NewQueryHandlerFunc(func(ctx context.Context, q ListProfilesQuery) ([]string, error) {
		return []string{"x", "y"}, nil
	}))

	profileGateway := cqrs.NewQueryGateway[GetProfileQuery, *ProfileResult](bus)
	listGateway := cqrs.NewQueryGateway[ListProfilesQuery, []string](bus)

	r1, err := profileGateway.HandleQuery(context.Background(), GetProfileQuery{ProfileID: "7"})
	if err != nil {
		t.Fatalf("profileGateway: unexpected error: %v", err)
	}
	if r1.Name != "single:7" {
		t.Errorf("profileGateway Name = %q, want %q", r1.Name, "single:7")
	}

	r2, err := listGateway.HandleQuery(context.Background(), ListProfilesQuery{Owner: "bob"})
	if err != nil {
		t.Fatalf("listGateway: unexpected error: %v", err)
	}
	want := []string{"x", "y"}
	if !reflect.DeepEqual(r2, want) {
		t.Errorf("listGateway result = %v, want %v", r2, want)
	}
}

func TestQueryGateway_PropagatesHandlerError(t *testing.T) {
	bus := cqrs.NewQueryBus()
	cqrs.RegisterQueryHandler(bus, cqrs.NewQueryHandlerFunc(func(ctx context.Context, q GetProfileQuery) (*ProfileResult, error) {
		return nil, errors.New("db connection lost")
	}))

	gateway := cqrs.NewQueryGateway[GetProfileQuery, *ProfileResult](bus)
	_, err := gateway.HandleQuery(context.Background(), GetProfileQuery{ProfileID: "1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "db connection lost" {
		t.Errorf("error = %q, want %q", err.Error(), "db connection lost")
	}
}
