package customer

import "context"

// QueryStore is the denormalized read-side table. It is written only by the
// projection and read concurrently by queries; rows for disabled customers
// are removed rather than flagged.
type QueryStore interface {
	// Upsert inserts or replaces the row for c.ID.
	Upsert(ctx context.Context, c Customer) error

	// Remove deletes the row for id. Removing an absent row is not an error.
	Remove(ctx context.Context, id string) error

	// Get returns the row for id, or ErrNotFound.
	Get(ctx context.Context, id string) (Customer, error)

	// List returns all rows ordered by name.
	List(ctx context.Context) ([]Customer, error)
}
