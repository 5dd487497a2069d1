// Package memory provides in-memory query and offset stores, used in tests
// and by deployments that can afford to rebuild the projection on start.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/terraskye/customers/customer"
	"github.com/terraskye/customers/eventsourcing"
)

var (
	_ customer.QueryStore       = (*Store)(nil)
	_ eventsourcing.OffsetStore = (*Store)(nil)
)

type Store struct {
	mu      sync.RWMutex
	rows    map[string]customer.Customer
	offsets map[string]uint64
}

func NewStore() *Store {
	return &Store{
		rows:    make(map[string]customer.Customer),
		offsets: make(map[string]uint64),
	}
}

func (s *Store) Upsert(ctx context.Context, c customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[c.ID] = c
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.rows[id]
	if !ok {
		return customer.Customer{}, fmt.Errorf("get customer %q: %w", id, customer.ErrNotFound)
	}
	return c, nil
}

func (s *Store) List(ctx context.Context) ([]customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]customer.Customer, 0, len(s.rows))
	for _, c := range s.rows {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CommittedOffset(ctx context.Context, shard string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offsets[shard], nil
}

func (s *Store) CommitOffset(ctx context.Context, shard string, offset uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[shard] = offset
	return nil
}
