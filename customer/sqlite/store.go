// Package sqlite persists the customer read side in a SQLite database. The
// same database holds the projection rows and the committed offsets, so a
// deployment needs a single file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/terraskye/customers/customer"
	"github.com/terraskye/customers/eventsourcing"
)

const schema = `
CREATE TABLE IF NOT EXISTS customers (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	city    TEXT NOT NULL,
	state   TEXT NOT NULL,
	zipcode TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS projection_offsets (
	shard            TEXT PRIMARY KEY,
	committed_offset INTEGER NOT NULL
);
`

var (
	_ customer.QueryStore       = (*Store)(nil)
	_ eventsourcing.OffsetStore = (*Store)(nil)
)

// Store implements the customer query store and the projection offset store
// on one SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and runs the schema.
// WAL keeps concurrent readers from blocking the projector's writes.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema to %q: %w", path, err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Upsert(ctx context.Context, c customer.Customer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, city, state, zipcode)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			city = excluded.city,
			state = excluded.state,
			zipcode = excluded.zipcode`,
		c.ID, c.Name, c.City, c.State, c.ZipCode,
	)
	if err != nil {
		return fmt.Errorf("upsert customer %q: %w", c.ID, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove customer %q: %w", id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (customer.Customer, error) {
	var c customer.Customer
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, city, state, zipcode FROM customers WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.City, &c.State, &c.ZipCode)
	if errors.Is(err, sql.ErrNoRows) {
		return customer.Customer{}, fmt.Errorf("get customer %q: %w", id, customer.ErrNotFound)
	}
	if err != nil {
		return customer.Customer{}, fmt.Errorf("get customer %q: %w", id, err)
	}
	return c, nil
}

func (s *Store) List(ctx context.Context) ([]customer.Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, city, state, zipcode FROM customers ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []customer.Customer
	for rows.Next() {
		var c customer.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.City, &c.State, &c.ZipCode); err != nil {
			return nil, fmt.Errorf("list customers: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return out, nil
}

func (s *Store) CommittedOffset(ctx context.Context, shard string) (uint64, error) {
	var offset uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT committed_offset FROM projection_offsets WHERE shard = ?`, shard,
	).Scan(&offset)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read offset for shard %q: %w", shard, err)
	}
	return offset, nil
}

func (s *Store) CommitOffset(ctx context.Context, shard string, offset uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projection_offsets (shard, committed_offset)
		VALUES (?, ?)
		ON CONFLICT(shard) DO UPDATE SET committed_offset = excluded.committed_offset`,
		shard, offset,
	)
	if err != nil {
		return fmt.Errorf("commit offset %d for shard %q: %w", offset, shard, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
