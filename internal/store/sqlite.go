package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteCatalog implements Catalog using modernc.org/sqlite.
type SQLiteCatalog struct {
	db *sql.DB
}

var _ Catalog = (*SQLiteCatalog)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteCatalog{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS stores (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL DEFAULT '',
	lat        REAL NOT NULL,
	lng        REAL NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_stores_name ON stores(name);
`

// Migrate creates the schema.
func (s *SQLiteCatalog) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces stores by id in one transaction.
func (s *SQLiteCatalog) Upsert(ctx context.Context, stores []Store) (int64, error) {
	if len(stores) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stores (id, name, address, lat, lng, updated_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			lat = excluded.lat,
			lng = excluded.lng,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, st := range stores {
		if err := st.Validate(); err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, st.ID, st.Name, st.Address, st.Lat, st.Lng); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert store %s", st.ID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return n, nil
}

// Get returns a store by id, or ErrNotFound.
func (s *SQLiteCatalog) Get(ctx context.Context, id string) (*Store, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, address, lat, lng FROM stores WHERE id = ?`, id)

	var st Store
	err := row.Scan(&st.ID, &st.Name, &st.Address, &st.Lat, &st.Lng)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: store %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get store %s", id)
	}
	return &st, nil
}

// List returns all stores ordered by id length then id, so "1002" sorts
// before "10010".
func (s *SQLiteCatalog) List(ctx context.Context) ([]Store, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, address, lat, lng FROM stores ORDER BY length(id), id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stores")
	}
	defer rows.Close() //nolint:errcheck

	out := []Store{}
	for rows.Next() {
		var st Store
		if err := rows.Scan(&st.ID, &st.Name, &st.Address, &st.Lat, &st.Lng); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan store")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate stores")
}

// Count returns the number of stores.
func (s *SQLiteCatalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM stores`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count stores")
	}
	return n, nil
}
