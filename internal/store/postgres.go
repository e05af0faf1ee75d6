package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/greengrowth/internal/db"
)

// PostgresCatalog implements Catalog using pgxpool.
type PostgresCatalog struct {
	pool db.Pool
}

var _ Catalog = (*PostgresCatalog)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresCatalog with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresCatalog, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresCatalog{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS stores (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL DEFAULT '',
	lat        DOUBLE PRECISION NOT NULL,
	lng        DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_stores_name ON stores(name);
`

var storeUpsert = db.UpsertConfig{
	Table:        "stores",
	Columns:      []string{"id", "name", "address", "lat", "lng"},
	ConflictKeys: []string{"id"},
}

// Migrate creates the schema.
func (s *PostgresCatalog) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresCatalog) Close() error {
	s.pool.Close()
	return nil
}

// Upsert bulk-loads stores, replacing existing rows by id.
func (s *PostgresCatalog) Upsert(ctx context.Context, stores []Store) (int64, error) {
	rows := make([][]any, 0, len(stores))
	for _, st := range stores {
		if err := st.Validate(); err != nil {
			return 0, err
		}
		rows = append(rows, []any{st.ID, st.Name, st.Address, st.Lat, st.Lng})
	}

	n, err := db.BulkUpsert(ctx, s.pool, storeUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert stores")
	}
	return n, nil
}

// Get returns a store by id, or ErrNotFound.
func (s *PostgresCatalog) Get(ctx context.Context, id string) (*Store, error) {
	var st Store
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, address, lat, lng FROM stores WHERE id = $1`, id,
	).Scan(&st.ID, &st.Name, &st.Address, &st.Lat, &st.Lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: store %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get store %s", id)
	}
	return &st, nil
}

// List returns all stores in the same order as the SQLite catalog.
func (s *PostgresCatalog) List(ctx context.Context) ([]Store, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, address, lat, lng FROM stores ORDER BY length(id), id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stores")
	}
	defer rows.Close()

	out := []Store{}
	for rows.Next() {
		var st Store
		if err := rows.Scan(&st.ID, &st.Name, &st.Address, &st.Lat, &st.Lng); err != nil {
			return nil, eris.Wrap(err, "postgres: scan store")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate stores")
}

// Count returns the number of stores.
func (s *PostgresCatalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM stores`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count stores")
	}
	return n, nil
}
