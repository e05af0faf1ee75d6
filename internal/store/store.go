// Package store persists the catalog of retail locations that signals are
// computed for.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a store id is not in the catalog.
var ErrNotFound = eris.New("store: not found")

// Store is a retail location.
type Store struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Validate checks the coordinate range and required fields.
func (s Store) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return eris.New("store: id is required")
	}
	if s.Lat < -90 || s.Lat > 90 || s.Lng < -180 || s.Lng > 180 {
		return eris.Errorf("store: %s has invalid coordinates (%f, %f)", s.ID, s.Lat, s.Lng)
	}
	return nil
}

// Catalog defines the persistence interface for stores.
type Catalog interface {
	Upsert(ctx context.Context, stores []Store) (int64, error)
	Get(ctx context.Context, id string) (*Store, error)
	List(ctx context.Context) ([]Store, error)
	Count(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the catalog for driver and runs migrations.
func Open(ctx context.Context, driver, dsn string) (Catalog, error) {
	var (
		cat Catalog
		err error
	)
	switch driver {
	case DriverSQLite, "":
		cat, err = NewSQLite(dsn)
	case DriverPostgres:
		cat, err = NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := cat.Migrate(ctx); err != nil {
		cat.Close() //nolint:errcheck
		return nil, err
	}
	return cat, nil
}
