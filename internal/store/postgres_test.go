package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresCatalog creates a PostgresCatalog backed by pgxmock for unit testing.
func newMockPostgresCatalog(t *testing.T) (*PostgresCatalog, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresCatalog{pool: mock}, mock
}

func TestPostgresCatalog_Migrate(t *testing.T) {
	s, mock := newMockPostgresCatalog(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS stores`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_Get(t *testing.T) {
	s, mock := newMockPostgresCatalog(t)

	mock.ExpectQuery(`SELECT id, name, address, lat, lng FROM stores WHERE id = \$1`).
		WithArgs("1004").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "address", "lat", "lng"}).
			AddRow("1004", "Buckhead", "3535 Piedmont Rd", 33.85, -84.37))

	got, err := s.Get(context.Background(), "1004")
	require.NoError(t, err)
	assert.Equal(t, "Buckhead", got.Name)
	assert.InDelta(t, -84.37, got.Lng, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_Get_NotFound(t *testing.T) {
	s, mock := newMockPostgresCatalog(t)

	mock.ExpectQuery(`SELECT id, name, address, lat, lng FROM stores WHERE id = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_List(t *testing.T) {
	s, mock := newMockPostgresCatalog(t)

	mock.ExpectQuery(`SELECT id, name, address, lat, lng FROM stores ORDER BY length\(id\), id`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "address", "lat", "lng"}).
			AddRow("1000", "A", "1 St", 1.0, 2.0).
			AddRow("1001", "B", "2 St", 3.0, 4.0))

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "1001", list[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_Count(t *testing.T) {
	s, mock := newMockPostgresCatalog(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM stores`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_Upsert(t *testing.T) {
	s, mock := newMockPostgresCatalog(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_stores"}, []string{"id", "name", "address", "lat", "lng"}).
		WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("id"\) DO UPDATE`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.Upsert(context.Background(), []Store{
		{ID: "1000", Name: "A", Lat: 1, Lng: 1},
		{ID: "1001", Name: "B", Lat: 2, Lng: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_Upsert_Invalid(t *testing.T) {
	s, mock := newMockPostgresCatalog(t)

	_, err := s.Upsert(context.Background(), []Store{{ID: "", Name: "x"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
