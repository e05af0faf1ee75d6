package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storesCfg = UpsertConfig{
	Table:        "stores",
	Columns:      []string{"id", "name", "address", "lat", "lng"},
	ConflictKeys: []string{"id"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, storesCfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_InvalidConfig(t *testing.T) {
	rows := [][]any{{"1001", "A"}}

	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{Table: "stores", ConflictKeys: []string{"id"}}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{Table: "stores", Columns: []string{"id"}}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{Columns: []string{"id"}, ConflictKeys: []string{"id"}}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no table specified")
}

func TestBulkUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{
		{"1000", "Midtown", "1 Main St", 40.75, -73.99},
		{"1001", "Harlem", "2 Main St", 40.80, -73.94},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_stores" \(LIKE "stores" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_stores"}, storesCfg.Columns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "stores" .* ON CONFLICT \("id"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, storesCfg, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_stores"}, storesCfg.Columns).
		WillReturnError(errors.New("copy broke"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, storesCfg, [][]any{{"1", "a", "b", 1.0, 2.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeSQL(t *testing.T) {
	assert.Equal(t,
		`INSERT INTO "stores" ("id", "name", "address", "lat", "lng") SELECT "id", "name", "address", "lat", "lng" FROM "_tmp_upsert_stores" ON CONFLICT ("id") DO UPDATE SET "name" = EXCLUDED."name", "address" = EXCLUDED."address", "lat" = EXCLUDED."lat", "lng" = EXCLUDED."lng"`,
		mergeSQL(storesCfg))

	keysOnly := UpsertConfig{Table: "retail.tags", Columns: []string{"id"}, ConflictKeys: []string{"id"}}
	assert.Equal(t,
		`INSERT INTO "retail"."tags" ("id") SELECT "id" FROM "_tmp_upsert_retail_tags" ON CONFLICT ("id") DO NOTHING`,
		mergeSQL(keysOnly))
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"stores"`, sanitizeTable("stores"))
	assert.Equal(t, `"retail"."stores"`, sanitizeTable("retail.stores"))
}
