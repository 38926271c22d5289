package reader

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vegasq/aggcat/internal/testutil"
)

func newMockSource(t *testing.T, dialect string) (*SQLSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	return NewSQLSource(db, dialect, testutil.NewTestLogger(t)), mock
}

func TestSQLSource_FetchAll(t *testing.T) {
	src, mock := newMockSource(t, DialectPostgres)

	rows := sqlmock.NewRows([]string{"Airline", "Cancelled", "Route"}).
		AddRow("SQ", int64(1), []byte("SIN - BKK")).
		AddRow("MH", int64(0), nil)
	mock.ExpectQuery(`SELECT * FROM "flight_delay"`).WillReturnRows(rows)
	mock.ExpectClose()

	table, err := src.FetchAll(context.Background(), "flight_delay")
	require.NoError(t, err)
	require.Len(t, table, 2)

	assert.Equal(t, []string{"Airline", "Cancelled", "Route"}, table[0].Fields())
	assert.Equal(t, "SQ", table[0].Get("Airline"))
	assert.Equal(t, int64(1), table[0].Get("Cancelled"))
	assert.Equal(t, "SIN - BKK", table[0].Get("Route"))
	assert.Nil(t, table[1].Get("Route"))
	assert.True(t, table[1].Has("Route"))

	require.NoError(t, src.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSource_QuotesIdentifiers(t *testing.T) {
	tests := []struct {
		dialect string
		table   string
		query   string
	}{
		{DialectMySQL, "shop.orders", "SELECT * FROM `shop`.`orders`"},
		{DialectMySQL, "odd`name", "SELECT * FROM `odd``name`"},
		{DialectSQLite, "stock", `SELECT * FROM "stock"`},
		{DialectDuckDB, "main.stock", `SELECT * FROM "main"."stock"`},
		{DialectPostgres, `we"ird`, `SELECT * FROM "we""ird"`},
	}
	for _, tt := range tests {
		t.Run(tt.dialect+"/"+tt.table, func(t *testing.T) {
			src, mock := newMockSource(t, tt.dialect)
			mock.ExpectQuery(tt.query).WillReturnRows(sqlmock.NewRows([]string{"x"}))

			table, err := src.FetchAll(context.Background(), tt.table)
			require.NoError(t, err)
			assert.Empty(t, table)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLSource_DecimalColumns(t *testing.T) {
	src, mock := newMockSource(t, DialectPostgres)

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("Ticker").OfType("TEXT", ""),
		sqlmock.NewColumn("Price").OfType("NUMERIC", ""),
	).AddRow("ACME", "10.25").AddRow("ACME", "not-a-number")
	mock.ExpectQuery(`SELECT * FROM "stock"`).WillReturnRows(rows)

	table, err := src.FetchAll(context.Background(), "stock")
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, "ACME", table[0].Get("Ticker"))
	assert.Equal(t, 10.25, table[0].Get("Price"))
	assert.Equal(t, "not-a-number", table[1].Get("Price"))
}

func TestSQLSource_QueryError(t *testing.T) {
	src, mock := newMockSource(t, DialectPostgres)
	mock.ExpectQuery(`SELECT * FROM "missing"`).WillReturnError(sql.ErrNoRows)

	_, err := src.FetchAll(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Contains(t, err.Error(), "failed to query missing")
}

func TestSQLSource_Tables(t *testing.T) {
	src, mock := newMockSource(t, DialectMySQL)
	mock.ExpectQuery(`SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("booking").AddRow("flight_delay"))

	tables, err := src.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"booking", "flight_delay"}, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverFor(t *testing.T) {
	tests := []struct {
		name, driver, dialect string
	}{
		{"sqlite", "sqlite", DialectSQLite},
		{"SQLite3", "sqlite", DialectSQLite},
		{"duckdb", "duckdb", DialectDuckDB},
		{"postgres", "pgx", DialectPostgres},
		{"postgresql", "pgx", DialectPostgres},
		{"pgx", "pgx", DialectPostgres},
		{"mysql", "mysql", DialectMySQL},
	}
	for _, tt := range tests {
		drv, dialect, err := driverFor(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.driver, drv, tt.name)
		assert.Equal(t, tt.dialect, dialect, tt.name)
	}

	_, _, err := driverFor("oracle")
	assert.ErrorContains(t, err, "unsupported SQL driver")
}

func TestSQLSource_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "airline.db")

	src, err := OpenSQL(ctx, "sqlite", path, testutil.NewTestLogger(t))
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	_, err = src.db.ExecContext(ctx, `CREATE TABLE booking (route TEXT, num_passengers INTEGER, fare REAL, completed INTEGER)`)
	require.NoError(t, err)
	_, err = src.db.ExecContext(ctx, `INSERT INTO booking VALUES ('AKLDEL', 2, 120.5, 1), ('AKLDEL', 1, NULL, 0)`)
	require.NoError(t, err)
	_, err = src.db.ExecContext(ctx, `CREATE VIEW completed AS SELECT * FROM booking WHERE completed = 1`)
	require.NoError(t, err)

	table, err := src.FetchAll(ctx, "booking")
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, []string{"route", "num_passengers", "fare", "completed"}, table[0].Fields())
	assert.Equal(t, "AKLDEL", table[0].Get("route"))
	assert.Equal(t, int64(2), table[0].Get("num_passengers"))
	assert.Equal(t, 120.5, table[0].Get("fare"))
	assert.Nil(t, table[1].Get("fare"))

	tables, err := src.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"booking", "completed"}, tables)
}

func TestOpenSQL_UnknownDriver(t *testing.T) {
	_, err := OpenSQL(context.Background(), "oracle", "", nil)
	assert.Error(t, err)
}
