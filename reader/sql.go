package reader

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/shopspring/decimal"
	"github.com/vegasq/aggcat/pipeline"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// SQL dialects understood by SQLSource.
const (
	DialectSQLite   = "sqlite"
	DialectDuckDB   = "duckdb"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// SQLSource serves tables of a database/sql connection with SELECT *.
type SQLSource struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
}

// driverFor maps a configured driver name to the registered database/sql
// driver and its dialect.
func driverFor(name string) (driver, dialect string, err error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return "sqlite", DialectSQLite, nil
	case "duckdb":
		return "duckdb", DialectDuckDB, nil
	case "postgres", "postgresql", "pgx":
		return "pgx", DialectPostgres, nil
	case "mysql":
		return "mysql", DialectMySQL, nil
	}
	return "", "", fmt.Errorf("unsupported SQL driver %q", name)
}

// OpenSQL connects with the named driver and verifies the connection.
func OpenSQL(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQLSource, error) {
	drv, dialect, err := driverFor(driver)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Debug("connecting to database", slog.String("driver", drv))

	db, err := sql.Open(drv, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dialect, err)
	}
	return NewSQLSource(db, dialect, logger), nil
}

// NewSQLSource wraps an open connection.
func NewSQLSource(db *sql.DB, dialect string, logger *slog.Logger) *SQLSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLSource{db: db, dialect: dialect, logger: logger}
}

// FetchAll selects every row of table. Column order follows the table.
func (s *SQLSource) FetchAll(ctx context.Context, table string) (pipeline.Table, error) {
	query := "SELECT * FROM " + quoteTable(s.dialect, table)
	s.logger.Debug("querying table", slog.String("query", query))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	numeric := make([]bool, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			numeric[i] = isDecimalType(ct.DatabaseTypeName())
		}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	out := pipeline.Table{}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec := pipeline.NewRecord()
		for i, col := range columns {
			rec.Set(col, sqlValue(values[i], numeric[i]))
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func isDecimalType(name string) bool {
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DECIMAL", "NUMERIC", "NEWDECIMAL":
		return true
	}
	return false
}

// sqlValue converts a scanned driver value to a record value.
func sqlValue(v any, decimalColumn bool) any {
	switch val := v.(type) {
	case []byte:
		if decimalColumn {
			return decimalValue(string(val))
		}
		return string(val)
	case string:
		if decimalColumn {
			return decimalValue(val)
		}
		return val
	case *big.Int:
		if val == nil {
			return nil
		}
		if val.IsInt64() {
			return val.Int64()
		}
		f, _ := new(big.Float).SetInt(val).Float64()
		return f
	case interface{ Float64() float64 }:
		return val.Float64()
	}
	return v
}

func decimalValue(s string) any {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return s
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) {
		return s
	}
	return f
}

// quoteTable quotes each dot-separated part of a table name.
func quoteTable(dialect, table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(dialect, p)
	}
	return strings.Join(parts, ".")
}

func quoteIdent(dialect, name string) string {
	if dialect == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Tables lists the tables of the current schema or database.
func (s *SQLSource) Tables(ctx context.Context) ([]string, error) {
	var query string
	switch s.dialect {
	case DialectSQLite:
		query = `SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name`
	case DialectMySQL:
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name`
	default:
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Close closes the connection pool.
func (s *SQLSource) Close() error {
	return s.db.Close()
}
