//go:build cgo

package reader

import (
	_ "github.com/marcboeker/go-duckdb" // DuckDB driver (requires cgo)
)
