// Package reader loads whole tables into memory for the aggregation
// pipeline.
//
// Every backend implements Source:
//
//   - ParquetSource reads <dir>/<table>.parquet, or a glob of files whose
//     rows are tagged with a "_file" field.
//   - CSVSource reads <dir>/<table>.csv with a header row and optional
//     type inference.
//   - SQLSource runs SELECT * against SQLite, DuckDB, PostgreSQL or MySQL.
//   - MongoSource reads every document of a collection.
//   - MemorySource serves tables built in code, mostly for tests.
//
// A Catalog routes table names to named sources and is what the pipeline
// uses to resolve Union, Join and Compare sources:
//
//	cat := reader.NewCatalog(logger)
//	if err := cat.Register("files", reader.NewParquetSource("data", logger)); err != nil {
//	    return err
//	}
//	defer cat.Close()
//
//	rows, err := cat.FetchAll(ctx, "flight_delay")
//
// Records keep the column order of their source so formatted output
// matches the input layout.
package reader
