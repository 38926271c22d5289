package cli

import (
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vegasq/aggcat/output"
	"github.com/vegasq/aggcat/pipeline"
	"github.com/vegasq/aggcat/reader"
)

func newTablesCommand() *cobra.Command {
	var schema string

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of every configured source",
		Long: `List the tables every configured source serves. With --schema, describe
the columns of one table instead. A Parquet file or glob passed to --schema
is described from its file schema (first match for globs); any other name
is loaded through the configured sources and its columns are inferred.`,
		Example: `  aggcat tables
  aggcat tables --schema flight_delay
  aggcat tables --schema 'data/*.parquet' -f table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := GetConfig(ctx)
			logger := GetLogger(ctx)

			formatter, err := output.New(cfg.Format, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			if isParquetPath(schema) {
				cols, err := parquetSchema(schema, logger)
				if err != nil {
					return err
				}
				return formatter.Format(columnTable(cols))
			}

			cat, err := cfg.Catalog(ctx, logger)
			if err != nil {
				return err
			}
			defer func() { _ = cat.Close() }()

			if schema != "" {
				rows, err := cat.FetchAll(ctx, schema)
				if err != nil {
					return err
				}
				return formatter.Format(columnTable(reader.InferColumns(rows)))
			}

			tables, err := cat.Tables(ctx)
			if err != nil {
				return err
			}
			out := pipeline.Table{}
			for _, src := range slices.Sorted(maps.Keys(tables)) {
				for _, t := range tables[src] {
					out = append(out, pipeline.RecordOf("source", src, "table", t))
				}
			}
			return formatter.Format(out)
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "", "Describe the columns of this table, Parquet file or glob")
	return cmd
}

func isParquetPath(s string) bool {
	return strings.HasSuffix(s, ".parquet") || strings.ContainsAny(s, "*?[")
}

// parquetSchema reads the schema of a file, or of the first file a glob
// matches.
func parquetSchema(pattern string, logger *slog.Logger) ([]reader.Column, error) {
	path := pattern
	if strings.ContainsAny(pattern, "*?[") {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern: %w", err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match pattern: %s", pattern)
		}
		path = matches[0]
		if len(matches) > 1 {
			logger.Info("showing schema of first match", slog.String("path", path), slog.Int("matched", len(matches)))
		}
	}
	return reader.ParquetColumns(path)
}

func columnTable(cols []reader.Column) pipeline.Table {
	out := make(pipeline.Table, 0, len(cols))
	for _, c := range cols {
		out = append(out, pipeline.RecordOf(
			"name", c.Name,
			"type", c.Type,
			"physical_type", c.PhysicalType,
			"logical_type", c.LogicalType,
			"nullable", c.Nullable,
			"repeated", c.Repeated,
		))
	}
	return out
}
