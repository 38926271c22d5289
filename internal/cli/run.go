package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/vegasq/aggcat/definition"
	"github.com/vegasq/aggcat/internal/config"
	"github.com/vegasq/aggcat/output"
	"github.com/vegasq/aggcat/pipeline"
	"github.com/vegasq/aggcat/queries"
	"golang.org/x/sync/errgroup"
)

func newRunCommand() *cobra.Command {
	var (
		all   bool
		watch bool
		limit int
	)

	cmd := &cobra.Command{
		Use:   "run [query.yaml | query-name ...]",
		Short: "Run query definitions and print their results",
		Long: `Run one or more query definitions. Arguments are definition files, globs
of definition files, or names of the shipped queries (see "aggcat queries").

Queries run concurrently, bounded by --concurrency, and their results are
printed in argument order.`,
		Example: `  aggcat run queries/qn3_cancellations_and_delays.yaml
  aggcat run -f table top_delayed_route
  aggcat run --all --data-dir ./testdata
  aggcat run --watch my_query.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be non-negative, got %d", limit)
			}
			if len(args) == 0 && !all {
				return fmt.Errorf("no queries given (pass definition files, query names or --all)")
			}

			ctx := cmd.Context()
			cfg := GetConfig(ctx)
			logger := GetLogger(ctx)

			defs, err := resolveDefinitions(args, all)
			if err != nil {
				return err
			}

			cat, err := cfg.Catalog(ctx, logger)
			if err != nil {
				return err
			}
			defer func() { _ = cat.Close() }()

			r := &runner{
				cfg:     cfg,
				catalog: cat,
				logger:  logger,
				out:     cmd.OutOrStdout(),
				limit:   limit,
			}
			if err := r.runAll(ctx, defs); err != nil {
				if !watch {
					return err
				}
				logger.Error("run failed", slog.String("error", err.Error()))
			}
			if watch {
				return r.watch(ctx, defs)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Run every shipped query")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-run a query when its definition file changes")
	cmd.Flags().IntVar(&limit, "limit", 0, "Limit number of output rows per query (0 = unlimited)")

	return cmd
}

// resolveDefinitions loads the definitions named by args. An argument that
// names an existing file, ends in .yaml/.yml or contains glob characters is
// read from disk; anything else is looked up among the shipped queries.
func resolveDefinitions(args []string, all bool) ([]*definition.Definition, error) {
	var defs []*definition.Definition
	if all {
		shipped, err := queries.All()
		if err != nil {
			return nil, err
		}
		defs = append(defs, shipped...)
	}
	for _, arg := range args {
		if isDefinitionPath(arg) {
			loaded, err := definition.LoadFiles(arg)
			if err != nil {
				return nil, err
			}
			defs = append(defs, loaded...)
			continue
		}
		def, err := queries.Get(arg)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func isDefinitionPath(arg string) bool {
	if strings.ContainsAny(arg, "*?[") || strings.HasSuffix(arg, ".yaml") || strings.HasSuffix(arg, ".yml") {
		return true
	}
	_, err := os.Stat(arg)
	return err == nil
}

// runner executes definitions against a catalog and writes their results.
type runner struct {
	cfg     *config.Config
	catalog pipeline.Catalog
	logger  *slog.Logger
	out     io.Writer
	limit   int
}

type queryResult struct {
	def   *definition.Definition
	table pipeline.Table
}

// runAll builds every pipeline first so configuration errors surface
// before any table is read, then runs the queries concurrently and writes
// the results in input order.
func (r *runner) runAll(ctx context.Context, defs []*definition.Definition) error {
	baseOpts, err := r.cfg.PipelineOptions()
	if err != nil {
		return err
	}

	cache := newTableCache(r.catalog)
	opts := append(baseOpts, pipeline.WithCatalog(cache))

	pipelines := make([]*pipeline.Pipeline, len(defs))
	for i, def := range defs {
		if def.Source == "" {
			return fmt.Errorf("%s: definition has no source table", def.Name)
		}
		p, err := def.Pipeline(opts...)
		if err != nil {
			return fmt.Errorf("%s: %w", def.Name, err)
		}
		pipelines[i] = p
	}

	results := make([]queryResult, len(defs))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Concurrency)
	for i, def := range defs {
		eg.Go(func() error {
			table, err := r.runOne(egctx, def, pipelines[i], cache)
			if err != nil {
				return fmt.Errorf("%s: %w", def.Name, err)
			}
			results[i] = queryResult{def: def, table: table}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	return r.write(results)
}

func (r *runner) runOne(ctx context.Context, def *definition.Definition, p *pipeline.Pipeline, catalog pipeline.Catalog) (pipeline.Table, error) {
	logger := r.logger.With(slog.String("run_id", uuid.NewString()), slog.String("query", def.Name))
	start := time.Now()

	input, err := catalog.FetchAll(ctx, def.Source)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded source", slog.String("table", def.Source), slog.Int("rows", len(input)))

	res, err := p.Execute(ctx, input)
	if err != nil {
		return nil, err
	}
	for _, st := range res.Stages {
		logger.Debug("stage finished",
			slog.Int("stage", st.Index),
			slog.String("kind", st.Kind),
			slog.Int("rows_in", st.RowsIn),
			slog.Int("rows_out", st.RowsOut),
			slog.Int("skipped", st.Skipped),
			slog.Int("nulls", st.Nulls),
			slog.Duration("duration", st.Duration),
		)
	}
	logger.Info("query finished", slog.Int("rows", len(res.Table)), slog.Duration("duration", time.Since(start)))

	table := res.Table
	if r.limit > 0 && len(table) > r.limit {
		table = table[:r.limit]
	}
	return table, nil
}

// write formats every result to r.out. Text formats get a heading per
// query when more than one query ran.
func (r *runner) write(results []queryResult) error {
	formatter, err := output.New(r.cfg.Format, r.out)
	if err != nil {
		return err
	}
	headings := len(results) > 1 && isTextFormat(r.cfg.Format)
	for i, res := range results {
		if headings {
			if i > 0 {
				fmt.Fprintln(r.out)
			}
			writeHeading(r.out, r.cfg.Format, res.def)
		}
		if err := formatter.Format(res.table); err != nil {
			return fmt.Errorf("%s: error formatting output: %w", res.def.Name, err)
		}
	}
	return nil
}

func isTextFormat(format string) bool {
	switch strings.ToLower(format) {
	case output.FormatTable, output.FormatPretty, output.FormatMarkdown, "md":
		return true
	}
	return false
}

func writeHeading(w io.Writer, format string, def *definition.Definition) {
	if strings.EqualFold(format, output.FormatMarkdown) || strings.EqualFold(format, "md") {
		fmt.Fprintf(w, "## %s\n\n", def.Name)
		return
	}
	fmt.Fprintf(w, "# %s\n", def.Name)
}
