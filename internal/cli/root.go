// Package cli provides the command-line interface for aggcat.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vegasq/aggcat/internal/config"
	"github.com/vegasq/aggcat/output"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

type configKey struct{}

type loggerKey struct{}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "aggcat",
		Short: "aggcat - declarative grouping and aggregation over tables",
		Long: `aggcat loads whole tables from Parquet, CSV, SQL or MongoDB sources and
runs YAML query definitions over them: filter, derive, classify, group,
aggregate, reshape and compare, then prints the result.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger, err := cfg.Logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.File != "" {
				logger.Debug("using config file", slog.String("path", cfg.File))
			}

			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			ctx = context.WithValue(ctx, loggerKey{}, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./aggcat.yaml)")
	flags.StringP("format", "f", "", "Output format: "+strings.Join(output.Formats, ", "))
	flags.String("source", "", "Default source for tables without a route")
	flags.String("data-dir", "", "Directory of Parquet files when no sources are configured")
	flags.Int("concurrency", 0, "Maximum number of queries run at once")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
	flags.String("log-format", "", "Log format (text|json)")
	flags.String("parse-errors", "", "Parse error policy (fail|skip)")
	flags.String("computation-errors", "", "Computation error policy (abort|null)")

	_ = rootCmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Formats, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newTablesCommand())
	rootCmd.AddCommand(newQueriesCommand())

	return rootCmd
}

// Execute runs the root command. Cancelling ctx stops running queries and
// ends watch mode.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	return &config.Config{
		Format:      config.DefaultFormat,
		Concurrency: config.DefaultConcurrency,
		DataDir:     config.DefaultDataDir,
		Log:         config.LogConfig{Level: config.DefaultLogLevel, Format: config.DefaultLogFormat},
	}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
