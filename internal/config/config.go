// Package config loads aggcat settings and turns them into the objects the
// commands need: a logger, pipeline options and a table catalog.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"github.com/vegasq/aggcat/definition"
	"github.com/vegasq/aggcat/output"
	"github.com/vegasq/aggcat/pipeline"
	"github.com/vegasq/aggcat/reader"
)

// Defaults.
const (
	DefaultFormat      = output.FormatJSONL
	DefaultConcurrency = 4
	DefaultDataDir     = "."
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"

	// DefaultSourceName names the source built from data_dir when no
	// sources are configured.
	DefaultSourceName = "data"

	// EnvPrefix prefixes environment overrides. A double underscore
	// separates nested keys: AGGCAT_LOG__LEVEL sets log.level.
	EnvPrefix = "AGGCAT_"
)

// configFiles are tried in order when no file is named explicitly.
var configFiles = []string{"aggcat.yaml", "aggcat.yml"}

// Source types.
const (
	SourceParquet = "parquet"
	SourceCSV     = "csv"
	SourceSQL     = "sql"
	SourceMongo   = "mongo"
)

// Config holds every setting.
type Config struct {
	Format        string                  `koanf:"format"`
	Concurrency   int                     `koanf:"concurrency"`
	DataDir       string                  `koanf:"data_dir"`
	DefaultSource string                  `koanf:"default_source"`
	Log           LogConfig               `koanf:"log"`
	Policies      PolicyConfig            `koanf:"policies"`
	Sources       map[string]SourceConfig `koanf:"sources"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// PolicyConfig holds the default error policies. Query definitions may
// override them.
type PolicyConfig struct {
	ParseErrors       string `koanf:"parse_errors"`
	ComputationErrors string `koanf:"computation_errors"`
}

// SourceConfig describes one table source.
type SourceConfig struct {
	Type     string   `koanf:"type"`
	Path     string   `koanf:"path"`
	Driver   string   `koanf:"driver"`
	DSN      string   `koanf:"dsn"`
	URI      string   `koanf:"uri"`
	Database string   `koanf:"database"`
	Tables   []string `koanf:"tables"`
	Comma    string   `koanf:"comma"`
}

// flagKeys maps flag names to config keys where they differ from the
// kebab-to-snake rename.
var flagKeys = map[string]string{
	"source":             "default_source",
	"log-level":          "log.level",
	"log-format":         "log.format",
	"parse-errors":       "policies.parse_errors",
	"computation-errors": "policies.computation_errors",
}

// Load reads configuration with precedence flags > env > file > defaults.
// An empty cfgFile looks for aggcat.yaml in the working directory. Only
// flags that were set on the command line override other layers.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"format":      DefaultFormat,
		"concurrency": DefaultConcurrency,
		"data_dir":    DefaultDataDir,
		"log.level":   DefaultLogLevel,
		"log.format":  DefaultLogFormat,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := findConfigFile(cfgFile)
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns AGGCAT_LOG__LEVEL into log.level.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range configFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Validate checks every setting that can be checked without opening a
// source.
func (c *Config) Validate() error {
	if _, err := output.New(c.Format, io.Discard); err != nil {
		return err
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.Log.Format)
	}
	if _, err := c.PipelineOptions(); err != nil {
		return err
	}
	for name, src := range c.Sources {
		if err := src.Validate(); err != nil {
			return fmt.Errorf("source %s: %w", name, err)
		}
	}
	if c.DefaultSource != "" && len(c.Sources) > 0 {
		if _, ok := c.Sources[c.DefaultSource]; !ok {
			return fmt.Errorf("default source %q is not configured", c.DefaultSource)
		}
	}
	return nil
}

// Validate checks that the fields the source type needs are present.
func (s SourceConfig) Validate() error {
	switch strings.ToLower(s.Type) {
	case SourceParquet, SourceCSV:
		if s.Path == "" {
			return fmt.Errorf("%s source needs a path", s.Type)
		}
		if len([]rune(s.Comma)) > 1 {
			return fmt.Errorf("comma must be a single character")
		}
	case SourceSQL:
		if s.Driver == "" || s.DSN == "" {
			return fmt.Errorf("sql source needs a driver and a dsn")
		}
	case SourceMongo:
		if s.URI == "" || s.Database == "" {
			return fmt.Errorf("mongo source needs a uri and a database")
		}
	case "":
		return fmt.Errorf("source type is required")
	default:
		return fmt.Errorf("unknown source type %q", s.Type)
	}
	return nil
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// Logger builds the configured logger writing to w.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// PipelineOptions returns the configured default error policies.
func (c *Config) PipelineOptions() ([]pipeline.Option, error) {
	return definition.Policies{
		ParseErrors:       c.Policies.ParseErrors,
		ComputationErrors: c.Policies.ComputationErrors,
	}.Options()
}

// Catalog opens every configured source. Without configured sources a
// parquet source over DataDir is used. The caller closes the catalog.
func (c *Config) Catalog(ctx context.Context, logger *slog.Logger) (*reader.Catalog, error) {
	sources := c.Sources
	defaultSource := c.DefaultSource
	if len(sources) == 0 {
		sources = map[string]SourceConfig{DefaultSourceName: {Type: SourceParquet, Path: c.DataDir}}
		defaultSource = DefaultSourceName
	}

	cat := reader.NewCatalog(logger)
	for _, name := range slices.Sorted(maps.Keys(sources)) {
		sc := sources[name]
		src, err := sc.Open(ctx, logger.With(slog.String("source", name)))
		if err != nil {
			_ = cat.Close()
			return nil, fmt.Errorf("source %s: %w", name, err)
		}
		if err := cat.Register(name, src, sc.Tables...); err != nil {
			_ = src.Close()
			_ = cat.Close()
			return nil, err
		}
	}
	if defaultSource != "" {
		if err := cat.SetDefault(defaultSource); err != nil {
			_ = cat.Close()
			return nil, err
		}
	}
	return cat, nil
}

// Open connects the source.
func (s SourceConfig) Open(ctx context.Context, logger *slog.Logger) (reader.Source, error) {
	switch strings.ToLower(s.Type) {
	case SourceParquet:
		return reader.NewParquetSource(s.Path, logger), nil
	case SourceCSV:
		src := reader.NewCSVSource(s.Path, logger)
		if s.Comma != "" {
			src.Comma = []rune(s.Comma)[0]
		}
		return src, nil
	case SourceSQL:
		return reader.OpenSQL(ctx, s.Driver, s.DSN, logger)
	case SourceMongo:
		return reader.OpenMongo(ctx, s.URI, s.Database, logger)
	}
	return nil, fmt.Errorf("unknown source type %q", s.Type)
}
