package reader

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/vegasq/aggcat/pipeline"
)

// Source loads whole tables into memory.
type Source interface {
	// FetchAll returns every record of table.
	FetchAll(ctx context.Context, table string) (pipeline.Table, error)

	// Tables lists the table names the source can serve.
	Tables(ctx context.Context) ([]string, error)

	// Close releases connections and file handles.
	Close() error
}

// MemorySource serves tables held in memory.
type MemorySource struct {
	mu     sync.RWMutex
	tables map[string]pipeline.Table
}

// NewMemorySource returns a source over the given tables.
func NewMemorySource(tables map[string]pipeline.Table) *MemorySource {
	m := &MemorySource{tables: make(map[string]pipeline.Table, len(tables))}
	for name, t := range tables {
		m.tables[name] = t
	}
	return m
}

// Add registers or replaces a table.
func (m *MemorySource) Add(name string, t pipeline.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[name] = t
}

// FetchAll returns the named table.
func (m *MemorySource) FetchAll(_ context.Context, table string) (pipeline.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("table not found: %s", table)
	}
	return t, nil
}

// Tables lists the registered table names in sorted order.
func (m *MemorySource) Tables(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.tables)), nil
}

// Close is a no-op.
func (m *MemorySource) Close() error { return nil }

// Catalog routes table names to sources. Tables without an explicit route
// go to the default source. A Catalog satisfies pipeline.Catalog.
type Catalog struct {
	logger   *slog.Logger
	sources  map[string]Source
	routes   map[string]string
	fallback string
}

// NewCatalog returns an empty catalog. A nil logger discards output.
func NewCatalog(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{
		logger:  logger,
		sources: make(map[string]Source),
		routes:  make(map[string]string),
	}
}

// Register adds a named source serving tables. With no tables listed the
// source only serves lookups that fall through to it as the default.
func (c *Catalog) Register(name string, src Source, tables ...string) error {
	if _, exists := c.sources[name]; exists {
		return fmt.Errorf("source %q registered twice", name)
	}
	c.sources[name] = src
	for _, t := range tables {
		if prev, ok := c.routes[t]; ok {
			return fmt.Errorf("table %q is served by both %q and %q", t, prev, name)
		}
		c.routes[t] = name
	}
	return nil
}

// SetDefault selects the source used for unrouted tables.
func (c *Catalog) SetDefault(name string) error {
	if _, ok := c.sources[name]; !ok {
		return fmt.Errorf("unknown source %q", name)
	}
	c.fallback = name
	return nil
}

// Source returns the source that serves table.
func (c *Catalog) Source(table string) (Source, string, error) {
	name, ok := c.routes[table]
	if !ok {
		name = c.fallback
	}
	if name == "" {
		if len(c.sources) != 1 {
			return nil, "", fmt.Errorf("no source serves table %q", table)
		}
		for n := range c.sources {
			name = n
		}
	}
	return c.sources[name], name, nil
}

// FetchAll loads table from the source that serves it.
func (c *Catalog) FetchAll(ctx context.Context, table string) (pipeline.Table, error) {
	src, name, err := c.Source(table)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("fetching table", slog.String("table", table), slog.String("source", name))
	t, err := src.FetchAll(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	c.logger.Debug("fetched table", slog.String("table", table), slog.Int("rows", len(t)))
	return t, nil
}

// Tables lists every table of every source, qualified by source name.
func (c *Catalog) Tables(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string, len(c.sources))
	for name, src := range c.sources {
		tables, err := src.Tables(ctx)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", name, err)
		}
		out[name] = tables
	}
	return out, nil
}

// Close closes every source and returns the first error.
func (c *Catalog) Close() error {
	var first error
	for _, name := range slices.Sorted(maps.Keys(c.sources)) {
		if err := c.sources[name].Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", name, err)
		}
	}
	return first
}

var _ pipeline.Catalog = (*Catalog)(nil)
