package cli

import (
	"context"
	"sync"

	"github.com/vegasq/aggcat/pipeline"
	"golang.org/x/sync/singleflight"
)

// tableCache shares fetched tables between the queries of one invocation.
// Concurrent fetches of the same table are collapsed into one. Pipelines
// never modify their input, so cached tables are handed out as is.
type tableCache struct {
	catalog pipeline.Catalog
	group   singleflight.Group

	mu     sync.Mutex
	tables map[string]pipeline.Table
}

func newTableCache(catalog pipeline.Catalog) *tableCache {
	return &tableCache{catalog: catalog, tables: make(map[string]pipeline.Table)}
}

// FetchAll implements pipeline.Catalog.
func (c *tableCache) FetchAll(ctx context.Context, table string) (pipeline.Table, error) {
	c.mu.Lock()
	t, ok := c.tables[table]
	c.mu.Unlock()
	if ok {
		return t, nil
	}

	v, err, _ := c.group.Do(table, func() (any, error) {
		t, err := c.catalog.FetchAll(ctx, table)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.tables[table] = t
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(pipeline.Table), nil
}

var _ pipeline.Catalog = (*tableCache)(nil)
