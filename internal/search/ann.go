package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/labsearch/internal/store"
)

// ANN shortlist sizing.
const (
	// DefaultANNMinRecords is the store size at which unscoped searches
	// shortlist through the graph.
	DefaultANNMinRecords = 5000

	// minShortlist is the smallest shortlist taken from the graph.
	minShortlist = 200
)

// shortlistSize returns how many graph neighbours to fetch for limit.
func shortlistSize(limit int) int {
	return max(limit*10, minShortlist)
}

// annCache holds the graph for the current store generation and
// rebuilds it lazily after writes.
type annCache struct {
	cfg store.ANNConfig

	mu    sync.Mutex
	index *store.ANNIndex
}

func newANNCache(cfg store.ANNConfig) *annCache {
	return &annCache{cfg: cfg}
}

// get returns a graph over st for dims, rebuilding it when the store has
// changed since the last build.
func (c *annCache) get(ctx context.Context, st store.Store, dims int) (*store.ANNIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := st.Generation()
	if c.index != nil && c.index.Generation() == gen && c.index.Dimensions() == dims {
		return c.index, nil
	}

	start := time.Now()
	records, err := st.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := store.BuildANNIndex(ctx, records, dims, gen, c.cfg)
	if err != nil {
		return nil, err
	}

	slog.Debug("ann_index_built",
		slog.Int("records", idx.Len()),
		slog.Int("skipped", idx.Skipped()),
		slog.Uint64("generation", gen),
		slog.Duration("duration", time.Since(start)))

	c.index = idx
	return idx, nil
}

// shortlist returns the records nearest to query by graph search. Exact
// ranking runs on the result.
func (c *annCache) shortlist(ctx context.Context, st store.Store, query []float32, limit int) ([]store.Record, error) {
	idx, err := c.get(ctx, st, len(query))
	if err != nil {
		return nil, err
	}

	neighbours, err := idx.Search(query, shortlistSize(limit))
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(neighbours))
	for i, n := range neighbours {
		ids[i] = n.ID
	}
	return st.GetByIDs(ctx, ids)
}

// invalidate drops the cached graph.
func (c *annCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = nil
}
