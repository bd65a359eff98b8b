// Package search answers natural-language queries over the stored
// embeddings by cosine similarity.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/labsearch/internal/content"
	"github.com/Aman-CERP/labsearch/internal/embed"
	apperrors "github.com/Aman-CERP/labsearch/internal/errors"
	"github.com/Aman-CERP/labsearch/internal/store"
	"github.com/Aman-CERP/labsearch/internal/telemetry"
)

// UnknownProject is the title used when a project id has no match.
const UnknownProject = "Unknown Project"

// Options scopes and bounds one search.
type Options struct {
	// ContentTypes restricts results to these types. Empty means all.
	ContentTypes []content.ContentType

	// ProjectID restricts results to one project.
	ProjectID string

	// Limit caps the results. <= 0 uses the configured default.
	Limit int

	// Threshold is the minimum score in [-1, 1]. Nil uses the configured default.
	Threshold *float64
}

// Scoped reports whether a filter is set.
func (o Options) Scoped() bool {
	return len(o.ContentTypes) > 0 || o.ProjectID != ""
}

// Result is one search hit.
type Result struct {
	ID           string              `json:"id"`
	ContentType  content.ContentType `json:"content_type"`
	ContentID    string              `json:"content_id"`
	ProjectID    string              `json:"project_id,omitempty"`
	ProjectTitle string              `json:"project_title"`
	Title        string              `json:"title"`
	Score        float64             `json:"score"`
}

// Config holds the service defaults.
type Config struct {
	DefaultLimit     int
	DefaultThreshold float64

	// ANNMinRecords enables the graph shortlist for unscoped searches at
	// this store size. <= 0 disables it.
	ANNMinRecords int

	ANN store.ANNConfig

	// QueryCacheSize bounds the per-provider query embedding cache.
	QueryCacheSize int
}

// DefaultConfig returns the service defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:     DefaultLimit,
		DefaultThreshold: DefaultThreshold,
		ANNMinRecords:    DefaultANNMinRecords,
		ANN:              store.DefaultANNConfig(),
		QueryCacheSize:   embed.DefaultQueryCacheSize,
	}
}

// Dependencies holds the service's collaborators.
type Dependencies struct {
	// Store is read for candidates (required).
	Store store.Store

	// Registry resolves the query provider (required).
	Registry *embed.Registry

	// KeyResolver returns the API key for a provider. Nil means no keys.
	KeyResolver func(embed.ProviderID) string

	// Source supplies project titles. Nil leaves every title unknown.
	Source content.Source

	// Metrics records query statistics. Nil disables them.
	Metrics *telemetry.QueryMetrics
}

// Service runs searches. It is safe for concurrent use.
type Service struct {
	store    store.Store
	registry *embed.Registry
	keys     func(embed.ProviderID) string
	source   content.Source
	metrics  *telemetry.QueryMetrics
	cfg      Config
	ann      *annCache

	mu        sync.Mutex
	embedders map[embed.ProviderID]*embed.CachedQueryEmbedder
}

// NewService creates a search service.
func NewService(deps Dependencies, cfg Config) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.ANN.M <= 0 {
		cfg.ANN = store.DefaultANNConfig()
	}

	keys := deps.KeyResolver
	if keys == nil {
		keys = func(embed.ProviderID) string { return "" }
	}

	return &Service{
		store:     deps.Store,
		registry:  deps.Registry,
		keys:      keys,
		source:    deps.Source,
		metrics:   deps.Metrics,
		cfg:       cfg,
		ann:       newANNCache(cfg.ANN),
		embedders: make(map[embed.ProviderID]*embed.CachedQueryEmbedder),
	}, nil
}

// Search embeds query with the provider the store was indexed with and
// returns the closest records. A blank query or an empty store returns an
// empty slice without calling the provider.
func (s *Service) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}

	limit, threshold, err := s.resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	meta, err := s.store.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	if meta.TotalCount == 0 {
		s.record(query, opts, 0, start)
		return []Result{}, nil
	}

	provider, key, err := s.queryProvider(ctx)
	if err != nil {
		return nil, err
	}

	qvec, err := s.embedder(provider).Embed(ctx, key, query)
	if err != nil {
		return nil, err
	}

	useANN := !opts.Scoped() && s.cfg.ANNMinRecords > 0 && meta.TotalCount >= s.cfg.ANNMinRecords
	var candidates []store.Record
	if useANN {
		candidates, err = s.ann.shortlist(ctx, s.store, qvec, limit)
		if err != nil {
			slog.Warn("ann_shortlist_failed", slog.String("error", err.Error()))
			useANN = false
		}
	}
	if !useANN {
		candidates, err = s.loadCandidates(ctx, opts)
		if err != nil {
			return nil, err
		}
	}

	hits, stats := Rank(qvec, candidates, RankOptions{Limit: limit, Threshold: threshold})
	if stats.DimensionMismatches > 0 {
		slog.Warn("search_dimension_mismatch",
			slog.String("provider", string(provider.ID())),
			slog.Int("query_dims", len(qvec)),
			slog.Int("skipped", stats.DimensionMismatches))
	}

	results := s.toResults(ctx, hits)
	s.record(query, opts, len(results), start)

	slog.Debug("search_complete",
		slog.String("provider", string(provider.ID())),
		slog.Int("candidates", stats.Candidates),
		slog.Int("results", len(results)),
		slog.Bool("ann", useANN),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

func (s *Service) record(query string, opts Options, results int, start time.Time) {
	s.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		Scope:       telemetry.ScopeOf(len(opts.ContentTypes) > 0, opts.ProjectID != ""),
		ResultCount: results,
		Latency:     time.Since(start),
		Timestamp:   start,
	})
}

// resolveOptions applies defaults and validates the bounds.
func (s *Service) resolveOptions(opts Options) (int, float64, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	threshold := s.cfg.DefaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	if threshold < -1 || threshold > 1 {
		return 0, 0, apperrors.ValidationError(
			fmt.Sprintf("threshold %.2f is outside [-1, 1]", threshold), nil)
	}

	for _, ct := range opts.ContentTypes {
		if !ct.Valid() {
			return 0, 0, apperrors.ValidationError(fmt.Sprintf("unknown content type %q", ct), nil)
		}
	}
	return limit, threshold, nil
}

// queryProvider returns the provider recorded in the store state, falling
// back to the registry default, together with its API key.
func (s *Service) queryProvider(ctx context.Context) (embed.Provider, string, error) {
	id := s.registry.DefaultID()
	recorded, err := s.store.GetState(ctx, store.StateKeyProvider)
	if err != nil {
		return nil, "", err
	}
	if recorded != "" {
		id = embed.ProviderID(recorded)
	}

	p, err := s.registry.Get(id)
	if err != nil {
		return nil, "", err
	}
	if !p.SupportsEmbeddings() {
		return nil, "", embed.UnsupportedError(id)
	}
	key := s.keys(id)
	if embed.NeedsAPIKey(id) && key == "" {
		return nil, "", embed.MissingKeyError(id)
	}
	return p, key, nil
}

// embedder returns the cached query embedder for p.
func (s *Service) embedder(p embed.Provider) *embed.CachedQueryEmbedder {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.embedders[p.ID()]
	if !ok {
		c = embed.NewCachedQueryEmbedder(p, s.cfg.QueryCacheSize)
		s.embedders[p.ID()] = c
	}
	return c
}

// loadCandidates reads the records matching the filters. Per-type reads
// run concurrently. With both filters the intersection is returned.
func (s *Service) loadCandidates(ctx context.Context, opts Options) ([]store.Record, error) {
	if !opts.Scoped() {
		return s.store.GetAll(ctx)
	}
	if len(opts.ContentTypes) == 0 {
		return s.store.GetByProject(ctx, opts.ProjectID)
	}

	types := uniqueTypes(opts.ContentTypes)
	perType := make([][]store.Record, len(types))

	g, gctx := errgroup.WithContext(ctx)
	for i, ct := range types {
		g.Go(func() error {
			records, err := s.store.GetByType(gctx, ct)
			if err != nil {
				return err
			}
			perType[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []store.Record
	for _, records := range perType {
		for _, r := range records {
			if opts.ProjectID == "" || r.ProjectID == opts.ProjectID {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// toResults converts hits and fills in project titles.
func (s *Service) toResults(ctx context.Context, hits []Hit) []Result {
	titles := s.projectTitles(ctx)

	results := make([]Result, len(hits))
	for i, h := range hits {
		title, ok := titles[h.Record.ProjectID]
		if !ok || title == "" {
			title = UnknownProject
		}
		results[i] = Result{
			ID:           h.Record.ID,
			ContentType:  h.Record.ContentType,
			ContentID:    h.Record.ContentID,
			ProjectID:    h.Record.ProjectID,
			ProjectTitle: title,
			Title:        h.Record.Title,
			Score:        h.Score,
		}
	}
	return results
}

func (s *Service) projectTitles(ctx context.Context) map[string]string {
	if s.source == nil {
		return nil
	}
	ws, err := s.source.Load(ctx)
	if err != nil {
		slog.Warn("project_titles_unavailable", slog.String("error", err.Error()))
		return nil
	}
	return ws.ProjectTitles()
}

// InvalidateCache drops the cached graph. The graph also rebuilds on its
// own after store writes.
func (s *Service) InvalidateCache() {
	s.ann.invalidate()
}

func uniqueTypes(types []content.ContentType) []content.ContentType {
	seen := make(map[content.ContentType]bool, len(types))
	out := make([]content.ContentType, 0, len(types))
	for _, t := range types {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
