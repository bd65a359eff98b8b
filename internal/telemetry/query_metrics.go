// Package telemetry records local query statistics. Nothing leaves the
// machine: events are aggregated in memory and flushed to the index
// database.
package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Scope classifies how a query was filtered.
type Scope string

const (
	ScopeAll     Scope = "all"
	ScopeType    Scope = "type"
	ScopeProject Scope = "project"
	ScopeBoth    Scope = "type_project"
)

// ScopeOf returns the scope for a query with the given filters.
func ScopeOf(hasTypes, hasProject bool) Scope {
	switch {
	case hasTypes && hasProject:
		return ScopeBoth
	case hasTypes:
		return ScopeType
	case hasProject:
		return ScopeProject
	default:
		return ScopeAll
	}
}

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP50   LatencyBucket = "p50"   // <50ms
	BucketP200  LatencyBucket = "p200"  // 50-200ms
	BucketP1000 LatencyBucket = "p1000" // 200ms-1s
	BucketSlow  LatencyBucket = "slow"  // >=1s
)

// Buckets lists the latency buckets in ascending order.
var Buckets = []LatencyBucket{BucketP50, BucketP200, BucketP1000, BucketSlow}

// LatencyToBucket converts a duration to its histogram bucket. Query
// latency is dominated by the provider round trip, so the buckets are
// wider than a local index would need.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 50:
		return BucketP50
	case ms < 200:
		return BucketP200
	case ms < 1000:
		return BucketP1000
	default:
		return BucketSlow
	}
}

// QueryEvent is one completed search.
type QueryEvent struct {
	Query       string
	Scope       Scope
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult reports whether the search found nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer. A non-positive capacity means 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		n := copy(result, b.items[b.head:])
		copy(result[n:], b.items[:b.head])
	}
	return result
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// stopWords are skipped when counting terms.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"that": true, "this": true, "are": true, "was": true, "were": true,
	"into": true, "about": true, "what": true, "which": true, "how": true,
}

// ExtractTerms splits a query into lowercase terms of at least three
// characters, dropping punctuation and common stop words.
func ExtractTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	var terms []string
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len([]rune(f)) < 3 || stopWords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// TermCount is a term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// sortTerms orders by count descending, then term.
func sortTerms(terms []TermCount) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
}

// Snapshot is a point-in-time view of the collected statistics.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ScopeCounts         map[Scope]int64         `json:"scope_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of queries with no results.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Store persists aggregated statistics.
type Store interface {
	SaveScopeCounts(date string, counts map[Scope]int64) error
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	UpsertTermCounts(terms map[string]int64) error
	AddZeroResultQuery(query string, ts time.Time) error
}

// Config configures a QueryMetrics collector.
type Config struct {
	// TopTermsCapacity bounds the terms tracked in memory.
	TopTermsCapacity int

	// ZeroResultsCapacity bounds the zero-result queries kept in memory.
	ZeroResultsCapacity int

	// FlushInterval flushes to the store periodically. 0 flushes only on
	// Flush and Close.
	FlushInterval time.Duration
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:    200,
		ZeroResultsCapacity: 100,
		FlushInterval:       time.Minute,
	}
}

// pending holds the deltas recorded since the last flush.
type pending struct {
	scopes    map[Scope]int64
	latencies map[LatencyBucket]int64
	terms     map[string]int64
	zero      []QueryEvent
}

func newPending() pending {
	return pending{
		scopes:    make(map[Scope]int64),
		latencies: make(map[LatencyBucket]int64),
		terms:     make(map[string]int64),
	}
}

func (p pending) empty() bool {
	return len(p.scopes) == 0 && len(p.terms) == 0 && len(p.zero) == 0
}

// QueryMetrics aggregates query events. A nil *QueryMetrics ignores
// every call. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	totalQueries    int64
	zeroResultCount int64
	scopes          map[Scope]int64
	latencies       map[LatencyBucket]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	startTime       time.Time
	pending         pending

	store  Store
	cfg    Config
	ticker *time.Ticker
	stopCh chan struct{}
	closed bool
}

// NewQueryMetrics creates a collector. A nil store keeps statistics in
// memory only.
func NewQueryMetrics(store Store, cfg Config) *QueryMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = DefaultConfig().TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = DefaultConfig().ZeroResultsCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	m := &QueryMetrics{
		scopes:      make(map[Scope]int64),
		latencies:   make(map[LatencyBucket]int64),
		topTerms:    topTerms,
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		startTime:   time.Now(),
		pending:     newPending(),
		store:       store,
		cfg:         cfg,
		stopCh:      make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.ticker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}
	return m
}

func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.ticker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// Record adds one query event.
func (m *QueryMetrics) Record(event QueryEvent) {
	if m == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Scope == "" {
		event.Scope = ScopeAll
	}
	bucket := LatencyToBucket(event.Latency)
	terms := ExtractTerms(event.Query)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.totalQueries++
	m.scopes[event.Scope]++
	m.latencies[bucket]++
	m.pending.scopes[event.Scope]++
	m.pending.latencies[bucket]++

	for _, term := range terms {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		m.pending.terms[term]++
	}

	if event.IsZeroResult() {
		m.zeroResultCount++
		m.zeroResults.Add(event.Query)
		m.pending.zero = append(m.pending.zero, event)
	}
}

// Snapshot returns the statistics collected since the collector started.
func (m *QueryMetrics) Snapshot() *Snapshot {
	if m == nil {
		return &Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &Snapshot{
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		ScopeCounts:         make(map[Scope]int64, len(m.scopes)),
		LatencyDistribution: make(map[LatencyBucket]int64, len(m.latencies)),
		ZeroResultQueries:   m.zeroResults.Items(),
		Since:               m.startTime,
	}
	for k, v := range m.scopes {
		snap.ScopeCounts[k] = v
	}
	for k, v := range m.latencies {
		snap.LatencyDistribution[k] = v
	}
	for _, term := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(term); ok {
			snap.TopTerms = append(snap.TopTerms, TermCount{Term: term, Count: count})
		}
	}
	sortTerms(snap.TopTerms)
	return snap
}

// Flush writes the events recorded since the last flush to the store.
// On failure the deltas are kept for the next attempt.
func (m *QueryMetrics) Flush() error {
	if m == nil || m.store == nil {
		return nil
	}

	m.mu.Lock()
	batch := m.pending
	m.pending = newPending()
	m.mu.Unlock()

	if batch.empty() {
		return nil
	}
	if err := m.write(batch); err != nil {
		m.mu.Lock()
		m.pending.merge(batch)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *QueryMetrics) write(batch pending) error {
	today := time.Now().Format(DateLayout)
	if err := m.store.SaveScopeCounts(today, batch.scopes); err != nil {
		return err
	}
	if err := m.store.SaveLatencyCounts(today, batch.latencies); err != nil {
		return err
	}
	if err := m.store.UpsertTermCounts(batch.terms); err != nil {
		return err
	}
	for _, e := range batch.zero {
		if err := m.store.AddZeroResultQuery(e.Query, e.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// merge adds other's deltas into p. Zero-result queries from other are
// older and go first.
func (p *pending) merge(other pending) {
	for k, v := range other.scopes {
		p.scopes[k] += v
	}
	for k, v := range other.latencies {
		p.latencies[k] += v
	}
	for k, v := range other.terms {
		p.terms[k] += v
	}
	p.zero = append(other.zero, p.zero...)
}

// Close stops the flush loop and writes what remains.
func (m *QueryMetrics) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
		close(m.stopCh)
	}
	return m.Flush()
}
