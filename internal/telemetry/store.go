package telemetry

import (
	"database/sql"
	"fmt"
	"time"
)

// DateLayout is the day key of the daily aggregates.
const DateLayout = "2006-01-02"

// maxZeroResultQueries bounds the persisted zero-result history.
const maxZeroResultQueries = 100

const schema = `
CREATE TABLE IF NOT EXISTS query_scope_stats (
	date TEXT NOT NULL,
	scope TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, scope)
);

CREATE TABLE IF NOT EXISTS query_latency_stats (
	date TEXT NOT NULL,
	bucket TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, bucket)
);

CREATE TABLE IF NOT EXISTS query_terms (
	term TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 0,
	last_seen TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

CREATE TABLE IF NOT EXISTS zero_result_queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	timestamp TEXT NOT NULL
);
`

// SQLiteStore implements Store on tables in the index database. It
// shares the caller's *sql.DB and never closes it.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the telemetry tables if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SaveScopeCounts adds to the day's per-scope counts.
func (s *SQLiteStore) SaveScopeCounts(date string, counts map[Scope]int64) error {
	return s.upsertDaily(`
		INSERT INTO query_scope_stats (date, scope, count) VALUES (?, ?, ?)
		ON CONFLICT(date, scope) DO UPDATE SET count = count + excluded.count`,
		date, scopeKeys(counts))
}

// SaveLatencyCounts adds to the day's latency histogram.
func (s *SQLiteStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	return s.upsertDaily(`
		INSERT INTO query_latency_stats (date, bucket, count) VALUES (?, ?, ?)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count`,
		date, bucketKeys(counts))
}

func (s *SQLiteStore) upsertDaily(query, date string, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, n := range counts {
		if _, err := stmt.Exec(date, key, n); err != nil {
			return fmt.Errorf("upsert daily count: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// UpsertTermCounts adds to the lifetime term counts.
func (s *SQLiteStore) UpsertTermCounts(terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_terms (term, count, last_seen) VALUES (?, ?, ?)
		ON CONFLICT(term) DO UPDATE SET
			count = count + excluded.count,
			last_seen = excluded.last_seen`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for term, n := range terms {
		if _, err := stmt.Exec(term, n, now); err != nil {
			return fmt.Errorf("upsert term count: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AddZeroResultQuery appends to the zero-result history, keeping the
// newest entries only.
func (s *SQLiteStore) AddZeroResultQuery(query string, ts time.Time) error {
	if _, err := s.db.Exec(`INSERT INTO zero_result_queries (query, timestamp) VALUES (?, ?)`,
		query, ts.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("insert zero-result query: %w", err)
	}
	if _, err := s.db.Exec(`
		DELETE FROM zero_result_queries
		WHERE id NOT IN (SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?)`,
		maxZeroResultQueries); err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return nil
}

// ScopeCounts sums per-scope counts for dates in [from, to].
func (s *SQLiteStore) ScopeCounts(from, to string) (map[Scope]int64, error) {
	counts, err := s.sumDaily(`
		SELECT scope, SUM(count) FROM query_scope_stats
		WHERE date >= ? AND date <= ? GROUP BY scope`, from, to)
	if err != nil {
		return nil, err
	}
	out := make(map[Scope]int64, len(counts))
	for k, v := range counts {
		out[Scope(k)] = v
	}
	return out, nil
}

// LatencyCounts sums the latency histogram for dates in [from, to].
func (s *SQLiteStore) LatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	counts, err := s.sumDaily(`
		SELECT bucket, SUM(count) FROM query_latency_stats
		WHERE date >= ? AND date <= ? GROUP BY bucket`, from, to)
	if err != nil {
		return nil, err
	}
	out := make(map[LatencyBucket]int64, len(counts))
	for k, v := range counts {
		out[LatencyBucket(k)] = v
	}
	return out, nil
}

func (s *SQLiteStore) sumDaily(query, from, to string) (map[string]int64, error) {
	rows, err := s.db.Query(query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// TopTerms returns the most frequent terms.
func (s *SQLiteStore) TopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`SELECT term, count FROM query_terms ORDER BY count DESC, term LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// ZeroResultQueries returns recent zero-result queries, newest first.
func (s *SQLiteStore) ZeroResultQueries(limit int) ([]string, error) {
	rows, err := s.db.Query(`SELECT query FROM zero_result_queries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// Report is the persisted statistics for a date range.
type Report struct {
	From                string                  `json:"from"`
	To                  string                  `json:"to"`
	TotalQueries        int64                   `json:"total_queries"`
	ScopeCounts         map[Scope]int64         `json:"scope_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
}

// LoadReport reads the last days days of statistics ending at now. Term
// and zero-result history are not dated and are always included.
func (s *SQLiteStore) LoadReport(days int, now time.Time, topN int) (*Report, error) {
	if days <= 0 {
		days = 1
	}
	to := now.Format(DateLayout)
	from := now.AddDate(0, 0, -(days - 1)).Format(DateLayout)

	scopes, err := s.ScopeCounts(from, to)
	if err != nil {
		return nil, err
	}
	latencies, err := s.LatencyCounts(from, to)
	if err != nil {
		return nil, err
	}
	terms, err := s.TopTerms(topN)
	if err != nil {
		return nil, err
	}
	zero, err := s.ZeroResultQueries(topN)
	if err != nil {
		return nil, err
	}

	r := &Report{
		From:                from,
		To:                  to,
		ScopeCounts:         scopes,
		LatencyDistribution: latencies,
		TopTerms:            terms,
		ZeroResultQueries:   zero,
	}
	for _, n := range scopes {
		r.TotalQueries += n
	}
	return r, nil
}

func scopeKeys(m map[Scope]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func bucketKeys(m map[LatencyBucket]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}
