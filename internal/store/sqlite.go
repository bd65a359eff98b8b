package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo driver, opt-in via store.driver
	_ "modernc.org/sqlite"          // pure Go driver (default)

	"github.com/Aman-CERP/labsearch/internal/content"
	apperrors "github.com/Aman-CERP/labsearch/internal/errors"
)

// Driver names registered with database/sql.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS embeddings (
	id           TEXT PRIMARY KEY,
	content_type TEXT NOT NULL,
	content_id   TEXT NOT NULL,
	project_id   TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	text         TEXT NOT NULL DEFAULT '',
	checksum     TEXT NOT NULL,
	vector       BLOB NOT NULL,
	dims         INTEGER NOT NULL,
	provider     TEXT NOT NULL,
	last_updated INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embeddings_content_type ON embeddings(content_type);
CREATE INDEX IF NOT EXISTS idx_embeddings_content_id ON embeddings(content_id);
CREATE INDEX IF NOT EXISTS idx_embeddings_project_id ON embeddings(project_id);
CREATE INDEX IF NOT EXISTS idx_embeddings_last_updated ON embeddings(last_updated);
CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const selectColumns = `id, content_type, content_id, project_id, title, text, checksum, vector, dims, provider, last_updated`

// Options configures how the database is opened.
type Options struct {
	// Driver is DriverModernc or DriverMattn. Empty means DriverModernc.
	Driver string
	// BusyTimeoutMS bounds lock waits. Zero means 5000.
	BusyTimeoutMS int
}

// SQLiteStore implements Store on a single SQLite file in WAL mode.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
	gen    atomic.Uint64
	now    func() time.Time

	// dataVersion is the last PRAGMA data_version seen. It moves when
	// another connection commits to the file.
	dataVersion atomic.Int64
}

// Verify interface implementation at compile time
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the store at path with default options.
// If path is empty, the store lives in memory.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return Open(path, Options{})
}

// Open opens (or creates) the store at path.
func Open(path string, opts Options) (*SQLiteStore, error) {
	driver := opts.Driver
	switch driver {
	case "":
		driver = DriverModernc
	case DriverModernc, DriverMattn:
	default:
		return nil, apperrors.ConfigError(fmt.Sprintf("unknown store driver %q", opts.Driver), nil).
			WithSuggestion("use store.driver: sqlite or sqlite3")
	}
	busy := opts.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}

	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.StorageError(fmt.Sprintf("failed to create directory %s", dir), err)
		}

		if validErr := validateIntegrity(driver, path); validErr != nil {
			slog.Warn("embeddings_db_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, apperrors.New(apperrors.ErrCodeCorruptIndex,
					fmt.Sprintf("embeddings database corrupted at %s and cannot be removed", path), removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("embeddings_db_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}
		dsn = path
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, apperrors.StorageError("failed to open database", err)
	}

	// Single connection: one writer, and ":memory:" stays one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy),
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, apperrors.StorageError("failed to set pragma", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, apperrors.StorageError("failed to create schema", err)
	}

	s := &SQLiteStore{db: db, path: path, now: time.Now}
	if v, err := s.readDataVersion(); err == nil {
		s.dataVersion.Store(v)
	}
	return s, nil
}

// validateIntegrity checks an existing database file before it is opened.
// Returns nil if the file is absent or healthy.
func validateIntegrity(driver, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// Path returns the database file path, empty for in-memory stores.
func (s *SQLiteStore) Path() string {
	return s.path
}

// DB returns the underlying connection for tables that live beside the
// records, such as query statistics.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Generation returns a counter that changes on every successful write,
// including commits made to the same file by other processes.
func (s *SQLiteStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return s.gen.Load()
	}

	v, err := s.readDataVersion()
	if err != nil {
		slog.Debug("data_version_failed", slog.String("error", err.Error()))
		return s.gen.Load()
	}
	if old := s.dataVersion.Swap(v); old != v {
		s.gen.Add(1)
	}
	return s.gen.Load()
}

// readDataVersion reads the connection's data version. Commits on this
// connection do not change it; those bump gen directly.
func (s *SQLiteStore) readDataVersion() (int64, error) {
	var v int64
	if err := s.db.QueryRow("PRAGMA data_version").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// UpsertBatch inserts or replaces records in one transaction, stamping
// LastUpdated with the current time.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_type = excluded.content_type,
			content_id   = excluded.content_id,
			project_id   = excluded.project_id,
			title        = excluded.title,
			text         = excluded.text,
			checksum     = excluded.checksum,
			vector       = excluded.vector,
			dims         = excluded.dims,
			provider     = excluded.provider,
			last_updated = excluded.last_updated`)
	if err != nil {
		return apperrors.StorageError("failed to prepare upsert", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for i := range records {
		r := &records[i]
		if r.ID == "" {
			return apperrors.ValidationError("record id is empty", nil)
		}
		if len(r.Vector) == 0 {
			return apperrors.ValidationError(fmt.Sprintf("record %s has no vector", r.ID), nil)
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, string(r.ContentType), r.ContentID, r.ProjectID, r.Title, r.Text,
			r.Checksum, encodeVector(r.Vector), len(r.Vector), r.Provider, now.UnixNano(),
		); err != nil {
			return apperrors.StorageError(fmt.Sprintf("failed to upsert %s", r.ID), err)
		}
		r.LastUpdated = now
	}

	if err := tx.Commit(); err != nil {
		return apperrors.StorageError("failed to commit upsert", err)
	}
	s.gen.Add(1)
	return nil
}

// GetAll returns every record ordered by id.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM embeddings ORDER BY id`)
}

// GetByType returns the records of one content type.
func (s *SQLiteStore) GetByType(ctx context.Context, ct content.ContentType) ([]Record, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM embeddings WHERE content_type = ? ORDER BY id`, string(ct))
}

// GetByProject returns the records owned by one project.
func (s *SQLiteStore) GetByProject(ctx context.Context, projectID string) ([]Record, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM embeddings WHERE project_id = ? ORDER BY id`, projectID)
}

// GetByIDs returns the records with the given ids, in id order.
// Unknown ids are skipped.
func (s *SQLiteStore) GetByIDs(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return []Record{}, nil
	}
	var out []Record
	for start := 0; start < len(ids); start += maxParams {
		end := min(start+maxParams, len(ids))
		chunk := ids[start:end]
		recs, err := s.query(ctx,
			`SELECT `+selectColumns+` FROM embeddings WHERE id IN (`+placeholders(len(chunk))+`) ORDER BY id`,
			toArgs(chunk)...)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// GetByID returns one record, or nil if it does not exist.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Record, error) {
	recs, err := s.query(ctx, `SELECT `+selectColumns+` FROM embeddings WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// DeleteByContentID removes every record produced from contentID and
// returns how many were removed.
func (s *SQLiteStore) DeleteByContentID(ctx context.Context, contentID string) (int, error) {
	return s.exec(ctx, `DELETE FROM embeddings WHERE content_id = ?`, contentID)
}

// DeleteByIDs removes records by id and returns how many were removed.
func (s *SQLiteStore) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	total := 0
	for start := 0; start < len(ids); start += maxParams {
		end := min(start+maxParams, len(ids))
		chunk := ids[start:end]
		n, err := s.exec(ctx, `DELETE FROM embeddings WHERE id IN (`+placeholders(len(chunk))+`)`, toArgs(chunk)...)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// ClearAll deletes every record and forgets the provider and last-indexed time.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
		return apperrors.StorageError("failed to clear embeddings", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM state WHERE key IN (?, ?, ?)`,
		StateKeyProvider, StateKeyModel, StateKeyLastIndexed); err != nil {
		return apperrors.StorageError("failed to clear state", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.StorageError("failed to commit clear", err)
	}
	s.gen.Add(1)
	return nil
}

// Metadata returns counts and the newest update time.
func (s *SQLiteStore) Metadata(ctx context.Context) (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta := Metadata{CountsByType: make(map[content.ContentType]int)}
	if err := s.checkOpen(); err != nil {
		return meta, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT content_type, COUNT(*), MAX(last_updated) FROM embeddings GROUP BY content_type`)
	if err != nil {
		return meta, apperrors.StorageError("failed to read metadata", err)
	}
	defer rows.Close()

	var newest int64
	for rows.Next() {
		var (
			ct      string
			count   int
			updated int64
		)
		if err := rows.Scan(&ct, &count, &updated); err != nil {
			return meta, apperrors.StorageError("failed to scan metadata", err)
		}
		meta.CountsByType[content.ContentType(ct)] = count
		meta.TotalCount += count
		newest = max(newest, updated)
	}
	if err := rows.Err(); err != nil {
		return meta, apperrors.StorageError("failed to read metadata", err)
	}
	if newest > 0 {
		meta.LastUpdated = time.Unix(0, newest).UTC()
	}
	return meta, nil
}

// Checksums returns id -> checksum for every record.
func (s *SQLiteStore) Checksums(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, checksum FROM embeddings`)
	if err != nil {
		return nil, apperrors.StorageError("failed to read checksums", err)
	}
	defer rows.Close()

	sums := make(map[string]string)
	for rows.Next() {
		var id, sum string
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, apperrors.StorageError("failed to scan checksum", err)
		}
		sums[id] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageError("failed to read checksums", err)
	}
	return sums, nil
}

// IDs returns every record id in ascending order.
func (s *SQLiteStore) IDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM embeddings ORDER BY id`)
	if err != nil {
		return nil, apperrors.StorageError("failed to read ids", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.StorageError("failed to scan id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageError("failed to read ids", err)
	}
	return ids, nil
}

// GetState returns a state value, or "" if unset.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.StorageError(fmt.Sprintf("failed to read state %s", key), err)
	}
	return value, nil
}

// SetState stores a state value. State writes do not move the generation.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
		return apperrors.StorageError(fmt.Sprintf("failed to write state %s", key), err)
	}
	return nil
}

// Close closes the database. Safe to call twice.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) checkOpen() error {
	if s.closed {
		return apperrors.StorageError("store is closed", nil)
	}
	return nil
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.StorageError("write failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.StorageError("write failed", err)
	}
	s.gen.Add(1)
	return int(n), nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.StorageError("query failed", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r       Record
			ct      string
			blob    []byte
			dims    int
			updated int64
		)
		if err := rows.Scan(&r.ID, &ct, &r.ContentID, &r.ProjectID, &r.Title, &r.Text,
			&r.Checksum, &blob, &dims, &r.Provider, &updated); err != nil {
			return nil, apperrors.StorageError("failed to scan record", err)
		}
		vec, err := decodeVector(blob, dims)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrCodeCorruptIndex,
				fmt.Sprintf("record %s has a corrupt vector", r.ID), err)
		}
		r.ContentType = content.ContentType(ct)
		r.Vector = vec
		r.LastUpdated = time.Unix(0, updated).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageError("query failed", err)
	}
	return records, nil
}

// maxParams stays under SQLite's default bound-variable limit.
const maxParams = 500

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
