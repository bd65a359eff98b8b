// Package store persists embedding records in SQLite.
// This is the persistence layer for all indexed items.
package store

import (
	"context"
	"time"

	"github.com/Aman-CERP/labsearch/internal/content"
)

// State keys for run bookkeeping.
const (
	// StateKeyProvider stores the provider id every current vector was produced by.
	StateKeyProvider = "provider"
	// StateKeyModel stores the provider model the vectors were produced by.
	StateKeyModel = "model"
	// StateKeyLastIndexed stores the RFC3339 time of the last completed run.
	StateKeyLastIndexed = "last_indexed"
	// StateKeyLastRunID stores the id of the last completed run.
	StateKeyLastRunID = "last_run_id"
)

// Record is one persisted embedding.
type Record struct {
	ID          string              `json:"id"`
	ContentType content.ContentType `json:"content_type"`
	ContentID   string              `json:"content_id"`
	ProjectID   string              `json:"project_id,omitempty"`
	Title       string              `json:"title"`
	Text        string              `json:"text"`
	Checksum    string              `json:"checksum"`
	Vector      []float32           `json:"-"`
	Provider    string              `json:"provider"`
	LastUpdated time.Time           `json:"last_updated"`
}

// Dims returns the vector length.
func (r *Record) Dims() int {
	return len(r.Vector)
}

// Metadata summarizes the store contents.
type Metadata struct {
	TotalCount   int                         `json:"total_count"`
	CountsByType map[content.ContentType]int `json:"counts_by_type"`
	// LastUpdated is the newest record timestamp, zero when empty.
	LastUpdated time.Time `json:"last_updated"`
}

// Store is the vector store contract used by indexing and search.
type Store interface {
	UpsertBatch(ctx context.Context, records []Record) error
	GetAll(ctx context.Context) ([]Record, error)
	GetByType(ctx context.Context, ct content.ContentType) ([]Record, error)
	GetByProject(ctx context.Context, projectID string) ([]Record, error)
	GetByID(ctx context.Context, id string) (*Record, error)
	GetByIDs(ctx context.Context, ids []string) ([]Record, error)
	DeleteByContentID(ctx context.Context, contentID string) (int, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
	ClearAll(ctx context.Context) error
	Metadata(ctx context.Context) (Metadata, error)
	Checksums(ctx context.Context) (map[string]string, error)
	IDs(ctx context.Context) ([]string, error)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error
	Generation() uint64
	Close() error
}
