package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Aman-CERP/labsearch/internal/content"
	"github.com/Aman-CERP/labsearch/internal/store"
)

// IssueType categorizes a difference between the store and the workspace.
type IssueType int

const (
	// IssueOrphan is a record whose item no longer exists.
	IssueOrphan IssueType = iota
	// IssueMissing is an item with no record.
	IssueMissing
	// IssueStale is a record whose text changed since it was embedded.
	IssueStale
	// IssueForeignProvider is a record embedded by a provider other than
	// the one recorded for the store.
	IssueForeignProvider
	// IssueDimensions is a record whose vector length differs from the rest.
	IssueDimensions
)

// String returns the snake_case issue name.
func (t IssueType) String() string {
	switch t {
	case IssueOrphan:
		return "orphan"
	case IssueMissing:
		return "missing"
	case IssueStale:
		return "stale"
	case IssueForeignProvider:
		return "foreign_provider"
	case IssueDimensions:
		return "dimensions"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t IssueType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Repairable reports whether Repair fixes the issue by deleting the record.
// The rest need an index run.
func (t IssueType) Repairable() bool {
	return t == IssueOrphan || t == IssueForeignProvider || t == IssueDimensions
}

// Issue is one detected difference.
type Issue struct {
	Type    IssueType `json:"type"`
	ID      string    `json:"id"`
	Details string    `json:"details,omitempty"`
}

// CheckResult is the outcome of a consistency check.
type CheckResult struct {
	// Items and Records are the sizes of the two sides compared.
	Items   int `json:"items"`
	Records int `json:"records"`

	Issues   []Issue       `json:"issues"`
	Duration time.Duration `json:"duration"`
}

// Consistent reports whether no issue was found.
func (r *CheckResult) Consistent() bool {
	return len(r.Issues) == 0
}

// Counts returns the number of issues per type.
func (r *CheckResult) Counts() map[IssueType]int {
	counts := make(map[IssueType]int)
	for _, is := range r.Issues {
		counts[is.Type]++
	}
	return counts
}

// ConsistencyChecker compares the store with the workspace it was built from.
type ConsistencyChecker struct {
	store  store.Store
	source content.Source
}

// NewConsistencyChecker creates a checker.
func NewConsistencyChecker(st store.Store, src content.Source) *ConsistencyChecker {
	return &ConsistencyChecker{store: st, source: src}
}

// Check reads every item and record and reports their differences.
// Issues are ordered by type, then id.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	items, err := content.Collect(ctx, c.source)
	if err != nil {
		return nil, err
	}
	records, err := c.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	recorded, err := c.store.GetState(ctx, store.StateKeyProvider)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*store.Record, len(records))
	dimCounts := make(map[int]int)
	for i := range records {
		byID[records[i].ID] = &records[i]
		dimCounts[records[i].Dims()]++
	}
	dims := modalDims(dimCounts)

	var issues []Issue
	live := make(map[string]bool, len(items))
	for _, item := range items {
		live[item.ID] = true
		rec, ok := byID[item.ID]
		switch {
		case !ok:
			issues = append(issues, Issue{Type: IssueMissing, ID: item.ID})
		case rec.Checksum != Checksum(item.Text):
			issues = append(issues, Issue{Type: IssueStale, ID: item.ID})
		}
	}

	for _, rec := range records {
		if !live[rec.ID] {
			issues = append(issues, Issue{Type: IssueOrphan, ID: rec.ID, Details: "item no longer in workspace"})
		}
		if recorded != "" && rec.Provider != "" && rec.Provider != recorded {
			issues = append(issues, Issue{
				Type:    IssueForeignProvider,
				ID:      rec.ID,
				Details: fmt.Sprintf("embedded by %s, store built by %s", rec.Provider, recorded),
			})
		}
		if rec.Dims() != dims {
			issues = append(issues, Issue{
				Type:    IssueDimensions,
				ID:      rec.ID,
				Details: fmt.Sprintf("%d dimensions, expected %d", rec.Dims(), dims),
			})
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Type != issues[j].Type {
			return issues[i].Type < issues[j].Type
		}
		return issues[i].ID < issues[j].ID
	})

	result := &CheckResult{
		Items:    len(items),
		Records:  len(records),
		Issues:   issues,
		Duration: time.Since(start),
	}
	slog.Debug("consistency_checked",
		slog.Int("items", result.Items),
		slog.Int("records", result.Records),
		slog.Int("issues", len(issues)),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// modalDims returns the most common vector length, preferring the larger
// on ties so the result is deterministic.
func modalDims(counts map[int]int) int {
	best, bestN := 0, 0
	for d, n := range counts {
		if n > bestN || (n == bestN && d > best) {
			best, bestN = d, n
		}
	}
	return best
}

// Repair deletes the records behind repairable issues and returns how
// many were deleted. Missing and stale items are left for the next run.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Issue) (int, error) {
	seen := make(map[string]bool)
	var ids []string
	pending := 0
	for _, is := range issues {
		if !is.Type.Repairable() {
			pending++
			continue
		}
		if !seen[is.ID] {
			seen[is.ID] = true
			ids = append(ids, is.ID)
		}
	}

	deleted := 0
	if len(ids) > 0 {
		n, err := c.store.DeleteByIDs(ctx, ids)
		if err != nil {
			return 0, err
		}
		deleted = n
		slog.Info("consistency_repaired", slog.Int("deleted", n))
	}
	if pending > 0 {
		slog.Warn("consistency_needs_index",
			slog.Int("items", pending),
			slog.String("hint", "run 'labsearch index' to embed missing and changed items"))
	}
	return deleted, nil
}

// QuickCheck compares only the item and record counts.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	items, err := content.Collect(ctx, c.source)
	if err != nil {
		return false, err
	}
	meta, err := c.store.Metadata(ctx)
	if err != nil {
		return false, err
	}

	consistent := len(items) == meta.TotalCount
	if !consistent {
		slog.Debug("consistency_count_mismatch",
			slog.Int("items", len(items)),
			slog.Int("records", meta.TotalCount))
	}
	return consistent, nil
}
