package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/labsearch/internal/content"
	"github.com/Aman-CERP/labsearch/internal/store"
)

func consistencyWorkspace() *content.Workspace {
	return &content.Workspace{
		Projects: []content.Project{{
			ID:    "p1",
			Title: "CRISPR screen",
			Tasks: map[string][]content.Task{"todo": {{ID: "t1", Title: "Order guides"}, {ID: "t2", Title: "Plate cells"}}},
		}},
	}
}

// seedFromItems stores one record per item, as a clean run would.
func seedFromItems(t *testing.T, st store.Store, items []content.Item, provider string) {
	t.Helper()
	records := make([]store.Record, len(items))
	for i, item := range items {
		records[i] = store.Record{
			ID:          item.ID,
			ContentType: item.ContentType,
			ContentID:   item.ContentID,
			ProjectID:   item.ProjectID,
			Title:       item.Title,
			Text:        item.Text,
			Checksum:    Checksum(item.Text),
			Provider:    provider,
			Vector:      []float32{1, 0, 0},
		}
	}
	require.NoError(t, st.UpsertBatch(context.Background(), records))
	require.NoError(t, st.SetState(context.Background(), store.StateKeyProvider, provider))
}

func TestConsistencyChecker_CleanStore(t *testing.T) {
	// Given: a store built from the current workspace
	ctx := context.Background()
	st, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	src := content.StaticSource{Workspace: consistencyWorkspace()}
	items, err := content.Collect(ctx, src)
	require.NoError(t, err)
	seedFromItems(t, st, items, "static")

	// When: checking
	checker := NewConsistencyChecker(st, src)
	result, err := checker.Check(ctx)

	// Then: nothing is reported
	require.NoError(t, err)
	assert.True(t, result.Consistent())
	assert.Equal(t, len(items), result.Items)
	assert.Equal(t, len(items), result.Records)

	ok, err := checker.QuickCheck(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsistencyChecker_DetectsAndRepairs(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	ws := consistencyWorkspace()
	src := content.StaticSource{Workspace: ws}
	items, err := content.Collect(ctx, src)
	require.NoError(t, err)
	seedFromItems(t, st, items, "static")

	// Given: a deleted task, an edited task, a new task, a foreign record
	// and a record of the wrong length
	ws.Projects[0].Tasks = map[string][]content.Task{"todo": {
		{ID: "t2", Title: "Plate cells twice"},
		{ID: "t3", Title: "Count colonies"},
	}}
	require.NoError(t, st.UpsertBatch(ctx, []store.Record{
		{ID: "note-m9", ContentType: content.TypeNote, ContentID: "m9", Provider: "openai", Vector: []float32{1, 0, 0}},
		{ID: "task-old", ContentType: content.TypeTask, ContentID: "old", Provider: "static", Vector: []float32{1, 0}},
	}))

	// When: checking
	checker := NewConsistencyChecker(st, src)
	result, err := checker.Check(ctx)
	require.NoError(t, err)

	// Then: every difference is reported in type order
	assert.False(t, result.Consistent())
	got := make([]string, len(result.Issues))
	for i, is := range result.Issues {
		got[i] = is.Type.String() + ":" + is.ID
	}
	assert.Equal(t, []string{
		"orphan:note-m9",
		"orphan:task-old",
		"orphan:task-t1",
		"missing:task-t3",
		"stale:task-t2",
		"foreign_provider:note-m9",
		"dimensions:task-old",
	}, got)
	assert.Equal(t, 3, result.Counts()[IssueOrphan])

	ok, err := checker.QuickCheck(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// And: repair deletes the orphans and unusable records only
	deleted, err := checker.Repair(ctx, result.Issues)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	after, err := checker.Check(ctx)
	require.NoError(t, err)
	got = got[:0]
	for _, is := range after.Issues {
		got = append(got, is.Type.String()+":"+is.ID)
	}
	assert.Equal(t, []string{"missing:task-t3", "stale:task-t2"}, got)
}

func TestIssueType_Strings(t *testing.T) {
	tests := []struct {
		issue      IssueType
		want       string
		repairable bool
	}{
		{IssueOrphan, "orphan", true},
		{IssueMissing, "missing", false},
		{IssueStale, "stale", false},
		{IssueForeignProvider, "foreign_provider", true},
		{IssueDimensions, "dimensions", true},
		{IssueType(99), "unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.issue.String())
			assert.Equal(t, tt.repairable, tt.issue.Repairable())
		})
	}
}
