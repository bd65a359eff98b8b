package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/labsearch/internal/config"
	"github.com/Aman-CERP/labsearch/internal/preflight"
	"github.com/Aman-CERP/labsearch/internal/telemetry"
	"github.com/Aman-CERP/labsearch/internal/ui"
	"github.com/Aman-CERP/labsearch/internal/watcher"
)

func TestIndexThenSearch(t *testing.T) {
	// Given: a workspace with four items
	ws := setupWorkspace(t)

	// When: indexing twice
	first := mustExecute(t, "--workspace", ws, "index", "--no-tui")
	second := mustExecute(t, "--workspace", ws, "index", "--no-tui")

	// Then: the first run embeds everything and the second nothing
	assert.Contains(t, first, "Complete: 4 of 4 embedded")
	assert.Contains(t, second, "Complete: 0 of 0 embedded, 4 unchanged")

	// And: a query matching the project title finds it
	out := mustExecute(t, "--workspace", ws, "search", "CRISPR knockout screen",
		"--threshold", "0.9", "--format", "json")
	var doc searchJSON
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.NotEmpty(t, doc.Results)
	assert.Equal(t, "project-p1", doc.Results[0].ID)
	assert.Equal(t, "CRISPR knockout screen", doc.Results[0].ProjectTitle)
	assert.Equal(t, len(doc.Results), doc.Count)
	for _, r := range doc.Results {
		assert.GreaterOrEqual(t, r.Score, 0.9)
	}
}

func TestSearch_TextOutputAndScoping(t *testing.T) {
	ws := setupWorkspace(t)
	mustExecute(t, "--workspace", ws, "index", "--no-tui")

	out := mustExecute(t, "--workspace", ws, "search", "Lentivirus production",
		"--type", "protocol", "--threshold", "-1")

	assert.Contains(t, out, "result(s) for \"Lentivirus production\"")
	assert.Contains(t, out, "protocol-pr1")
	assert.NotContains(t, out, "project-p1")
}

func TestSearch_EmptyStore(t *testing.T) {
	// Given: a workspace that was never indexed
	ws := setupWorkspace(t)

	// When: searching
	out := mustExecute(t, "--workspace", ws, "search", "anything")

	// Then: no results, no error
	assert.Contains(t, out, "No results")
}

func TestSearch_InvalidFlags(t *testing.T) {
	ws := setupWorkspace(t)

	tests := []struct {
		name string
		args []string
	}{
		{"format", []string{"search", "q", "--format", "xml"}},
		{"type", []string{"search", "q", "--type", "email"}},
		{"limit", []string{"search", "q", "--limit", "-1"}},
		{"threshold", []string{"search", "q", "--threshold", "2"}},
		{"no query", []string{"search"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"--workspace", ws}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func TestStatus_JSON(t *testing.T) {
	ws := setupWorkspace(t)
	mustExecute(t, "--workspace", ws, "index", "--no-tui")

	out := mustExecute(t, "--workspace", ws, "status", "--json")

	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, workspaceItems, info.TotalRecords)
	assert.Equal(t, 2, info.CountsByType["task"])
	assert.Equal(t, "static", info.Provider)
	assert.Equal(t, "static", info.Configured)
	assert.Equal(t, "ready", info.ProviderStatus)
	assert.NotEmpty(t, info.LastRunID)
	assert.False(t, info.LastIndexed.IsZero())
	assert.Positive(t, info.DBSize)
}

func TestStatus_Text(t *testing.T) {
	ws := setupWorkspace(t)

	out := mustExecute(t, "--workspace", ws, "status")

	assert.Contains(t, out, "Records:      0")
	assert.Contains(t, out, "never")
}

func TestDeleteAndClear(t *testing.T) {
	ws := setupWorkspace(t)
	mustExecute(t, "--workspace", ws, "index", "--no-tui")

	out := mustExecute(t, "--workspace", ws, "delete", "t1")
	assert.Contains(t, out, "Deleted 1 record for \"t1\"")

	out = mustExecute(t, "--workspace", ws, "delete", "nope")
	assert.Contains(t, out, "No records found")

	// clear without --yes leaves the store alone
	out = mustExecute(t, "--workspace", ws, "clear")
	assert.Contains(t, out, "--yes")
	assert.Equal(t, workspaceItems-1, recordCount(t, ws))

	out = mustExecute(t, "--workspace", ws, "clear", "--yes")
	assert.Contains(t, out, "Cleared 3 records")
	assert.Zero(t, recordCount(t, ws))
}

func recordCount(t *testing.T, ws string) int {
	t.Helper()
	out := mustExecute(t, "--workspace", ws, "status", "--json")
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	return info.TotalRecords
}

func TestIndex_PruneRemovesDeletedItems(t *testing.T) {
	ws := setupWorkspace(t)
	mustExecute(t, "--workspace", ws, "index", "--no-tui")

	// Given: the protocol is removed from the workspace
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(workspaceJSON), &doc))
	delete(doc, "protocols")
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ws, data, 0o600))

	// When: indexing with and without --prune
	mustExecute(t, "--workspace", ws, "index", "--no-tui")
	assert.Equal(t, workspaceItems, recordCount(t, ws))
	out := mustExecute(t, "--workspace", ws, "index", "--no-tui", "--prune")

	// Then: only the pruning run removes the record
	assert.Contains(t, out, "Pruned 1 records")
	assert.Equal(t, workspaceItems-1, recordCount(t, ws))
}

func TestIndex_UnknownProvider(t *testing.T) {
	ws := setupWorkspace(t)

	_, err := execute(t, "--workspace", ws, "index", "--no-tui", "--provider", "word2vec")

	assert.Error(t, err)
}

func TestDataDirFlag(t *testing.T) {
	ws := setupWorkspace(t)
	dataDir := filepath.Join(t.TempDir(), "elsewhere")

	mustExecute(t, "--workspace", ws, "--data-dir", dataDir, "index", "--no-tui")

	assert.FileExists(t, filepath.Join(dataDir, "embeddings.db"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(ws), ".labsearch", "embeddings.db"))
}

func TestProviders_JSON(t *testing.T) {
	ws := setupWorkspace(t)

	out := mustExecute(t, "--workspace", ws, "providers", "--json")

	var infos []providerInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	byID := make(map[string]providerInfo, len(infos))
	for _, p := range infos {
		byID[p.ID] = p
	}
	require.Len(t, byID, 5)
	assert.True(t, byID["static"].Default)
	assert.Equal(t, "ready", byID["static"].Status)
	assert.Equal(t, "missing key", byID["openai"].Status)
	assert.Equal(t, "unsupported", byID["claude"].Status)
}

func TestProviders_Text(t *testing.T) {
	ws := setupWorkspace(t)

	out := mustExecute(t, "--workspace", ws, "providers")

	assert.Contains(t, out, "* static")
	assert.Contains(t, out, "configured default")
}

func TestConfigInitAndShow(t *testing.T) {
	ws := setupWorkspace(t)
	dir := filepath.Dir(ws)
	path := filepath.Join(dir, config.FileName)

	// When: initializing the workspace config
	out := mustExecute(t, "--workspace", dir, "config", "init", "--provider", "static")

	// Then: the file is written
	assert.Contains(t, out, "Created")
	require.FileExists(t, path)

	// And: a second init keeps it unless forced
	out = mustExecute(t, "--workspace", dir, "config", "init")
	assert.Contains(t, out, "already exists")
	out = mustExecute(t, "--workspace", dir, "config", "init", "--force")
	assert.Contains(t, out, "Backed up")
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	// And: show reports the effective values
	out = mustExecute(t, "--workspace", dir, "config", "show", "--json")
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, ws, cfg.Workspace.Path)

	out = mustExecute(t, "--workspace", dir, "config", "show")
	assert.Contains(t, out, "provider: static")
	assert.NotContains(t, out, "api_key")
}

func TestConfigInit_RejectsUnknownProvider(t *testing.T) {
	ws := setupWorkspace(t)

	_, err := execute(t, "--workspace", filepath.Dir(ws), "config", "init", "--provider", "word2vec")

	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(ws), config.FileName))
}

func TestWatchWorkspace_TriggersPass(t *testing.T) {
	// Given: an indexed workspace and a running watcher
	ws := setupWorkspace(t)
	workspaceFlag = ws
	t.Cleanup(func() { workspaceFlag = "" })

	cfg, err := loadConfig()
	require.NoError(t, err)
	cfg.Indexing.WatchDebounce = "50ms"
	a, err := openApp(cfg)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	auto, err := newAutoIndexer(a)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduled, err := auto.Start(ctx)
	require.NoError(t, err)
	require.True(t, scheduled)
	require.Eventually(t, func() bool { return auto.Last().Runs == 1 }, 5*time.Second, 10*time.Millisecond)
	defer auto.Stop()

	batches := make(chan int, 4)
	done := make(chan error, 1)
	go func() {
		done <- watchWorkspace(ctx, a, auto, true, func(b []watcher.FileEvent) { batches <- len(b) })
	}()

	// When: the workspace file changes
	time.Sleep(100 * time.Millisecond)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(workspaceJSON), &doc))
	doc["notebook"] = []map[string]any{{"id": "n1", "title": "Day 1", "content": "Seeded plates"}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ws, data, 0o600))

	// Then: a batch arrives and a second pass indexes the new entry
	select {
	case n := <-batches:
		assert.Positive(t, n)
	case <-time.After(10 * time.Second):
		t.Fatal("no watch batch")
	}
	require.Eventually(t, func() bool { return auto.Last().Runs == 2 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, auto.Last().Err)
	assert.Equal(t, 1, auto.Last().Report.Embedded)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchWorkspace_KeyInConfigStartsInitialPass(t *testing.T) {
	// Given: an OpenAI-compatible server and a workspace configured for it without a key
	ws := setupWorkspace(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			data[i] = item{Index: i, Embedding: []float32{float32(i + 1), 1, 0}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()
	t.Setenv("LABSEARCH_PROVIDER", "openai")
	t.Setenv("LABSEARCH_OPENAI_BASE_URL", srv.URL)

	cfgPath := filepath.Join(filepath.Dir(ws), config.FileName)
	require.NoError(t, os.WriteFile(cfgPath, []byte("indexing:\n  batch_size: 10\n"), 0o600))
	workspaceFlag = ws
	t.Cleanup(func() { workspaceFlag = "" })

	cfg, err := loadConfig()
	require.NoError(t, err)
	cfg.Indexing.WatchDebounce = "50ms"
	a, err := openApp(cfg)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	auto, err := newAutoIndexer(a)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduled, err := auto.Start(ctx)
	require.NoError(t, err)
	require.False(t, scheduled)
	defer auto.Stop()

	done := make(chan error, 1)
	go func() { done <- watchWorkspace(ctx, a, auto, true, nil) }()

	// When: a key is added to the workspace config
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(cfgPath,
		[]byte("indexing:\n  batch_size: 10\nembeddings:\n  openai_api_key: sk-test\n"), 0o600))

	// Then: the initial pass runs with the new key
	require.Eventually(t, func() bool { return auto.Last().Runs == 1 }, 10*time.Second, 10*time.Millisecond)
	require.NoError(t, auto.Last().Err)
	assert.Equal(t, workspaceItems, auto.Last().Report.Embedded)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestCheck_ReportsAndRepairs(t *testing.T) {
	// Given: an index built before the protocol was deleted
	ws := setupWorkspace(t)
	mustExecute(t, "--workspace", ws, "index", "--no-tui")
	out := mustExecute(t, "--workspace", ws, "check")
	assert.Contains(t, out, "Index matches the workspace (4 items, 4 records)")

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(workspaceJSON), &doc))
	delete(doc, "protocols")
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ws, data, 0o600))

	// When: checking
	out = mustExecute(t, "--workspace", ws, "check")

	// Then: the orphan is listed with a repair hint
	assert.Contains(t, out, "protocol-pr1")
	assert.Contains(t, out, "check --repair")

	// And: repairing deletes it
	out = mustExecute(t, "--workspace", ws, "check", "--repair", "--json")
	var result struct {
		Issues   []map[string]any `json:"issues"`
		Repaired int              `json:"repaired"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "orphan", result.Issues[0]["type"])
	assert.Equal(t, 1, result.Repaired)
	assert.Equal(t, workspaceItems-1, recordCount(t, ws))
}

func TestStats_CountsSearches(t *testing.T) {
	// Given: an indexed workspace with two searches, one scoped to a project with no match
	ws := setupWorkspace(t)
	mustExecute(t, "--workspace", ws, "index", "--no-tui")
	mustExecute(t, "--workspace", ws, "search", "lentivirus packaging", "--threshold", "-1")
	mustExecute(t, "--workspace", ws, "search", "lentivirus", "--project", "p9")

	// When: reading the statistics
	out := mustExecute(t, "--workspace", ws, "stats", "--json")

	// Then: both searches are counted
	var report telemetry.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, int64(2), report.TotalQueries)
	assert.Equal(t, int64(1), report.ScopeCounts[telemetry.ScopeProject])
	assert.Equal(t, []string{"lentivirus"}, report.ZeroResultQueries)
	require.NotEmpty(t, report.TopTerms)
	assert.Equal(t, telemetry.TermCount{Term: "lentivirus", Count: 2}, report.TopTerms[0])

	text := mustExecute(t, "--workspace", ws, "stats")
	assert.Contains(t, text, "Query statistics")
	assert.Contains(t, text, "\"lentivirus\"")
}

func TestStats_DisabledCollection(t *testing.T) {
	ws := setupWorkspace(t)
	t.Setenv("LABSEARCH_QUERY_STATS", "false")
	mustExecute(t, "--workspace", ws, "index", "--no-tui")
	mustExecute(t, "--workspace", ws, "search", "lentivirus")

	out := mustExecute(t, "--workspace", ws, "stats")

	assert.Contains(t, out, "Collection is disabled")
	assert.Contains(t, out, "No queries recorded")

	_, err := execute(t, "--workspace", ws, "stats", "--days", "0")
	assert.Error(t, err)
}

func TestDoctor_PassesAndWritesMarker(t *testing.T) {
	// Given: a valid workspace and the offline provider
	ws := setupWorkspace(t)

	// When: running doctor
	out := mustExecute(t, "--workspace", ws, "doctor", "--json")

	// Then: every required check passes and the marker is written
	var doc doctorJSON
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.NotEqual(t, "failed", doc.Status)
	require.Len(t, doc.Checks, 5)
	assert.Equal(t, "workspace", doc.Checks[0].Name)
	assert.Equal(t, "4 indexable items", doc.Checks[0].Message)
	assert.FileExists(t, filepath.Join(filepath.Dir(ws), ".labsearch", preflight.MarkerFile))
}

func TestDoctor_FailsOnMissingKey(t *testing.T) {
	ws := setupWorkspace(t)
	t.Setenv("LABSEARCH_PROVIDER", "openai")

	out, err := execute(t, "--workspace", ws, "doctor")

	require.Error(t, err)
	assert.Contains(t, out, "provider")
	assert.Contains(t, out, "Status: FAILED")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(ws), ".labsearch", preflight.MarkerFile))
}
