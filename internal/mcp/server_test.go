package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/labsearch/internal/content"
	"github.com/Aman-CERP/labsearch/internal/embed"
	apperrors "github.com/Aman-CERP/labsearch/internal/errors"
	"github.com/Aman-CERP/labsearch/internal/index"
	"github.com/Aman-CERP/labsearch/internal/search"
	"github.com/Aman-CERP/labsearch/internal/store"
)

type mockSearcher struct {
	mu       sync.Mutex
	lastOpts search.Options
	lastQ    string
	results  []search.Result
	err      error
}

func (m *mockSearcher) Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQ, m.lastOpts = query, opts
	return m.results, m.err
}

type mockIndexer struct {
	status  index.Status
	report  *index.Report
	err     error
	lastReq index.Request
}

func (m *mockIndexer) Run(ctx context.Context, req index.Request) (*index.Report, error) {
	m.lastReq = req
	return m.report, m.err
}

func (m *mockIndexer) Status() index.Status { return m.status }

type harness struct {
	srv      *Server
	searcher *mockSearcher
	indexer  *mockIndexer
	store    *store.SQLiteStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "embeddings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{
		searcher: &mockSearcher{},
		indexer:  &mockIndexer{status: index.Status{State: index.StateIdle}},
		store:    st,
	}
	h.srv, err = NewServer(Dependencies{
		Searcher: h.searcher,
		Indexer:  h.indexer,
		Store:    st,
		Registry: embed.NewDefaultRegistry(embed.ProviderOpenAI, embed.Options{}),
	})
	require.NoError(t, err)
	return h
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(Dependencies{})
	assert.Error(t, err)
}

func TestListTools(t *testing.T) {
	h := newHarness(t)

	names := make([]string, 0, 3)
	for _, tool := range h.srv.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{"semantic_search", "index_status", "reindex"}, names)
}

func TestSemanticSearch_PassesOptions(t *testing.T) {
	// Given: a searcher returning one hit
	h := newHarness(t)
	h.searcher.results = []search.Result{{
		ID: "protocol-pr1", ContentType: content.TypeProtocol, ContentID: "pr1",
		ProjectID: "p1", ProjectTitle: "CRISPR screen", Title: "Lentiviral transduction", Score: 0.8123,
	}}

	// When: calling with every argument
	out, err := h.srv.CallTool(context.Background(), ToolSemanticSearch, map[string]any{
		"query":         "  virus delivery ",
		"content_types": []any{"Protocol", "task"},
		"project_id":    "p1",
		"limit":         500,
		"threshold":     0.5,
	})

	// Then: options are parsed and clamped, and the text lists the hit
	require.NoError(t, err)
	assert.Equal(t, "virus delivery", h.searcher.lastQ)
	assert.Equal(t, []content.ContentType{content.TypeProtocol, content.TypeTask}, h.searcher.lastOpts.ContentTypes)
	assert.Equal(t, "p1", h.searcher.lastOpts.ProjectID)
	assert.Equal(t, maxLimit, h.searcher.lastOpts.Limit)
	require.NotNil(t, h.searcher.lastOpts.Threshold)
	assert.InDelta(t, 0.5, *h.searcher.lastOpts.Threshold, 1e-9)

	text := out.(string)
	assert.Contains(t, text, "Found 1 result\n")
	assert.Contains(t, text, "Lentiviral transduction")
	assert.Contains(t, text, "CRISPR screen")
	assert.Contains(t, text, "0.812")
}

func TestSemanticSearch_InvalidParams(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing query", map[string]any{}},
		{"blank query", map[string]any{"query": "   "}},
		{"unknown type", map[string]any{"query": "x", "content_types": []any{"email"}}},
		{"negative limit", map[string]any{"query": "x", "limit": -1}},
		{"wrong type", map[string]any{"query": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.srv.CallTool(ctx, ToolSemanticSearch, tt.args)
			require.Error(t, err)
			assert.Equal(t, ErrCodeInvalidParams, MapError(err).Code)
		})
	}
}

func TestSemanticSearch_MapsServiceErrors(t *testing.T) {
	h := newHarness(t)
	h.searcher.err = embed.MissingKeyError(embed.ProviderOpenAI)

	_, err := h.srv.CallTool(context.Background(), ToolSemanticSearch, map[string]any{"query": "x"})

	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeConfiguration, me.Code)
}

func TestSemanticSearch_NoResultsAndIndexingNotice(t *testing.T) {
	h := newHarness(t)
	h.indexer.status = index.Status{State: index.StateIndexing, Trigger: index.TriggerAuto, Current: 20, Total: 80}

	out, err := h.srv.CallTool(context.Background(), ToolSemanticSearch, map[string]any{"query": "gels"})

	require.NoError(t, err)
	text := out.(string)
	assert.Contains(t, text, "Indexing in progress (20/80 items, trigger: auto)")
	assert.Contains(t, text, `No results found for "gels"`)
}

func TestIndexStatus(t *testing.T) {
	// Given: a store with two records built by static and a finished run
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.UpsertBatch(ctx, []store.Record{
		{ID: "task-t1", ContentType: content.TypeTask, ContentID: "t1", Vector: []float32{1, 0}},
		{ID: "note-n1", ContentType: content.TypeNote, ContentID: "n1", Vector: []float32{0, 1}},
	}))
	require.NoError(t, h.store.SetState(ctx, store.StateKeyProvider, "static"))
	require.NoError(t, h.store.SetState(ctx, store.StateKeyLastRunID, "run-1"))
	indexed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	h.indexer.status = index.Status{State: index.StateComplete, LastIndexed: indexed, Current: 2, Total: 2}

	// When: asking for status
	out, err := h.srv.CallTool(ctx, ToolIndexStatus, nil)

	// Then: store and orchestrator state are combined
	require.NoError(t, err)
	st := out.(*IndexStatusOutput)
	assert.Equal(t, 2, st.Records)
	assert.Equal(t, map[string]int{"task": 1, "note": 1}, st.CountsByType)
	assert.Equal(t, "static", st.Provider)
	assert.Equal(t, "openai", st.ConfiguredProvider)
	assert.Equal(t, embed.ReadinessMissingKey, st.ProviderStatus)
	assert.Equal(t, "run-1", st.LastRunID)
	assert.Equal(t, "2026-03-04T05:06:07Z", st.LastIndexed)
	assert.Equal(t, "complete", st.Indexing.State)
	assert.InDelta(t, 100, st.Indexing.ProgressPct, 1e-9)
}

func TestReindex(t *testing.T) {
	h := newHarness(t)
	h.indexer.report = &index.Report{
		RunID: "r1", Provider: "static", Trigger: index.TriggerManual,
		Total: 10, Embedded: 3, Failed: 1, Skipped: 6, Duration: 1500 * time.Millisecond,
	}

	out, err := h.srv.CallTool(context.Background(), ToolReindex, map[string]any{"force": true})

	require.NoError(t, err)
	assert.True(t, h.indexer.lastReq.Force)
	assert.Equal(t, index.TriggerManual, h.indexer.lastReq.Reason)
	text := out.(string)
	assert.Contains(t, text, "Embedded 3 of 4 changed items (6 unchanged) with static")
	assert.Contains(t, text, "1 item failed")
}

func TestReindex_Busy(t *testing.T) {
	h := newHarness(t)
	h.indexer.err = index.ErrAlreadyRunning

	_, err := h.srv.CallTool(context.Background(), ToolReindex, nil)

	assert.Equal(t, ErrCodeIndexBusy, MapError(err).Code)
}

func TestCallTool_Unknown(t *testing.T) {
	h := newHarness(t)

	_, err := h.srv.CallTool(context.Background(), "search_code", nil)

	assert.Equal(t, ErrCodeMethodNotFound, MapError(err).Code)
}

func TestServer_OverInMemoryTransport(t *testing.T) {
	// Given: the SDK server connected to a client in memory
	h := newHarness(t)
	h.searcher.results = []search.Result{{ID: "task-t1", ContentType: content.TypeTask, ContentID: "t1", ProjectTitle: "P", Title: "Run gel", Score: 0.9}}
	ctx := context.Background()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := h.srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer func() { _ = serverSession.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	// When: listing and calling tools
	listed, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolSemanticSearch,
		Arguments: map[string]any{"query": "gel"},
	})
	require.NoError(t, err)

	// Then: tools are advertised and results come back as text and structure
	assert.Len(t, listed.Tools, 3)
	require.False(t, result.IsError)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "Run gel")

	data, err := json.Marshal(result.StructuredContent)
	require.NoError(t, err)
	var out SemanticSearchOutput
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, "task-t1", out.Results[0].ID)

	// And: a failing call is reported as a tool error
	h.searcher.mu.Lock()
	h.searcher.err = apperrors.ValidationError("bad threshold", nil)
	h.searcher.mu.Unlock()
	result, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolSemanticSearch,
		Arguments: map[string]any{"query": "gel"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
