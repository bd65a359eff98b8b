package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/labsearch/internal/content"
	"github.com/Aman-CERP/labsearch/internal/embed"
	"github.com/Aman-CERP/labsearch/internal/index"
	"github.com/Aman-CERP/labsearch/internal/search"
	"github.com/Aman-CERP/labsearch/internal/store"
	"github.com/Aman-CERP/labsearch/pkg/version"
)

// Tool names.
const (
	ToolSemanticSearch = "semantic_search"
	ToolIndexStatus    = "index_status"
	ToolReindex        = "reindex"
)

// maxLimit caps the results a client may request.
const maxLimit = 100

// Searcher answers queries. *search.Service implements it.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// Indexer runs and reports indexing. *index.Orchestrator implements it.
type Indexer interface {
	Run(ctx context.Context, req index.Request) (*index.Report, error)
	Status() index.Status
}

// Dependencies holds the server's collaborators.
type Dependencies struct {
	Searcher Searcher
	Indexer  Indexer
	Store    store.Store

	// Registry and KeyResolver report the configured provider's readiness.
	Registry    *embed.Registry
	KeyResolver func(embed.ProviderID) string
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name: ToolSemanticSearch,
		Description: "Search the research workspace by meaning. Finds projects, tasks, notebooks, references, " +
			"protocols, results and notes related to a natural-language query, even without shared keywords. " +
			"Filter with content_types and project_id.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report how many items are indexed, which embedding provider built the index, and whether indexing is running.",
	},
	{
		Name:        ToolReindex,
		Description: "Bring the index up to date with the workspace. Only changed items are re-embedded unless force is true.",
	},
}

// Server is the MCP server.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	indexer  Indexer
	store    store.Store
	registry *embed.Registry
	keys     func(embed.ProviderID) string
	logger   *slog.Logger
}

// NewServer creates the server and registers its tools.
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if deps.Indexer == nil {
		return nil, errors.New("indexer is required")
	}
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("registry is required")
	}
	keys := deps.KeyResolver
	if keys == nil {
		keys = func(embed.ProviderID) string { return "" }
	}

	s := &Server{
		searcher: deps.Searcher,
		indexer:  deps.Indexer,
		store:    deps.Store,
		registry: deps.Registry,
		keys:     keys,
		logger:   slog.Default(),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "labsearch", Version: version.Version}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// Serve runs the server on stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// CallTool dispatches a tool call in process. args is decoded the same
// way the SDK decodes a request's arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSemanticSearch:
		var in SemanticSearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		text, _, err := s.semanticSearch(ctx, in)
		return text, err
	case ToolIndexStatus:
		return s.indexStatus(ctx)
	case ToolReindex:
		var in ReindexInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		text, _, err := s.reindex(ctx, in)
		return text, err
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewInvalidParamsError(err.Error())
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSemanticSearch, Description: tools[0].Description}, s.mcpSemanticSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexStatus, Description: tools[1].Description}, s.mcpIndexStatusHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolReindex, Description: tools[2].Description}, s.mcpReindexHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpSemanticSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, in SemanticSearchInput) (
	*mcp.CallToolResult,
	SemanticSearchOutput,
	error,
) {
	text, out, err := s.semanticSearch(ctx, in)
	if err != nil {
		return nil, SemanticSearchOutput{}, err
	}
	return textResult(text), out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) mcpReindexHandler(ctx context.Context, _ *mcp.CallToolRequest, in ReindexInput) (
	*mcp.CallToolResult,
	*ReindexOutput,
	error,
) {
	text, out, err := s.reindex(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return textResult(text), out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// semanticSearch validates input, runs the search and renders it.
func (s *Server) semanticSearch(ctx context.Context, in SemanticSearchInput) (string, SemanticSearchOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	query := strings.TrimSpace(in.Query)
	if query == "" {
		return "", SemanticSearchOutput{}, NewInvalidParamsError("query is required and cannot be blank")
	}
	if in.Limit < 0 {
		return "", SemanticSearchOutput{}, NewInvalidParamsError("limit must be positive")
	}

	opts := search.Options{
		ProjectID: strings.TrimSpace(in.ProjectID),
		Limit:     min(in.Limit, maxLimit),
		Threshold: in.Threshold,
	}
	for _, raw := range in.ContentTypes {
		ct, err := content.ParseContentType(raw)
		if err != nil {
			return "", SemanticSearchOutput{}, NewInvalidParamsError(err.Error())
		}
		opts.ContentTypes = append(opts.ContentTypes, ct)
	}

	results, err := s.searcher.Search(ctx, query, opts)
	if err != nil {
		s.logger.Warn("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return "", SemanticSearchOutput{}, MapError(err)
	}

	s.logger.Info("mcp_search_complete",
		slog.String("request_id", requestID),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	out := SemanticSearchOutput{Results: make([]SearchResultOutput, len(results))}
	for i, r := range results {
		out.Results[i] = SearchResultOutput{
			ID:           r.ID,
			ContentType:  string(r.ContentType),
			ContentID:    r.ContentID,
			ProjectID:    r.ProjectID,
			ProjectTitle: r.ProjectTitle,
			Title:        r.Title,
			Score:        r.Score,
		}
	}

	text := FormatSearchResults(query, results)
	if st := s.indexer.Status(); !st.Idle() {
		text = FormatIndexingInProgress(st) + text
	}
	return text, out, nil
}

// indexStatus combines store metadata with the orchestrator's state.
func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	meta, err := s.store.Metadata(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	recorded, err := s.store.GetState(ctx, store.StateKeyProvider)
	if err != nil {
		return nil, MapError(err)
	}
	runID, err := s.store.GetState(ctx, store.StateKeyLastRunID)
	if err != nil {
		return nil, MapError(err)
	}

	configured := s.registry.DefaultID()
	out := &IndexStatusOutput{
		Records:            meta.TotalCount,
		CountsByType:       make(map[string]int, len(meta.CountsByType)),
		LastRunID:          runID,
		Provider:           recorded,
		ConfiguredProvider: string(configured),
		ProviderStatus:     embed.Readiness(s.registry, configured, s.keys(configured)),
	}
	types := make([]string, 0, len(meta.CountsByType))
	for ct, n := range meta.CountsByType {
		out.CountsByType[string(ct)] = n
		types = append(types, string(ct))
	}
	sort.Strings(types)

	st := s.indexer.Status()
	if !st.LastIndexed.IsZero() {
		out.LastIndexed = st.LastIndexed.UTC().Format(time.RFC3339)
	}
	out.Indexing = IndexingProgress{
		State:     string(st.State),
		Trigger:   string(st.Trigger),
		Current:   st.Current,
		Total:     st.Total,
		LastError: st.LastError,
	}
	if st.Total > 0 {
		out.Indexing.ProgressPct = float64(st.Current) / float64(st.Total) * 100
	}

	s.logger.Debug("mcp_index_status",
		slog.Int("records", out.Records),
		slog.Any("types", types),
		slog.String("state", out.Indexing.State))
	return out, nil
}

// reindex runs the orchestrator synchronously and summarizes the run.
func (s *Server) reindex(ctx context.Context, in ReindexInput) (string, *ReindexOutput, error) {
	rep, err := s.indexer.Run(ctx, index.Request{Force: in.Force, Reason: index.TriggerManual})
	if err != nil {
		s.logger.Warn("mcp_reindex_failed", slog.String("error", err.Error()))
		return "", nil, MapError(err)
	}

	out := &ReindexOutput{
		RunID:    rep.RunID,
		Provider: string(rep.Provider),
		Trigger:  string(rep.Trigger),
		Total:    rep.Total,
		Embedded: rep.Embedded,
		Failed:   rep.Failed,
		Skipped:  rep.Skipped,
		Cleared:  rep.Cleared,
		Pruned:   rep.Pruned,
		Seconds:  rep.Duration.Seconds(),
	}
	return FormatReindexReport(rep), out, nil
}

// generateRequestID returns a short random id for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}
