package mcp

// SemanticSearchInput is the input of the semantic_search tool.
type SemanticSearchInput struct {
	Query        string   `json:"query" jsonschema:"natural-language search query"`
	ContentTypes []string `json:"content_types,omitempty" jsonschema:"restrict to these types: project, task, notebook, reference, protocol, result, note"`
	ProjectID    string   `json:"project_id,omitempty" jsonschema:"restrict to one project"`
	Limit        int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 20"`
	Threshold    *float64 `json:"threshold,omitempty" jsonschema:"minimum cosine similarity between -1 and 1, default 0.35"`
}

// SemanticSearchOutput is the structured output of semantic_search.
type SemanticSearchOutput struct {
	Results []SearchResultOutput `json:"results"`
}

// SearchResultOutput is one hit.
type SearchResultOutput struct {
	ID           string  `json:"id"`
	ContentType  string  `json:"content_type"`
	ContentID    string  `json:"content_id"`
	ProjectID    string  `json:"project_id,omitempty"`
	ProjectTitle string  `json:"project_title"`
	Title        string  `json:"title"`
	Score        float64 `json:"score" jsonschema:"cosine similarity"`
}

// IndexStatusInput is the (empty) input of index_status.
type IndexStatusInput struct{}

// IndexStatusOutput describes the index and any run in progress.
type IndexStatusOutput struct {
	Records      int            `json:"records"`
	CountsByType map[string]int `json:"counts_by_type"`
	LastIndexed  string         `json:"last_indexed,omitempty"`
	LastRunID    string         `json:"last_run_id,omitempty"`

	// Provider is the provider the stored vectors were built with.
	Provider           string `json:"provider,omitempty"`
	ConfiguredProvider string `json:"configured_provider"`
	ProviderStatus     string `json:"provider_status" jsonschema:"ready, missing key, unsupported or unknown"`

	Indexing IndexingProgress `json:"indexing"`
}

// IndexingProgress is the orchestrator's current state.
type IndexingProgress struct {
	State       string  `json:"state" jsonschema:"idle, indexing, complete or error"`
	Trigger     string  `json:"trigger,omitempty"`
	Current     int     `json:"current"`
	Total       int     `json:"total"`
	ProgressPct float64 `json:"progress_pct"`
	LastError   string  `json:"last_error,omitempty"`
}

// ReindexInput is the input of the reindex tool.
type ReindexInput struct {
	Force bool `json:"force,omitempty" jsonschema:"re-embed every item, not only changed ones"`
}

// ReindexOutput summarizes a finished run.
type ReindexOutput struct {
	RunID    string  `json:"run_id"`
	Provider string  `json:"provider"`
	Trigger  string  `json:"trigger"`
	Total    int     `json:"total"`
	Embedded int     `json:"embedded"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	Cleared  int     `json:"cleared"`
	Pruned   int     `json:"pruned"`
	Seconds  float64 `json:"duration_seconds"`
}
