package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// StatusInfo describes the index for `labsearch status`.
type StatusInfo struct {
	Workspace    string         `json:"workspace"`
	DataDir      string         `json:"data_dir"`
	TotalRecords int            `json:"total_records"`
	CountsByType map[string]int `json:"counts_by_type"`
	LastIndexed  time.Time      `json:"last_indexed,omitempty"`
	LastRunID    string         `json:"last_run_id,omitempty"`
	DBSize       int64          `json:"db_size"`

	// Provider recorded in the store; empty before the first run.
	Provider string `json:"provider,omitempty"`
	// Configured is the provider the next run would use.
	Configured string `json:"configured_provider"`
	// ProviderStatus is "ready", "missing key", "unsupported" or "unknown".
	ProviderStatus string `json:"provider_status"`

	// IndexState is the orchestrator state when one is running in this process.
	IndexState string `json:"index_state,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render writes a human readable summary.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index status: "+info.Workspace))

	_, _ = fmt.Fprintf(r.out, "  Records:      %d\n", info.TotalRecords)
	types := make([]string, 0, len(info.CountsByType))
	for t := range info.CountsByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		_, _ = fmt.Fprintf(r.out, "    %-10s  %d\n", t, info.CountsByType[t])
	}
	if info.LastIndexed.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", r.styles.Warning.Render("never"))
	} else {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", formatTime(info.LastIndexed))
	}
	_, _ = fmt.Fprintf(r.out, "  Database:     %s (%s)\n", info.DataDir, FormatBytes(info.DBSize))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Provider:")
	indexed := info.Provider
	if indexed == "" {
		indexed = "-"
	}
	_, _ = fmt.Fprintf(r.out, "    Indexed with: %s\n", indexed)
	_, _ = fmt.Fprintf(r.out, "    Configured:   %s (%s)\n", info.Configured, r.renderStatus(info.ProviderStatus))
	if info.Provider != "" && info.Configured != "" && info.Provider != info.Configured {
		_, _ = fmt.Fprintf(r.out, "    %s\n", r.styles.Warning.Render("the next index run will clear and rebuild the store"))
	}

	if info.IndexState != "" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "  Indexer: %s\n", r.renderStatus(info.IndexState))
	}
	if info.LastError != "" {
		_, _ = fmt.Fprintf(r.out, "  Last error: %s\n", r.styles.Error.Render(info.LastError))
	}
	return nil
}

// RenderJSON writes info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready", "complete", "idle":
		return r.styles.Success.Render(status)
	case "missing key", "indexing":
		return r.styles.Warning.Render(status)
	case "unsupported", "unknown", "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats t relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	plural := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s ago", unit)
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats a byte count as B, KB, MB or GB.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	value := float64(bytes)
	for _, suffix := range []string{"KB", "MB", "GB"} {
		value /= unit
		if value < unit || suffix == "GB" {
			return fmt.Sprintf("%.1f %s", value, suffix)
		}
	}
	return fmt.Sprintf("%d B", bytes)
}
