// Package preflight checks that the environment can index and search a
// workspace: the export parses, the data directory is writable and has
// space, and the configured provider can embed.
package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/labsearch/internal/content"
	"github.com/Aman-CERP/labsearch/internal/embed"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns PASS, WARN or FAIL.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *CheckStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "PASS":
		*s = StatusPass
	case "WARN":
		*s = StatusWarn
	case "FAIL":
		*s = StatusFail
	default:
		return fmt.Errorf("unknown check status %q", text)
	}
	return nil
}

// CheckResult is the result of one check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports whether a required check failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Target describes what the checks run against.
type Target struct {
	// Source loads the workspace export.
	Source content.Source

	// WorkspacePath is shown in messages.
	WorkspacePath string

	// DataDir holds the index database.
	DataDir string

	// Provider and ProviderStatus are the configured provider and its
	// readiness as reported by the embed package.
	Provider       string
	ProviderStatus string
}

// Checker runs the checks.
type Checker struct {
	minDiskBytes uint64
	minFiles     uint64
}

// Option configures a Checker.
type Option func(*Checker)

// WithMinDiskSpace overrides MinDiskSpaceBytes.
func WithMinDiskSpace(bytes uint64) Option {
	return func(c *Checker) {
		c.minDiskBytes = bytes
	}
}

// WithMinFileDescriptors overrides MinFileDescriptors.
func WithMinFileDescriptors(n uint64) Option {
	return func(c *Checker) {
		c.minFiles = n
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{
		minDiskBytes: MinDiskSpaceBytes,
		minFiles:     MinFileDescriptors,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check in a fixed order.
func (c *Checker) RunAll(ctx context.Context, t Target) []CheckResult {
	return []CheckResult{
		c.CheckWorkspace(ctx, t.Source, t.WorkspacePath),
		c.CheckWritePermissions(t.DataDir),
		c.CheckDiskSpace(t.DataDir),
		c.CheckFileDescriptors(),
		c.CheckProvider(t.Provider, t.ProviderStatus),
	}
}

// HasCriticalFailures reports whether any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "failed", "ready_with_warnings" or "ready".
func SummaryStatus(results []CheckResult) string {
	warnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warnings = true
		}
	}
	if warnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// CheckWorkspace loads and extracts the workspace export.
func (c *Checker) CheckWorkspace(ctx context.Context, src content.Source, path string) CheckResult {
	result := CheckResult{Name: "workspace", Required: true, Details: path}
	if src == nil {
		result.Status = StatusFail
		result.Message = "no workspace configured"
		return result
	}

	items, err := content.Collect(ctx, src)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	if len(items) == 0 {
		result.Status = StatusWarn
		result.Message = "workspace has no indexable items"
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d indexable items", len(items))
	return result
}

// CheckWritePermissions creates dir if needed and writes a probe file.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{Name: "write_permissions", Required: true, Details: dir}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create data directory: %v", err)
		return result
	}
	probe := filepath.Join(dir, ".labsearch-preflight-test")
	f, err := os.Create(probe)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckProvider turns a provider readiness string into a result.
func (c *Checker) CheckProvider(provider, status string) CheckResult {
	result := CheckResult{Name: "provider", Required: true}
	if status == embed.ReadinessReady {
		result.Status = StatusPass
		result.Message = provider + " ready"
		return result
	}

	result.Status = StatusFail
	result.Message = fmt.Sprintf("%s: %s", provider, status)
	switch status {
	case embed.ReadinessMissingKey:
		result.Details = "Set the provider's API key environment variable or embeddings.*_api_key"
	case embed.ReadinessUnsupported:
		result.Details = "This provider has no embeddings API; choose openai, gemini, ollama or static"
	default:
		result.Details = "Check embeddings.provider in .labsearch.yaml"
	}
	return result
}
