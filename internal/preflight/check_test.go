package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/labsearch/internal/content"
	"github.com/Aman-CERP/labsearch/internal/embed"
)

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
		{CheckStatus(9), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckResult_IsCritical(t *testing.T) {
	assert.False(t, CheckResult{Status: StatusPass, Required: true}.IsCritical())
	assert.True(t, CheckResult{Status: StatusFail, Required: true}.IsCritical())
	assert.False(t, CheckResult{Status: StatusFail}.IsCritical())
	assert.False(t, CheckResult{Status: StatusWarn, Required: true}.IsCritical())
}

func TestSummaryStatus(t *testing.T) {
	tests := []struct {
		name    string
		results []CheckResult
		want    string
	}{
		{"empty", nil, "ready"},
		{"all pass", []CheckResult{{Status: StatusPass}, {Status: StatusPass, Required: true}}, "ready"},
		{"warning", []CheckResult{{Status: StatusPass}, {Status: StatusWarn}}, "ready_with_warnings"},
		{"optional failure", []CheckResult{{Status: StatusFail}}, "ready_with_warnings"},
		{"critical failure", []CheckResult{{Status: StatusWarn}, {Status: StatusFail, Required: true}}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SummaryStatus(tt.results))
			assert.Equal(t, tt.want == "failed", HasCriticalFailures(tt.results))
		})
	}
}

func TestCheckWorkspace(t *testing.T) {
	c := New()
	ctx := context.Background()

	// A workspace with one project passes
	ws := &content.Workspace{Projects: []content.Project{{ID: "p1", Title: "CRISPR screen"}}}
	r := c.CheckWorkspace(ctx, content.StaticSource{Workspace: ws}, "ws.json")
	assert.Equal(t, StatusPass, r.Status)
	assert.Equal(t, "1 indexable items", r.Message)

	// An empty workspace warns
	r = c.CheckWorkspace(ctx, content.StaticSource{Workspace: &content.Workspace{}}, "ws.json")
	assert.Equal(t, StatusWarn, r.Status)

	// A missing export fails
	r = c.CheckWorkspace(ctx, content.NewFileSource(filepath.Join(t.TempDir(), "missing.json")), "missing.json")
	assert.True(t, r.IsCritical())

	r = c.CheckWorkspace(ctx, nil, "")
	assert.True(t, r.IsCritical())
}

func TestCheckWritePermissions(t *testing.T) {
	c := New()

	// A nested directory is created
	dir := filepath.Join(t.TempDir(), "a", "b")
	r := c.CheckWritePermissions(dir)
	assert.Equal(t, StatusPass, r.Status)
	assert.DirExists(t, dir)
	assert.NoFileExists(t, filepath.Join(dir, ".labsearch-preflight-test"))
}

func TestCheckWritePermissions_ReadOnly(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := filepath.Join(t.TempDir(), "readonly")
	require.NoError(t, os.Mkdir(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	r := New().CheckWritePermissions(dir)

	assert.Equal(t, StatusFail, r.Status)
	assert.Contains(t, r.Message, "permission denied")
}

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()

	// A missing directory is measured on its parent
	r := New(WithMinDiskSpace(1)).CheckDiskSpace(filepath.Join(dir, "not", "yet"))
	assert.Equal(t, StatusPass, r.Status)

	r = New(WithMinDiskSpace(1 << 62)).CheckDiskSpace(dir)
	assert.Equal(t, StatusFail, r.Status)
	assert.Contains(t, r.Message, "minimum")
}

func TestCheckFileDescriptors(t *testing.T) {
	r := New(WithMinFileDescriptors(1)).CheckFileDescriptors()
	assert.Equal(t, StatusPass, r.Status)
	assert.False(t, r.Required)

	r = New(WithMinFileDescriptors(1 << 62)).CheckFileDescriptors()
	assert.Equal(t, StatusWarn, r.Status)
	assert.Contains(t, r.Details, "ulimit")
}

func TestCheckProvider(t *testing.T) {
	c := New()

	r := c.CheckProvider("static", embed.ReadinessReady)
	assert.Equal(t, StatusPass, r.Status)

	r = c.CheckProvider("openai", embed.ReadinessMissingKey)
	assert.True(t, r.IsCritical())
	assert.Contains(t, r.Details, "API key")

	r = c.CheckProvider("claude", embed.ReadinessUnsupported)
	assert.True(t, r.IsCritical())
}

func TestRunAll_Order(t *testing.T) {
	ws := &content.Workspace{Projects: []content.Project{{ID: "p1", Title: "CRISPR screen"}}}

	results := New(WithMinDiskSpace(1), WithMinFileDescriptors(1)).RunAll(context.Background(), Target{
		Source:         content.StaticSource{Workspace: ws},
		DataDir:        t.TempDir(),
		Provider:       "static",
		ProviderStatus: embed.ReadinessReady,
	})

	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"workspace", "write_permissions", "disk_space", "file_descriptors", "provider"}, names)
	assert.Equal(t, "ready", SummaryStatus(results))
}
