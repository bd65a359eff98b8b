package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const workspaceJSON = `{
  "projects": [
    {
      "id": "p1",
      "title": "CRISPR knockout screen",
      "tasks": {
        "todo": [{"id": "t1", "title": "Order guide library"}],
        "done": [{"id": "t2", "title": "Grow HeLa cells"}]
      }
    }
  ],
  "protocols": {
    "p1": [{"id": "pr1", "title": "Lentivirus production", "description": "Transfect 293T with packaging plasmids"}]
  }
}`

// workspaceItems is the number of items extracted from workspaceJSON.
const workspaceItems = 4

// setupWorkspace isolates HOME and config lookups, selects the offline
// provider, and writes a workspace export. It returns the export path.
func setupWorkspace(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("LABSEARCH_PROVIDER", "static")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("NO_COLOR", "1")
	t.Setenv("LABSEARCH_QUERY_STATS", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "workspace.json")
	require.NoError(t, os.WriteFile(path, []byte(workspaceJSON), 0o600))
	return path
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	restoreLogging()
	return buf.String(), err
}

// mustExecute runs the root command and fails the test on error.
func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, out)
	return out
}
