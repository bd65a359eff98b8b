package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_WithDefaults(t *testing.T) {
	opts := Options{DebounceWindow: time.Second}.WithDefaults()

	assert.Equal(t, time.Second, opts.DebounceWindow)
	assert.Equal(t, 2*time.Second, opts.PollInterval)
	assert.Equal(t, 16, opts.EventBufferSize)
	assert.Equal(t, 500*time.Millisecond, DefaultOptions().DebounceWindow)
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "UNKNOWN", Operation(42).String())
}

func TestNewFileWatcher_Validation(t *testing.T) {
	_, err := NewFileWatcher(nil, DefaultOptions())
	assert.Error(t, err)

	_, err = NewFileWatcher([]string{"/definitely/not/here/export.json"}, DefaultOptions())
	assert.Error(t, err)
}

func startWatcher(t *testing.T, paths []string, opts Options) *FileWatcher {
	t.Helper()
	w, err := NewFileWatcher(paths, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
		<-done
	})

	// Give the watch loop time to start.
	time.Sleep(50 * time.Millisecond)
	return w
}

func TestFileWatcher_ReportsChangesToWatchedFileOnly(t *testing.T) {
	for _, polling := range []bool{false, true} {
		name := "fsnotify"
		if polling {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			// Given: a workspace file and an unrelated sibling
			dir := t.TempDir()
			ws := filepath.Join(dir, "export.json")
			require.NoError(t, os.WriteFile(ws, []byte(`{}`), 0o644))

			w := startWatcher(t, []string{ws}, Options{
				DebounceWindow: 30 * time.Millisecond,
				PollInterval:   20 * time.Millisecond,
				ForcePolling:   polling,
			})
			if !polling {
				assert.Equal(t, "fsnotify", w.Mode())
			} else {
				assert.Equal(t, "polling", w.Mode())
			}

			// When: both files are written
			require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
			require.NoError(t, os.WriteFile(ws, []byte(`{"projects":[]}`), 0o644))

			// Then: one batch names only the workspace file
			batch := receive(t, w.Events(), 2*time.Second)
			require.NotEmpty(t, batch)
			for _, ev := range batch {
				assert.Equal(t, ws, ev.Path)
			}
		})
	}
}

func TestFileWatcher_SeesCreateOfMissingFile(t *testing.T) {
	dir := t.TempDir()
	ws := filepath.Join(dir, "export.yaml")

	w := startWatcher(t, []string{ws}, Options{DebounceWindow: 30 * time.Millisecond})

	require.NoError(t, os.WriteFile(ws, []byte("projects: []\n"), 0o644))

	batch := receive(t, w.Events(), 2*time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestFileWatcher_StopClosesChannels(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWatcher([]string{filepath.Join(dir, "export.json")}, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
}

func TestFileWatcher_DeduplicatesPaths(t *testing.T) {
	dir := t.TempDir()
	ws := filepath.Join(dir, "export.json")

	w, err := NewFileWatcher([]string{ws, ws, filepath.Join(dir, ".", "export.json")}, Options{ForcePolling: true})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	assert.Equal(t, []string{ws}, w.Paths())
}

func TestPoller_DetectsLifecycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.json")

	var got []Operation
	p := newPoller(time.Hour, []string{path}, func(ev FileEvent) { got = append(got, ev.Operation) })

	p.check()
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	p.check()
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	p.check()
	require.NoError(t, os.Remove(path))
	p.check()

	assert.Equal(t, []Operation{OpCreate, OpModify, OpDelete}, got)
}
