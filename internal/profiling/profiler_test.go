package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Enabled(t *testing.T) {
	assert.False(t, Options{}.Enabled())
	assert.True(t, Options{MemPath: "heap.prof"}.Enabled())
}

func TestSession_WritesRequestedProfiles(t *testing.T) {
	// Given: all three profiles requested
	dir := t.TempDir()
	opts := Options{
		CPUPath:   filepath.Join(dir, "cpu.prof"),
		MemPath:   filepath.Join(dir, "mem.prof"),
		TracePath: filepath.Join(dir, "trace.out"),
	}

	// When: running a session
	s, err := Start(opts)
	require.NoError(t, err)
	sum := 0
	for i := 0; i < 100000; i++ {
		sum += i
	}
	require.NoError(t, s.Stop())

	// Then: every file exists and is non-empty
	for _, p := range []string{opts.CPUPath, opts.MemPath, opts.TracePath} {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.Positive(t, info.Size(), p)
	}
	assert.Positive(t, sum)

	// And: stopping again is a no-op
	assert.NoError(t, s.Stop())
}

func TestStart_BadPath(t *testing.T) {
	_, err := Start(Options{CPUPath: filepath.Join(t.TempDir(), "missing", "cpu.prof")})
	assert.Error(t, err)
}

func TestSession_NilStop(t *testing.T) {
	var s *Session
	assert.NoError(t, s.Stop())
}
