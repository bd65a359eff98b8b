package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLock_Exclusive(t *testing.T) {
	// Given: a lock in a directory that does not exist yet
	path := filepath.Join(t.TempDir(), "nested", "index.lock")
	first := NewFileLock(path)
	second := NewFileLock(path)

	// When: the first holder acquires it
	ok, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, first.IsLocked())

	// Then: the second holder cannot
	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, second.IsLocked())

	// And: after release it can
	require.NoError(t, first.Unlock())
	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock())
}

func TestFileLock_UnlockWhenNotLocked(t *testing.T) {
	l := NewFileLock(filepath.Join(t.TempDir(), "index.lock"))

	assert.NoError(t, l.Unlock())
	assert.NoError(t, l.Unlock())
	assert.Equal(t, filepath.Join(filepath.Dir(l.Path()), "index.lock"), l.Path())
}
