package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Lock:
// - The same name maps to the same file, different names to different files
// - A second holder gets ErrHeld until the first releases
// - Release without acquiring is a no-op

func TestNew_Paths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.Equal(t, New(dir, "/home/a/notes").Path(), New(dir, "/home/a/notes").Path())
	assert.NotEqual(t, New(dir, "/home/a/notes").Path(), New(dir, "/home/b/notes").Path())
}

func TestLock_Exclusive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := New(dir, "watch")
	second := New(dir, "watch")

	require.NoError(t, first.TryAcquire())
	assert.ErrorIs(t, second.TryAcquire(), ErrHeld)

	require.NoError(t, first.Release())
	require.NoError(t, second.TryAcquire())
	require.NoError(t, second.Release())
}

func TestLock_ReleaseUnheld(t *testing.T) {
	t.Parallel()

	assert.NoError(t, New(t.TempDir(), "x").Release())
}
