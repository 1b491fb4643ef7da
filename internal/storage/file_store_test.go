package storage

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/kernel-memory/internal/config"
)

// Test Plan for FileStore:
// - Write then Read returns the same bytes; nested names create directories
// - Names are cleaned so "../" cannot escape the root
// - Open of a missing file returns ErrNotFound
// - Remove reports whether something was removed
// - List returns sorted names, optionally under a prefix
// - Disk storage writes under its configured path
// - azureBlobs storage is rejected with ErrUnsupported

func TestFileStore_WriteRead(t *testing.T) {
	t.Parallel()
	store := NewFileStore(afero.NewMemMapFs())

	n, err := store.Write("docs/a.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	data, err := store.Read("docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	ok, err := store.Exists("docs/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStore_CleansNames(t *testing.T) {
	t.Parallel()
	store := NewFileStore(afero.NewMemMapFs())

	_, err := store.Write("../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)

	names, err := store.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"etc/passwd"}, names)

	_, err = store.Write("", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestFileStore_Missing(t *testing.T) {
	t.Parallel()
	store := NewFileStore(afero.NewMemMapFs())

	_, err := store.Open("nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := store.Remove("nope.txt")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestFileStore_RemoveAndList(t *testing.T) {
	t.Parallel()
	store := NewFileStore(afero.NewMemMapFs())

	for _, name := range []string{"b/2.txt", "a.txt", "b/1.txt"} {
		_, err := store.Write(name, strings.NewReader(name))
		require.NoError(t, err)
	}

	names, err := store.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b/1.txt", "b/2.txt"}, names)

	names, err = store.List("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b/1.txt", "b/2.txt"}, names)

	removed, err := store.Remove("b")
	require.NoError(t, err)
	assert.True(t, removed)

	names, err = store.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, names)

	names, err = store.List("missing")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestOpenFileStore_Disk(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	store, err := OpenFileStore(&config.DiskStorageConfig{Path: dir})
	require.NoError(t, err)
	_, err = store.Write("x/y.txt", strings.NewReader("disk"))
	require.NoError(t, err)

	data, err := afero.ReadFile(afero.NewOsFs(), dir+"/x/y.txt")
	require.NoError(t, err)
	assert.Equal(t, "disk", string(data))
}

func TestOpenFileStore_AzureBlobsUnsupported(t *testing.T) {
	t.Parallel()

	_, err := OpenFileStore(&config.AzureBlobsStorageConfig{Container: "c", ConnectionString: "x"})
	assert.ErrorIs(t, err, ErrUnsupported)
}
