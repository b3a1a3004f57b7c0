package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystem_RoundTrip(t *testing.T) {
	fs := OSFileSystem{}
	dir := t.TempDir()

	require.NoError(t, fs.MkdirAll(filepath.Join(dir, "a/b"), 0o755))
	assert.True(t, fs.Exists(filepath.Join(dir, "a/b")))

	path := filepath.Join(dir, "a/b/file.csv")
	f, err := fs.Create(path)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	names, err := fs.List(filepath.Join(dir, "a/b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"file.csv"}, names)
}

func TestMemoryFileSystem_RoundTrip(t *testing.T) {
	fs := NewMemoryFileSystem()

	require.NoError(t, fs.MkdirAll("x/y", 0o755))
	assert.True(t, fs.Exists("x/y"))
	assert.False(t, fs.Exists("x/z"))

	for _, name := range []string{"x/y/b.csv", "x/y/a.csv", "x/other.csv"} {
		f, err := fs.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(name))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	names, err := fs.List("x/y")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "b.csv"}, names, "listing is sorted and scoped to the directory")

	data, err := fs.ReadFile("x/y/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "x/y/a.csv", string(data))

	_, err = fs.ReadFile("missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMemoryFileSystem_CreateTruncates(t *testing.T) {
	fs := NewMemoryFileSystem()

	f, _ := fs.Create("f")
	f.Write([]byte("first"))
	f.Close()

	f, _ = fs.Create("f")
	f.Write([]byte("second"))
	f.Close()

	data, err := fs.ReadFile("f")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}
