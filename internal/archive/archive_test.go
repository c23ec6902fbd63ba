package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObjectNameIsStablePerURL(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	a := objectName("snapshots", "books", "http://books.example/page-1", now)
	b := objectName("snapshots", "books", "http://books.example/page-1", now)
	c := objectName("snapshots", "books", "http://books.example/page-2", now)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.True(t, strings.HasPrefix(a, "snapshots/books/"))
	require.True(t, strings.HasSuffix(a, ".html"))
}

func TestLocalSaveWritesSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, err := NewLocal(dir)
	require.NoError(t, err)

	uri, err := a.Save(context.Background(), "books", "http://books.example/", []byte("<html>broken</html>"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))

	path := strings.TrimPrefix(uri, "file://")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("<html>broken</html>"), data)
	require.True(t, strings.HasPrefix(filepath.Clean(path), filepath.Clean(dir)))
}

func TestNewLocalCreatesMissingDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "archive")
	_, err := NewLocal(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestMemorySave(t *testing.T) {
	t.Parallel()

	a := NewMemory()
	uri, err := a.Save(context.Background(), "products", "https://shop.example/", []byte("x"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "mem://"))
	require.Equal(t, 1, a.Len())
}

func TestNoOpSave(t *testing.T) {
	t.Parallel()

	uri, err := NoOp{}.Save(context.Background(), "books", "http://books.example/", []byte("x"))
	require.NoError(t, err)
	require.Empty(t, uri)
}
