package dateproxy_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/storage/dateproxy"
	"github.com/wildland/wildland-go/pkg/storage/local"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

func newReference(t *testing.T) *local.Backend {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(root+"/dir1", 0o755))
	require.NoError(t, os.WriteFile(root+"/dir1/file1", []byte("file 1"), 0o644))
	mtime := time.Date(2010, 5, 7, 10, 30, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(root+"/dir1/file1", mtime, mtime))

	require.NoError(t, os.MkdirAll(root+"/dir2/dir3", 0o755))
	require.NoError(t, os.WriteFile(root+"/dir2/dir3/file2", []byte("file 2"), 0o644))
	mtime2 := time.Date(2008, 2, 3, 10, 30, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(root+"/dir2/dir3/file2", mtime2, mtime2))

	b, err := local.New(&wlobject.Storage{Type: "local", Params: map[string]any{"path": root}})
	require.NoError(t, err)
	return b.(*local.Backend)
}

func TestDateProxy_ReindexesByDate(t *testing.T) {
	ref := newReference(t)
	b, err := dateproxy.NewWithReference(&wlobject.Storage{Type: "date-proxy"}, ref)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Mount(ctx))
	assert.True(t, b.ReadOnly())

	top, err := b.Readdir(ctx, "/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"2008", "2010"}, top)

	names, err := b.Readdir(ctx, "/2010/05/07/dir1")
	require.NoError(t, err)
	assert.Equal(t, []string{"file1"}, names)

	h, err := b.Open(ctx, "/2010/05/07/dir1/file1", os.O_RDONLY)
	require.NoError(t, err)
	data, err := b.Read(ctx, h, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, "file 1", string(data))
	require.NoError(t, b.Release(ctx, h))
}

func TestDateProxy_GetChildren(t *testing.T) {
	ref := newReference(t)
	b, err := dateproxy.NewWithReference(&wlobject.Storage{Type: "date-proxy"}, ref)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Mount(ctx))

	stubs, err := b.GetChildren(ctx, "*")
	require.NoError(t, err)
	require.Len(t, stubs, 2)
	assert.Equal(t, "/timeline/2008/02/03", stubs[0].Path)
	assert.Equal(t, "/timeline/2010/05/07", stubs[1].Path)
}
