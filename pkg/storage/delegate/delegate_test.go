package delegate_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/storage/delegate"
	"github.com/wildland/wildland-go/pkg/storage/local"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

func TestDelegate_NarrowsToSubdirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(root+"/2010/05/07/dir1", 0o755))
	require.NoError(t, os.WriteFile(root+"/2010/05/07/dir1/file1", []byte("hi"), 0o644))

	ref, err := local.New(&wlobject.Storage{Type: "local", Params: map[string]any{"path": root}})
	require.NoError(t, err)

	d, err := delegate.NewWithReference(
		&wlobject.Storage{Type: "delegate", Params: map[string]any{"subdirectory": "/2010/05/07"}},
		ref,
	)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, d.Mount(ctx))

	names, err := d.Readdir(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"dir1"}, names)

	h, err := d.Open(ctx, "/dir1/file1", os.O_RDONLY)
	require.NoError(t, err)
	data, err := d.Read(ctx, h, 0, 16)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
	require.NoError(t, d.Release(ctx, h))
}

func TestDelegate_Unresolved(t *testing.T) {
	_, err := delegate.New(&wlobject.Storage{Type: "delegate"})
	require.Error(t, err)
}
