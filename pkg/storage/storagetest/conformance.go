// Package storagetest is a conformance suite shared by every backend
// implementation: a single Run function exercises the Backend interface
// against a fresh instance and fails the enclosing test on any
// violation, so new backends only need a constructor and a call here.
package storagetest

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/storage"
)

// Run exercises the basic read/write/directory contract every
// read-write Backend must satisfy. Backends that are read-only should
// call RunReadOnly instead.
func Run(t *testing.T, b storage.Backend) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, b.Mount(ctx))
	defer b.Unmount(ctx)

	require.NoError(t, b.Mkdir(ctx, "/dir", 0o755))
	attr, err := b.Getattr(ctx, "/dir")
	require.NoError(t, err)
	assert.True(t, attr.IsDir())

	h, err := b.Create(ctx, "/dir/file.txt", os.O_WRONLY, 0o644)
	require.NoError(t, err)
	n, err := b.Write(ctx, h, 0, []byte("hello wildland"))
	require.NoError(t, err)
	assert.Equal(t, len("hello wildland"), n)
	require.NoError(t, b.Fsync(ctx, h))
	require.NoError(t, b.Release(ctx, h))

	attr, err = b.Getattr(ctx, "/dir/file.txt")
	require.NoError(t, err)
	assert.False(t, attr.IsDir())
	assert.Equal(t, int64(len("hello wildland")), attr.Size)

	rh, err := b.Open(ctx, "/dir/file.txt", os.O_RDONLY)
	require.NoError(t, err)
	data, err := b.Read(ctx, rh, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, "hello wildland", string(data))
	require.NoError(t, b.Release(ctx, rh))

	names, err := b.Readdir(ctx, "/dir")
	require.NoError(t, err)
	assert.Contains(t, names, "file.txt")

	hash, err := b.GetHash(ctx, "/dir/file.txt")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	require.NoError(t, b.Rename(ctx, "/dir/file.txt", "/dir/renamed.txt"))
	_, err = b.Getattr(ctx, "/dir/file.txt")
	assert.Error(t, err)
	_, err = b.Getattr(ctx, "/dir/renamed.txt")
	assert.NoError(t, err)

	require.NoError(t, b.Unlink(ctx, "/dir/renamed.txt"))
	require.NoError(t, b.Rmdir(ctx, "/dir"))
}

// RunReadOnly exercises the subset of the contract a read-only backend
// (e.g. a date-proxy view) must still satisfy: ReadOnly reports true,
// Getattr on existingFile succeeds, and Mkdir fails. It does not check
// listings, other mutating calls, or which error code Mkdir returns.
func RunReadOnly(t *testing.T, b storage.Backend, existingFile string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, b.Mount(ctx))
	defer b.Unmount(ctx)

	assert.True(t, b.ReadOnly())

	_, err := b.Getattr(ctx, existingFile)
	require.NoError(t, err)

	err = b.Mkdir(ctx, "/should-fail", 0o755)
	require.Error(t, err)
}
