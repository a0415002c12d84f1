package hashcache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/storage/hashcache"
)

func TestCache_PutGetInvalidate(t *testing.T) {
	c, err := hashcache.Open("")
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, found, err := c.Get(ctx, "backend1", "/a.txt")
	require.NoError(t, err)
	assert.False(t, found)

	entry := hashcache.Entry{Token: "123-456", Hash: "deadbeef", At: time.Now()}
	require.NoError(t, c.Put(ctx, "backend1", "/a.txt", entry))

	got, found, err := c.Get(ctx, "backend1", "/a.txt")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry.Hash, got.Hash)

	require.NoError(t, c.Invalidate(ctx, "backend1", "/a.txt"))
	_, found, err = c.Get(ctx, "backend1", "/a.txt")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_InvalidateBackend(t *testing.T) {
	c, err := hashcache.Open("")
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "b1", "/a", hashcache.Entry{Hash: "h1"}))
	require.NoError(t, c.Put(ctx, "b1", "/b", hashcache.Entry{Hash: "h2"}))
	require.NoError(t, c.Put(ctx, "b2", "/a", hashcache.Entry{Hash: "h3"}))

	require.NoError(t, c.InvalidateBackend(ctx, "b1"))

	_, found, _ := c.Get(ctx, "b1", "/a")
	assert.False(t, found)
	_, found, _ = c.Get(ctx, "b1", "/b")
	assert.False(t, found)
	_, found, _ = c.Get(ctx, "b2", "/a")
	assert.True(t, found)
}
