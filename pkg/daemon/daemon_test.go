package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/client"
	"github.com/wildland/wildland-go/pkg/config"
	"github.com/wildland/wildland-go/pkg/daemon"
	"github.com/wildland/wildland-go/pkg/sig"
	"github.com/wildland/wildland-go/pkg/wlobject"

	_ "github.com/wildland/wildland-go/pkg/storage/local"
)

func newTestDaemon(t *testing.T) (*daemon.Daemon, string, string) {
	t.Helper()
	dir := t.TempDir()
	backing := filepath.Join(dir, "backing")
	require.NoError(t, os.MkdirAll(backing, 0o755))

	cfg := config.Default()
	cfg.UserDir = filepath.Join(dir, "users")
	cfg.ContainerDir = filepath.Join(dir, "containers")
	cfg.StorageDir = filepath.Join(dir, "storage")

	ctx := sig.NewDummy()
	c := client.New(cfg, ctx)
	owner, _, err := ctx.Generate()
	require.NoError(t, err)

	return daemon.New(c), owner, backing
}

func testContainer(owner string) *wlobject.Container {
	return &wlobject.Container{
		Common: wlobject.Common{Object: "container", Owner: owner, Version: "1"},
		Paths:  []string{wlobject.NewUUID(), "/photos"},
	}
}

func testStorage(owner, backing string) *wlobject.Storage {
	return &wlobject.Storage{
		Common:        wlobject.Common{Object: "storage", Owner: owner, Version: "1"},
		Type:          "local",
		ContainerPath: "/photos",
		Params:        map[string]any{"path": backing},
	}
}

func TestDaemon_MountUnmount(t *testing.T) {
	d, owner, backing := newTestDaemon(t)
	ct := testContainer(owner)
	st := testStorage(owner, backing)

	id, err := d.Mount(context.Background(), daemon.MountRequest{
		Container:       ct,
		StorageOverride: st,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	paths := d.Table().Paths()
	assert.Contains(t, paths["/photos"], id)

	list := d.Table().List()
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	require.NoError(t, d.Unmount(context.Background(), id))
	assert.Empty(t, d.Table().List())
}

func TestDaemon_ProxyReaddirAndGetattr(t *testing.T) {
	d, owner, backing := newTestDaemon(t)
	require.NoError(t, os.WriteFile(filepath.Join(backing, "hello.txt"), []byte("hi"), 0o644))

	ct := testContainer(owner)
	st := testStorage(owner, backing)
	_, err := d.Mount(context.Background(), daemon.MountRequest{Container: ct, StorageOverride: st})
	require.NoError(t, err)

	proxy := daemon.NewProxy(d.Table())

	names, err := proxy.Readdir("/photos")
	require.NoError(t, err)
	assert.Contains(t, names, "hello.txt")

	attr, err := proxy.Getattr("/photos/hello.txt")
	require.NoError(t, err)
	assert.False(t, attr.IsDir())
	assert.Equal(t, int64(2), attr.Size)
}

func TestDaemon_UnmountUnknownFails(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	err := d.Unmount(context.Background(), "nope")
	require.Error(t, err)
}
