package remounter_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/client"
	"github.com/wildland/wildland-go/pkg/config"
	"github.com/wildland/wildland-go/pkg/daemon"
	"github.com/wildland/wildland-go/pkg/fsclient"
	"github.com/wildland/wildland-go/pkg/remounter"
	"github.com/wildland/wildland-go/pkg/sig"
	"github.com/wildland/wildland-go/pkg/wlobject"

	_ "github.com/wildland/wildland-go/pkg/storage/local"
)

type testHarness struct {
	fc      *fsclient.Client
	cl      *client.Client
	owner   string
	catalog string // local dir backing the mounted catalog storage
}

func startHarness(t *testing.T) testHarness {
	t.Helper()
	dir := t.TempDir()
	catalog := filepath.Join(dir, "catalog")
	require.NoError(t, os.MkdirAll(catalog, 0o755))

	cfg := config.Default()
	cfg.UserDir = filepath.Join(dir, "users")
	cfg.ContainerDir = filepath.Join(dir, "containers")
	cfg.StorageDir = filepath.Join(dir, "storage")

	ctx := sig.NewDummy()
	cl := client.New(cfg, ctx)
	owner, _, err := ctx.Generate()
	require.NoError(t, err)

	d := daemon.New(cl)
	socketPath := filepath.Join(dir, "control.sock")
	srv := daemon.NewServer(socketPath, d)

	serverCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Start(serverCtx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	return testHarness{fc: fsclient.New(socketPath), cl: cl, owner: owner, catalog: catalog}
}

func mountCatalog(t *testing.T, h testHarness) string {
	t.Helper()
	ct := &wlobject.Container{
		Common: wlobject.Common{Object: "container", Owner: h.owner, Version: "1"},
		Paths:  []string{wlobject.NewUUID(), "/catalog"},
	}
	ctPath, err := h.cl.SaveNewContainer(ct, "")
	require.NoError(t, err)
	ctData, err := os.ReadFile(ctPath)
	require.NoError(t, err)

	st := &wlobject.Storage{
		Common:        wlobject.Common{Object: "storage", Owner: h.owner, Version: "1"},
		Type:          "local",
		ContainerPath: "/catalog",
		Params:        map[string]any{"path": h.catalog},
	}
	stPath, err := h.cl.SaveNewStorage(st, "")
	require.NoError(t, err)
	stData, err := os.ReadFile(stPath)
	require.NoError(t, err)

	id, err := h.fc.Mount(context.Background(), fsclient.MountRequest{
		ContainerManifest: ctData,
		StorageManifest:   stData,
	})
	require.NoError(t, err)
	return id
}

func writeContainerManifest(t *testing.T, h testHarness, relName, mountPath string) string {
	t.Helper()
	ct := &wlobject.Container{
		Common: wlobject.Common{Object: "container", Owner: h.owner, Version: "1"},
		Paths:  []string{wlobject.NewUUID(), mountPath},
	}
	path, err := h.cl.SaveNewContainer(ct, relName)
	require.NoError(t, err)
	dest := filepath.Join(h.catalog, relName+".yaml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dest, data, 0o644))
	return dest
}

func TestRemounter_MountsNewManifest(t *testing.T) {
	h := startHarness(t)
	catalogID := mountCatalog(t, h)

	dest := writeContainerManifest(t, h, "photos", "/photos")

	r := remounter.New(h.fc, h.cl)
	require.NoError(t, r.HandleManifestChanged(context.Background(), dest))
	r.MountPending(context.Background())

	paths, err := h.fc.Paths(context.Background())
	require.NoError(t, err)
	assert.Contains(t, paths, "/photos")

	info, err := h.fc.Info(context.Background())
	require.NoError(t, err)
	var found bool
	for id, si := range info {
		if id == catalogID {
			continue
		}
		if contains(si.Paths, "/photos") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRemounter_UnmountsDeletedManifest(t *testing.T) {
	h := startHarness(t)
	mountCatalog(t, h)
	dest := writeContainerManifest(t, h, "photos", "/photos")

	r := remounter.New(h.fc, h.cl)
	require.NoError(t, r.HandleManifestChanged(context.Background(), dest))
	r.MountPending(context.Background())

	paths, err := h.fc.Paths(context.Background())
	require.NoError(t, err)
	assert.Contains(t, paths, "/photos")

	r.HandleManifestDeleted(context.Background(), dest)
	r.UnmountPending(context.Background())

	paths, err = h.fc.Paths(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, paths, "/photos")
}

func TestRemounter_SkipsUnchangedManifest(t *testing.T) {
	h := startHarness(t)
	mountCatalog(t, h)
	dest := writeContainerManifest(t, h, "photos", "/photos")

	r := remounter.New(h.fc, h.cl)
	require.NoError(t, r.HandleManifestChanged(context.Background(), dest))
	r.MountPending(context.Background())

	infoBefore, err := h.fc.Info(context.Background())
	require.NoError(t, err)

	// Re-handling the same, unchanged manifest must not requeue a mount.
	require.NoError(t, r.HandleManifestChanged(context.Background(), dest))
	r.MountPending(context.Background())

	infoAfter, err := h.fc.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(infoBefore), len(infoAfter))
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
