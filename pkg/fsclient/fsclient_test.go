package fsclient_test

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
	"github.com/wildland/wildland-go/pkg/sig"
	"github.com/wildland/wildland-go/pkg/wlobject"

	_ "github.com/wildland/wildland-go/pkg/storage/local"
)

// startTestDaemonWithClient spins up a real daemon.Server over a
// temp-dir Unix socket and returns an fsclient pointed at it, alongside
// the owner key and the client.Client used to sign manifests against
// the same user/container/storage directories the daemon reads from.
func startTestDaemonWithClient(t *testing.T) (fc *fsclient.Client, owner, backing string, cl *client.Client) {
	t.Helper()
	dir := t.TempDir()
	backing = filepath.Join(dir, "backing")
	require.NoError(t, os.MkdirAll(backing, 0o755))

	cfg := config.Default()
	cfg.UserDir = filepath.Join(dir, "users")
	cfg.ContainerDir = filepath.Join(dir, "containers")
	cfg.StorageDir = filepath.Join(dir, "storage")

	ctx := sig.NewDummy()
	cl = client.New(cfg, ctx)
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

	return fsclient.New(socketPath), owner, backing, cl
}

func startTestDaemon(t *testing.T) (*fsclient.Client, string, string) {
	t.Helper()
	fc, owner, backing, _ := startTestDaemonWithClient(t)
	return fc, owner, backing
}

func signedContainer(t *testing.T, c *client.Client, owner string) []byte {
	t.Helper()
	ct := &wlobject.Container{
		Common: wlobject.Common{Object: "container", Owner: owner, Version: "1"},
		Paths:  []string{wlobject.NewUUID(), "/photos"},
	}
	path, err := c.SaveNewContainer(ct, "")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func signedStorage(t *testing.T, c *client.Client, owner, backing string) []byte {
	t.Helper()
	st := &wlobject.Storage{
		Common:        wlobject.Common{Object: "storage", Owner: owner, Version: "1"},
		Type:          "local",
		ContainerPath: "/photos",
		Params:        map[string]any{"path": backing},
	}
	path, err := c.SaveNewStorage(st, "")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestFsclient_MountStatusUnmount(t *testing.T) {
	fc, owner, backing, cl := startTestDaemonWithClient(t)

	ctMsg := signedContainer(t, cl, owner)
	stMsg := signedStorage(t, cl, owner, backing)

	id, err := fc.Mount(context.Background(), fsclient.MountRequest{
		ContainerManifest: ctMsg,
		StorageManifest:   stMsg,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	paths, err := fc.Paths(context.Background())
	require.NoError(t, err)
	assert.Contains(t, paths["/photos"], id)

	info, err := fc.Info(context.Background())
	require.NoError(t, err)
	assert.Contains(t, info, id)
	assert.Equal(t, "local", info[id].Type)

	require.NoError(t, fc.Unmount(context.Background(), id))

	paths, err = fc.Paths(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, paths["/photos"], id)
}

func TestFsclient_UnmountUnknownReturnsError(t *testing.T) {
	fc, _, _ := startTestDaemon(t)
	err := fc.Unmount(context.Background(), "does-not-exist")
	require.Error(t, err)
	var ctrlErr *fsclient.Error
	require.ErrorAs(t, err, &ctrlErr)
}
