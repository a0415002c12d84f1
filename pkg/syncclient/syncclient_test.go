package syncclient_test

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
	"github.com/wildland/wildland-go/pkg/sig"
	"github.com/wildland/wildland-go/pkg/sync/hashdb"
	"github.com/wildland/wildland-go/pkg/syncclient"
	"github.com/wildland/wildland-go/pkg/syncd"
	"github.com/wildland/wildland-go/pkg/wlobject"

	_ "github.com/wildland/wildland-go/pkg/storage/local"
)

// startTestSyncDaemon spins up a real syncd.Server over a temp-dir Unix
// socket and returns a syncclient pointed at it, alongside the owner
// key and client.Client used to sign storage manifests, and the two
// backing directories sync will run between.
func startTestSyncDaemon(t *testing.T) (sc *syncclient.Client, owner string, sourceDir, targetDir string, cl *client.Client) {
	t.Helper()
	dir := t.TempDir()
	sourceDir = filepath.Join(dir, "source")
	targetDir = filepath.Join(dir, "target")
	require.NoError(t, os.MkdirAll(sourceDir, 0o755))
	require.NoError(t, os.MkdirAll(targetDir, 0o755))

	cfg := config.Default()
	cfg.UserDir = filepath.Join(dir, "users")
	cfg.ContainerDir = filepath.Join(dir, "containers")
	cfg.StorageDir = filepath.Join(dir, "storage")

	ctx := sig.NewDummy()
	cl = client.New(cfg, ctx)
	owner, _, err := ctx.Generate()
	require.NoError(t, err)

	hdb, err := hashdb.Open(filepath.Join(dir, "hashdb"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hdb.Close() })

	d := syncd.New(cl, hdb)
	socketPath := filepath.Join(dir, "sync-control.sock")
	srv := syncd.NewServer(socketPath, d)

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

	return syncclient.New(socketPath), owner, sourceDir, targetDir, cl
}

func signedStorage(t *testing.T, c *client.Client, owner, backing, backendID string) []byte {
	t.Helper()
	st := &wlobject.Storage{
		Common:        wlobject.Common{Object: "storage", Owner: owner, Version: "1"},
		Type:          "local",
		ContainerPath: "/photos",
		BackendID:     backendID,
		Params:        map[string]any{"path": backing},
	}
	path, err := c.SaveNewStorage(st, backendID)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestSyncclient_StartStatusStop(t *testing.T) {
	sc, owner, sourceDir, targetDir, cl := startTestSyncDaemon(t)

	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "f"), []byte("hello"), 0o644))

	sourceManifest := signedStorage(t, cl, owner, sourceDir, "source")
	targetManifest := signedStorage(t, cl, owner, targetDir, "target")

	jobID := owner + "|container-1"
	msg, err := sc.Start(context.Background(), syncclient.StartRequest{
		ContainerName:  "photos",
		JobID:          jobID,
		Continuous:     false,
		SourceManifest: sourceManifest,
		TargetManifest: targetManifest,
	})
	require.NoError(t, err)
	assert.Contains(t, msg, "target")

	require.Eventually(t, func() bool {
		st, err := sc.JobStatus(context.Background(), jobID)
		return err == nil && st.Status != ""
	}, 2*time.Second, 10*time.Millisecond)

	statuses, err := sc.Status(context.Background())
	require.NoError(t, err)
	assert.Len(t, statuses, 1)

	stopMsg, err := sc.Stop(context.Background(), jobID)
	require.NoError(t, err)
	assert.Contains(t, stopMsg, jobID)
}

func TestSyncclient_StopUnknownJobReturnsError(t *testing.T) {
	sc, _, _, _, _ := startTestSyncDaemon(t)
	_, err := sc.Stop(context.Background(), "does-not-exist")
	require.Error(t, err)
	var ctrlErr *syncclient.Error
	require.ErrorAs(t, err, &ctrlErr)
}

func TestSyncclient_StopAllAndShutdown(t *testing.T) {
	sc, owner, sourceDir, targetDir, cl := startTestSyncDaemon(t)

	sourceManifest := signedStorage(t, cl, owner, sourceDir, "source")
	targetManifest := signedStorage(t, cl, owner, targetDir, "target")

	jobID := owner + "|container-2"
	_, err := sc.Start(context.Background(), syncclient.StartRequest{
		ContainerName:  "photos",
		JobID:          jobID,
		Continuous:     true,
		SourceManifest: sourceManifest,
		TargetManifest: targetManifest,
	})
	require.NoError(t, err)

	require.NoError(t, sc.StopAll(context.Background()))

	statuses, err := sc.Status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, statuses)

	require.NoError(t, sc.Shutdown(context.Background()))
}
