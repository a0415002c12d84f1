package syncd_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/client"
	"github.com/wildland/wildland-go/pkg/config"
	"github.com/wildland/wildland-go/pkg/sig"
	"github.com/wildland/wildland-go/pkg/sync/hashdb"
	"github.com/wildland/wildland-go/pkg/syncd"
	"github.com/wildland/wildland-go/pkg/wlobject"

	_ "github.com/wildland/wildland-go/pkg/storage/local"
)

func newDaemon(t *testing.T) *syncd.Daemon {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cl := client.New(cfg, sig.NewDummy())
	hdb, err := hashdb.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hdb.Close() })
	return syncd.New(cl, hdb)
}

func TestDaemon_StopUnknownJobReturnsError(t *testing.T) {
	d := newDaemon(t)
	_, err := d.StopSync("nobody|nothing")
	require.Error(t, err)
}

func TestDaemon_StartSyncRunsOneShotJob(t *testing.T) {
	d := newDaemon(t)
	sourceDir, targetDir := t.TempDir(), t.TempDir()

	source := &wlobject.Storage{Type: "local", BackendID: "source", Params: map[string]any{"path": sourceDir}}
	target := &wlobject.Storage{Type: "local", BackendID: "target", Params: map[string]any{"path": targetDir}}

	msg, err := d.StartSync(context.Background(), syncd.StartSyncRequest{
		ContainerName: "photos",
		JobID:         "me|container-1",
		Continuous:    false,
		Source:        source,
		Target:        target,
	})
	require.NoError(t, err)
	assert.Contains(t, msg, "target")

	_, err = d.StopSync("me|container-1")
	require.NoError(t, err)
}

func TestDaemon_StartSyncTwiceWithSameJobIDFails(t *testing.T) {
	d := newDaemon(t)
	sourceDir, targetDir := t.TempDir(), t.TempDir()
	source := &wlobject.Storage{Type: "local", BackendID: "source", Params: map[string]any{"path": sourceDir}}
	target := &wlobject.Storage{Type: "local", BackendID: "target", Params: map[string]any{"path": targetDir}}

	req := syncd.StartSyncRequest{ContainerName: "photos", JobID: "me|container-2", Continuous: true, Source: source, Target: target}
	_, err := d.StartSync(context.Background(), req)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = d.StopSync("me|container-2") })

	_, err = d.StartSync(context.Background(), req)
	require.Error(t, err)
}
