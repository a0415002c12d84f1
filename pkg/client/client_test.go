package client_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/client"
	"github.com/wildland/wildland-go/pkg/config"
	"github.com/wildland/wildland-go/pkg/sig"
	"github.com/wildland/wildland-go/pkg/wlobject"

	_ "github.com/wildland/wildland-go/pkg/storage/local"
)

func writeEmpty(path string) error {
	return os.WriteFile(path, []byte("x"), 0o644)
}

func newTestClient(t *testing.T) (*client.Client, sig.Context, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.UserDir = filepath.Join(dir, "users")
	cfg.ContainerDir = filepath.Join(dir, "containers")
	cfg.StorageDir = filepath.Join(dir, "storage")
	cfg.BridgeDir = filepath.Join(dir, "bridges")

	ctx := sig.NewDummy()
	return client.New(cfg, ctx), ctx, dir
}

func TestSaveNewUser_ThenLoadUserFrom(t *testing.T) {
	c, ctx, _ := newTestClient(t)

	fp, pubkey, err := ctx.Generate()
	require.NoError(t, err)

	u := &wlobject.User{
		Common:  wlobject.Common{Object: "user", Owner: fp, Version: "1"},
		Pubkeys: []string{pubkey},
		Paths:   []string{"/users/alice"},
	}

	path, err := c.SaveNewUser(u, "alice")
	require.NoError(t, err)
	assert.FileExists(t, path)

	loaded, err := c.LoadUserFrom("alice")
	require.NoError(t, err)
	assert.Equal(t, fp, loaded.Owner)
	assert.Equal(t, []string{"/users/alice"}, loaded.Paths)
}

func TestSaveNewContainer_AssignsUUIDAndRoundTrips(t *testing.T) {
	c, ctx, _ := newTestClient(t)

	fp, _, err := ctx.Generate()
	require.NoError(t, err)

	ct := &wlobject.Container{
		Common: wlobject.Common{Object: "container", Owner: fp, Version: "1"},
		Paths:  []string{"/pictures"},
	}

	path, err := c.SaveNewContainer(ct, "")
	require.NoError(t, err)
	assert.NotEmpty(t, ct.UUID())

	loaded, err := c.LoadContainerFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, ct.UUID(), loaded.UUID())
	assert.Contains(t, loaded.Paths, "/pictures")
}

func TestSelectStorage_SkipsMismatchedOwnerAndPath(t *testing.T) {
	c, ctx, dir := newTestClient(t)

	fp, _, err := ctx.Generate()
	require.NoError(t, err)
	other, _, err := ctx.Generate()
	require.NoError(t, err)

	ct := &wlobject.Container{
		Common: wlobject.Common{Object: "container", Owner: fp, Version: "1"},
		Paths:  []string{wlobject.NewUUID(), "/photos"},
	}

	backends := []wlobject.StorageRef{
		{
			Kind: wlobject.StorageRefInline,
			Inline: &wlobject.Storage{
				Common:        wlobject.Common{Object: "storage", Owner: other, Version: "1"},
				Type:          "local",
				ContainerPath: "/photos",
				Params:        map[string]any{"path": dir},
			},
		},
		{
			Kind: wlobject.StorageRefInline,
			Inline: &wlobject.Storage{
				Common:        wlobject.Common{Object: "storage", Owner: fp, Version: "1"},
				Type:          "local",
				ContainerPath: "/unrelated",
				Params:        map[string]any{"path": dir},
			},
		},
		{
			Kind: wlobject.StorageRefInline,
			Inline: &wlobject.Storage{
				Common:        wlobject.Common{Object: "storage", Owner: fp, Version: "1"},
				Type:          "local",
				ContainerPath: "/photos",
				Params:        map[string]any{"path": dir},
			},
		},
	}

	st, err := c.SelectStorage(ct, backends)
	require.NoError(t, err)
	assert.Equal(t, "/photos", st.ContainerPath)
	assert.Equal(t, fp, st.Owner)
}

func TestSelectStorage_NoneUsable(t *testing.T) {
	c, ctx, _ := newTestClient(t)

	fp, _, err := ctx.Generate()
	require.NoError(t, err)

	ct := &wlobject.Container{
		Common: wlobject.Common{Object: "container", Owner: fp, Version: "1"},
		Paths:  []string{wlobject.NewUUID()},
	}

	_, err = c.SelectStorage(ct, nil)
	require.Error(t, err)
}

func TestNewPath_AvoidsCollision(t *testing.T) {
	dir := t.TempDir()
	p1, err := client.NewPath(dir, "foo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "foo.yaml"), p1)

	require.NoError(t, writeEmpty(p1))

	p2, err := client.NewPath(dir, "foo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "foo.1.yaml"), p2)
}
