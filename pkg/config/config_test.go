package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/config"
)

func TestLoad_AppliesDefaultsForMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
key_dir: `+dir+`/keys
user_dir: `+dir+`/users
container_dir: `+dir+`/containers
storage_dir: `+dir+`/storage
bridge_dir: `+dir+`/bridges
mount_manifests_dir: `+dir+`/mount-manifests
control_socket_path: `+dir+`/wildland.sock
sync_socket_path: `+dir+`/wildland-sync.sock
sync_db_path: `+dir+`/sync.db
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
}

func TestLoad_MissingFileFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "nonexistent.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.KeyDir)
	assert.NotEmpty(t, cfg.ControlSocketPath)
}

func TestValidate_RejectsMissingKeyDir(t *testing.T) {
	cfg := config.Default()
	cfg.KeyDir = ""
	assert.Error(t, config.Validate(cfg))
}

func TestSave_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")
	cfg := config.Default()

	require.NoError(t, config.Save(cfg, path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.KeyDir, loaded.KeyDir)
	assert.Equal(t, cfg.ControlSocketPath, loaded.ControlSocketPath)
}
