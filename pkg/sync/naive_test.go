package sync_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/storage/local"
	wsync "github.com/wildland/wildland-go/pkg/sync"
	"github.com/wildland/wildland-go/pkg/sync/hashdb"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

func newLocalBackend(t *testing.T, dir string) storage.Backend {
	t.Helper()
	b, err := local.New(&wlobject.Storage{Params: map[string]any{"path": dir}})
	require.NoError(t, err)
	require.NoError(t, b.Mount(context.Background()))
	return b
}

func newSyncer(t *testing.T, sourceDir, targetDir string) *wsync.NaiveSyncer {
	t.Helper()
	db, err := hashdb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	source := newLocalBackend(t, sourceDir)
	target := newLocalBackend(t, targetDir)
	return wsync.NewNaiveSyncer("source", source, "target", target, db)
}

func TestOneShotSync_CopiesNewFile(t *testing.T) {
	sourceDir, targetDir := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "f"), []byte("abcd"), 0o644))

	s := newSyncer(t, sourceDir, targetDir)
	require.NoError(t, s.OneShotSync(context.Background(), false))

	data, err := os.ReadFile(filepath.Join(targetDir, "f"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))
	assert.Equal(t, wsync.StateSynced, s.Status())
}

func TestOneShotSync_DeletesPropagate(t *testing.T) {
	sourceDir, targetDir := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "f"), []byte("abcd"), 0o644))

	s := newSyncer(t, sourceDir, targetDir)
	require.NoError(t, s.OneShotSync(context.Background(), false))
	_, err := os.Stat(filepath.Join(targetDir, "f"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(sourceDir, "f")))
	require.NoError(t, s.OneShotSync(context.Background(), false))

	_, err = os.Stat(filepath.Join(targetDir, "f"))
	assert.True(t, os.IsNotExist(err))
}

func TestOneShotSync_RecordsUnresolvedConflict(t *testing.T) {
	sourceDir, targetDir := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "f"), []byte("aaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(targetDir, "f"), []byte("bbb"), 0o644))

	s := newSyncer(t, sourceDir, targetDir)
	require.NoError(t, s.OneShotSync(context.Background(), false))

	conflicts := s.IterConflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "/f", conflicts[0].Path)

	// Neither side was touched.
	sourceData, err := os.ReadFile(filepath.Join(sourceDir, "f"))
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(sourceData))
	targetData, err := os.ReadFile(filepath.Join(targetDir, "f"))
	require.NoError(t, err)
	assert.Equal(t, "bbb", string(targetData))
}

func TestOneShotSync_CreatesMissingDirectories(t *testing.T) {
	sourceDir, targetDir := t.TempDir(), t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(sourceDir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "sub", "f"), []byte("x"), 0o644))

	s := newSyncer(t, sourceDir, targetDir)
	require.NoError(t, s.OneShotSync(context.Background(), false))

	data, err := os.ReadFile(filepath.Join(targetDir, "sub", "f"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestOneShotSync_Unidirectional_DoesNotPullFromTarget(t *testing.T) {
	sourceDir, targetDir := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(targetDir, "only-on-target"), []byte("x"), 0o644))

	s := newSyncer(t, sourceDir, targetDir)
	require.NoError(t, s.OneShotSync(context.Background(), true))

	_, err := os.Stat(filepath.Join(sourceDir, "only-on-target"))
	assert.True(t, os.IsNotExist(err))
}
