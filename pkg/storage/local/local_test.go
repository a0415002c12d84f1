package local_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/storage/local"
	"github.com/wildland/wildland-go/pkg/storage/storagetest"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

func newBackend(t *testing.T) storage.Backend {
	t.Helper()
	s := &wlobject.Storage{
		Type:   "local",
		Params: map[string]any{"path": t.TempDir()},
	}
	b, err := local.New(s)
	require.NoError(t, err)
	return b
}

func TestLocalBackend_Conformance(t *testing.T) {
	storagetest.Run(t, newBackend(t))
}

func TestLocalBackend_MissingPath(t *testing.T) {
	_, err := local.New(&wlobject.Storage{Type: "local"})
	require.Error(t, err)
}

func TestLocalBackend_PathEscape(t *testing.T) {
	b := newBackend(t)
	_, err := b.Getattr(t.Context(), "../../../etc/passwd")
	require.Error(t, err)
}
