package hashdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/sync/hashdb"
)

func TestRetrieveHash_NoEntryReturnsEmpty(t *testing.T) {
	db, err := hashdb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hc, ok, err := db.RetrieveHash("backend-1", "/foo")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, hashdb.HashCache{}, hc)
}

func TestStoreAndRetrieveHash_RoundTrips(t *testing.T) {
	db, err := hashdb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.StoreHash("backend-1", "/foo", hashdb.HashCache{Hash: "abc", Token: "1"}))

	hc, ok, err := db.RetrieveHash("backend-1", "/foo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", hc.Hash)
	assert.Equal(t, "1", hc.Token)

	// Storing again for the same key overwrites rather than erroring.
	require.NoError(t, db.StoreHash("backend-1", "/foo", hashdb.HashCache{Hash: "def", Token: "2"}))
	hc, ok, err = db.RetrieveHash("backend-1", "/foo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "def", hc.Hash)
}

func TestDeleteHash(t *testing.T) {
	db, err := hashdb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.StoreHash("backend-1", "/foo", hashdb.HashCache{Hash: "abc"}))
	require.NoError(t, db.DeleteHash("backend-1", "/foo"))

	_, ok, err := db.RetrieveHash("backend-1", "/foo")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetConflicts(t *testing.T) {
	db, err := hashdb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.UpdateStoragesForContainers("container-1", []string{"backend-a", "backend-b"}))
	require.NoError(t, db.StoreHash("backend-a", "/foo", hashdb.HashCache{Hash: "aaa"}))
	require.NoError(t, db.StoreHash("backend-b", "/foo", hashdb.HashCache{Hash: "bbb"}))
	require.NoError(t, db.StoreHash("backend-a", "/bar", hashdb.HashCache{Hash: "same"}))
	require.NoError(t, db.StoreHash("backend-b", "/bar", hashdb.HashCache{Hash: "same"}))

	conflicts, err := db.GetConflicts("container-1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "/foo", conflicts[0].Path)
}

func TestGetConflicts_SingleBackendNeverConflicts(t *testing.T) {
	db, err := hashdb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.UpdateStoragesForContainers("container-1", []string{"backend-a"}))
	conflicts, err := db.GetConflicts("container-1")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}
