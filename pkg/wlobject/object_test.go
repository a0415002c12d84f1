package wlobject_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/manifest"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

func parseFields(t *testing.T, body string) *manifest.Fields {
	t.Helper()
	env, err := manifest.Parse([]byte("---\n" + body))
	require.NoError(t, err)
	return env.Fields
}

func TestDecodeContainer_RequiresUUIDPath(t *testing.T) {
	fields := parseFields(t, `
object: container
owner: "0xaaa"
version: "1"
paths:
  - /not-a-uuid
backends:
  storage: []
`)
	_, err := wlobject.DecodeContainer(fields)
	require.Error(t, err)
}

func TestDecodeContainer_UUIDExtraction(t *testing.T) {
	fields := parseFields(t, `
object: container
owner: "0xaaa"
version: "1"
paths:
  - /.uuid/8f14e45f-ceea-4f7d-9b5a-3c6e1f4f8a1a
  - /my/path
title: Photos
categories:
  - /albums
backends:
  storage: []
`)
	c, err := wlobject.DecodeContainer(fields)
	require.NoError(t, err)
	assert.Equal(t, "8f14e45f-ceea-4f7d-9b5a-3c6e1f4f8a1a", c.UUID())
	assert.Equal(t, []string{"/albums/Photos"}, c.CategoryMountPaths())
}

func TestDecodeContainer_BackendsStorageMixedShapes(t *testing.T) {
	fields := parseFields(t, `
object: container
owner: "0xaaa"
version: "1"
paths:
  - /.uuid/8f14e45f-ceea-4f7d-9b5a-3c6e1f4f8a1a
backends:
  storage:
    - file:///a/b.storage.yaml
    - object: link
      file: /storage.yaml
      storage:
        object: storage
        owner: "0xaaa"
        version: "1"
        type: local
        container-path: /.uuid/8f14e45f-ceea-4f7d-9b5a-3c6e1f4f8a1a
`)
	c, err := wlobject.DecodeContainer(fields)
	require.NoError(t, err)
	require.Len(t, c.Backends.Storage, 2)
	assert.Equal(t, wlobject.StorageRefURL, c.Backends.Storage[0].Kind)
	assert.Equal(t, wlobject.StorageRefLink, c.Backends.Storage[1].Kind)
}

func TestDecodeStorage_ValidatesContainerPathMembership(t *testing.T) {
	containerFields := parseFields(t, `
object: container
owner: "0xaaa"
version: "1"
paths:
  - /.uuid/8f14e45f-ceea-4f7d-9b5a-3c6e1f4f8a1a
backends:
  storage: []
`)
	container, err := wlobject.DecodeContainer(containerFields)
	require.NoError(t, err)

	storageFields := parseFields(t, `
object: storage
owner: "0xaaa"
version: "1"
type: local
container-path: /some/other/path
`)
	_, err = wlobject.DecodeStorage(storageFields, container)
	require.Error(t, err)
}

func TestContainer_IsEncrypted(t *testing.T) {
	fields := parseFields(t, `
object: container
owner: "0xaaa"
version: "1"
paths:
  - /.uuid/8f14e45f-ceea-4f7d-9b5a-3c6e1f4f8a1a
backends:
  storage: []
access:
  - user: "0xbbb"
`)
	c, err := wlobject.DecodeContainer(fields)
	require.NoError(t, err)
	assert.True(t, c.IsEncrypted())
}
