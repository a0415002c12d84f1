package manifest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/manifest"
	"github.com/wildland/wildland-go/pkg/wlerr"
)

func TestParseHeader_SignatureBlock(t *testing.T) {
	data := []byte("signature: |\n  abc\n  def")
	h, err := manifest.ParseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, "abc\ndef", h.Signature)
	assert.False(t, h.HasPubkey)
}

func TestParseHeader_SignatureAndPubkey(t *testing.T) {
	data := []byte("signature: |\n  sig1\npubkey: |\n  key1\n  key2")
	h, err := manifest.ParseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, "sig1", h.Signature)
	assert.Equal(t, "key1\nkey2", h.Pubkey)
}

func TestParseHeader_DuplicateField(t *testing.T) {
	data := []byte("signature: |\n  a\nsignature: |\n  b")
	_, err := manifest.ParseHeader(data)
	require.Error(t, err)
	assert.True(t, wlerr.Is(err, wlerr.HeaderParse))
}

func TestParseHeader_UnknownField(t *testing.T) {
	data := []byte(`other: "x"`)
	_, err := manifest.ParseHeader(data)
	require.Error(t, err)
	assert.True(t, wlerr.Is(err, wlerr.HeaderParse))
}

func TestParseHeader_EmptyBlockIsError(t *testing.T) {
	data := []byte("signature: |\n")
	_, err := manifest.ParseHeader(data)
	require.Error(t, err)
}

func TestHeaderBytes_RoundTrip(t *testing.T) {
	h := &manifest.Header{Signature: "line1\nline2", HasSig: true, Pubkey: "pk", HasPubkey: true}
	data, err := h.Bytes()
	require.NoError(t, err)

	parsed, err := manifest.ParseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, h.Signature, parsed.Signature)
	assert.Equal(t, h.Pubkey, parsed.Pubkey)
}
