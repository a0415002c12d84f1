package manifest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildland/wildland-go/pkg/manifest"
	"github.com/wildland/wildland-go/pkg/wlerr"
)

func TestParse_MissingSeparator(t *testing.T) {
	_, err := manifest.Parse([]byte("owner: x\nobject: user\n"))
	require.Error(t, err)
	assert.True(t, wlerr.Is(err, wlerr.MissingSeparator))
}

func TestParse_EmptyHeader(t *testing.T) {
	env, err := manifest.Parse([]byte("---\nowner: \"0xaaa\"\nobject: user\nversion: \"1\"\n"))
	require.NoError(t, err)
	assert.False(t, env.Header.HasSig)
	owner, ok := env.Fields.Owner()
	require.True(t, ok)
	assert.Equal(t, "0xaaa", owner)
}

func TestParse_RequiresOwnerAndObject(t *testing.T) {
	_, err := manifest.Parse([]byte("---\nobject: user\n"))
	require.Error(t, err)
	assert.True(t, wlerr.Is(err, wlerr.ManifestParse))
}

func TestRoundTrip_EmitParse(t *testing.T) {
	orig, err := manifest.Parse([]byte("---\nowner: \"0xaaa\"\nobject: user\nversion: \"1\"\n"))
	require.NoError(t, err)

	body, err := manifest.EmitUnsigned(orig.Fields)
	require.NoError(t, err)

	signed, err := manifest.EmitSigned(body, "dummy.0xaaa", "", false)
	require.NoError(t, err)

	reparsed, err := manifest.Parse(signed)
	require.NoError(t, err)

	assert.Equal(t, body, reparsed.Body)
	assert.Equal(t, "dummy.0xaaa", reparsed.Header.Signature)

	owner, _ := reparsed.Fields.Owner()
	assert.Equal(t, "0xaaa", owner)
}

func TestRoundTrip_SelfSignedWithPubkey(t *testing.T) {
	body := []byte("owner: \"0xbbb\"\nobject: user\nversion: \"1\"\n")
	signed, err := manifest.EmitSigned(body, "dummy.0xbbb", "key.0xbbb", true)
	require.NoError(t, err)

	env, err := manifest.Parse(signed)
	require.NoError(t, err)
	assert.True(t, env.Header.HasPubkey)
	assert.Equal(t, "key.0xbbb", env.Header.Pubkey)
}
