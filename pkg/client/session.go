// Package client implements the high-level object loader: decoding and
// verifying manifest bytes into typed Wildland objects, loading them by
// short name/local path/URL, saving new ones under the per-type
// directories, selecting a storage to mount for a container, and
// publishing/unpublishing a container's manifests to its owner's
// manifest catalog.
package client

import (
	"github.com/wildland/wildland-go/pkg/manifest"
	"github.com/wildland/wildland-go/pkg/sig"
	"github.com/wildland/wildland-go/pkg/wlerr"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

// session parses and verifies manifest envelopes against a signature
// context, and serializes typed objects back into signed envelopes: a
// small stateless codec sitting between the raw bytes and the typed
// object (pkg/manifest's own Envelope/Fields split plays the same role
// one layer down).
type session struct {
	sig sig.Context
}

func newSession(s sig.Context) *session {
	return &session{sig: s}
}

// verify parses data, and either accepts trustedSigner outright (the
// local-trusted-storage read path: a `trusted: true` storage's objects
// are accepted without a signature check) or checks the envelope's
// signature against the declared owner, returning the owner fingerprint
// that should be recorded as the object's signer.
func (s *session) verify(data []byte, trustedSigner string) (*manifest.Envelope, string, error) {
	env, err := manifest.Parse(data)
	if err != nil {
		return nil, "", err
	}
	owner, _ := env.Fields.Owner()

	if trustedSigner != "" {
		return env, trustedSigner, nil
	}

	if env.Header.HasPubkey {
		if _, err := s.sig.AddPubkey(env.Header.Pubkey, owner); err != nil {
			return nil, "", err
		}
	}

	if !env.Header.HasSig {
		return nil, "", wlerr.New(wlerr.BadSignature, "manifest has no signature and is not from a trusted storage")
	}

	signer, err := s.sig.Verify(env.Header.Signature, env.Body)
	if err != nil {
		return nil, "", err
	}
	if _, ok := s.sig.PossibleOwners(signer)[owner]; !ok {
		return nil, "", wlerr.New(wlerr.BadSignature, "signer %q is not endorsed by declared owner %q", signer, owner)
	}
	return env, owner, nil
}

// dump serializes fields, signs the canonical body as owner, and
// returns the full signed envelope bytes.
func (s *session) dump(owner string, fields *manifest.Fields) ([]byte, error) {
	body, err := manifest.EmitUnsigned(fields)
	if err != nil {
		return nil, err
	}
	signature, err := s.sig.Sign(owner, body, false)
	if err != nil {
		return nil, err
	}
	return manifest.EmitSigned(body, signature, "", false)
}

// LoadUser decodes and verifies a user manifest.
func (s *session) LoadUser(data []byte, trustedSigner string) (*wlobject.User, string, error) {
	env, owner, err := s.verify(data, trustedSigner)
	if err != nil {
		return nil, "", err
	}
	u, err := wlobject.DecodeUser(env.Fields)
	if err != nil {
		return nil, "", err
	}
	return u, owner, nil
}

// LoadContainer decodes and verifies a container manifest.
func (s *session) LoadContainer(data []byte, trustedSigner string) (*wlobject.Container, string, error) {
	env, owner, err := s.verify(data, trustedSigner)
	if err != nil {
		return nil, "", err
	}
	c, err := wlobject.DecodeContainer(env.Fields)
	if err != nil {
		return nil, "", err
	}
	return c, owner, nil
}

// LoadStorage decodes and verifies a storage manifest, validating it
// against container if non-nil.
func (s *session) LoadStorage(data []byte, container *wlobject.Container, trustedSigner string) (*wlobject.Storage, string, error) {
	env, owner, err := s.verify(data, trustedSigner)
	if err != nil {
		return nil, "", err
	}
	st, err := wlobject.DecodeStorage(env.Fields, container)
	if err != nil {
		return nil, "", err
	}
	return st, owner, nil
}

// LoadBridge decodes and verifies a bridge manifest.
func (s *session) LoadBridge(data []byte, trustedSigner string) (*wlobject.Bridge, string, error) {
	env, owner, err := s.verify(data, trustedSigner)
	if err != nil {
		return nil, "", err
	}
	b, err := wlobject.DecodeBridge(env.Fields)
	if err != nil {
		return nil, "", err
	}
	return b, owner, nil
}
