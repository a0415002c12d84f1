package sig

import (
	"fmt"
	"strings"

	"github.com/wildland/wildland-go/pkg/wlerr"
)

// DummyContext requires signatures of the form "dummy.<fingerprint>" and
// pubkeys of the form "key.<fingerprint>". It performs no real
// cryptography and exists purely for tests, mirroring the Python
// DummySigContext.
type DummyContext struct {
	graph   *ownerGraph
	signers map[string]struct{}
}

// NewDummy constructs an empty DummyContext.
func NewDummy() *DummyContext {
	return &DummyContext{graph: newOwnerGraph(), signers: make(map[string]struct{})}
}

func (d *DummyContext) Copy() Context {
	cp := NewDummy()
	cp.graph = d.graph.clone()
	for k := range d.signers {
		cp.signers[k] = struct{}{}
	}
	return cp
}

func (d *DummyContext) Generate() (string, string, error) {
	fp := fmt.Sprintf("0x%d", len(d.signers)+1)
	d.signers[fp] = struct{}{}
	return fp, "key." + fp, nil
}

func (d *DummyContext) Fingerprint(pubkeyB64 string) (string, error) {
	if !strings.HasPrefix(pubkeyB64, "key.") {
		return "", wlerr.New(wlerr.KeyNotFound, "expected key.* pubkey, got %q", pubkeyB64)
	}
	return strings.TrimPrefix(pubkeyB64, "key."), nil
}

func (d *DummyContext) AddPubkey(pubkeyB64 string, owner string) (string, error) {
	fp, err := d.Fingerprint(pubkeyB64)
	if err != nil {
		return "", err
	}
	d.signers[fp] = struct{}{}
	d.graph.endorse(owner, fp)
	return fp, nil
}

func (d *DummyContext) RemoveKey(fingerprint string) error {
	delete(d.signers, fingerprint)
	d.graph.forget(fingerprint)
	return nil
}

func (d *DummyContext) Sign(owner string, data []byte, onlyPrimary bool) (string, error) {
	if _, ok := d.signers[owner]; !ok {
		return "", wlerr.New(wlerr.KeyNotFound, "secret for %q not loaded", owner)
	}
	return "dummy." + owner, nil
}

func (d *DummyContext) Verify(signature string, data []byte) (string, error) {
	if !strings.HasPrefix(signature, "dummy.") {
		return "", wlerr.New(wlerr.BadSignature, "expected dummy.* signature, got %q", signature)
	}
	signer := strings.TrimPrefix(signature, "dummy.")
	if _, ok := d.signers[signer]; !ok {
		return "", wlerr.New(wlerr.UnknownKey, "unknown signer: %q", signer)
	}
	return signer, nil
}

func (d *DummyContext) PossibleOwners(fingerprint string) map[string]struct{} {
	return d.graph.possibleOwners(fingerprint)
}

// Encrypt is a deterministic stand-in: it wraps the data with a marker
// per recipient so tests can assert who can "decrypt" it, without any
// real cryptographic property.
func (d *DummyContext) Encrypt(data []byte, recipientPubkeys []string) ([]byte, [][]byte, error) {
	wrapped := make([][]byte, len(recipientPubkeys))
	for i, pk := range recipientPubkeys {
		wrapped[i] = []byte("wrapped-for:" + pk)
	}
	return append([]byte("dummy-cipher:"), data...), wrapped, nil
}

func (d *DummyContext) Decrypt(ciphertext []byte, wrappedKeys [][]byte) ([]byte, error) {
	if !strings.HasPrefix(string(ciphertext), "dummy-cipher:") {
		return nil, wlerr.New(wlerr.KeyNotFound, "not a dummy ciphertext")
	}
	if len(wrappedKeys) == 0 {
		return nil, wlerr.New(wlerr.KeyNotFound, "no wrapped key could be decrypted")
	}
	return []byte(strings.TrimPrefix(string(ciphertext), "dummy-cipher:")), nil
}
