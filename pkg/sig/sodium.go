package sig

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/nacl/sign"

	"github.com/wildland/wildland-go/pkg/wlerr"
)

const signPubSize = 32
const signSecSize = 64
const fingerprintPrefixBytes = 10

// SodiumContext is the production signature backend: ed25519 (via
// golang.org/x/crypto/nacl/sign) for signing, curve25519 (via
// golang.org/x/crypto/nacl/box and secretbox) for per-recipient
// encryption. Keys are persisted under keyDir as
// "<fingerprint>.pub"/"<fingerprint>.sec", mode 0600.
type SodiumContext struct {
	mu      sync.RWMutex
	keyDir  string
	graph   *ownerGraph
	pubkeys map[string][signPubSize]byte // fingerprint -> sign pubkey
	seckeys map[string][signSecSize]byte // fingerprint -> sign seckey (only loaded keys)
	// curve25519 keys for encryption, derived alongside the signing keypair
	boxPub map[string][32]byte
	boxSec map[string][32]byte
}

// NewSodium constructs a context backed by keyDir. The directory is
// created if absent.
func NewSodium(keyDir string) (*SodiumContext, error) {
	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return nil, wlerr.Wrap(wlerr.KeyNotFound, err, "creating key directory %q", keyDir)
	}
	return &SodiumContext{
		keyDir:  keyDir,
		graph:   newOwnerGraph(),
		pubkeys: make(map[string][signPubSize]byte),
		seckeys: make(map[string][signSecSize]byte),
		boxPub:  make(map[string][32]byte),
		boxSec:  make(map[string][32]byte),
	}, nil
}

func (s *SodiumContext) Copy() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := &SodiumContext{
		keyDir:  s.keyDir,
		graph:   s.graph.clone(),
		pubkeys: make(map[string][signPubSize]byte, len(s.pubkeys)),
		seckeys: make(map[string][signSecSize]byte, len(s.seckeys)),
		boxPub:  make(map[string][32]byte, len(s.boxPub)),
		boxSec:  make(map[string][32]byte, len(s.boxSec)),
	}
	for k, v := range s.pubkeys {
		cp.pubkeys[k] = v
	}
	for k, v := range s.seckeys {
		cp.seckeys[k] = v
	}
	for k, v := range s.boxPub {
		cp.boxPub[k] = v
	}
	for k, v := range s.boxSec {
		cp.boxSec[k] = v
	}
	return cp
}

// Fingerprint is "0x" + lowercase hex of the first 10 bytes of the raw
// public key.
func (s *SodiumContext) Fingerprint(pubkeyB64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(pubkeyB64)
	if err != nil || len(raw) != signPubSize {
		return "", wlerr.New(wlerr.KeyNotFound, "invalid public key encoding")
	}
	return "0x" + hex.EncodeToString(raw[:fingerprintPrefixBytes]), nil
}

// Generate creates a new ed25519 signing keypair and a companion
// curve25519 box keypair, persists both halves, and returns the
// fingerprint and base64 public key.
func (s *SodiumContext) Generate() (string, string, error) {
	signPub, signSec, err := sign.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", wlerr.Wrap(wlerr.KeyNotFound, err, "generating signing keypair")
	}
	boxPub, boxSec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", wlerr.Wrap(wlerr.KeyNotFound, err, "generating box keypair")
	}

	pubkeyB64 := base64.StdEncoding.EncodeToString(signPub[:])
	fp, err := s.Fingerprint(pubkeyB64)
	if err != nil {
		return "", "", err
	}

	s.mu.Lock()
	s.pubkeys[fp] = *signPub
	s.seckeys[fp] = *signSec
	s.boxPub[fp] = *boxPub
	s.boxSec[fp] = *boxSec
	s.mu.Unlock()

	if err := s.persist(fp, signPub, signSec); err != nil {
		return "", "", err
	}
	return fp, pubkeyB64, nil
}

func (s *SodiumContext) persist(fp string, pub *[signPubSize]byte, sec *[signSecSize]byte) error {
	pubPath := filepath.Join(s.keyDir, fp+".pub")
	secPath := filepath.Join(s.keyDir, fp+".sec")

	pubData := []byte(base64.StdEncoding.EncodeToString(pub[:]))
	secData := []byte(base64.StdEncoding.EncodeToString(sec[:]))

	// O_EXCL avoids racing a concurrent key generator for the same
	// fingerprint.
	if err := writeFileExcl(pubPath, pubData, 0600); err != nil && !os.IsExist(err) {
		return wlerr.Wrap(wlerr.KeyNotFound, err, "writing %s", pubPath)
	}
	if err := writeFileExcl(secPath, secData, 0600); err != nil && !os.IsExist(err) {
		return wlerr.Wrap(wlerr.KeyNotFound, err, "writing %s", secPath)
	}
	return nil
}

func writeFileExcl(path string, data []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// AddPubkey registers a public key (decoding it to recover the box
// counterpart is not possible from a sign key alone, so encryption is
// only available for keys this context itself generated).
func (s *SodiumContext) AddPubkey(pubkeyB64 string, owner string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(pubkeyB64)
	if err != nil || len(raw) != signPubSize {
		return "", wlerr.New(wlerr.KeyNotFound, "invalid public key encoding")
	}
	fp, err := s.Fingerprint(pubkeyB64)
	if err != nil {
		return "", err
	}
	var pub [signPubSize]byte
	copy(pub[:], raw)

	s.mu.Lock()
	s.pubkeys[fp] = pub
	s.mu.Unlock()

	s.graph.endorse(owner, fp)
	return fp, nil
}

func (s *SodiumContext) RemoveKey(fingerprint string) error {
	s.mu.Lock()
	delete(s.pubkeys, fingerprint)
	delete(s.seckeys, fingerprint)
	delete(s.boxPub, fingerprint)
	delete(s.boxSec, fingerprint)
	s.mu.Unlock()
	s.graph.forget(fingerprint)
	return nil
}

// Sign produces a detached signature: the 64-byte nacl/sign signature
// prefix, base64-encoded.
func (s *SodiumContext) Sign(owner string, data []byte, onlyPrimary bool) (string, error) {
	s.mu.RLock()
	sec, ok := s.seckeys[owner]
	s.mu.RUnlock()
	if !ok {
		return "", wlerr.New(wlerr.KeyNotFound, "secret key for %q not loaded", owner)
	}
	signed := sign.Sign(nil, data, &sec)
	detached := signed[:signSecSize]
	return base64.StdEncoding.EncodeToString(detached), nil
}

// Verify checks a detached signature by reconstructing the signed
// message (signature || data) for every known public key until one
// opens successfully, returning that key's fingerprint.
func (s *SodiumContext) Verify(signature string, data []byte) (string, error) {
	sigBytes, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sigBytes) != signSecSize {
		return "", wlerr.New(wlerr.BadSignature, "malformed signature encoding")
	}

	signed := make([]byte, 0, len(sigBytes)+len(data))
	signed = append(signed, sigBytes...)
	signed = append(signed, data...)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for fp, pub := range s.pubkeys {
		p := pub
		if _, ok := sign.Open(nil, signed, &p); ok {
			return fp, nil
		}
	}
	return "", wlerr.New(wlerr.UnknownKey, "signature does not verify against any known key")
}

func (s *SodiumContext) PossibleOwners(fingerprint string) map[string]struct{} {
	return s.graph.possibleOwners(fingerprint)
}

// Encrypt generates a fresh XSalsa20-Poly1305 symmetric key (secretbox),
// encrypts data once, and wraps the symmetric key for each recipient
// using an ephemeral box keypair (emulating libsodium's anonymous sealed
// box, which golang.org/x/crypto/nacl/box does not itself expose).
func (s *SodiumContext) Encrypt(data []byte, recipientPubkeys []string) ([]byte, [][]byte, error) {
	var symKey [32]byte
	if _, err := rand.Read(symKey[:]); err != nil {
		return nil, nil, wlerr.Wrap(wlerr.KeyNotFound, err, "generating symmetric key")
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, nil, wlerr.Wrap(wlerr.KeyNotFound, err, "generating nonce")
	}
	ciphertext := secretbox.Seal(nonce[:], data, &nonce, &symKey)

	wrapped := make([][]byte, len(recipientPubkeys))
	for i, pkB64 := range recipientPubkeys {
		fp, err := s.Fingerprint(pkB64)
		if err != nil {
			return nil, nil, err
		}
		s.mu.RLock()
		recipientBoxPub, ok := s.boxPub[fp]
		s.mu.RUnlock()
		if !ok {
			return nil, nil, wlerr.New(wlerr.KeyNotFound, "no box key for recipient %q", fp)
		}

		ephPub, ephSec, err := box.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, wlerr.Wrap(wlerr.KeyNotFound, err, "generating ephemeral keypair")
		}
		var boxNonce [24]byte
		if _, err := rand.Read(boxNonce[:]); err != nil {
			return nil, nil, wlerr.Wrap(wlerr.KeyNotFound, err, "generating box nonce")
		}
		sealed := box.Seal(boxNonce[:], symKey[:], &boxNonce, &recipientBoxPub, ephSec)
		// wrappedKey = ephemeral pubkey || sealed box, so Decrypt can
		// recover the shared secret without out-of-band state.
		w := make([]byte, 0, len(ephPub)+len(sealed))
		w = append(w, ephPub[:]...)
		w = append(w, sealed...)
		wrapped[i] = w
	}

	return ciphertext, wrapped, nil
}

// Decrypt tries each wrapped key against each loaded secret box key.
func (s *SodiumContext) Decrypt(ciphertext []byte, wrappedKeys [][]byte) ([]byte, error) {
	if len(ciphertext) < 24 {
		return nil, wlerr.New(wlerr.KeyNotFound, "ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])

	s.mu.RLock()
	secrets := make(map[string][32]byte, len(s.boxSec))
	for k, v := range s.boxSec {
		secrets[k] = v
	}
	s.mu.RUnlock()

	for _, w := range wrappedKeys {
		if len(w) < 32+box.Overhead+24 {
			continue
		}
		var ephPub [32]byte
		copy(ephPub[:], w[:32])
		sealed := w[32:]
		if len(sealed) < 24 {
			continue
		}
		var boxNonce [24]byte
		copy(boxNonce[:], sealed[:24])

		for _, sec := range secrets {
			symKeyBytes, ok := box.Open(nil, sealed[24:], &boxNonce, &ephPub, &sec)
			if !ok || len(symKeyBytes) != 32 {
				continue
			}
			var symKey [32]byte
			copy(symKey[:], symKeyBytes)
			plain, ok := secretbox.Open(nil, ciphertext[24:], &nonce, &symKey)
			if ok {
				return plain, nil
			}
		}
	}
	return nil, wlerr.New(wlerr.KeyNotFound, "no wrapped key could be decrypted with a loaded secret")
}

// LoadSecret loads a previously generated keypair's signing secret from
// keyDir, so this context can sign on the fingerprint's behalf in a
// fresh process. The curve25519 box keys are not persisted, so it does
// not restore encryption to, or decryption for, that fingerprint.
func (s *SodiumContext) LoadSecret(fingerprint string) error {
	secPath := filepath.Join(s.keyDir, fingerprint+".sec")
	data, err := os.ReadFile(secPath)
	if err != nil {
		return wlerr.Wrap(wlerr.KeyNotFound, err, "reading %s", secPath)
	}
	raw, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil || len(raw) != signSecSize {
		return wlerr.New(wlerr.KeyNotFound, "malformed secret key file %s", secPath)
	}
	var sec [signSecSize]byte
	copy(sec[:], raw)

	s.mu.Lock()
	s.seckeys[fingerprint] = sec
	s.mu.Unlock()
	return nil
}
