// Package sig implements the Wildland signature context: key generation,
// signing, verification, the ownership endorsement graph, and asymmetric
// encryption of manifest bodies for a set of recipients.
package sig

// Context is the capability set every signature backend must implement.
// Two concrete variants are provided: Sodium (ed25519 sign, curve25519
// sealed-box encrypt) and Dummy (for tests).
type Context interface {
	// Generate produces a new keypair and persists both halves under the
	// key directory (for backends that have one).
	Generate() (fingerprint string, pubkeyB64 string, err error)

	// Fingerprint is a deterministic function of the public key bytes.
	Fingerprint(pubkeyB64 string) (string, error)

	// AddPubkey registers a pubkey as a recognized key. If owner is
	// non-empty, records that owner endorses this key.
	AddPubkey(pubkeyB64 string, owner string) (fingerprint string, err error)

	// RemoveKey forgets a previously added key (and any endorsement
	// edges naming it).
	RemoveKey(fingerprint string) error

	// Sign signs data with owner's own loaded secret key. Both
	// implementations ignore onlyPrimary: a secondary key that owner has
	// endorsed is never used in owner's place, so Sign fails with
	// KeyNotFound unless owner's own secret is loaded.
	Sign(owner string, data []byte, onlyPrimary bool) (signature string, err error)

	// Verify verifies signature against data, returning the signer
	// fingerprint (which may differ from a manifest's declared owner
	// when a secondary key was used).
	Verify(signature string, data []byte) (signer string, err error)

	// PossibleOwners returns the set of fingerprints that could have
	// signed on behalf of fingerprint: a BFS over the endorsement graph.
	PossibleOwners(fingerprint string) map[string]struct{}

	// Encrypt generates a fresh symmetric key, encrypts data once, and
	// wraps the key separately for each recipient public key.
	Encrypt(data []byte, recipientPubkeys []string) (ciphertext []byte, wrappedKeys [][]byte, err error)

	// Decrypt tries each wrapped key against each loaded secret.
	Decrypt(ciphertext []byte, wrappedKeys [][]byte) ([]byte, error)

	// Copy returns an independent copy of the context sharing no
	// mutable state, used when bootstrapping a self-signed manifest's
	// embedded pubkey without polluting the caller's trust set.
	Copy() Context
}
