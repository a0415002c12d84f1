package client

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wildland/wildland-go/pkg/config"
	"github.com/wildland/wildland-go/pkg/sig"
	"github.com/wildland/wildland-go/pkg/wlerr"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

// Client is the high-level entry point for loading, saving, selecting
// storage for, and publishing Wildland objects, grounded on the
// original Client class's responsibilities split across one type.
type Client struct {
	cfg     *config.Config
	session *session
	sig     sig.Context
}

// New builds a Client against cfg, using sigCtx as the signature
// context (a fresh SodiumContext or DummyContext, already holding
// whatever keys the caller wants recognized).
func New(cfg *config.Config, sigCtx sig.Context) *Client {
	return &Client{cfg: cfg, session: newSession(sigCtx), sig: sigCtx}
}

// Config returns the configuration this client was built against, for
// callers (like the mount daemon) that need the default user or socket
// paths alongside the loader.
func (c *Client) Config() *config.Config { return c.cfg }

// WithPubkey returns a copy of c with pubkey imported as a recognized
// key, and the fingerprint it was assigned, mirroring
// sub_client_with_key's role of impersonating a discovered signer while
// walking a Wildland path.
func (c *Client) WithPubkey(pubkeyB64 string) (*Client, string, error) {
	cp := c.sig.Copy()
	fp, err := cp.AddPubkey(pubkeyB64, "")
	if err != nil {
		return nil, "", err
	}
	return New(c.cfg, cp), fp, nil
}

// --- user loading ---

// LoadUsers iterates every *.yaml file in the user directory, skipping
// (and not failing on) any that doesn't decode.
func (c *Client) LoadUsers() ([]*wlobject.User, error) {
	paths, err := globSorted(c.cfg.UserDir)
	if err != nil {
		return nil, err
	}
	var out []*wlobject.User
	for _, p := range paths {
		u, err := c.LoadUserFromPath(p)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// LoadUserFromPath loads a user manifest from a local file.
func (c *Client) LoadUserFromPath(path string) (*wlobject.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wlerr.Wrap(wlerr.ManifestParse, err, "reading user manifest %s", path)
	}
	u, _, err := c.session.LoadUser(data, "")
	return u, err
}

// LoadUserFrom resolves name (a short name, a local path, or a key
// fingerprint matching an already-known user) to a User.
func (c *Client) LoadUserFrom(name string) (*wlobject.User, error) {
	if name == "@default" {
		if c.cfg.DefaultUser == "" {
			return nil, wlerr.New(wlerr.SchemaError, "user not specified and no default user configured")
		}
		return c.LoadUserFrom(c.cfg.DefaultUser)
	}

	if !strings.HasSuffix(name, ".yaml") {
		path := filepath.Join(c.cfg.UserDir, name+".yaml")
		if fileExists(path) {
			return c.LoadUserFromPath(path)
		}
	}

	if strings.HasPrefix(name, "0x") {
		users, err := c.LoadUsers()
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if u.PrimaryPubkey() != "" {
				fp, err := c.sig.Fingerprint(u.PrimaryPubkey())
				if err == nil && fp == name {
					return u, nil
				}
			}
		}
	}

	if fileExists(name) {
		return c.LoadUserFromPath(name)
	}

	return nil, wlerr.New(wlerr.SchemaError, "user not found: %s", name)
}

// --- container loading ---

// LoadContainers iterates every *.yaml file in the container directory.
func (c *Client) LoadContainers() ([]*wlobject.Container, error) {
	paths, err := globSorted(c.cfg.ContainerDir)
	if err != nil {
		return nil, err
	}
	var out []*wlobject.Container
	for _, p := range paths {
		ct, err := c.LoadContainerFromPath(p)
		if err != nil {
			continue
		}
		out = append(out, ct)
	}
	return out, nil
}

// LoadContainerFromPath loads a container manifest from a local file.
func (c *Client) LoadContainerFromPath(path string) (*wlobject.Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wlerr.Wrap(wlerr.ManifestParse, err, "reading container manifest %s", path)
	}
	ct, _, err := c.session.LoadContainer(data, "")
	return ct, err
}

// LoadContainerFromURL loads a container manifest fetched from url,
// which must be a file:// URL the signer is configured to be trusted
// for; the manifest's signature is verified as usual.
func (c *Client) LoadContainerFromURL(rawURL, signer string) (*wlobject.Container, error) {
	data, trustedSigner, err := c.readFromURL(rawURL, signer)
	if err != nil {
		return nil, err
	}
	ct, _, err := c.session.LoadContainer(data, trustedSigner)
	return ct, err
}

// LoadContainerFromDict decodes an inline container manifest body (no
// header, so trustedSigner is required), used when a container is
// embedded inside another manifest (e.g. an inner-container storage
// parameter).
func (c *Client) LoadContainerFromDict(body []byte, signer string) (*wlobject.Container, error) {
	ct, _, err := c.session.LoadContainer(withEmptySeparator(body), signer)
	return ct, err
}

// LoadContainerFromBytes decodes a full container manifest envelope
// (header, separator and signed body, as produced by SaveNewContainer)
// held in memory rather than on disk, used by the mount daemon when a
// client hands it manifest bytes directly over the control socket.
func (c *Client) LoadContainerFromBytes(data []byte, trustedSigner string) (*wlobject.Container, error) {
	ct, _, err := c.session.LoadContainer(data, trustedSigner)
	return ct, err
}

// LoadContainerFrom resolves name (a short name or a local path) to a
// Container.
func (c *Client) LoadContainerFrom(name string) (*wlobject.Container, error) {
	if !strings.HasSuffix(name, ".yaml") {
		path := filepath.Join(c.cfg.ContainerDir, name+".yaml")
		if fileExists(path) {
			return c.LoadContainerFromPath(path)
		}
	}
	if fileExists(name) {
		return c.LoadContainerFromPath(name)
	}
	return nil, wlerr.New(wlerr.SchemaError, "container not found: %s", name)
}

// LoadContainersFrom expands name as a glob pattern (only for local
// files; Wildland paths and bare names are not glob-expanded).
func (c *Client) LoadContainersFrom(name string) ([]*wlobject.Container, error) {
	if !strings.ContainsAny(name, "*~") {
		ct, err := c.LoadContainerFrom(name)
		if err != nil {
			return nil, err
		}
		return []*wlobject.Container{ct}, nil
	}

	expanded := name
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(name, "~") {
		expanded = filepath.Join(home, strings.TrimPrefix(name, "~"))
	}
	matches, err := filepath.Glob(expanded)
	if err != nil {
		return nil, wlerr.Wrap(wlerr.SchemaError, err, "expanding pattern %s", name)
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, wlerr.New(wlerr.SchemaError, "no container found matching pattern: %s", name)
	}
	var out []*wlobject.Container
	for _, m := range matches {
		ct, err := c.LoadContainerFromPath(m)
		if err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, nil
}

// --- storage loading ---

// LoadStorages iterates every *.yaml file in the storage directory.
func (c *Client) LoadStorages() ([]*wlobject.Storage, error) {
	paths, err := globSorted(c.cfg.StorageDir)
	if err != nil {
		return nil, err
	}
	var out []*wlobject.Storage
	for _, p := range paths {
		s, err := c.LoadStorageFromPath(p)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// LoadStorageFromPath loads a storage manifest from a local file.
func (c *Client) LoadStorageFromPath(path string) (*wlobject.Storage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wlerr.Wrap(wlerr.ManifestParse, err, "reading storage manifest %s", path)
	}
	s, _, err := c.session.LoadStorage(data, nil, "")
	return s, err
}

// LoadStorageFromURL loads a storage manifest fetched from url.
func (c *Client) LoadStorageFromURL(rawURL, signer string) (*wlobject.Storage, error) {
	data, trustedSigner, err := c.readFromURL(rawURL, signer)
	if err != nil {
		return nil, err
	}
	s, _, err := c.session.LoadStorage(data, nil, trustedSigner)
	return s, err
}

// LoadStorageFromDict decodes an inline storage manifest body.
func (c *Client) LoadStorageFromDict(body []byte, signer string) (*wlobject.Storage, error) {
	s, _, err := c.session.LoadStorage(withEmptySeparator(body), nil, signer)
	return s, err
}

// LoadStorageFromBytes decodes a full storage manifest envelope held in
// memory, the storage counterpart of LoadContainerFromBytes.
func (c *Client) LoadStorageFromBytes(data []byte, trustedSigner string) (*wlobject.Storage, error) {
	s, _, err := c.session.LoadStorage(data, nil, trustedSigner)
	return s, err
}

// LoadStorageFrom resolves name (a short name or a local path) to a
// Storage.
func (c *Client) LoadStorageFrom(name string) (*wlobject.Storage, error) {
	if !strings.HasSuffix(name, ".yaml") {
		path := filepath.Join(c.cfg.StorageDir, name+".yaml")
		if fileExists(path) {
			return c.LoadStorageFromPath(path)
		}
	}
	if fileExists(name) {
		return c.LoadStorageFromPath(name)
	}
	return nil, wlerr.New(wlerr.SchemaError, "storage not found: %s", name)
}

// --- bridge loading ---

// LoadBridgeFromPath loads a bridge manifest from a local file.
func (c *Client) LoadBridgeFromPath(path string) (*wlobject.Bridge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wlerr.Wrap(wlerr.ManifestParse, err, "reading bridge manifest %s", path)
	}
	b, _, err := c.session.LoadBridge(data, "")
	return b, err
}

// --- URL resolution ---

// readFromURL retrieves a manifest's bytes from url, which must be a
// file:// URL this client is configured to trust for signer. The
// returned trustedSigner is always empty, so the session still checks
// the manifest's signature.
func (c *Client) readFromURL(rawURL, signer string) ([]byte, string, error) {
	if path, ok := c.parseFileURL(rawURL, signer); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", wlerr.Wrap(wlerr.ManifestParse, err, "reading file URL %s", rawURL)
		}
		return data, "", nil
	}
	return nil, "", wlerr.New(wlerr.SchemaError, "unrecognized URL: %s", rawURL)
}

// parseFileURL recovers the local path behind a file:// URL, but only
// if its hostname matches the configured local hostname and signer is
// in the configured local-signers trust list.
func (c *Client) parseFileURL(rawURL, signer string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	hostname := u.Host
	if hostname == "" {
		hostname = "localhost"
	}
	if hostname != c.cfg.LocalHostname {
		return "", false
	}
	trusted := false
	for _, s := range c.cfg.LocalSigners {
		if s == signer {
			trusted = true
			break
		}
	}
	if !trusted {
		return "", false
	}
	return u.Path, true
}

// LocalURL converts an absolute local path to a file:// URL this client
// (and others configured with the same local hostname) can resolve back
// to a path.
func (c *Client) LocalURL(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", wlerr.New(wlerr.SchemaError, "local url requires an absolute path: %s", path)
	}
	return fmt.Sprintf("file://%s%s", c.cfg.LocalHostname, (&url.URL{Path: path}).EscapedPath()), nil
}

func globSorted(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, wlerr.Wrap(wlerr.SchemaError, err, "listing %s", dir)
	}
	sort.Strings(matches)
	return matches, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// withEmptySeparator prefixes body with the header-less separator form
// ("---\n"), the shape load_container_from_dict/load_storage_from_dict
// produce when re-serializing an inline manifest dict for decoding.
func withEmptySeparator(body []byte) []byte {
	out := make([]byte, 0, len(body)+4)
	out = append(out, []byte("---\n")...)
	out = append(out, body...)
	return out
}
