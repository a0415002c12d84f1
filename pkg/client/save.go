package client

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/wildland/wildland-go/pkg/manifest"
	"github.com/wildland/wildland-go/pkg/wlerr"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

// NewPath picks a free "<baseDir>/<name>[.N].yaml" path, creating
// baseDir if needed and trying successive numeric suffixes until one
// doesn't collide with an existing file.
func NewPath(baseDir, name string) (string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", wlerr.Wrap(wlerr.IOError, err, "creating %s", baseDir)
	}
	for i := 0; ; i++ {
		suffix := ""
		if i > 0 {
			suffix = fmt.Sprintf(".%d", i)
		}
		path := filepath.Join(baseDir, name+suffix+".yaml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
	}
}

// dumpObject serializes v (a typed object struct) as fields and signs it
// as owner.
func (c *Client) dumpObject(owner string, v any) ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return nil, wlerr.Wrap(wlerr.ManifestParse, err, "encoding manifest body")
	}
	return c.session.dump(owner, &manifest.Fields{Node: &node})
}

func writeManifest(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return wlerr.Wrap(wlerr.IOError, err, "writing %s", path)
	}
	return nil
}

// SaveUser writes u to path.
func (c *Client) SaveUser(u *wlobject.User, path string) error {
	data, err := c.dumpObject(u.Owner, u)
	if err != nil {
		return err
	}
	return writeManifest(path, data)
}

// SaveNewUser writes a new user manifest under the configured user
// directory, using name (or the owner fingerprint) as the filename hint.
func (c *Client) SaveNewUser(u *wlobject.User, name string) (string, error) {
	if name == "" {
		name = u.Owner
	}
	path, err := NewPath(c.cfg.UserDir, name)
	if err != nil {
		return "", err
	}
	if err := c.SaveUser(u, path); err != nil {
		return "", err
	}
	return path, nil
}

// SaveContainer writes ct to path.
func (c *Client) SaveContainer(ct *wlobject.Container, path string) error {
	data, err := c.dumpObject(ct.Owner, ct)
	if err != nil {
		return err
	}
	return writeManifest(path, data)
}

// SaveNewContainer assigns ct a fresh uuid path if it doesn't have one
// already, then writes it under the configured container directory,
// using name (or the uuid) as the filename hint.
func (c *Client) SaveNewContainer(ct *wlobject.Container, name string) (string, error) {
	if len(ct.Paths) == 0 || ct.UUID() == "" {
		ct.Paths = append([]string{wlobject.NewUUID()}, ct.Paths...)
	}
	if name == "" {
		name = ct.UUID()
	}
	path, err := NewPath(c.cfg.ContainerDir, name)
	if err != nil {
		return "", err
	}
	if err := c.SaveContainer(ct, path); err != nil {
		return "", err
	}
	return path, nil
}

// SaveNewStorage writes a new storage manifest under the configured
// storage directory, using name (or the storage's container-path
// basename) as the filename hint.
func (c *Client) SaveNewStorage(st *wlobject.Storage, name string) (string, error) {
	if name == "" {
		name = filepath.Base(st.ContainerPath)
	}
	path, err := NewPath(c.cfg.StorageDir, name)
	if err != nil {
		return "", err
	}
	data, err := c.dumpObject(st.Owner, st)
	if err != nil {
		return "", err
	}
	if err := writeManifest(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// SaveNewBridge writes a new bridge manifest to the caller-specified
// path (bridges aren't kept in a flat directory the way other objects
// are, since their filename usually encodes the target user's paths).
func (c *Client) SaveNewBridge(b *wlobject.Bridge, path string) error {
	data, err := c.dumpObject(b.Owner, b)
	if err != nil {
		return err
	}
	return writeManifest(path, data)
}
