package wlobject

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/wildland/wildland-go/pkg/manifest"
	"github.com/wildland/wildland-go/pkg/wlerr"
)

// ManifestPattern describes how a manifest catalog storage's object
// files are located: either a glob with a {path}
// placeholder, or an explicit list of relative files.
type ManifestPattern struct {
	Type  string   `yaml:"type" validate:"required,oneof=glob list"`
	Path  string   `yaml:"path,omitempty"`
	Paths []string `yaml:"paths,omitempty"`
}

// Storage is the `object: storage` manifest body. Backend-specific
// parameters are kept as a raw map and decoded by the owning backend's
// param struct via mapstructure (pkg/storage).
type Storage struct {
	Common          `yaml:",inline"`
	Type            string           `yaml:"type" validate:"required"`
	ContainerPath   string           `yaml:"container-path" validate:"required"`
	BackendID       string           `yaml:"backend-id,omitempty"`
	Trusted         bool             `yaml:"trusted,omitempty"`
	Primary         bool             `yaml:"primary,omitempty"`
	ManifestPattern *ManifestPattern `yaml:"manifest-pattern,omitempty"`
	Params          map[string]any   `yaml:",inline"`
}

// DecodeStorage validates and decodes a storage manifest body, checking
// it against its owning container (container-path membership and owner
// match).
func DecodeStorage(fields *manifest.Fields, container *Container) (*Storage, error) {
	var s Storage
	if err := manifest.Validate(fields, &s); err != nil {
		return nil, err
	}
	if container != nil {
		if err := s.validateAgainstContainer(container); err != nil {
			return nil, err
		}
	}
	if s.BackendID == "" {
		s.BackendID = s.DeriveBackendID()
	}
	return &s, nil
}

func (s *Storage) validateAgainstContainer(c *Container) error {
	found := false
	for _, p := range c.Paths {
		if p == s.ContainerPath {
			found = true
			break
		}
	}
	if !found {
		return wlerr.New(wlerr.SchemaError, "storage container-path %q not in container paths", s.ContainerPath).
			WithSchemaPath("container-path")
	}
	if s.Owner != c.Owner {
		return wlerr.New(wlerr.SchemaError, "storage owner %q does not match container owner %q", s.Owner, c.Owner).
			WithSchemaPath("owner")
	}
	return nil
}

// DeriveBackendID computes a deterministic id from the storage's type,
// container-path and params, used when backend-id is omitted.
func (s *Storage) DeriveBackendID() string {
	h := sha256.New()
	fmt.Fprintf(h, "type=%s\ncontainer-path=%s\n", s.Type, s.ContainerPath)

	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v\n", k, s.Params[k])
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}
