// Package wlobject holds the typed wrappers for the five Wildland object
// kinds (User, Container, Storage, Bridge, Link), plus the field
// validation and fingerprint/uuid rules each carries.
package wlobject

import (
	"github.com/wildland/wildland-go/pkg/manifest"
	"github.com/wildland/wildland-go/pkg/wlerr"
)

// Common holds the fields every manifest body carries.
type Common struct {
	Object  manifest.ObjectType `yaml:"object" validate:"required"`
	Owner   string               `yaml:"owner" validate:"required"`
	Version string               `yaml:"version" validate:"required,eq=1"`
}

// Link is a late-bound reference: "resolve by mounting this storage and
// reading this file". Used wherever a URL is accepted for a storage
// entry.
type Link struct {
	Object  manifest.ObjectType `yaml:"object" validate:"eq=link"`
	File    string              `yaml:"file" validate:"required"`
	Storage Storage             `yaml:"storage" validate:"required"`
}

// StorageRef is the container.backends.storage[] sum type: an inline
// storage manifest, a URL string, or a Link. Exactly one of the three is
// set; the shape is normalized at load time but the original shape is
// preserved for re-emission.
type StorageRef struct {
	Kind    StorageRefKind
	URL     string
	Inline  *Storage
	Link    *Link
}

type StorageRefKind int

const (
	StorageRefURL StorageRefKind = iota
	StorageRefInline
	StorageRefLink
)

// decodeErr wraps a typed-decode failure as a SchemaError.
func decodeErr(what string, err error) error {
	return wlerr.Wrap(wlerr.SchemaError, err, "decoding %s", what)
}
