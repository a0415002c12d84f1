package wlobject

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wildland/wildland-go/pkg/manifest"
	"github.com/wildland/wildland-go/pkg/wlerr"
)

// AccessEntry restricts manifest decryption to a specific user, or to
// `{user: "*"}` meaning "not actually encrypted".
type AccessEntry struct {
	User string `yaml:"user" validate:"required"`
}

// Container is the `object: container` manifest body.
type Container struct {
	Common   `yaml:",inline"`
	Paths      []string     `yaml:"paths" validate:"required,min=1,dive,required"`
	Title      string       `yaml:"title,omitempty"`
	Categories []string     `yaml:"categories,omitempty"`
	Backends   Backends     `yaml:"backends"`
	Access     []AccessEntry `yaml:"access,omitempty"`
}

// Backends wraps the container.backends.storage[] list.
type Backends struct {
	Storage []StorageRef `yaml:"storage"`
}

// DecodeContainer validates and decodes a container manifest body,
// enforcing that the first Paths entry is /.uuid/<uuid>.
func DecodeContainer(fields *manifest.Fields) (*Container, error) {
	var c Container
	if err := manifest.Validate(fields, &c); err != nil {
		return nil, err
	}
	if err := c.validateUUIDPath(); err != nil {
		return nil, err
	}
	return &c, nil
}

// UUID extracts the container's immutable identifier from its primary
// path, "/.uuid/<uuid-v4>".
func (c *Container) UUID() string {
	if len(c.Paths) == 0 {
		return ""
	}
	return strings.TrimPrefix(c.Paths[0], "/.uuid/")
}

func (c *Container) validateUUIDPath() error {
	if len(c.Paths) == 0 {
		return wlerr.New(wlerr.SchemaError, "container has no paths").WithSchemaPath("paths")
	}
	first := c.Paths[0]
	if !strings.HasPrefix(first, "/.uuid/") {
		return wlerr.New(wlerr.SchemaError, "first path must be /.uuid/<uuid>, got %q", first).
			WithSchemaPath("paths.0")
	}
	id := strings.TrimPrefix(first, "/.uuid/")
	if _, err := uuid.Parse(id); err != nil {
		return wlerr.New(wlerr.SchemaError, "invalid uuid in primary path %q", first).
			WithSchemaPath("paths.0")
	}
	return nil
}

// NewUUID assigns a fresh container identity path, to be inserted as the
// first entry of Paths. The uuid is immutable once assigned.
func NewUUID() string {
	return "/.uuid/" + uuid.New().String()
}

// CategoryMountPaths synthesizes the additional "/<category>/<title>"
// mount paths a container's Categories/Title imply.
func (c *Container) CategoryMountPaths() []string {
	if c.Title == "" {
		return nil
	}
	out := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		out = append(out, fmt.Sprintf("%s/%s", strings.TrimSuffix(cat, "/"), c.Title))
	}
	return out
}

// IsEncrypted reports whether the container restricts decryption (an
// Access list present and not containing the wildcard "*" user).
func (c *Container) IsEncrypted() bool {
	if len(c.Access) == 0 {
		return false
	}
	for _, a := range c.Access {
		if a.User == "*" {
			return false
		}
	}
	return true
}
