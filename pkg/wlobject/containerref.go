package wlobject

import (
	"gopkg.in/yaml.v3"

	"github.com/wildland/wildland-go/pkg/wlerr"
)

// ContainerRefKind discriminates the three shapes a manifests-catalog
// entry can take.
type ContainerRefKind int

const (
	ContainerRefURL ContainerRefKind = iota
	ContainerRefInline
	ContainerRefLink
)

// ContainerRef is a user's manifests-catalog[] entry: a URL string
// pointing at a container manifest, an inline container manifest, or a
// Link pointing at a file holding one.
type ContainerRef struct {
	Kind   ContainerRefKind
	URL    string
	Inline *Container
	Link   *Link
}

// UnmarshalYAML mirrors StorageRef.UnmarshalYAML's shape-detection: a
// bare scalar is a URL, `object: link` is a Link, anything else mapping
// is an inline container manifest.
func (r *ContainerRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		r.Kind = ContainerRefURL
		r.URL = node.Value
		return nil
	case yaml.MappingNode:
		objectType := ""
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "object" {
				objectType = node.Content[i+1].Value
			}
		}
		if objectType == "link" {
			var l Link
			if err := node.Decode(&l); err != nil {
				return decodeErr("link", err)
			}
			r.Kind = ContainerRefLink
			r.Link = &l
			return nil
		}
		var c Container
		if err := node.Decode(&c); err != nil {
			return decodeErr("inline container", err)
		}
		r.Kind = ContainerRefInline
		r.Inline = &c
		return nil
	default:
		return wlerr.New(wlerr.SchemaError, "manifests-catalog entry must be a string or mapping")
	}
}

// MarshalYAML re-emits the ref in its original shape.
func (r ContainerRef) MarshalYAML() (any, error) {
	switch r.Kind {
	case ContainerRefURL:
		return r.URL, nil
	case ContainerRefLink:
		return r.Link, nil
	case ContainerRefInline:
		return r.Inline, nil
	default:
		return nil, wlerr.New(wlerr.SchemaError, "unset container ref")
	}
}
