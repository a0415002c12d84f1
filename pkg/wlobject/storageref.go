package wlobject

import (
	"gopkg.in/yaml.v3"

	"github.com/wildland/wildland-go/pkg/wlerr"
)

// UnmarshalYAML normalizes a backends.storage[] entry: a bare scalar is a
// URL, a mapping with `object: link` is a Link, anything else mapping is
// an inline Storage manifest.
func (r *StorageRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		r.Kind = StorageRefURL
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
			r.Kind = StorageRefLink
			r.Link = &l
			return nil
		}
		var s Storage
		if err := node.Decode(&s); err != nil {
			return decodeErr("inline storage", err)
		}
		r.Kind = StorageRefInline
		r.Inline = &s
		return nil
	default:
		return wlerr.New(wlerr.SchemaError, "backends.storage entry must be a string or mapping")
	}
}

// MarshalYAML re-emits the ref in its original shape, so re-signing a
// container manifest produces byte-identical output.
func (r StorageRef) MarshalYAML() (any, error) {
	switch r.Kind {
	case StorageRefURL:
		return r.URL, nil
	case StorageRefLink:
		return r.Link, nil
	case StorageRefInline:
		return r.Inline, nil
	default:
		return nil, wlerr.New(wlerr.SchemaError, "unset storage ref")
	}
}
