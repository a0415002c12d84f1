package manifest

import (
	"gopkg.in/yaml.v3"

	"github.com/wildland/wildland-go/pkg/wlerr"
)

// ObjectType enumerates the five manifest object kinds.
type ObjectType string

const (
	ObjectUser      ObjectType = "user"
	ObjectContainer ObjectType = "container"
	ObjectStorage   ObjectType = "storage"
	ObjectBridge    ObjectType = "bridge"
	ObjectLink      ObjectType = "link"
)

// Version is the only manifest schema version currently defined.
const Version = "1"

// Fields is the canonical body of a manifest: a YAML mapping node. Keeping
// the body as a Node (rather than a map[string]any) preserves key order
// across parse/emit round-trips, which is required because the body bytes
// are the exact input to the signature.
type Fields struct {
	Node *yaml.Node
}

// Decode unmarshals the fields into a Go value (typically a typed object
// struct for the object's declared type).
func (f *Fields) Decode(v any) error {
	if f.Node == nil {
		return wlerr.New(wlerr.ManifestParse, "empty manifest body")
	}
	if err := f.Node.Decode(v); err != nil {
		return wlerr.Wrap(wlerr.ManifestParse, err, "decoding manifest body")
	}
	return nil
}

// String returns the string value of a top-level scalar field, or ("",
// false) if absent or not a scalar.
func (f *Fields) String(key string) (string, bool) {
	if f.Node == nil || f.Node.Kind != yaml.MappingNode {
		return "", false
	}
	for i := 0; i+1 < len(f.Node.Content); i += 2 {
		if f.Node.Content[i].Value == key {
			v := f.Node.Content[i+1]
			if v.Kind == yaml.ScalarNode {
				return v.Value, true
			}
		}
	}
	return "", false
}

// Owner returns the manifest's declared `owner` field.
func (f *Fields) Owner() (string, bool) { return f.String("owner") }

// Object returns the manifest's declared `object` field.
func (f *Fields) Object() (ObjectType, bool) {
	s, ok := f.String("object")
	return ObjectType(s), ok
}

// Envelope is a fully parsed manifest: header plus canonical body bytes
// plus decoded fields.
type Envelope struct {
	Header *Header
	Body   []byte
	Fields *Fields
}

// Parse splits raw manifest bytes into header and body, parses the
// header, and decodes the body as YAML, requiring `owner` and `object`.
func Parse(data []byte) (*Envelope, error) {
	headerBytes, body, err := splitEnvelope(data)
	if err != nil {
		return nil, err
	}

	var header *Header
	if len(headerBytes) == 0 {
		header = &Header{}
	} else {
		header, err = ParseHeader(headerBytes)
		if err != nil {
			return nil, err
		}
	}

	var node yaml.Node
	if err := yaml.Unmarshal(body, &node); err != nil {
		return nil, wlerr.Wrap(wlerr.ManifestParse, err, "invalid YAML body")
	}
	if len(node.Content) == 0 {
		return nil, wlerr.New(wlerr.ManifestParse, "empty manifest body")
	}
	root := node.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, wlerr.New(wlerr.ManifestParse, "manifest body must be a mapping")
	}

	fields := &Fields{Node: root}
	if _, ok := fields.Owner(); !ok {
		return nil, wlerr.New(wlerr.ManifestParse, "owner field not found")
	}
	if _, ok := fields.Object(); !ok {
		return nil, wlerr.New(wlerr.ManifestParse, "object field not found")
	}

	return &Envelope{Header: header, Body: body, Fields: fields}, nil
}

// EmitUnsigned dumps fields as canonical YAML; the result is the exact
// byte sequence a signature is computed over.
func EmitUnsigned(fields *Fields) ([]byte, error) {
	out, err := yaml.Marshal(fields.Node)
	if err != nil {
		return nil, wlerr.Wrap(wlerr.ManifestParse, err, "marshaling manifest body")
	}
	return out, nil
}

// EmitSigned serializes header lines (signature first, then optional
// pubkey) followed by the separator and the body, producing a
// byte-for-byte reproducible envelope.
func EmitSigned(body []byte, signature string, pubkey string, hasPubkey bool) ([]byte, error) {
	header := &Header{Signature: signature, HasSig: signature != ""}
	if hasPubkey {
		header.Pubkey = pubkey
		header.HasPubkey = true
	}

	headerBytes, err := header.Bytes()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(headerBytes)+len(separator)+len(body))
	out = append(out, headerBytes...)
	out = append(out, []byte(separator)...)
	out = append(out, body...)
	return out, nil
}
