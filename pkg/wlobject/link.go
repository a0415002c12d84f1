package wlobject

import "github.com/wildland/wildland-go/pkg/manifest"

// DecodeLink decodes a standalone `object: link` manifest body (used
// wherever a URL would otherwise be accepted: manifests-catalog entries,
// bridge user-location, backends.storage entries).
func DecodeLink(fields *manifest.Fields) (*Link, error) {
	var l Link
	if err := fields.Decode(&l); err != nil {
		return nil, err
	}
	return &l, nil
}
