package wlobject

import (
	"github.com/wildland/wildland-go/pkg/manifest"
)

// Bridge is the `object: bridge` manifest body: one user's endorsement
// of another user's namespace.
type Bridge struct {
	Common       `yaml:",inline"`
	UserPubkey   string `yaml:"user-pubkey" validate:"required"`
	UserID       string `yaml:"user-id" validate:"required"`
	UserLocation StorageRef `yaml:"user-location" validate:"required"`
	Paths        []string `yaml:"paths" validate:"required,min=1,dive,required"`
}

// DecodeBridge validates and decodes a bridge manifest body.
func DecodeBridge(fields *manifest.Fields) (*Bridge, error) {
	var b Bridge
	if err := manifest.Validate(fields, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
