package wlobject

import (
	"github.com/wildland/wildland-go/pkg/manifest"
)

// MemberDelegation is a `{user-path: <wildland-path>}` entry inside
// User.Members.
type MemberDelegation struct {
	UserPath string `yaml:"user-path" validate:"required"`
}

// User is the `object: user` manifest body.
type User struct {
	Common           `yaml:",inline"`
	Pubkeys          []string           `yaml:"pubkeys" validate:"required,min=1"`
	Paths            []string           `yaml:"paths" validate:"required,min=1,dive,required"`
	ManifestsCatalog []ContainerRef     `yaml:"manifests-catalog"`
	Members          []MemberDelegation `yaml:"members"`
}

// PrimaryPubkey is the first entry of Pubkeys: the key that owns this
// identity. Subsequent entries are secondary keys this user endorses.
func (u *User) PrimaryPubkey() string {
	if len(u.Pubkeys) == 0 {
		return ""
	}
	return u.Pubkeys[0]
}

// SecondaryPubkeys returns the endorsed-but-not-primary keys.
func (u *User) SecondaryPubkeys() []string {
	if len(u.Pubkeys) <= 1 {
		return nil
	}
	return u.Pubkeys[1:]
}

// DecodeUser validates and decodes a user manifest body.
func DecodeUser(fields *manifest.Fields) (*User, error) {
	var u User
	if err := manifest.Validate(fields, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
