package storage

import (
	"fmt"
	"sort"

	"github.com/wildland/wildland-go/pkg/wlobject"
)

// Factory constructs a Backend from a decoded storage manifest. Params
// have already been validated against the manifest schema; backend-
// specific fields still need mapstructure decoding into the backend's
// own params struct.
type Factory func(s *wlobject.Storage) (Backend, error)

var factories = make(map[string]Factory)

// Register makes a backend type available by name. Concrete backend
// packages call this from an init func. Registering the same name twice
// panics, since it signals a build-time wiring mistake.
func Register(typ string, f Factory) {
	if f == nil {
		panic("storage: nil factory for " + typ)
	}
	if _, dup := factories[typ]; dup {
		panic("storage: factory already registered for " + typ)
	}
	factories[typ] = f
}

// New instantiates the backend registered for s.Type.
func New(s *wlobject.Storage) (Backend, error) {
	f, ok := factories[s.Type]
	if !ok {
		return nil, fmt.Errorf("storage: no backend registered for type %q", s.Type)
	}
	return f(s)
}

// Registered returns the known backend type tags, sorted by name, for
// diagnostics.
func Registered() []string {
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsTypeSupported reports whether a backend factory is registered for
// typ, used by storage selection to skip manifests naming an unknown
// backend before attempting to mount one.
func IsTypeSupported(typ string) bool {
	_, ok := factories[typ]
	return ok
}
