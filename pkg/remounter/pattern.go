// Package remounter watches container manifests for changes and keeps
// a running mount daemon in sync: new manifests get mounted, changed
// ones get remounted, and manifests that disappear get unmounted.
package remounter

import (
	"path"
	"strings"
)

// Pattern decides whether a path reported by a watch event names a
// manifest this remounter cares about.
type Pattern interface {
	// Match reports whether relpath (relative to the watched
	// storage's root) should be treated as a container manifest to
	// (re)load.
	Match(relpath string) bool
	// String renders the pattern for AddWatch's wire format.
	String() string
}

// PlainPattern is a literal glob over paths within one already-mounted
// storage (a manifests-catalog container), the Go counterpart of
// PatternRemounter's plain, non-Wildland-path patterns — container
// names or local paths resolved once, up front, by the caller.
type PlainPattern string

func (p PlainPattern) Match(relpath string) bool {
	ok, err := path.Match(string(p), relpath)
	return err == nil && ok
}

func (p PlainPattern) String() string { return string(p) }

// WildlandPathPattern matches the manifests directly below a container's
// virtual mount path, standing in for PatternRemounter's Wildland-path patterns.
// The original resolves a wildland: path through a chain of bridges and
// manifest catalogs (Search.get_watch_params) to the concrete patterns
// to watch; this codebase has no bridge/catalog resolver, so
// WildlandPathPattern instead matches manifests directly beneath the
// given virtual container path, which covers the common single-catalog
// case without the full cross-user bridge traversal.
type WildlandPathPattern struct {
	ContainerPath string
}

func (p WildlandPathPattern) Match(relpath string) bool {
	base := strings.TrimPrefix(p.ContainerPath, "/")
	rest, ok := strings.CutPrefix(relpath, base+"/")
	if !ok {
		return false
	}
	return !strings.Contains(rest, "/") && strings.HasSuffix(rest, ".yaml")
}

func (p WildlandPathPattern) String() string { return p.ContainerPath + "/*.yaml" }
