// Package resolver implements the virtual-path conflict resolution
// algorithm that lets many mounted storages coexist under one
// namespace: a prefix tree of mount points plus the getattr/readdir
// rules that turn overlapping storages into synthetic directories and
// `.wl.<id>`-suffixed files.
package resolver

import (
	"sort"
	"strings"
)

// Resolved is one storage responsible for a given path, together with
// the path relative to that storage's own root.
type Resolved struct {
	ID      string
	RelPath string
}

// mountDir is a node in the path prefix tree built from every mounted
// storage's mount path.
type mountDir struct {
	storageIDs map[string]struct{}
	children   map[string]*mountDir
}

func newMountDir() *mountDir {
	return &mountDir{
		storageIDs: make(map[string]struct{}),
		children:   make(map[string]*mountDir),
	}
}

func (d *mountDir) isEmpty() bool {
	return len(d.children) == 0 && len(d.storageIDs) == 0
}

// splitFirst splits a clean, slash-separated path (no leading slash)
// into its first component and the rest, or ("", "") if path is empty.
func splitFirst(path string) (first, rest string) {
	if path == "" {
		return "", ""
	}
	idx := strings.IndexByte(path, '/')
	if idx < 0 {
		return path, ""
	}
	return path[:idx], path[idx+1:]
}

// mount registers storageID as responsible for path (relative, no
// leading slash; "" means the root itself).
func (d *mountDir) mount(path, storageID string) {
	if path == "" {
		d.storageIDs[storageID] = struct{}{}
		return
	}
	first, rest := splitFirst(path)
	child, ok := d.children[first]
	if !ok {
		child = newMountDir()
		d.children[first] = child
	}
	child.mount(rest, storageID)
}

// unmount removes storageID from path, pruning now-empty nodes.
func (d *mountDir) unmount(path, storageID string) {
	if path == "" {
		delete(d.storageIDs, storageID)
		return
	}
	first, rest := splitFirst(path)
	child, ok := d.children[first]
	if !ok {
		return
	}
	child.unmount(rest, storageID)
	if child.isEmpty() {
		delete(d.children, first)
	}
}

// isSynthetic reports whether path is a synthetic directory: either
// multiple storages are mounted exactly here, or storages are mounted
// deeper under it.
func (d *mountDir) isSynthetic(path string) bool {
	if path == "" {
		if len(d.children) == 0 && len(d.storageIDs) == 1 {
			return false
		}
		return true
	}
	first, rest := splitFirst(path)
	child, ok := d.children[first]
	if !ok {
		return false
	}
	return child.isSynthetic(rest)
}

// readdirSynthetic lists the synthetic child directory names directly
// under path, or (nil, false) if path isn't a known synthetic node.
func (d *mountDir) readdirSynthetic(path string) ([]string, bool) {
	if path == "" {
		names := make([]string, 0, len(d.children))
		for name := range d.children {
			names = append(names, name)
		}
		return names, true
	}
	first, rest := splitFirst(path)
	child, ok := d.children[first]
	if !ok {
		return nil, false
	}
	return child.readdirSynthetic(rest)
}

// resolve finds every storage that could be responsible for path.
func (d *mountDir) resolve(path string) []Resolved {
	var out []Resolved
	ids := make([]string, 0, len(d.storageIDs))
	for id := range d.storageIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, Resolved{ID: id, RelPath: path})
	}
	if path != "" {
		first, rest := splitFirst(path)
		if child, ok := d.children[first]; ok {
			out = append(out, child.resolve(rest)...)
		}
	}
	return out
}
