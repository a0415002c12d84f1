// Package daemon implements the mount daemon: a process that keeps a
// table of mounted containers, proxies filesystem operations through
// the virtual-path resolver to the right storage backend, and exposes a
// control API (over a Unix-domain socket) for mounting, unmounting and
// inspecting the running set.
package daemon

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wildland/wildland-go/pkg/resolver"
	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

// Entry describes one mounted storage backend, the Go equivalent of the
// original fs_base mount daemon's (storages, storage_paths, main_paths)
// triple collapsed into a single record keyed by storage id.
type Entry struct {
	ID        string
	Container *wlobject.Container
	Storage   *wlobject.Storage
	Backend   storage.Backend
	Paths     []string
	MountedAt time.Time
	Extra     map[string]any
}

// Table is the daemon's thread-safe mount table: which storage backends
// are mounted, at which virtual paths, layered on top of the resolver's
// prefix-tree conflict resolution. Grounded on the mount tracker pattern
// (record/remove/list under a single RWMutex guarding a map), generalized
// from tracking passive client sessions to owning live storage.Backend
// instances that must be Unmounted on removal.
type Table struct {
	mu       sync.RWMutex
	resolver *resolver.Resolver
	entries  map[string]*Entry
	counter  uint64
}

// NewTable builds an empty mount table backed by a fresh resolver.
func NewTable() *Table {
	t := &Table{entries: make(map[string]*Entry)}
	t.resolver = resolver.New(t)
	return t
}

// Resolver returns the virtual-path resolver backed by this table, for
// wiring into the VFS proxy layer.
func (t *Table) Resolver() *resolver.Resolver {
	return t.resolver
}

// Mount records a newly mounted backend under paths, returning the
// storage id assigned to it.
func (t *Table) Mount(ct *wlobject.Container, st *wlobject.Storage, backend storage.Backend, paths []string, extra map[string]any) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counter++
	id := fmt.Sprintf("%d", t.counter)
	t.entries[id] = &Entry{
		ID:        id,
		Container: ct,
		Storage:   st,
		Backend:   backend,
		Paths:     append([]string{}, paths...),
		MountedAt: time.Now(),
		Extra:     extra,
	}
	for _, p := range paths {
		t.resolver.Mount(p, id)
	}
	return id
}

// Unmount unmounts the backend owning id, returning it to the caller so
// it can be told to Unmount(ctx) outside the lock.
func (t *Table) Unmount(id string) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	for _, p := range e.Paths {
		t.resolver.Unmount(p, id)
	}
	delete(t.entries, id)
	return e, true
}

// Get returns the entry for id.
func (t *Table) Get(id string) (*Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	return e, ok
}

// FindByHash returns the id of the mounted storage whose backend hash
// matches hash, used to attach a subcontainer watch to an
// already-mounted storage by identity rather than by id.
func (t *Table) FindByHash(ctx context.Context, hash string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for id, e := range t.entries {
		h, err := e.Backend.GetHash(ctx, "/")
		if err == nil && h == hash {
			return id, true
		}
	}
	return "", false
}

// List returns every mounted entry, sorted by id for stable output.
func (t *Table) List() []*Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Paths returns the storage ids mounted at each known virtual path.
func (t *Table) Paths() map[string][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make(map[string][]string)
	for _, e := range t.entries {
		for _, p := range e.Paths {
			result[p] = append(result[p], e.ID)
		}
	}
	for p := range result {
		sort.Strings(result[p])
	}
	return result
}

// Getattr implements resolver.BackendQuerier.
func (t *Table) Getattr(id, relpath string) (storage.Attr, error) {
	e, ok := t.Get(id)
	if !ok {
		return storage.Attr{}, fmt.Errorf("daemon: no mounted storage %s", id)
	}
	return e.Backend.Getattr(context.Background(), "/"+relpath)
}

// Readdir implements resolver.BackendQuerier.
func (t *Table) Readdir(id, relpath string) ([]string, error) {
	e, ok := t.Get(id)
	if !ok {
		return nil, fmt.Errorf("daemon: no mounted storage %s", id)
	}
	return e.Backend.Readdir(context.Background(), "/"+relpath)
}
