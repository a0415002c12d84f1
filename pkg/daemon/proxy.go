package daemon

import (
	"context"

	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/wlerr"
)

// Proxy dispatches VFS-shaped operations against the resolver's merged
// view, reaching into the owning backend for any path the resolver
// narrows to a single storage. This is the daemon-side counterpart of
// the original FUSE driver's thin operation handlers, minus any
// particular kernel-facing wire format: a future `cmd/wildlandfs` FUSE
// front-end (or the sync package) calls these directly.
type Proxy struct {
	table *Table
}

// NewProxy builds a Proxy over table.
func NewProxy(table *Table) *Proxy {
	return &Proxy{table: table}
}

func (p *Proxy) resolveOne(path string) (*Entry, string, error) {
	_, res, err := p.table.Resolver().GetattrExtended(path)
	if err != nil {
		return nil, "", err
	}
	if res == nil {
		return nil, "", wlerr.New(wlerr.EISDIR, "path is a synthetic or merged directory: %s", path)
	}
	e, ok := p.table.Get(res.ID)
	if !ok {
		return nil, "", wlerr.New(wlerr.ENOENT, "storage for %s went away", path)
	}
	return e, "/" + res.RelPath, nil
}

// Getattr returns merged attributes for path.
func (p *Proxy) Getattr(path string) (storage.Attr, error) {
	return p.table.Resolver().Getattr(path)
}

// Readdir lists path, merging synthetic mount points with backend
// contents.
func (p *Proxy) Readdir(path string) ([]string, error) {
	return p.table.Resolver().Readdir(path)
}

// Open resolves path to its owning backend and opens it there.
func (p *Proxy) Open(ctx context.Context, path string, flags int) (storage.Handle, *Entry, string, error) {
	e, rel, err := p.resolveOne(path)
	if err != nil {
		return nil, nil, "", err
	}
	h, err := e.Backend.Open(ctx, rel, flags)
	return h, e, rel, err
}

// Create resolves the parent directory of path (which must already
// belong to exactly one backend, since Wildland doesn't support
// creating files at the mount-point conflict boundary) and creates the
// new file there.
func (p *Proxy) Create(ctx context.Context, path string, flags int, mode uint32) (storage.Handle, *Entry, string, error) {
	_, res, err := p.table.Resolver().GetattrExtended(path)
	if err == nil && res != nil {
		return nil, nil, "", wlerr.New(wlerr.EEXIST, "already exists: %s", path)
	}

	dir := parentOf(path)
	_, dres, err := p.table.Resolver().GetattrExtended(dir)
	if err != nil {
		return nil, nil, "", err
	}
	if dres == nil {
		return nil, nil, "", wlerr.New(wlerr.EISDIR, "parent directory is synthetic or merged: %s", dir)
	}
	e, ok := p.table.Get(dres.ID)
	if !ok {
		return nil, nil, "", wlerr.New(wlerr.ENOENT, "storage for %s went away", dir)
	}
	if e.Backend.ReadOnly() {
		return nil, nil, "", wlerr.New(wlerr.EROFS, "storage %s is read-only", e.ID)
	}

	rel := "/" + joinRel(dres.RelPath, baseOf(path))
	h, err := e.Backend.Create(ctx, rel, flags, mode)
	return h, e, rel, err
}

// Unlink removes path, failing EROFS against a read-only backend.
func (p *Proxy) Unlink(ctx context.Context, path string) error {
	e, rel, err := p.resolveOne(path)
	if err != nil {
		return err
	}
	if e.Backend.ReadOnly() {
		return wlerr.New(wlerr.EROFS, "storage %s is read-only", e.ID)
	}
	return e.Backend.Unlink(ctx, rel)
}

// Mkdir creates a directory under path's resolved parent backend.
func (p *Proxy) Mkdir(ctx context.Context, path string, mode uint32) error {
	dir := parentOf(path)
	_, dres, err := p.table.Resolver().GetattrExtended(dir)
	if err != nil {
		return err
	}
	if dres == nil {
		return wlerr.New(wlerr.EISDIR, "parent directory is synthetic or merged: %s", dir)
	}
	e, ok := p.table.Get(dres.ID)
	if !ok {
		return wlerr.New(wlerr.ENOENT, "storage for %s went away", dir)
	}
	if e.Backend.ReadOnly() {
		return wlerr.New(wlerr.EROFS, "storage %s is read-only", e.ID)
	}
	rel := "/" + joinRel(dres.RelPath, baseOf(path))
	return e.Backend.Mkdir(ctx, rel, mode)
}

// Rmdir removes the (now-empty) directory at path.
func (p *Proxy) Rmdir(ctx context.Context, path string) error {
	e, rel, err := p.resolveOne(path)
	if err != nil {
		return err
	}
	if e.Backend.ReadOnly() {
		return wlerr.New(wlerr.EROFS, "storage %s is read-only", e.ID)
	}
	return e.Backend.Rmdir(ctx, rel)
}

func parentOf(path string) string {
	base := baseOf(path)
	if len(path) == len(base) {
		return ""
	}
	return path[:len(path)-len(base)-1]
}

func baseOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func joinRel(rel, name string) string {
	if rel == "" {
		return name
	}
	return rel + "/" + name
}
