// Package delegate implements a storage backend that exposes a single
// subdirectory of another, already-resolved container as if it were the
// whole container (spec's delegate backend family, used internally by
// date-proxy subcontainers and directly by users who want to re-publish
// part of an existing container under new paths).
package delegate

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/wlerr"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

func init() {
	storage.Register("delegate", New)
}

// Params is the backend-specific portion of a `type: delegate` storage
// manifest body. ReferenceContainer is resolved by the caller (pkg/
// client's object loader) before this backend is handed its reference
// backend through NewWithReference; New itself only exists to satisfy
// the registry and fails informatively if constructed without one.
type Params struct {
	Subdirectory string `mapstructure:"subdirectory"`
}

// Backend narrows Reference's view to everything under Subdirectory.
type Backend struct {
	storage.BaseBackend

	reference    storage.Backend
	subdirectory string
}

// New satisfies the storage.Factory signature but cannot construct a
// working delegate backend on its own, since a delegate needs its
// reference backend already constructed. Callers resolving a `type:
// delegate` storage manifest must use NewWithReference instead; this
// registration exists so unresolved delegate manifests fail with a
// clear error rather than "unknown backend type".
func New(s *wlobject.Storage) (storage.Backend, error) {
	return nil, wlerr.New(wlerr.BackendMountFailed,
		"delegate backend requires its reference-container resolved first; use NewWithReference")
}

// NewWithReference builds a delegate backend over an already-constructed
// reference backend, per a decoded storage manifest's subdirectory
// param.
func NewWithReference(s *wlobject.Storage, reference storage.Backend) (*Backend, error) {
	var p Params
	if err := mapstructure.Decode(s.Params, &p); err != nil {
		return nil, wlerr.Wrap(wlerr.SchemaError, err, "decoding delegate backend params")
	}
	return &Backend{
		reference:    reference,
		subdirectory: path.Clean("/" + p.Subdirectory),
	}, nil
}

func (b *Backend) Type() string   { return "delegate" }
func (b *Backend) ReadOnly() bool { return b.reference.ReadOnly() }

func (b *Backend) rebase(p string) string {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return b.subdirectory
	}
	return strings.TrimSuffix(b.subdirectory, "/") + clean
}

func (b *Backend) Mount(ctx context.Context) error   { return b.reference.Mount(ctx) }
func (b *Backend) Unmount(ctx context.Context) error { return nil }

func (b *Backend) Getattr(ctx context.Context, p string) (storage.Attr, error) {
	return b.reference.Getattr(ctx, b.rebase(p))
}
func (b *Backend) Readdir(ctx context.Context, p string) ([]string, error) {
	return b.reference.Readdir(ctx, b.rebase(p))
}
func (b *Backend) Open(ctx context.Context, p string, flags int) (storage.Handle, error) {
	return b.reference.Open(ctx, b.rebase(p), flags)
}
func (b *Backend) Create(ctx context.Context, p string, flags int, mode uint32) (storage.Handle, error) {
	return b.reference.Create(ctx, b.rebase(p), flags, mode)
}
func (b *Backend) Read(ctx context.Context, h storage.Handle, off int64, size int) ([]byte, error) {
	return b.reference.Read(ctx, h, off, size)
}
func (b *Backend) Write(ctx context.Context, h storage.Handle, off int64, data []byte) (int, error) {
	return b.reference.Write(ctx, h, off, data)
}
func (b *Backend) Truncate(ctx context.Context, h storage.Handle, size int64) error {
	return b.reference.Truncate(ctx, h, size)
}
func (b *Backend) Fsync(ctx context.Context, h storage.Handle) error {
	return b.reference.Fsync(ctx, h)
}
func (b *Backend) Release(ctx context.Context, h storage.Handle) error {
	return b.reference.Release(ctx, h)
}
func (b *Backend) Flush(ctx context.Context, h storage.Handle) error {
	return b.reference.Flush(ctx, h)
}
func (b *Backend) Mkdir(ctx context.Context, p string, mode uint32) error {
	return b.reference.Mkdir(ctx, b.rebase(p), mode)
}
func (b *Backend) Rmdir(ctx context.Context, p string) error {
	return b.reference.Rmdir(ctx, b.rebase(p))
}
func (b *Backend) Unlink(ctx context.Context, p string) error {
	return b.reference.Unlink(ctx, b.rebase(p))
}
func (b *Backend) Rename(ctx context.Context, src, dst string) error {
	return b.reference.Rename(ctx, b.rebase(src), b.rebase(dst))
}
func (b *Backend) Chmod(ctx context.Context, p string, mode uint32) error {
	return b.reference.Chmod(ctx, b.rebase(p), mode)
}
func (b *Backend) Chown(ctx context.Context, p string, uid, gid uint32) error {
	return b.reference.Chown(ctx, b.rebase(p), uid, gid)
}
func (b *Backend) Utimens(ctx context.Context, p string, atime, mtime time.Time) error {
	return b.reference.Utimens(ctx, b.rebase(p), atime, mtime)
}
func (b *Backend) GetHash(ctx context.Context, p string) (string, error) {
	return b.reference.GetHash(ctx, b.rebase(p))
}
func (b *Backend) StartWatcher(ctx context.Context, ignoreOwn bool) (storage.Watcher, error) {
	return b.reference.StartWatcher(ctx, ignoreOwn)
}
