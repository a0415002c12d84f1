// Package storage defines the abstract storage backend interface every
// concrete backend (local disk, S3, delegate, date-organized view, ...)
// must satisfy, plus the registry and watcher contract shared by all of
// them.
package storage

import (
	"context"
	"time"

	"github.com/wildland/wildland-go/pkg/wlerr"
)

// Attr is the subset of file attributes the resolver and proxy layer
// need. Mode follows unix mode bits (S_IFDIR/S_IFREG | permission bits).
type Attr struct {
	Mode  uint32
	Size  int64
	Mtime time.Time
	// Token is an opaque freshness marker for the hash cache (e.g.
	// derived from Size+Mtime, or a backend-specific counter).
	Token string
}

// IsDir reports whether Mode has the directory bit set.
func (a Attr) IsDir() bool { return a.Mode&0o40000 != 0 }

// Handle is an opaque per-open file reference returned by Open/Create.
type Handle interface{}

// EventKind enumerates the three change kinds a watcher may report.
type EventKind int

const (
	EventCreate EventKind = iota
	EventModify
	EventDelete
)

func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "CREATE"
	case EventModify:
		return "MODIFY"
	case EventDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is a single filesystem-change notification, relative to the
// backend's root.
type Event struct {
	Kind EventKind
	Path string
}

// Watcher is what start_watcher returns: a single stream of events the
// daemon may fan out to many subscribers.
type Watcher interface {
	// Wait blocks until either an event batch is ready or ctx is
	// cancelled. A closed/cancelled watcher returns a nil slice.
	Wait(ctx context.Context) ([]Event, error)
	// Stop releases any resources the watcher holds. Idempotent.
	Stop() error
}

// ChildStub is a (path, container-stub-or-link) pair yielded by backends
// that expose subcontainers: manifest catalogs, archive-proxy, date-proxy.
type ChildStub struct {
	Path          string
	ManifestBytes []byte // raw signed manifest bytes, or nil if Link is set
	LinkFile      string // non-empty when this stub is a Link reference
}

// ChildrenProvider is the optional capability backends implement when
// they can enumerate subcontainers.
type ChildrenProvider interface {
	GetChildren(ctx context.Context, query string) ([]ChildStub, error)
}

// Backend is the VFS-shaped capability set every storage implementation
// exposes. Operations not meaningfully supported by a given backend
// should return wlerr.New(wlerr.ENOSYS, ...) rather than being omitted,
// so the proxy layer (pkg/daemon) can treat every Backend identically.
type Backend interface {
	// Type returns the backend's registered tag.
	Type() string

	// Mount and Unmount are idempotent. Mount must complete before any
	// I/O; Unmount after the last I/O.
	Mount(ctx context.Context) error
	Unmount(ctx context.Context) error

	// ReadOnly reports whether mutating operations should fail EROFS at
	// the proxy layer before ever reaching the backend.
	ReadOnly() bool

	Getattr(ctx context.Context, path string) (Attr, error)
	Readdir(ctx context.Context, path string) ([]string, error)

	Open(ctx context.Context, path string, flags int) (Handle, error)
	Create(ctx context.Context, path string, flags int, mode uint32) (Handle, error)

	Read(ctx context.Context, h Handle, off int64, size int) ([]byte, error)
	Write(ctx context.Context, h Handle, off int64, data []byte) (int, error)
	Truncate(ctx context.Context, h Handle, size int64) error
	Fsync(ctx context.Context, h Handle) error
	Release(ctx context.Context, h Handle) error
	Flush(ctx context.Context, h Handle) error

	Mkdir(ctx context.Context, path string, mode uint32) error
	Rmdir(ctx context.Context, path string) error
	Unlink(ctx context.Context, path string) error
	Rename(ctx context.Context, src, dst string) error
	Chmod(ctx context.Context, path string, mode uint32) error
	Chown(ctx context.Context, path string, uid, gid uint32) error
	Utimens(ctx context.Context, path string, atime, mtime time.Time) error

	// GetHash returns the sha256-hex content hash of path. Backends that
	// can derive it cheaply (e.g. from an ETag) should; others fall back
	// to reading the whole file through Open/Read.
	GetHash(ctx context.Context, path string) (string, error)

	// StartWatcher is optional; a nil, nil return means the caller must
	// poll instead.
	StartWatcher(ctx context.Context, ignoreOwn bool) (Watcher, error)
}

// SafeReplacer is the optional capability a backend implements to let a
// caller overwrite a file only if its current content hash still
// matches an expected value, the Go counterpart of
// open_for_safe_replace: a commit that observes a different hash than
// expected aborts with wlerr.HashMismatch instead of clobbering the
// target, and a discard abandons the rewrite leaving the target
// untouched.
type SafeReplacer interface {
	// CreateSafeReplace opens a scratch handle for path. Write to it
	// with the normal Backend.Write/Truncate, then either
	// CommitSafeReplace or DiscardSafeReplace — never Release.
	// expectedHash == "" means path must not exist yet.
	CreateSafeReplace(ctx context.Context, path, expectedHash string) (Handle, error)
	// CommitSafeReplace verifies path's current hash still equals the
	// expectedHash given to CreateSafeReplace and, if so, atomically
	// publishes the scratch handle's content.
	CommitSafeReplace(ctx context.Context, h Handle) error
	// DiscardSafeReplace abandons a pending safe-replace handle.
	DiscardSafeReplace(ctx context.Context, h Handle) error
}

// BaseBackend implements every Backend method except Type so concrete
// backends can embed it and override only what they support: Mount,
// Unmount, Fsync, Release and Flush succeed as no-ops, ReadOnly is false,
// Getattr reports ENOENT, StartWatcher returns no watcher, and every
// other operation fails with ENOSYS.
type BaseBackend struct{}

func enosys(op string) error { return wlerr.New(wlerr.ENOSYS, "%s not supported", op) }

func (BaseBackend) Mount(ctx context.Context) error   { return nil }
func (BaseBackend) Unmount(ctx context.Context) error { return nil }
func (BaseBackend) ReadOnly() bool                    { return false }

func (BaseBackend) Getattr(ctx context.Context, path string) (Attr, error) {
	return Attr{}, wlerr.New(wlerr.ENOENT, "no such path: %s", path)
}
func (BaseBackend) Readdir(ctx context.Context, path string) ([]string, error) {
	return nil, enosys("readdir")
}
func (BaseBackend) Open(ctx context.Context, path string, flags int) (Handle, error) {
	return nil, enosys("open")
}
func (BaseBackend) Create(ctx context.Context, path string, flags int, mode uint32) (Handle, error) {
	return nil, enosys("create")
}
func (BaseBackend) Read(ctx context.Context, h Handle, off int64, size int) ([]byte, error) {
	return nil, enosys("read")
}
func (BaseBackend) Write(ctx context.Context, h Handle, off int64, data []byte) (int, error) {
	return 0, enosys("write")
}
func (BaseBackend) Truncate(ctx context.Context, h Handle, size int64) error { return enosys("truncate") }
func (BaseBackend) Fsync(ctx context.Context, h Handle) error                { return nil }
func (BaseBackend) Release(ctx context.Context, h Handle) error              { return nil }
func (BaseBackend) Flush(ctx context.Context, h Handle) error                { return nil }
func (BaseBackend) Mkdir(ctx context.Context, path string, mode uint32) error { return enosys("mkdir") }
func (BaseBackend) Rmdir(ctx context.Context, path string) error              { return enosys("rmdir") }
func (BaseBackend) Unlink(ctx context.Context, path string) error             { return enosys("unlink") }
func (BaseBackend) Rename(ctx context.Context, src, dst string) error         { return enosys("rename") }
func (BaseBackend) Chmod(ctx context.Context, path string, mode uint32) error { return enosys("chmod") }
func (BaseBackend) Chown(ctx context.Context, path string, uid, gid uint32) error {
	return enosys("chown")
}
func (BaseBackend) Utimens(ctx context.Context, path string, atime, mtime time.Time) error {
	return enosys("utimens")
}
func (BaseBackend) GetHash(ctx context.Context, path string) (string, error) {
	return "", enosys("get_hash")
}
func (BaseBackend) StartWatcher(ctx context.Context, ignoreOwn bool) (Watcher, error) {
	return nil, nil
}
