package hashcache

import (
	"context"
	"time"

	"github.com/wildland/wildland-go/internal/telemetry"
	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/wlerr"
)

// CachingBackend wraps a storage.Backend so that GetHash calls are
// served from Cache whenever the backend's current attribute token still
// matches the cached one, and invalidates the cached entry
// on every operation that can change path's content. It implements
// storage.Backend plus, when the wrapped backend supports them,
// storage.ChildrenProvider and storage.SafeReplacer, so wrapping never
// hides a mounted backend's optional capabilities from the proxy layer.
type CachingBackend struct {
	storage.Backend
	cache     *Cache
	backendID string
}

// Wrap returns backend unchanged if cache is nil (hash caching
// disabled), otherwise a CachingBackend reading/writing entries under
// backendID.
func Wrap(backend storage.Backend, cache *Cache, backendID string) storage.Backend {
	if cache == nil {
		return backend
	}
	return &CachingBackend{Backend: backend, cache: cache, backendID: backendID}
}

// Getattr always calls through to the backend (Getattr is normally
// cheap; only GetHash is worth skipping) and drops the cached entry for
// path when its recorded token no longer matches the fresh one. It
// writes nothing to the cache.
func (b *CachingBackend) Getattr(ctx context.Context, path string) (storage.Attr, error) {
	attr, err := b.Backend.Getattr(ctx, path)
	if err != nil {
		return attr, err
	}
	if entry, found, _ := b.cache.Get(ctx, b.backendID, path); found && entry.Token != attr.Token {
		_ = b.cache.Invalidate(ctx, b.backendID, path)
	}
	return attr, nil
}

// GetHash serves from the cache when path's current token still matches
// the token recorded alongside the cached hash, avoiding a full content
// hash recompute against slow or metered backends.
func (b *CachingBackend) GetHash(ctx context.Context, path string) (string, error) {
	ctx, span := telemetry.StartCacheSpan(ctx, "get_hash")
	defer span.End()

	attr, err := b.Backend.Getattr(ctx, path)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", err
	}

	if entry, found, _ := b.cache.Get(ctx, b.backendID, path); found && entry.Token == attr.Token {
		telemetry.SetAttributes(ctx, telemetry.CacheHit(true))
		return entry.Hash, nil
	}
	telemetry.SetAttributes(ctx, telemetry.CacheHit(false))

	hash, err := b.Backend.GetHash(ctx, path)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", err
	}
	_ = b.cache.Put(ctx, b.backendID, path, Entry{Token: attr.Token, Hash: hash, At: time.Now()})
	return hash, nil
}

func (b *CachingBackend) Write(ctx context.Context, h storage.Handle, off int64, data []byte) (int, error) {
	n, err := b.Backend.Write(ctx, h, off, data)
	b.invalidateHandle(ctx, h)
	return n, err
}

func (b *CachingBackend) Truncate(ctx context.Context, h storage.Handle, size int64) error {
	err := b.Backend.Truncate(ctx, h, size)
	b.invalidateHandle(ctx, h)
	return err
}

func (b *CachingBackend) Unlink(ctx context.Context, path string) error {
	err := b.Backend.Unlink(ctx, path)
	_ = b.cache.Invalidate(ctx, b.backendID, path)
	return err
}

func (b *CachingBackend) Rmdir(ctx context.Context, path string) error {
	err := b.Backend.Rmdir(ctx, path)
	_ = b.cache.Invalidate(ctx, b.backendID, path)
	return err
}

func (b *CachingBackend) Rename(ctx context.Context, src, dst string) error {
	err := b.Backend.Rename(ctx, src, dst)
	_ = b.cache.Invalidate(ctx, b.backendID, src)
	_ = b.cache.Invalidate(ctx, b.backendID, dst)
	return err
}

func (b *CachingBackend) Chmod(ctx context.Context, path string, mode uint32) error {
	err := b.Backend.Chmod(ctx, path, mode)
	_ = b.cache.Invalidate(ctx, b.backendID, path)
	return err
}

func (b *CachingBackend) Chown(ctx context.Context, path string, uid, gid uint32) error {
	err := b.Backend.Chown(ctx, path, uid, gid)
	_ = b.cache.Invalidate(ctx, b.backendID, path)
	return err
}

func (b *CachingBackend) Utimens(ctx context.Context, path string, atime, mtime time.Time) error {
	err := b.Backend.Utimens(ctx, path, atime, mtime)
	_ = b.cache.Invalidate(ctx, b.backendID, path)
	return err
}

// invalidateHandle drops the cached entry for whatever path h is open
// against, best-effort: CachingBackend doesn't track handle-to-path
// itself, so a path-carrying handle implementation is required for this
// to do anything; backends without one simply keep serving the stale
// entry until its token next changes, which Getattr/GetHash still catch.
func (b *CachingBackend) invalidateHandle(ctx context.Context, h storage.Handle) {
	if p, ok := h.(interface{ Path() string }); ok {
		_ = b.cache.Invalidate(ctx, b.backendID, p.Path())
	}
}

// GetChildren forwards to the wrapped backend when it implements
// storage.ChildrenProvider (manifest catalogs, archive/date proxies),
// so wrapping a subcontainer-capable backend in a cache doesn't hide
// that capability from callers that type-assert for it.
func (b *CachingBackend) GetChildren(ctx context.Context, query string) ([]storage.ChildStub, error) {
	if cp, ok := b.Backend.(storage.ChildrenProvider); ok {
		return cp.GetChildren(ctx, query)
	}
	return nil, wlerr.New(wlerr.ENOSYS, "children listing not supported")
}

// CreateSafeReplace forwards to the wrapped backend when it implements
// storage.SafeReplacer.
func (b *CachingBackend) CreateSafeReplace(ctx context.Context, path, expectedHash string) (storage.Handle, error) {
	sr, ok := b.Backend.(storage.SafeReplacer)
	if !ok {
		return nil, wlerr.New(wlerr.ENOSYS, "safe replace not supported")
	}
	return sr.CreateSafeReplace(ctx, path, expectedHash)
}

// CommitSafeReplace forwards to the wrapped backend, then drops the
// cached entry through invalidateHandle. SafeReplacer's handle carries
// no path by contract, so this only has an effect for handles that
// expose Path(); otherwise the stale entry stays until GetHash sees the
// published file's new token.
func (b *CachingBackend) CommitSafeReplace(ctx context.Context, h storage.Handle) error {
	sr, ok := b.Backend.(storage.SafeReplacer)
	if !ok {
		return wlerr.New(wlerr.ENOSYS, "safe replace not supported")
	}
	err := sr.CommitSafeReplace(ctx, h)
	b.invalidateHandle(ctx, h)
	return err
}

// DiscardSafeReplace forwards to the wrapped backend.
func (b *CachingBackend) DiscardSafeReplace(ctx context.Context, h storage.Handle) error {
	sr, ok := b.Backend.(storage.SafeReplacer)
	if !ok {
		return wlerr.New(wlerr.ENOSYS, "safe replace not supported")
	}
	return sr.DiscardSafeReplace(ctx, h)
}
