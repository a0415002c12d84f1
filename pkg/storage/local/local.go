// Package local implements a storage backend rooted in a directory of
// the host filesystem, the reference backend for every other one to be
// measured against.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"

	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/wlerr"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

func init() {
	storage.Register("local", New)
}

// Params is the backend-specific portion of a `type: local` storage
// manifest body.
type Params struct {
	Path     string `mapstructure:"path"`
	ReadOnly bool   `mapstructure:"read-only"`
}

// Backend stores container contents as a plain directory tree rooted at
// Params.Path. All paths passed to its methods are slash-separated and
// relative to that root.
type Backend struct {
	storage.BaseBackend

	root     string
	readOnly bool

	mu           sync.Mutex
	handles      map[*handle]struct{}
	safeReplaces map[*handle]*safeReplace
}

type handle struct {
	f *os.File
}

// safeReplace tracks one in-flight guarded rewrite: the scratch path a
// handle actually writes to, the path it publishes to on commit, and
// the hash the target must still have for the commit to proceed.
type safeReplace struct {
	finalPath    string
	tmpPath      string
	expectedHash string
}

var _ storage.SafeReplacer = (*Backend)(nil)

// New constructs the local backend from a decoded storage manifest.
func New(s *wlobject.Storage) (storage.Backend, error) {
	var p Params
	if err := mapstructure.Decode(s.Params, &p); err != nil {
		return nil, wlerr.Wrap(wlerr.SchemaError, err, "decoding local backend params")
	}
	if p.Path == "" {
		return nil, wlerr.New(wlerr.SchemaError, "local backend requires params.path")
	}
	return &Backend{
		root:         filepath.Clean(p.Path),
		readOnly:     p.ReadOnly,
		handles:      make(map[*handle]struct{}),
		safeReplaces: make(map[*handle]*safeReplace),
	}, nil
}

func (b *Backend) Type() string   { return "local" }
func (b *Backend) ReadOnly() bool { return b.readOnly }

func (b *Backend) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	full := filepath.Join(b.root, clean)
	if !strings.HasPrefix(full, b.root) {
		return "", wlerr.New(wlerr.EACCES, "path escapes backend root: %s", path)
	}
	return full, nil
}

func (b *Backend) Mount(ctx context.Context) error {
	info, err := os.Stat(b.root)
	if err != nil {
		return wlerr.Wrap(wlerr.ENOENT, err, "local backend root %s", b.root)
	}
	if !info.IsDir() {
		return wlerr.New(wlerr.ENOTDIR, "local backend root %s is not a directory", b.root)
	}
	return nil
}

func (b *Backend) Unmount(ctx context.Context) error { return nil }

func (b *Backend) Getattr(ctx context.Context, path string) (storage.Attr, error) {
	full, err := b.resolve(path)
	if err != nil {
		return storage.Attr{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return storage.Attr{}, toWlErr(err)
	}
	return attrFromStat(info), nil
}

func attrFromStat(info os.FileInfo) storage.Attr {
	mode := uint32(info.Mode().Perm())
	if info.IsDir() {
		mode |= 0o40000
	} else {
		mode |= 0o100000
	}
	return storage.Attr{
		Mode:  mode,
		Size:  info.Size(),
		Mtime: info.ModTime(),
		Token: fmt.Sprintf("%d-%d", info.Size(), info.ModTime().UnixNano()),
	}
}

func (b *Backend) Readdir(ctx context.Context, path string) ([]string, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, toWlErr(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (b *Backend) Open(ctx context.Context, path string, flags int) (storage.Handle, error) {
	if b.readOnly && flags&(os.O_WRONLY|os.O_RDWR) != 0 {
		return nil, wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return nil, toWlErr(err)
	}
	h := &handle{f: f}
	b.mu.Lock()
	b.handles[h] = struct{}{}
	b.mu.Unlock()
	return h, nil
}

func (b *Backend) Create(ctx context.Context, path string, flags int, mode uint32) (storage.Handle, error) {
	if b.readOnly {
		return nil, wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(full, flags|os.O_CREATE, os.FileMode(mode))
	if err != nil {
		return nil, toWlErr(err)
	}
	h := &handle{f: f}
	b.mu.Lock()
	b.handles[h] = struct{}{}
	b.mu.Unlock()
	return h, nil
}

func asHandle(h storage.Handle) (*handle, error) {
	hh, ok := h.(*handle)
	if !ok || hh == nil || hh.f == nil {
		return nil, wlerr.New(wlerr.IOError, "invalid local file handle")
	}
	return hh, nil
}

func (b *Backend) Read(ctx context.Context, h storage.Handle, off int64, size int) ([]byte, error) {
	hh, err := asHandle(h)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := hh.f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, toWlErr(err)
	}
	return buf[:n], nil
}

func (b *Backend) Write(ctx context.Context, h storage.Handle, off int64, data []byte) (int, error) {
	if b.readOnly {
		return 0, wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	hh, err := asHandle(h)
	if err != nil {
		return 0, err
	}
	n, err := hh.f.WriteAt(data, off)
	if err != nil {
		return n, toWlErr(err)
	}
	return n, nil
}

func (b *Backend) Truncate(ctx context.Context, h storage.Handle, size int64) error {
	if b.readOnly {
		return wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	hh, err := asHandle(h)
	if err != nil {
		return err
	}
	if err := hh.f.Truncate(size); err != nil {
		return toWlErr(err)
	}
	return nil
}

func (b *Backend) Fsync(ctx context.Context, h storage.Handle) error {
	hh, err := asHandle(h)
	if err != nil {
		return err
	}
	return toWlErr(hh.f.Sync())
}

func (b *Backend) Release(ctx context.Context, h storage.Handle) error {
	hh, err := asHandle(h)
	if err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.handles, hh)
	b.mu.Unlock()
	return toWlErr(hh.f.Close())
}

func (b *Backend) Flush(ctx context.Context, h storage.Handle) error { return nil }

func (b *Backend) Mkdir(ctx context.Context, path string, mode uint32) error {
	if b.readOnly {
		return wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	return toWlErr(os.Mkdir(full, os.FileMode(mode)))
}

func (b *Backend) Rmdir(ctx context.Context, path string) error {
	if b.readOnly {
		return wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	return toWlErr(os.Remove(full))
}

func (b *Backend) Unlink(ctx context.Context, path string) error {
	if b.readOnly {
		return wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	return toWlErr(os.Remove(full))
}

func (b *Backend) Rename(ctx context.Context, src, dst string) error {
	if b.readOnly {
		return wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	fullSrc, err := b.resolve(src)
	if err != nil {
		return err
	}
	fullDst, err := b.resolve(dst)
	if err != nil {
		return err
	}
	return toWlErr(os.Rename(fullSrc, fullDst))
}

func (b *Backend) Chmod(ctx context.Context, path string, mode uint32) error {
	if b.readOnly {
		return wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	return toWlErr(os.Chmod(full, os.FileMode(mode)))
}

func (b *Backend) Chown(ctx context.Context, path string, uid, gid uint32) error {
	if b.readOnly {
		return wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	return toWlErr(os.Chown(full, int(uid), int(gid)))
}

func (b *Backend) Utimens(ctx context.Context, path string, atime, mtime time.Time) error {
	if b.readOnly {
		return wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	return toWlErr(os.Chtimes(full, atime, mtime))
}

func (b *Backend) GetHash(ctx context.Context, path string) (string, error) {
	full, err := b.resolve(path)
	if err != nil {
		return "", err
	}
	return hashFile(full)
}

// CreateSafeReplace opens a scratch file beside path; the caller writes
// to the returned handle with the normal Write/Truncate, then calls
// CommitSafeReplace or DiscardSafeReplace.
func (b *Backend) CreateSafeReplace(ctx context.Context, path, expectedHash string) (storage.Handle, error) {
	if b.readOnly {
		return nil, wlerr.New(wlerr.EROFS, "backend is read-only")
	}
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	tmp := fmt.Sprintf("%s.wl-tmp-%d", full, time.Now().UnixNano())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0o644)
	if err != nil {
		return nil, toWlErr(err)
	}
	h := &handle{f: f}
	b.mu.Lock()
	b.handles[h] = struct{}{}
	b.safeReplaces[h] = &safeReplace{finalPath: full, tmpPath: tmp, expectedHash: expectedHash}
	b.mu.Unlock()
	return h, nil
}

// CommitSafeReplace verifies the target's current hash against the one
// recorded at CreateSafeReplace time and, only if unchanged, renames the
// scratch file into place atomically.
func (b *Backend) CommitSafeReplace(ctx context.Context, h storage.Handle) error {
	hh, sr, err := b.takeSafeReplace(h)
	if err != nil {
		return err
	}

	if err := hh.f.Sync(); err != nil {
		hh.f.Close()
		os.Remove(sr.tmpPath)
		return toWlErr(err)
	}
	current, err := b.currentHashOrEmpty(sr.finalPath)
	if err != nil {
		hh.f.Close()
		os.Remove(sr.tmpPath)
		return err
	}
	if current != sr.expectedHash {
		hh.f.Close()
		os.Remove(sr.tmpPath)
		return wlerr.New(wlerr.HashMismatch, "target %s changed since safe-replace began", sr.finalPath)
	}
	if err := hh.f.Close(); err != nil {
		os.Remove(sr.tmpPath)
		return toWlErr(err)
	}
	return toWlErr(os.Rename(sr.tmpPath, sr.finalPath))
}

// DiscardSafeReplace abandons a pending safe-replace, removing its
// scratch file.
func (b *Backend) DiscardSafeReplace(ctx context.Context, h storage.Handle) error {
	hh, sr, err := b.takeSafeReplace(h)
	if err != nil {
		return err
	}
	hh.f.Close()
	return toWlErr(os.Remove(sr.tmpPath))
}

func (b *Backend) takeSafeReplace(h storage.Handle) (*handle, *safeReplace, error) {
	hh, err := asHandle(h)
	if err != nil {
		return nil, nil, err
	}
	b.mu.Lock()
	sr, ok := b.safeReplaces[hh]
	if ok {
		delete(b.safeReplaces, hh)
		delete(b.handles, hh)
	}
	b.mu.Unlock()
	if !ok {
		return nil, nil, wlerr.New(wlerr.IOError, "not a pending safe-replace handle")
	}
	return hh, sr, nil
}

func (b *Backend) currentHashOrEmpty(full string) (string, error) {
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", toWlErr(err)
	}
	return hashFile(full)
}

// StartWatcher installs an fsnotify recursive watch over the backend
// root and translates raw fsnotify events into storage.Event batches.
func (b *Backend) StartWatcher(ctx context.Context, ignoreOwn bool) (storage.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, wlerr.Wrap(wlerr.IOError, err, "creating fsnotify watcher")
	}
	if err := filepath.WalkDir(b.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(p)
		}
		return nil
	}); err != nil {
		fw.Close()
		return nil, wlerr.Wrap(wlerr.IOError, err, "walking %s for watch registration", b.root)
	}
	return &watcher{fw: fw, root: b.root}, nil
}

type watcher struct {
	fw   *fsnotify.Watcher
	root string
}

func (w *watcher) Wait(ctx context.Context) ([]storage.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev, ok := <-w.fw.Events:
		if !ok {
			return nil, nil
		}
		rel, err := filepath.Rel(w.root, ev.Name)
		if err != nil {
			rel = ev.Name
		}
		events := []storage.Event{{Kind: kindOf(ev.Op), Path: filepath.ToSlash(rel)}}
		if ev.Op&fsnotify.Create != 0 {
			if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
				w.fw.Add(ev.Name)
			}
		}
		return events, nil
	case err, ok := <-w.fw.Errors:
		if !ok {
			return nil, nil
		}
		return nil, wlerr.Wrap(wlerr.IOError, err, "watch error")
	}
}

func (w *watcher) Stop() error { return w.fw.Close() }

func kindOf(op fsnotify.Op) storage.EventKind {
	switch {
	case op&fsnotify.Create != 0:
		return storage.EventCreate
	case op&fsnotify.Remove != 0, op&fsnotify.Rename != 0:
		return storage.EventDelete
	default:
		return storage.EventModify
	}
}

func toWlErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return wlerr.Wrap(wlerr.ENOENT, err, "")
	case os.IsExist(err):
		return wlerr.Wrap(wlerr.EEXIST, err, "")
	case os.IsPermission(err):
		return wlerr.Wrap(wlerr.EACCES, err, "")
	default:
		return wlerr.Wrap(wlerr.IOError, err, "")
	}
}
