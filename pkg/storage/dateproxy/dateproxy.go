// Package dateproxy implements a read-only storage backend that
// reindexes a reference container's files into a YYYY/MM/DD tree keyed
// by modification time, and publishes one delegate subcontainer per
// distinct date it finds.
package dateproxy

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/wlerr"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

func init() {
	storage.Register("date-proxy", New)
}

// Params is the backend-specific portion of a `type: date-proxy`
// storage manifest body. As with delegate, the reference container must
// already be resolved by the caller; New exists only to reject
// unresolved manifests with a clear error.
type Params struct {
	ReferenceContainerURL string `mapstructure:"reference-container"`
}

func New(s *wlobject.Storage) (storage.Backend, error) {
	return nil, wlerr.New(wlerr.BackendMountFailed,
		"date-proxy backend requires its reference-container resolved first; use NewWithReference")
}

// dateEntry is one real file discovered under the reference backend,
// indexed by the calendar date of its modification time.
type dateEntry struct {
	date     string // "2010/05/07"
	realPath string // path within reference
}

// Backend is a read-only view of reference reindexed by date.
type Backend struct {
	storage.BaseBackend

	reference storage.Backend

	mu      sync.Mutex
	indexed bool
	entries []dateEntry
}

// NewWithReference builds a date-proxy backend over an already-
// constructed reference backend.
func NewWithReference(s *wlobject.Storage, reference storage.Backend) (*Backend, error) {
	var p Params
	if err := mapstructure.Decode(s.Params, &p); err != nil {
		return nil, wlerr.Wrap(wlerr.SchemaError, err, "decoding date-proxy backend params")
	}
	return &Backend{reference: reference}, nil
}

func (b *Backend) Type() string   { return "date-proxy" }
func (b *Backend) ReadOnly() bool { return true }

func (b *Backend) Mount(ctx context.Context) error {
	if err := b.reference.Mount(ctx); err != nil {
		return err
	}
	return b.reindex(ctx)
}

func (b *Backend) Unmount(ctx context.Context) error { return nil }

// reindex walks the reference backend once and groups every regular
// file by the calendar date of its Mtime. Empty directories are
// dropped, matching the original backend's "empty directory, should be
// ignored" behavior.
func (b *Backend) reindex(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.indexed {
		return nil
	}
	var entries []dateEntry
	var walk func(p string) error
	walk = func(p string) error {
		names, err := b.reference.Readdir(ctx, p)
		if err != nil {
			return err
		}
		for _, name := range names {
			child := path.Join(p, name)
			attr, err := b.reference.Getattr(ctx, child)
			if err != nil {
				continue
			}
			if attr.IsDir() {
				if err := walk(child); err != nil {
					return err
				}
				continue
			}
			entries = append(entries, dateEntry{
				date:     attr.Mtime.UTC().Format("2006/01/02"),
				realPath: child,
			})
		}
		return nil
	}
	if err := walk("/"); err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].date != entries[j].date {
			return entries[i].date < entries[j].date
		}
		return entries[i].realPath < entries[j].realPath
	})
	b.entries = entries
	b.indexed = true
	return nil
}

// dates returns the sorted, deduplicated list of date prefixes found.
func (b *Backend) dates() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, e := range b.entries {
		if _, ok := seen[e.date]; !ok {
			seen[e.date] = struct{}{}
			out = append(out, e.date)
		}
	}
	return out
}

func (b *Backend) Getattr(ctx context.Context, p string) (storage.Attr, error) {
	clean := strings.Trim(path.Clean("/"+p), "/")
	if clean == "" {
		return storage.Attr{Mode: 0o40555}, nil
	}
	for _, e := range b.entries {
		if clean == e.date+"/"+relUnderDate(e) {
			return b.reference.Getattr(ctx, e.realPath)
		}
	}
	// Directory node: any entry whose date+real-subpath starts with clean/.
	for _, e := range b.entries {
		full := e.date + "/" + relUnderDate(e)
		if strings.HasPrefix(full, clean+"/") {
			return storage.Attr{Mode: 0o40555}, nil
		}
	}
	return storage.Attr{}, wlerr.New(wlerr.ENOENT, "no such date-proxy path: %s", p)
}

// relUnderDate returns the portion of e.realPath that becomes the
// directory path below the date prefix: the real path itself, since the
// proxy mirrors the reference container's directory structure verbatim
// under each date it contributes to.
func relUnderDate(e dateEntry) string {
	return strings.TrimPrefix(e.realPath, "/")
}

func (b *Backend) Readdir(ctx context.Context, p string) ([]string, error) {
	clean := strings.Trim(path.Clean("/"+p), "/")
	seen := map[string]struct{}{}
	var names []string
	for _, e := range b.entries {
		full := e.date + "/" + relUnderDate(e)
		var rest string
		if clean == "" {
			rest = full
		} else if strings.HasPrefix(full, clean+"/") {
			rest = strings.TrimPrefix(full, clean+"/")
		} else {
			continue
		}
		if rest == "" {
			continue
		}
		name := strings.SplitN(rest, "/", 2)[0]
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (b *Backend) Open(ctx context.Context, p string, flags int) (storage.Handle, error) {
	clean := strings.Trim(path.Clean("/"+p), "/")
	for _, e := range b.entries {
		if clean == e.date+"/"+relUnderDate(e) {
			return b.reference.Open(ctx, e.realPath, flags)
		}
	}
	return nil, wlerr.New(wlerr.ENOENT, "no such date-proxy path: %s", p)
}

func (b *Backend) Read(ctx context.Context, h storage.Handle, off int64, size int) ([]byte, error) {
	return b.reference.Read(ctx, h, off, size)
}
func (b *Backend) Release(ctx context.Context, h storage.Handle) error {
	return b.reference.Release(ctx, h)
}
func (b *Backend) Fsync(ctx context.Context, h storage.Handle) error { return nil }

func (b *Backend) GetHash(ctx context.Context, p string) (string, error) {
	clean := strings.Trim(path.Clean("/"+p), "/")
	for _, e := range b.entries {
		if clean == e.date+"/"+relUnderDate(e) {
			return b.reference.GetHash(ctx, e.realPath)
		}
	}
	return "", wlerr.New(wlerr.ENOENT, "no such date-proxy path: %s", p)
}

// GetChildren yields one delegate-backed subcontainer per distinct date
// the index found, each rooted at that date's subtree, mirroring the
// original backend's timeline-of-subcontainers behavior.
func (b *Backend) GetChildren(ctx context.Context, query string) ([]storage.ChildStub, error) {
	if err := b.reindex(ctx); err != nil {
		return nil, err
	}
	var stubs []storage.ChildStub
	for _, date := range b.dates() {
		parts := strings.Split(date, "/")
		manifest := fmt.Sprintf(
			"object: storage\ntype: delegate\nsubdirectory: /%s\n", date,
		)
		stubs = append(stubs, storage.ChildStub{
			Path:          "/timeline/" + strings.Join(parts, "/"),
			ManifestBytes: []byte(manifest),
		})
	}
	return stubs, nil
}

var _ storage.ChildrenProvider = (*Backend)(nil)
