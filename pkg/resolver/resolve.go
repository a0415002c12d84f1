package resolver

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/wildland/wildland-go/pkg/metrics"
	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/wlerr"
)

// suffixRe matches the disambiguation suffix `<name>.wl.<storage-id>`.
var suffixRe = regexp.MustCompile(`^(.*)\.wl\.(.+)$`)

const suffixFormat = "%s.wl.%s"

// BackendQuerier is the minimal surface the resolver needs from the
// mount table to reach a storage's real backend, kept distinct from
// storage.Backend so the resolver never holds backends directly (that
// stays the daemon's job).
type BackendQuerier interface {
	Getattr(id, relpath string) (storage.Attr, error)
	Readdir(id, relpath string) ([]string, error)
}

// Resolver is the virtual-path conflict resolution engine: it owns the
// mount-point prefix tree and answers readdir/getattr against it,
// delegating actual I/O to a BackendQuerier.
type Resolver struct {
	root    *mountDir
	backend BackendQuerier
	metrics metrics.ResolverMetrics
}

// New builds a Resolver that queries backend for attribute/listing data.
func New(backend BackendQuerier) *Resolver {
	return &Resolver{root: newMountDir(), backend: backend}
}

// SetMetrics attaches m as this resolver's metrics sink. Pass nil (the
// default) to leave metrics collection disabled.
func (r *Resolver) SetMetrics(m metrics.ResolverMetrics) { r.metrics = m }

func cleanRel(path string) string {
	return strings.Trim(path, "/")
}

// Mount records that storageID now owns path.
func (r *Resolver) Mount(path, storageID string) {
	r.root.mount(cleanRel(path), storageID)
}

// Unmount removes the record of storageID owning path.
func (r *Resolver) Unmount(path, storageID string) {
	r.root.unmount(cleanRel(path), storageID)
}

// handleIOErr runs fn, suppressing any error and returning the zero
// value instead, mirroring the original resolver's IOError-suppression
// rule during multi-storage enumeration: one backend's failure must not
// abort resolution of the merged view.
func handleIOErr[T any](fn func() (T, error)) (T, bool) {
	v, err := fn()
	if err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// Readdir lists path, merging synthetic directory names with whatever
// real backends resolve to, and disambiguating same-named entries with
// the `.wl.<id>` suffix.
func (r *Resolver) Readdir(path string) ([]string, error) {
	start := time.Now()
	rel := cleanRel(path)
	resolved := r.root.resolve(rel)
	synthetic, hasSynthetic := r.root.readdirSynthetic(rel)

	mergePath := "single"
	if len(resolved) > 1 {
		mergePath = "merged"
	} else if hasSynthetic {
		mergePath = "synthetic"
	}
	defer func() { metrics.RecordReaddir(r.metrics, mergePath, time.Since(start)) }()

	if len(resolved) == 0 && len(synthetic) == 0 {
		if rel == "" {
			return nil, nil
		}
		return nil, wlerr.New(wlerr.ENOENT, "no such path: %s", path)
	}

	result := make(map[string]struct{})
	for _, name := range synthetic {
		result[name] = struct{}{}
	}

	if len(resolved) == 1 && len(result) == 0 {
		names, err := r.backend.Readdir(resolved[0].ID, resolved[0].RelPath)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			result[n] = struct{}{}
		}
		return sortedKeys(result), nil
	}

	var dirs, files []Resolved
	for _, res := range resolved {
		attr, ok := handleIOErr(func() (storage.Attr, error) {
			return r.backend.Getattr(res.ID, res.RelPath)
		})
		if !ok {
			continue
		}
		if attr.IsDir() {
			dirs = append(dirs, res)
		} else {
			files = append(files, res)
		}
	}

	if len(dirs) == 0 && len(result) == 0 {
		switch len(files) {
		case 0:
			return nil, wlerr.New(wlerr.ENOENT, "no such path: %s", path)
		case 1:
			return nil, wlerr.New(wlerr.ENOTDIR, "not a directory: %s", path)
		default:
			return nil, wlerr.New(wlerr.ENOENT, "no such path: %s", path)
		}
	}

	if len(dirs) == 1 {
		names, ok := handleIOErr(func() ([]string, error) {
			return r.backend.Readdir(dirs[0].ID, dirs[0].RelPath)
		})
		if ok {
			for _, n := range names {
				result[n] = struct{}{}
			}
		}
		return sortedKeys(result), nil
	}

	seen := make(map[string][]Resolved)
	for _, res := range dirs {
		names, ok := handleIOErr(func() ([]string, error) {
			return r.backend.Readdir(res.ID, res.RelPath)
		})
		if !ok {
			continue
		}
		for _, name := range names {
			seen[name] = append(seen[name], res)
		}
	}

	for name, owners := range seen {
		if len(owners) == 1 {
			if _, exists := result[name]; !exists {
				result[name] = struct{}{}
				continue
			}
		}
		for _, res := range owners {
			childPath := joinRel(res.RelPath, name)
			attr, ok := handleIOErr(func() (storage.Attr, error) {
				return r.backend.Getattr(res.ID, childPath)
			})
			if !ok || !attr.IsDir() {
				result[fmt.Sprintf(suffixFormat, name, res.ID)] = struct{}{}
			} else {
				result[name] = struct{}{}
			}
		}
	}

	return sortedKeys(result), nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func joinRel(rel, name string) string {
	if rel == "" {
		return name
	}
	return rel + "/" + name
}

// Getattr returns attributes for path, discarding the resolution detail
// GetattrExtended also provides.
func (r *Resolver) Getattr(path string) (storage.Attr, error) {
	attr, _, err := r.GetattrExtended(path)
	return attr, err
}

var syntheticDirAttr = storage.Attr{Mode: 0o40000 | 0o555}

// GetattrExtended resolves path to the owning storage(s) and returns
// its attributes, plus the single Resolved responsible for it (nil if
// the answer came from a synthetic directory or couldn't be narrowed to
// exactly one storage).
func (r *Resolver) GetattrExtended(path string) (storage.Attr, *Resolved, error) {
	if path == "" || path == "/" {
		return syntheticDirAttr, nil, nil
	}

	base := pathBase(path)
	dir := pathDir(path)
	var suffixID string
	hasSuffix := false
	if m := suffixRe.FindStringSubmatch(base); m != nil {
		base = m[1]
		suffixID = m[2]
		hasSuffix = true
	}
	realPath := joinRel(dir, base)
	rel := cleanRel(realPath)

	if r.root.isSynthetic(rel) {
		return syntheticDirAttr, nil, nil
	}

	resolved := r.root.resolve(rel)
	if len(resolved) == 0 {
		return storage.Attr{}, nil, wlerr.New(wlerr.ENOENT, "no such path: %s", path)
	}

	if len(resolved) == 1 {
		if hasSuffix {
			return storage.Attr{}, nil, wlerr.New(wlerr.ENOENT, "no such path: %s", path)
		}
		res := resolved[0]
		attr, err := r.backend.Getattr(res.ID, res.RelPath)
		if err != nil {
			return storage.Attr{}, nil, err
		}
		return attr, &res, nil
	}

	var dirResults, fileResults []resolvedAttr
	for _, res := range resolved {
		attr, ok := handleIOErr(func() (storage.Attr, error) {
			return r.backend.Getattr(res.ID, res.RelPath)
		})
		if !ok {
			continue
		}
		if attr.IsDir() {
			dirResults = append(dirResults, resolvedAttr{attr, res})
		} else {
			fileResults = append(fileResults, resolvedAttr{attr, res})
		}
	}

	if len(dirResults) == 1 {
		if hasSuffix {
			return storage.Attr{}, nil, wlerr.New(wlerr.ENOENT, "no such path: %s", path)
		}
		return dirResults[0].attr, &dirResults[0].res, nil
	}
	if len(dirResults) > 1 {
		if hasSuffix {
			return storage.Attr{}, nil, wlerr.New(wlerr.ENOENT, "no such path: %s", path)
		}
		return syntheticDirAttr, nil, nil
	}
	if len(fileResults) == 1 {
		if hasSuffix {
			return storage.Attr{}, nil, wlerr.New(wlerr.ENOENT, "no such path: %s", path)
		}
		return fileResults[0].attr, &fileResults[0].res, nil
	}
	if len(fileResults) > 1 {
		if !hasSuffix {
			return storage.Attr{}, nil, wlerr.New(wlerr.ENOENT, "no such path: %s", path)
		}
		for _, fr := range fileResults {
			if fr.res.ID == suffixID {
				return fr.attr, &fr.res, nil
			}
		}
		return storage.Attr{}, nil, wlerr.New(wlerr.ENOENT, "no such path: %s", path)
	}

	return storage.Attr{}, nil, wlerr.New(wlerr.ENOENT, "no such path: %s", path)
}

type resolvedAttr struct {
	attr storage.Attr
	res  Resolved
}

func pathBase(p string) string {
	p = strings.TrimRight(p, "/")
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

func pathDir(p string) string {
	p = strings.TrimRight(p, "/")
	idx := strings.LastIndexByte(p, '/')
	if idx <= 0 {
		return ""
	}
	return cleanRel(p[:idx])
}
