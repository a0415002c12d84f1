package client

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/wlerr"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

// Publisher publishes and unpublishes a container's manifests into one
// of its owner's manifest-catalog containers, following
// Marczykowski-Górecki's algorithm: replace the old copies of a
// container's manifest (and its storage manifests) with new ones,
// always keeping the canonical "/.uuid/<uuid>" copy last to go and
// first to be overwritten.
//
// Ported from the standalone Publisher/_StoragePublisher pair; here the
// two collapse into one type since Go has no generator-based
// lazy-retry-next-candidate idiom worth preserving.
type Publisher struct {
	client    *Client
	container *wlobject.Container
}

// NewPublisher builds a Publisher for container, owned by client.
func NewPublisher(c *Client, container *wlobject.Container) *Publisher {
	return &Publisher{client: c, container: container}
}

// candidateStorage is a manifest-catalog storage this publisher could
// write the container's manifests to.
type candidateStorage struct {
	container *wlobject.Container
	storage   *wlobject.Storage
	pattern   string
}

// PublishContainer writes the container's (and its storages') manifests
// to the first writable, glob-pattern manifest-catalog storage it can
// mount.
func (p *Publisher) PublishContainer(ctx context.Context) error {
	candidates, rejected, err := p.candidatesForPublish(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return wlerr.New(wlerr.BackendMountFailed, "no suitable publishing platform found:%s", rejectionList(rejected))
	}
	return p.publishTo(ctx, candidates[0], false)
}

// UnpublishContainer removes the container's manifests from every
// manifest-catalog storage that could plausibly hold them, so a partial
// or redirected publish history doesn't leave stale copies behind.
func (p *Publisher) UnpublishContainer(ctx context.Context) error {
	candidates, rejected, err := p.candidatesForPublish(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return wlerr.New(wlerr.BackendMountFailed, "no suitable publishing platform found:%s", rejectionList(rejected))
	}
	for _, cand := range candidates {
		if err := p.publishTo(ctx, cand, true); err != nil {
			return err
		}
	}
	return nil
}

func rejectionList(reasons []string) string {
	var sb strings.Builder
	for _, r := range reasons {
		sb.WriteString("\n- ")
		sb.WriteString(r)
	}
	return sb.String()
}

// candidatesForPublish loads the container owner's manifest catalog and
// returns, for each catalog container, its first writable glob-pattern
// storage, most preferred first (catalog order).
func (p *Publisher) candidatesForPublish(ctx context.Context) ([]candidateStorage, []string, error) {
	owner, err := p.client.LoadUserFrom(p.container.Owner)
	if err != nil {
		return nil, nil, err
	}

	var candidates []candidateStorage
	var rejected []string

	for _, ref := range owner.ManifestsCatalog {
		infraContainer, err := p.resolveContainerRef(ref, owner.Owner)
		if err != nil {
			rejected = append(rejected, fmt.Sprintf("manifest-catalog entry could not be loaded: %s", err))
			continue
		}

		found := false
		for _, sref := range infraContainer.Backends.Storage {
			st, err := p.loadCandidateStorage(sref, infraContainer.Owner)
			if err != nil {
				rejected = append(rejected, fmt.Sprintf("container %s: storage could not be loaded: %s", infraContainer.UUID(), err))
				continue
			}
			if st.ManifestPattern == nil || st.ManifestPattern.Type != "glob" {
				rejected = append(rejected, fmt.Sprintf("storage %s of container %s does not have a glob manifest-pattern", st.BackendID, infraContainer.UUID()))
				continue
			}

			backend, err := storage.New(st)
			if err != nil {
				rejected = append(rejected, fmt.Sprintf("storage %s of container %s: %s", st.BackendID, infraContainer.UUID(), err))
				continue
			}
			if err := backend.Mount(ctx); err != nil {
				rejected = append(rejected, fmt.Sprintf("storage %s of container %s could not be mounted: %s", st.BackendID, infraContainer.UUID(), err))
				continue
			}
			writable := !backend.ReadOnly()
			_ = backend.Unmount(ctx)
			if !writable {
				rejected = append(rejected, fmt.Sprintf("storage %s of container %s is not writeable", st.BackendID, infraContainer.UUID()))
				continue
			}

			candidates = append(candidates, candidateStorage{container: infraContainer, storage: st, pattern: st.ManifestPattern.Path})
			found = true
			break
		}
		if !found {
			rejected = append(rejected, fmt.Sprintf("container %s has no usable manifest-catalog storage", infraContainer.UUID()))
		}
	}

	return candidates, rejected, nil
}

func (p *Publisher) resolveContainerRef(ref wlobject.ContainerRef, signer string) (*wlobject.Container, error) {
	switch ref.Kind {
	case wlobject.ContainerRefURL:
		return p.client.LoadContainerFromURL(ref.URL, signer)
	case wlobject.ContainerRefInline:
		return ref.Inline, nil
	case wlobject.ContainerRefLink:
		return nil, wlerr.New(wlerr.BackendUnsupported, "link-shaped manifest-catalog entries are not supported for publishing")
	default:
		return nil, wlerr.New(wlerr.SchemaError, "unset manifests-catalog entry")
	}
}

func (p *Publisher) loadCandidateStorage(ref wlobject.StorageRef, signer string) (*wlobject.Storage, error) {
	switch ref.Kind {
	case wlobject.StorageRefURL:
		return p.client.LoadStorageFromURL(ref.URL, signer)
	case wlobject.StorageRefInline:
		return ref.Inline, nil
	case wlobject.StorageRefLink:
		return &ref.Link.Storage, nil
	default:
		return nil, wlerr.New(wlerr.SchemaError, "unset storage ref")
	}
}

// relpathsForContainer returns the manifest-catalog-relative paths a
// container's manifest is published under: the "/.uuid/<uuid>" path
// first, then one path per non-uuid mount path the pattern's "{path}"
// placeholder can substitute.
func relpathsForContainer(pattern string, uuidPath string, ct *wlobject.Container) []string {
	substituted := strings.ReplaceAll(pattern, "*", ct.UUID())

	relpath := func(mountPath string) string {
		return strings.TrimPrefix(strings.ReplaceAll(substituted, "{path}", strings.TrimPrefix(mountPath, "/")), "/")
	}

	out := []string{relpath(uuidPath)}
	if !strings.Contains(substituted, "{path}") {
		return out
	}

	expanded := append([]string{}, ct.Paths...)
	expanded = append(expanded, ct.CategoryMountPaths()...)
	for _, mp := range expanded {
		if mp == ct.Paths[0] {
			continue
		}
		out = append(out, relpath(mp))
	}
	return out
}

func relpathForStorage(pattern, uuidPath string, ct *wlobject.Container, backendID string) string {
	relpaths := relpathsForContainer(pattern, uuidPath, ct)
	base := relpaths[0]
	if strings.HasSuffix(base, ".yaml") {
		base = strings.TrimSuffix(base, ".yaml")
	}
	return fmt.Sprintf("%s.%s.yaml", base, backendID)
}

func (p *Publisher) publishTo(ctx context.Context, cand candidateStorage, unpublishOnly bool) error {
	backend, err := storage.New(cand.storage)
	if err != nil {
		return err
	}
	if err := backend.Mount(ctx); err != nil {
		return wlerr.Wrap(wlerr.BackendMountFailed, err, "mounting publish target")
	}
	defer backend.Unmount(ctx)

	uuidPath := p.container.Paths[0]
	containerRelpaths := relpathsForContainer(cand.pattern, uuidPath, p.container)
	storageRelpaths := make(map[string]*wlobject.Storage)
	for _, ref := range p.container.Backends.Storage {
		if ref.Kind != wlobject.StorageRefInline {
			continue
		}
		relpath := relpathForStorage(cand.pattern, uuidPath, p.container, ref.Inline.BackendID)
		storageRelpaths[relpath] = ref.Inline
	}

	toRemove := make(map[string]struct{})

	if old, err := readFile(ctx, backend, containerRelpaths[0]); err == nil {
		oldContainer, err := p.client.LoadContainerFromDict(old, p.container.Owner)
		if err == nil {
			if oldContainer.UUID() != p.container.UUID() {
				return wlerr.New(wlerr.SchemaError, "old container manifest at %s has an unexpected uuid; remove it manually", containerRelpaths[0])
			}
			for _, rp := range relpathsForContainer(cand.pattern, uuidPath, oldContainer) {
				toRemove[rp] = struct{}{}
			}
			for _, ref := range oldContainer.Backends.Storage {
				if ref.Kind == wlobject.StorageRefInline {
					toRemove[relpathForStorage(cand.pattern, uuidPath, oldContainer, ref.Inline.BackendID)] = struct{}{}
				}
			}
		}
	}

	if unpublishOnly {
		for _, rp := range containerRelpaths {
			toRemove[rp] = struct{}{}
		}
		for rp := range storageRelpaths {
			toRemove[rp] = struct{}{}
		}
	} else {
		for _, rp := range containerRelpaths {
			delete(toRemove, rp)
		}
		for rp := range storageRelpaths {
			delete(toRemove, rp)
		}
	}

	removals := make([]string, 0, len(toRemove))
	for rp := range toRemove {
		removals = append(removals, rp)
	}
	sort.Slice(removals, func(i, j int) bool {
		ui, uj := isUUIDPath(removals[i]), isUUIDPath(removals[j])
		if ui != uj {
			return uj // the .uuid/ path always sorts last, so it's removed last
		}
		return removals[i] < removals[j]
	})
	for _, rp := range removals {
		_ = backend.Unlink(ctx, "/"+rp)
	}

	if unpublishOnly {
		return nil
	}

	for relpath, st := range storageRelpaths {
		data, err := p.client.dumpObject(st.Owner, st)
		if err != nil {
			return err
		}
		if err := writeFile(ctx, backend, relpath, data); err != nil {
			return err
		}
	}
	for _, relpath := range containerRelpaths {
		data, err := p.client.dumpObject(p.container.Owner, p.container)
		if err != nil {
			return err
		}
		if err := writeFile(ctx, backend, relpath, data); err != nil {
			return err
		}
	}
	return nil
}

func isUUIDPath(relpath string) bool {
	return strings.HasPrefix(relpath, ".uuid/")
}

func readFile(ctx context.Context, b storage.Backend, relpath string) ([]byte, error) {
	h, err := b.Open(ctx, "/"+relpath, 0)
	if err != nil {
		return nil, err
	}
	defer b.Release(ctx, h)
	attr, err := b.Getattr(ctx, "/"+relpath)
	if err != nil {
		return nil, err
	}
	return b.Read(ctx, h, 0, int(attr.Size))
}

func writeFile(ctx context.Context, b storage.Backend, relpath string, data []byte) error {
	// best-effort: the directory may already exist, or the backend may
	// not require explicit directory creation before Create.
	_ = b.Mkdir(ctx, "/"+path.Dir(relpath), 0o755)

	h, err := b.Create(ctx, "/"+relpath, 0, 0o644)
	if err != nil {
		return err
	}
	defer b.Release(ctx, h)
	_, err = b.Write(ctx, h, 0, data)
	return err
}
