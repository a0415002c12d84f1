package client

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/wildland/wildland-go/pkg/storage"
	"github.com/wildland/wildland-go/pkg/wlerr"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

// SelectStorage picks the first backend in backends (container.Backends
// if nil) that: resolves to a storage manifest signed by the same owner
// as the container, names one of the container's paths, and names a
// registered backend type. A proxy storage naming an "inner-container"
// parameter has its inner storage resolved recursively and inlined.
func (c *Client) SelectStorage(container *wlobject.Container, backends []wlobject.StorageRef) (*wlobject.Storage, error) {
	if backends == nil {
		backends = container.Backends.Storage
	}

	var lastErr error
	for _, ref := range backends {
		name := "(inline)"
		var st *wlobject.Storage
		var err error
		switch ref.Kind {
		case wlobject.StorageRefURL:
			name = ref.URL
			st, err = c.LoadStorageFromURL(ref.URL, container.Owner)
		case wlobject.StorageRefInline:
			body, merr := yaml.Marshal(ref.Inline)
			if merr != nil {
				lastErr = merr
				continue
			}
			st, err = c.LoadStorageFromDict(body, container.Owner)
		case wlobject.StorageRefLink:
			name = ref.Link.File
			body, merr := yaml.Marshal(&ref.Link.Storage)
			if merr != nil {
				lastErr = merr
				continue
			}
			st, err = c.LoadStorageFromDict(body, container.Owner)
		default:
			continue
		}
		if err != nil {
			lastErr = err
			continue
		}

		if st.Owner != container.Owner {
			lastErr = wlerr.New(wlerr.SchemaError, "%s: signer mismatch: storage %s, container %s", name, st.Owner, container.Owner)
			continue
		}
		if !containsPath(container.Paths, st.ContainerPath) {
			lastErr = wlerr.New(wlerr.SchemaError, "%s: unrecognized container path for storage: %s", name, st.ContainerPath)
			continue
		}
		if !storage.IsTypeSupported(st.Type) {
			lastErr = wlerr.New(wlerr.BackendUnsupported, "%s: unsupported storage type %q", name, st.Type)
			continue
		}

		if innerRaw, ok := st.Params["inner-container"]; ok {
			inner, err := c.selectInnerStorage(innerRaw, container.Owner)
			if err != nil {
				lastErr = err
				continue
			}
			st.Params["storage"] = inner
		}

		return st, nil
	}

	if lastErr != nil {
		return nil, wlerr.Wrap(wlerr.BackendUnsupported, lastErr, "no supported storage manifest")
	}
	return nil, wlerr.New(wlerr.BackendUnsupported, "no supported storage manifest")
}

// selectInnerStorage resolves containerRef (a URL string or an inline
// container dict) and selects a storage for it, returning the chosen
// storage's unsigned field map ready to inline as a "storage" param.
func (c *Client) selectInnerStorage(containerRef any, signer string) (map[string]any, error) {
	var inner *wlobject.Container
	var err error
	switch v := containerRef.(type) {
	case string:
		inner, err = c.LoadContainerFromURL(v, signer)
	default:
		body, merr := yaml.Marshal(v)
		if merr != nil {
			return nil, merr
		}
		inner, err = c.LoadContainerFromDict(body, signer)
	}
	if err != nil {
		return nil, err
	}

	if inner.Owner != signer {
		return nil, wlerr.New(wlerr.SchemaError, "signer mismatch for inner container: outer %s, inner %s", signer, inner.Owner)
	}

	innerStorage, err := c.SelectStorage(inner, nil)
	if err != nil {
		return nil, err
	}

	body, err := yaml.Marshal(innerStorage)
	if err != nil {
		return nil, fmt.Errorf("marshaling inner storage: %w", err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshaling inner storage: %w", err)
	}
	return out, nil
}

func containsPath(paths []string, p string) bool {
	for _, x := range paths {
		if x == p {
			return true
		}
	}
	return false
}
