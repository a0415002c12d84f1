package fsclient

import (
	"context"
	"net/url"
)

// MountRequest is the body of a `mount` control call, carried as signed
// manifest bytes rather than decoded objects since the client and the
// daemon are different processes.
type MountRequest struct {
	ContainerManifest []byte         `json:"container_manifest"`
	StorageManifest   []byte         `json:"storage_manifest,omitempty"`
	Signer            string         `json:"signer,omitempty"`
	Paths             []string       `json:"paths,omitempty"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// Mount asks the daemon to mount a container, returning the assigned
// storage id.
func (c *Client) Mount(ctx context.Context, req MountRequest) (string, error) {
	var result struct {
		StorageID string `json:"storage_id"`
	}
	if err := c.post(ctx, "/control/mount", req, &result); err != nil {
		return "", err
	}
	return result.StorageID, nil
}

// Unmount asks the daemon to unmount storageID.
func (c *Client) Unmount(ctx context.Context, storageID string) error {
	return c.post(ctx, "/control/unmount", map[string]string{"storage_id": storageID}, nil)
}

// Paths returns every mounted virtual path and the storage ids
// resolving there.
func (c *Client) Paths(ctx context.Context) (map[string][]string, error) {
	var result map[string][]string
	if err := c.get(ctx, "/control/paths", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// StorageInfo describes one mounted storage, as reported by Info.
type StorageInfo struct {
	Paths []string       `json:"paths"`
	Type  string         `json:"type"`
	Extra map[string]any `json:"extra,omitempty"`
}

// Info returns every mounted storage by id.
func (c *Client) Info(ctx context.Context) (map[string]StorageInfo, error) {
	var result map[string]StorageInfo
	if err := c.get(ctx, "/control/info", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Status returns daemon-wide parameters (currently only default_user).
func (c *Client) Status(ctx context.Context) (map[string]string, error) {
	var result map[string]string
	if err := c.get(ctx, "/control/status", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// DirinfoEntry describes one storage contributing content at a path.
type DirinfoEntry struct {
	Storage struct {
		ContainerPath string `json:"container_path"`
		BackendID     string `json:"backend_id"`
		Owner         string `json:"owner"`
		ReadOnly      bool   `json:"read_only"`
		ID            string `json:"id"`
	} `json:"storage"`
}

// Dirinfo returns the storage the daemon resolves path to, as a list of
// at most one entry; it is empty when several storages (or none) serve
// path.
func (c *Client) Dirinfo(ctx context.Context, path string) ([]DirinfoEntry, error) {
	var result []DirinfoEntry
	q := url.Values{"path": {path}}
	if err := c.get(ctx, "/control/dirinfo", q, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// FileinfoResult describes the storage backing a single file, and its
// freshness token.
type FileinfoResult struct {
	Storage *struct {
		ContainerPath string `json:"container_path"`
		BackendID     string `json:"backend_id"`
		Owner         string `json:"owner"`
		ReadOnly      bool   `json:"read_only"`
		ID            string `json:"id"`
	} `json:"storage,omitempty"`
	Token string `json:"token,omitempty"`
}

// Fileinfo reports the storage backing path.
func (c *Client) Fileinfo(ctx context.Context, path string) (FileinfoResult, error) {
	var result FileinfoResult
	q := url.Values{"path": {path}}
	if err := c.get(ctx, "/control/fileinfo", q, &result); err != nil {
		return FileinfoResult{}, err
	}
	return result, nil
}

// AddWatch registers a watch on storageID under pattern, returning a
// watch id to poll with WatchEvents (empty if the backend doesn't
// support watching).
func (c *Client) AddWatch(ctx context.Context, storageID, pattern string, ignoreOwn bool) (string, error) {
	var result struct {
		WatchID string `json:"watch_id"`
	}
	req := map[string]any{"storage_id": storageID, "pattern": pattern, "ignore_own": ignoreOwn}
	if err := c.post(ctx, "/control/watch", req, &result); err != nil {
		return "", err
	}
	return result.WatchID, nil
}

// WatchEvent mirrors storage.Event, decoded independently so fsclient
// doesn't need to import pkg/storage just for this one type.
type WatchEvent struct {
	Kind int    `json:"Kind"`
	Path string `json:"Path"`
}

// WatchEvents long-polls watchID for its next event batch.
func (c *Client) WatchEvents(ctx context.Context, watchID string) ([]WatchEvent, error) {
	var result []WatchEvent
	if err := c.get(ctx, "/control/watch/"+watchID+"/events", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}
