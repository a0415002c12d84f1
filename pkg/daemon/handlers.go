package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wildland/wildland-go/pkg/wlerr"
	"github.com/wildland/wildland-go/pkg/wlobject"
)

type handlers struct {
	daemon *Daemon
}

// mountReq is the `mount` control command's body: signed manifest bytes
// for the container (and, optionally, a storage override), plus the
// virtual paths to mount it at and any caller-supplied bookkeeping data
// returned verbatim from `info`.
type mountReq struct {
	ContainerManifest []byte         `json:"container_manifest"`
	StorageManifest   []byte         `json:"storage_manifest,omitempty"`
	Signer            string         `json:"signer,omitempty"`
	Paths             []string       `json:"paths,omitempty"`
	Extra             map[string]any `json:"extra,omitempty"`
}

func (h *handlers) mount(w http.ResponseWriter, r *http.Request) {
	var req mountReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, wlerr.Wrap(wlerr.SchemaError, err, "decoding mount request"))
		return
	}

	ct, err := h.daemon.client.LoadContainerFromBytes(req.ContainerManifest, req.Signer)
	if err != nil {
		writeError(w, err)
		return
	}

	var override *wlobject.Storage
	if len(req.StorageManifest) > 0 {
		st, err := h.daemon.client.LoadStorageFromBytes(req.StorageManifest, req.Signer)
		if err != nil {
			writeError(w, err)
			return
		}
		override = st
	}

	id, err := h.daemon.Mount(r.Context(), MountRequest{
		Container:       ct,
		StorageOverride: override,
		Paths:           req.Paths,
		Extra:           req.Extra,
	})
	if err != nil {
		writeError(w, wlerr.Wrap(wlerr.BackendMountFailed, err, "mounting container %s", ct.UUID()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"storage_id": id})
}

type unmountReq struct {
	StorageID string `json:"storage_id"`
}

func (h *handlers) unmount(w http.ResponseWriter, r *http.Request) {
	var req unmountReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, wlerr.Wrap(wlerr.SchemaError, err, "decoding unmount request"))
		return
	}
	if err := h.daemon.Unmount(r.Context(), req.StorageID); err != nil {
		writeError(w, wlerr.Wrap(wlerr.ENOENT, err, "unmounting %s", req.StorageID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

// paths reports, for each mounted virtual path, the storage ids that
// resolve there (more than one means the paths resolver is merging
// several backends at that path).
func (h *handlers) paths(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.daemon.table.Paths())
}

type storageInfo struct {
	Paths []string       `json:"paths"`
	Type  string         `json:"type"`
	Extra map[string]any `json:"extra,omitempty"`
}

// info reports every mounted storage by id.
func (h *handlers) info(w http.ResponseWriter, r *http.Request) {
	result := make(map[string]storageInfo)
	for _, e := range h.daemon.table.List() {
		result[e.ID] = storageInfo{
			Paths: e.Paths,
			Type:  e.Storage.Type,
			Extra: e.Extra,
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// status reports daemon-wide parameters, currently only the configured
// default user.
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	result := map[string]string{}
	if du := h.daemon.client.Config().DefaultUser; du != "" {
		result["default_user"] = du
	}
	writeJSON(w, http.StatusOK, result)
}

type dirinfoEntry struct {
	Storage struct {
		ContainerPath string `json:"container_path"`
		BackendID     string `json:"backend_id"`
		Owner         string `json:"owner"`
		ReadOnly      bool   `json:"read_only"`
		ID            string `json:"id"`
	} `json:"storage"`
}

// dirinfo reports the storage that GetattrExtended narrows ?path= to,
// as a list of at most one entry; a path served by several storages (a
// merged directory) or by none yields an empty list.
func (h *handlers) dirinfo(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	_, res, err := h.daemon.table.Resolver().GetattrExtended(path)
	if err != nil {
		writeJSON(w, http.StatusOK, []dirinfoEntry{})
		return
	}
	var out []dirinfoEntry
	if res != nil {
		if e, ok := h.daemon.table.Get(res.ID); ok {
			var entry dirinfoEntry
			entry.Storage.ContainerPath = e.Storage.ContainerPath
			entry.Storage.BackendID = e.Storage.BackendID
			entry.Storage.Owner = e.Storage.Owner
			entry.Storage.ReadOnly = e.Backend.ReadOnly()
			entry.Storage.ID = e.ID
			out = append(out, entry)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type fileinfoResult struct {
	Storage *struct {
		ContainerPath string `json:"container_path"`
		BackendID     string `json:"backend_id"`
		Owner         string `json:"owner"`
		ReadOnly      bool   `json:"read_only"`
		ID            string `json:"id"`
	} `json:"storage,omitempty"`
	Token string `json:"token,omitempty"`
}

// fileinfo reports the storage backing a single file at ?path=, plus
// its freshness token for the sync/hash-cache layer.
func (h *handlers) fileinfo(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	attr, res, err := h.daemon.table.Resolver().GetattrExtended(path)
	if err != nil || res == nil || attr.IsDir() {
		writeJSON(w, http.StatusOK, fileinfoResult{})
		return
	}
	e, ok := h.daemon.table.Get(res.ID)
	if !ok {
		writeJSON(w, http.StatusOK, fileinfoResult{})
		return
	}
	var result fileinfoResult
	result.Storage = &struct {
		ContainerPath string `json:"container_path"`
		BackendID     string `json:"backend_id"`
		Owner         string `json:"owner"`
		ReadOnly      bool   `json:"read_only"`
		ID            string `json:"id"`
	}{
		ContainerPath: e.Storage.ContainerPath,
		BackendID:     e.Storage.BackendID,
		Owner:         e.Storage.Owner,
		ReadOnly:      e.Backend.ReadOnly(),
		ID:            e.ID,
	}
	result.Token = attr.Token
	writeJSON(w, http.StatusOK, result)
}

type watchReq struct {
	StorageID string `json:"storage_id"`
	Pattern   string `json:"pattern"`
	IgnoreOwn bool   `json:"ignore_own,omitempty"`
}

// addWatch starts a new backend watcher for a mounted storage on every
// call and registers it under the given glob pattern; watchers are not
// shared between watches on the same storage.
func (h *handlers) addWatch(w http.ResponseWriter, r *http.Request) {
	var req watchReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, wlerr.Wrap(wlerr.SchemaError, err, "decoding watch request"))
		return
	}
	e, ok := h.daemon.table.Get(req.StorageID)
	if !ok {
		writeError(w, wlerr.New(wlerr.ENOENT, "no such storage: %s", req.StorageID))
		return
	}
	watcher, err := e.Backend.StartWatcher(r.Context(), req.IgnoreOwn)
	if err != nil {
		writeError(w, err)
		return
	}
	if watcher == nil {
		writeJSON(w, http.StatusOK, map[string]any{"watch_id": nil})
		return
	}
	id := h.daemon.watchers.register(req.StorageID, req.Pattern, watcher)
	writeJSON(w, http.StatusOK, map[string]string{"watch_id": id})
}

// watchEvents long-polls a registered watcher for its next event batch,
// the polling equivalent of the original add-watch/children-watch
// callback fan-out over the control connection.
func (h *handlers) watchEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, ok := h.daemon.watchers.get(id)
	if !ok {
		writeError(w, wlerr.New(wlerr.ENOENT, "no such watch: %s", id))
		return
	}
	events, err := e.watcher.Wait(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	filtered := events[:0:0]
	for _, ev := range events {
		if matchPattern(e.Pattern, ev.Path) {
			filtered = append(filtered, ev)
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}
