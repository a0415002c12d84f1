package syncd

import (
	"encoding/json"
	"net/http"

	"github.com/wildland/wildland-go/pkg/wlerr"
)

type handlers struct {
	daemon     *Daemon
	shutdownFn func()
}

// startRequest carries the signed container/storage manifests needed
// to build both ends of the job, the same shape as the mount daemon's
// mount request.
type startRequest struct {
	ContainerName  string `json:"container_name"`
	JobID          string `json:"job_id"`
	Continuous     bool   `json:"continuous"`
	Unidirectional bool   `json:"unidirectional"`
	SourceManifest []byte `json:"source_manifest"`
	TargetManifest []byte `json:"target_manifest"`
	Signer         string `json:"signer,omitempty"`
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, wlerr.Wrap(wlerr.SchemaError, err, "decoding start request"))
		return
	}

	source, err := h.daemon.client.LoadStorageFromBytes(req.SourceManifest, req.Signer)
	if err != nil {
		writeError(w, err)
		return
	}
	target, err := h.daemon.client.LoadStorageFromBytes(req.TargetManifest, req.Signer)
	if err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.daemon.StartSync(r.Context(), StartSyncRequest{
		ContainerName:  req.ContainerName,
		JobID:          req.JobID,
		Continuous:     req.Continuous,
		Unidirectional: req.Unidirectional,
		Source:         source,
		Target:         target,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

type stopRequest struct {
	JobID string `json:"job_id"`
}

func (h *handlers) stop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, wlerr.Wrap(wlerr.SchemaError, err, "decoding stop request"))
		return
	}

	msg, err := h.daemon.StopSync(req.JobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (h *handlers) stopAll(w http.ResponseWriter, r *http.Request) {
	h.daemon.StopAll()
	writeJSON(w, http.StatusOK, map[string]string{"message": "all sync jobs stopped"})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.daemon.Status())
}

func (h *handlers) jobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeError(w, wlerr.New(wlerr.SchemaError, "job_id query parameter is required"))
		return
	}

	report, ok := h.daemon.JobStatus(jobID)
	if !ok {
		writeError(w, wlerr.New(wlerr.ENOENT, "sync job %s is not running", jobID))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// shutdown acknowledges the request before stopping, since stopping
// cancels the very context Start is blocked on serving this response.
func (h *handlers) shutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "shutting down"})
	go h.shutdownFn()
}
