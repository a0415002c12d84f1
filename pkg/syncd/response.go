package syncd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/wildland/wildland-go/internal/logger"
	"github.com/wildland/wildland-go/pkg/wlerr"
)

// response is the sync control API's reply envelope, the same shape as
// the mount daemon's control API response.
type response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     *errBody  `json:"error,omitempty"`
}

type errBody struct {
	Class string `json:"class"`
	Desc  string `json:"desc"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}); err != nil {
		logger.Error("failed to encode sync control response", "error", err)
		http.Error(w, `{"status":"error","error":{"class":"internal","desc":"encoding failure"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, err error) {
	class := "error"
	desc := err.Error()
	status := http.StatusInternalServerError

	if code := wlerr.CodeOf(err); code != 0 {
		class = code.String()
		status = httpStatus(code)
	}

	logger.Warn("sync control request failed", "class", class, "desc", desc)

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(response{
		Status:    "error",
		Timestamp: time.Now().UTC(),
		Error:     &errBody{Class: class, Desc: desc},
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func httpStatus(code wlerr.Code) int {
	switch code {
	case wlerr.ENOENT:
		return http.StatusNotFound
	case wlerr.EEXIST, wlerr.ControlError:
		return http.StatusConflict
	case wlerr.EACCES, wlerr.EROFS:
		return http.StatusForbidden
	case wlerr.SchemaError:
		return http.StatusBadRequest
	case wlerr.BackendMountFailed, wlerr.BackendUnsupported:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
