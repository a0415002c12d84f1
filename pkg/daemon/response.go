package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/wildland/wildland-go/internal/logger"
	"github.com/wildland/wildland-go/pkg/wlerr"
)

// response is the control API's reply envelope. Status/Error mirror the
// original control protocol's {"result": ...}/{"error": {"class",
// "desc"}} shape one level down, inside Data/Error, with a timestamp
// added alongside for diagnostics.
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
		logger.Error("failed to encode control response", "error", err)
		http.Error(w, `{"status":"error","error":{"class":"internal","desc":"encoding failure"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writeError reports err as a control response, mapping a wlerr.Code to
// an HTTP status the same way the resolver/proxy map it to an errno.
func writeError(w http.ResponseWriter, err error) {
	class := "error"
	desc := err.Error()
	status := http.StatusInternalServerError

	if code := wlerr.CodeOf(err); code != 0 {
		class = code.String()
		status = httpStatus(code)
	}

	logger.Warn("control request failed", "class", class, "desc", desc)

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
	case wlerr.EEXIST:
		return http.StatusConflict
	case wlerr.EACCES, wlerr.EROFS:
		return http.StatusForbidden
	case wlerr.ENOTDIR, wlerr.EISDIR, wlerr.ENOTEMPTY, wlerr.SchemaError:
		return http.StatusBadRequest
	case wlerr.ENOSYS:
		return http.StatusNotImplemented
	case wlerr.BackendMountFailed, wlerr.BackendUnsupported:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
