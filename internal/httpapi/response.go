package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/archsync/archsync-coordinator/internal/apperr"
)

// errorBody is the wire shape of spec 6's error schema:
// { "error": { "code", "message", "timestamp" } }.
type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("failed to encode response body", "error", err)
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status, code := apperr.Classify(err)
	if status >= 500 {
		log.Error("request failed", "status", status, "code", code, "error", err)
	}
	var resp errorBody
	resp.Error.Code = code
	resp.Error.Message = err.Error()
	resp.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)
	writeJSON(w, log, status, resp)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validationf("invalid request body: %v", err)
	}
	return nil
}
