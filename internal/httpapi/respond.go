// internal/httpapi/respond.go
//
// JSON response helpers shared by every handler.

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/tappyhq/mediation-edge/internal/errcode"
	"github.com/tappyhq/mediation-edge/internal/verify"
)

// errorBody is the structured error envelope used whenever a handler
// answers with a non-2xx status.  Both taxonomy generations ride along.
type errorBody struct {
	Error       errcode.Code `json:"error"`
	LegacyCode  string       `json:"legacyCode,omitempty"`
	Detail      string       `json:"detail,omitempty"`
	NextActions []string     `json:"nextActions,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnw("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code errcode.Code, detail string) {
	writeJSON(w, status, errorBody{
		Error:       code,
		LegacyCode:  errcode.Legacy(code),
		Detail:      detail,
		NextActions: verify.NextActions(code),
	})
}

// decodeJSON reads a bounded JSON body into dst.  An empty body is not an
// error; handlers treat it as all-defaults.
func decodeJSON(r *http.Request, dst any, maxBytes int64) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
