package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/apperr"
)

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorWriter renders classified errors. With generic set, storage failures
// are reported as "server error" and the cause goes to Details only when
// debug is on.
type errorWriter struct {
	log     *slog.Logger
	debug   bool
	generic bool
}

func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	body := errorBody{Error: apperr.Message(err)}
	if status == http.StatusInternalServerError {
		e.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		if e.generic {
			body.Error = "server error"
			if e.debug {
				body.Details = err.Error()
			}
		}
	}
	writeJSON(w, status, body)
}

func badJSON(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json"})
}
