package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"worklog/internal/core"
	"worklog/internal/log"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes and the message the
// caller may see. Anything unrecognised is a 500 without detail.
func statusFor(err error) (int, string) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, core.ErrPermissionDenied):
		return http.StatusForbidden, core.ErrPermissionDenied.Error()
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, core.ErrNotFound.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		errType := log.ErrorTypeInternal
		if core.IsStorage(err) {
			errType = log.ErrorTypeDatabase
		}
		fields := log.NewFields().With(log.FieldErrorType, errType)
		if projectID := chi.URLParam(r, "projectID"); projectID != "" {
			fields = fields.WithScope(projectID, chi.URLParam(r, "taskID"))
		}
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op, fields)
	}
	writeJSON(w, status, errorBody{Error: msg})
}
