package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/jotter/internal/apperr"
	"github.com/starford/jotter/internal/transfer"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// errStatus maps an error kind onto a status code. prefix is the kind whose
// text leads the error message and is stripped before it is shown.
type errStatus struct {
	kind   error
	prefix error
	status int
}

// errStatuses is checked in order; specific kinds precede their parents.
var errStatuses = []errStatus{
	{apperr.ErrNotFound, apperr.ErrNotFound, http.StatusNotFound},
	{apperr.ErrInvalidNote, apperr.ErrInvalidNote, http.StatusBadRequest},
	{transfer.ErrUnsupportedType, apperr.ErrValidation, http.StatusUnsupportedMediaType},
	{transfer.ErrTooLarge, apperr.ErrValidation, http.StatusRequestEntityTooLarge},
	{apperr.ErrValidation, apperr.ErrValidation, http.StatusBadRequest},
	{apperr.ErrImportFormat, apperr.ErrImportFormat, http.StatusUnprocessableEntity},
	{apperr.ErrNothingToImport, apperr.ErrNothingToImport, http.StatusUnprocessableEntity},
	{apperr.ErrNothingToExport, apperr.ErrNothingToExport, http.StatusConflict},
}

// writeError maps a service error onto a status code. Internal failures are
// logged and reported without detail.
func writeError(w http.ResponseWriter, op string, err error) {
	for _, m := range errStatuses {
		if errors.Is(err, m.kind) {
			writeJSON(w, m.status, errorBody(userMessage(err, m.prefix)))
			return
		}
	}
	slog.Error(op+" failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

// userMessage strips the leading kind so only the detail is shown. A bare
// kind is shown as is.
func userMessage(err, kind error) string {
	return strings.TrimPrefix(err.Error(), kind.Error()+": ")
}
