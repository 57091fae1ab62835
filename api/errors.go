package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/xraph/processes"
)

// OGC exception types.
const (
	exceptionBase    = "http://www.opengis.net/def/exceptions/ogcapi-processes-1/1.0/"
	typeNoSuchJob    = exceptionBase + "no-such-job"
	typeNoSuchProc   = exceptionBase + "no-such-process"
	typeNotReady     = exceptionBase + "result-not-ready"
	typeInvalidParam = exceptionBase + "invalid-parameter"
	typeJobGone      = exceptionBase + "job-gone"
	typeJobFinished  = exceptionBase + "job-finished"
	typeConflict     = exceptionBase + "conflict"
	typeServerError  = exceptionBase + "server-error"
	typeNotFound     = exceptionBase + "not-found"
	typeNotAllowed   = exceptionBase + "method-not-allowed"
)

func writeException(w http.ResponseWriter, status int, typ, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Exception{Type: typ, Title: title, Status: status, Detail: detail})
}

// writeError maps engine errors onto HTTP statuses and exception types.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, processes.ErrGone):
		writeException(w, http.StatusGone, typeJobGone, "Job gone", err.Error())
	case errors.Is(err, processes.ErrJobFinished):
		writeException(w, http.StatusGone, typeJobFinished, "Job finished", err.Error())
	case errors.Is(err, processes.ErrJobNotFound):
		writeException(w, http.StatusNotFound, typeNoSuchJob, "No such job", err.Error())
	case errors.Is(err, processes.ErrProcessNotFound):
		writeException(w, http.StatusNotFound, typeNoSuchProc, "No such process", err.Error())
	case errors.Is(err, processes.ErrNotReady):
		writeException(w, http.StatusNotFound, typeNotReady, "Result not ready", err.Error())
	case errors.Is(err, processes.ErrValidation):
		writeException(w, http.StatusBadRequest, typeInvalidParam, "Invalid inputs", err.Error())
	case errors.Is(err, processes.ErrConflict):
		writeException(w, http.StatusConflict, typeConflict, "Conflict", err.Error())
	default:
		a.logger.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeException(w, http.StatusInternalServerError, typeServerError, "Internal server error", "")
	}
}
