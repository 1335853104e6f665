package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dgallion1/brsrform/internal/document"
	"github.com/dgallion1/brsrform/internal/persistence"
	"github.com/dgallion1/brsrform/internal/section"
	"github.com/dgallion1/brsrform/internal/session"
	"github.com/dgallion1/brsrform/internal/store"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// decodeBody reads a size-capped JSON body into v. An empty body leaves v
// untouched when optional is set.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrUnknownSection):
		return http.StatusNotFound
	case errors.Is(err, store.ErrSubmitted),
		errors.Is(err, section.ErrLocked),
		errors.Is(err, persistence.ErrSaveInProgress),
		errors.Is(err, persistence.ErrNotReady),
		errors.Is(err, persistence.ErrStale):
		return http.StatusConflict
	case errors.Is(err, persistence.ErrValidation),
		errors.Is(err, persistence.ErrWarningsUnconfirmed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrBadOp),
		errors.Is(err, section.ErrNotAnArray),
		errors.Is(err, document.ErrEmptyPath),
		errors.Is(err, document.ErrIndexOutOfRange),
		errors.Is(err, document.ErrNotAnObject):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
