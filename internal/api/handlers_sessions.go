package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/brsrform/internal/persistence"
	"github.com/dgallion1/brsrform/internal/section"
	"github.com/dgallion1/brsrform/internal/session"
	"github.com/dgallion1/brsrform/internal/store"
)

type openSessionRequest struct {
	ReportID string `json:"report_id"`
	Section  string `json:"section"`
}

// handleOpenSession mounts a section. A load that fails for any reason other
// than a missing report still returns the session, in the error state, so
// the client can retry with /reload.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := s.decodeBody(w, r, &req, false); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.ReportID == "" || req.Section == "" {
		jsonError(w, "report_id and section are required", http.StatusBadRequest)
		return
	}

	sess, err := s.sessions.Open(r.Context(), req.ReportID, req.Section)
	if sess == nil {
		jsonError(w, err.Error(), errorStatus(err))
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		s.sessions.Close(sess.ID)
		jsonError(w, "report not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Warn("session load failed", "session_id", sess.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.getSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type opsRequest struct {
	Ops []session.Op `json:"ops"`
}

type opsResponse struct {
	Applied int `json:"applied"`
	session.Snapshot
}

// handleSessionOps applies edits in order. Edits to a locked section are a
// no-op reported through the snapshot's locked flag.
func (s *Server) handleSessionOps(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.getSession(w, r)
	if !ok {
		return
	}
	var req opsRequest
	if err := s.decodeBody(w, r, &req, false); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	var applied int
	err := sess.Mutate(func(st *section.State) error {
		n, err := session.ApplyOps(st, req.Ops)
		applied = n
		return err
	})
	switch {
	case err == nil, errors.Is(err, section.ErrLocked):
		writeJSON(w, http.StatusOK, opsResponse{Applied: applied, Snapshot: sess.Snapshot()})
	default:
		writeJSON(w, errorStatus(err), map[string]any{
			"error":   err.Error(),
			"applied": applied,
		})
	}
}

type saveRequest struct {
	ConfirmWarnings bool `json:"confirm_warnings"`
}

func (s *Server) handleSessionSave(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.getSession(w, r)
	if !ok {
		return
	}
	var req saveRequest
	if err := s.decodeBody(w, r, &req, true); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if !s.limiter.Allow(sess.ReportID()) {
		jsonError(w, "too many saves for this report", http.StatusTooManyRequests)
		return
	}

	err := sess.Save(r.Context(), req.ConfirmWarnings)
	var verr *persistence.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sess.Snapshot())
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    err.Error(),
			"errors":   verr.Errors,
			"warnings": verr.Warnings,
		})
	case errorStatus(err) == http.StatusConflict:
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		s.log.Error("session save failed", "session_id", sess.ID, "error", err)
		jsonError(w, sess.LastError(), http.StatusBadGateway)
	}
}

func (s *Server) handleSessionReload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.getSession(w, r)
	if !ok {
		return
	}
	err := sess.Load(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sess.Snapshot())
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, "report not found", http.StatusNotFound)
	case errorStatus(err) == http.StatusConflict:
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		s.log.Error("session reload failed", "session_id", sess.ID, "error", err)
		jsonError(w, sess.LastError(), http.StatusBadGateway)
	}
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(chi.URLParam(r, "sessionID")); err != nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}
