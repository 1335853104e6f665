package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/brsrform/internal/config"
	"github.com/dgallion1/brsrform/internal/registry"
	"github.com/dgallion1/brsrform/internal/session"
	"github.com/dgallion1/brsrform/internal/stats"
	"github.com/dgallion1/brsrform/internal/store"
)

// Server is the HTTP API for BRSR reports and editing sessions.
type Server struct {
	router   chi.Router
	store    *store.Store
	reg      *registry.Registry
	sessions *session.Manager
	limiter  *SaveLimiter
	latency  *stats.Latency
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(st *store.Store, sessions *session.Manager, latency *stats.Latency, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		store:    st,
		reg:      sessions.Registry(),
		sessions: sessions,
		limiter:  NewSaveLimiter(cfg.SaveRatePerSec, cfg.SaveBurst),
		latency:  latency,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Get("/api/sections", s.handleListSections)

		r.Post("/api/reports", s.handleCreateReport)
		r.Get("/api/reports", s.handleListReports)
		r.Get("/api/reports/{reportID}", s.handleGetReport)
		r.Patch("/api/reports/{reportID}", s.handlePatchReport)
		r.Post("/api/reports/{reportID}/submit", s.handleSubmitReport)
		r.Get("/api/reports/{reportID}/export.docx", s.handleExportReport)
		r.Get("/api/reports/{reportID}/sections/{sectionID}/preview", s.handlePreviewSection)

		r.Post("/api/sessions", s.handleOpenSession)
		r.Get("/api/sessions/{sessionID}", s.handleGetSession)
		r.Post("/api/sessions/{sessionID}/ops", s.handleSessionOps)
		r.Post("/api/sessions/{sessionID}/save", s.handleSessionSave)
		r.Post("/api/sessions/{sessionID}/reload", s.handleSessionReload)
		r.Delete("/api/sessions/{sessionID}", s.handleCloseSession)

		r.Get("/api/stats/persistence", s.handlePersistenceStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
