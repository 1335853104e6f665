// Package persistence drives one section through load, edit, and save
// against a report backend.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/brsrform/internal/document"
	"github.com/dgallion1/brsrform/internal/registry"
	"github.com/dgallion1/brsrform/internal/section"
)

// Status is the section's position in the load/save cycle.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusSaving  Status = "saving"
	StatusError   Status = "error"
)

var (
	ErrSaveInProgress      = errors.New("save already in progress")
	ErrNotReady            = errors.New("section is not loaded")
	ErrValidation          = errors.New("validation failed")
	ErrWarningsUnconfirmed = errors.New("warnings need confirmation")
	// ErrStale is returned when the section was reset or reloaded while a
	// round trip was in flight; the response was discarded.
	ErrStale = errors.New("response discarded: section changed while waiting")

	// ErrSubmitted is returned by a Backend when the report was submitted
	// after it was loaded.
	ErrSubmitted = errors.New("report already submitted")
)

// Record is a full report as the backend returns it: one document per wire field.
type Record struct {
	ReportID  string
	Submitted bool
	Sections  map[string]document.Document
}

// Backend is the load and save collaborator.
type Backend interface {
	LoadReport(ctx context.Context, reportID string) (*Record, error)
	SaveSection(ctx context.Context, reportID, field string, doc document.Document) error
}

// ValidationError carries the gate's findings. It matches ErrValidation when
// any error blocks, otherwise ErrWarningsUnconfirmed.
type ValidationError struct {
	Errors   map[string]string
	Warnings map[string]string
	summary  string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) > 0 {
		return "validation failed: " + e.summary
	}
	return fmt.Sprintf("%d warning(s) need confirmation", len(e.Warnings))
}

func (e *ValidationError) Is(target error) bool {
	if len(e.Errors) > 0 {
		return target == ErrValidation
	}
	return target == ErrWarningsUnconfirmed
}

// Section owns one mounted section of one report. All methods are safe for
// concurrent use. Load and Save release the lock for the backend round trip;
// a generation counter rejects responses that arrive after Reset or a newer Load.
type Section struct {
	mu sync.Mutex

	reportID string
	def      *registry.Definition
	backend  Backend
	log      *slog.Logger

	status    Status
	state     *section.State
	loaded    bool
	gen       uint64
	lastError string
	updatedAt time.Time
}

func NewSection(reportID string, def *registry.Definition, backend Backend, log *slog.Logger) *Section {
	return &Section{
		reportID:  reportID,
		def:       def,
		backend:   backend,
		log:       log.With("report_id", reportID, "section", def.ID),
		status:    StatusIdle,
		updatedAt: time.Now(),
	}
}

func (s *Section) ReportID() string                 { return s.reportID }
func (s *Section) Definition() *registry.Definition { return s.def }

// Load fetches the report, merges this section's stored document onto the
// default shape, and seeds a clean state. Any local edits are discarded.
func (s *Section) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusSaving {
		s.mu.Unlock()
		return ErrSaveInProgress
	}
	s.gen++
	gen := s.gen
	s.setStatusLocked(StatusLoading)
	s.mu.Unlock()

	rec, err := s.backend.LoadReport(ctx, s.reportID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return ErrStale
	}
	if err != nil {
		s.loaded = false
		s.state = nil
		s.lastError = "Could not load the report: " + err.Error()
		s.setStatusLocked(StatusError)
		s.log.Error("load section failed", "error", err)
		return fmt.Errorf("load report: %w", err)
	}

	stored := rec.Sections[s.def.Field]
	merged, dropped := document.MergeShape(s.def.Shape(), stored)
	if len(dropped) > 0 {
		s.log.Warn("dropped keys not in section shape", "paths", dropped)
	}

	s.state = section.New(merged, s.def.Rows)
	s.state.SetLocked(rec.Submitted)
	s.loaded = true
	s.lastError = ""
	s.setStatusLocked(StatusReady)
	s.log.Info("section loaded", "stored", stored != nil, "locked", rec.Submitted)
	return nil
}

// Save validates the document and sends only this section's wire field.
// Blocking errors stop the save before any network call. Warnings stop it
// unless confirmWarnings is set. On success the sent document becomes the
// baseline without a re-fetch.
func (s *Section) Save(ctx context.Context, confirmWarnings bool) error {
	s.mu.Lock()
	switch {
	case s.status == StatusSaving:
		s.mu.Unlock()
		return ErrSaveInProgress
	case !s.loaded || !s.editableLocked():
		s.mu.Unlock()
		return ErrNotReady
	case s.state.Locked():
		s.mu.Unlock()
		return section.ErrLocked
	}

	payload := s.state.Document()
	res := s.def.Gate().Validate(payload)
	s.state.SetValidation(res.Errors, res.Warnings)
	if res.Blocking() || (res.HasWarnings() && !confirmWarnings) {
		verr := &ValidationError{Errors: res.Errors, Warnings: res.Warnings, summary: res.Summary()}
		if res.Blocking() {
			s.lastError = verr.Error()
		}
		s.mu.Unlock()
		return verr
	}

	gen := s.gen
	s.setStatusLocked(StatusSaving)
	s.mu.Unlock()

	err := s.backend.SaveSection(ctx, s.reportID, s.def.Field, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return ErrStale
	}
	if err != nil {
		s.lastError = "Could not save: " + err.Error()
		if errors.Is(err, ErrSubmitted) {
			s.state.SetLocked(true)
		}
		s.setStatusLocked(StatusError)
		s.log.Error("save section failed", "error", err)
		return fmt.Errorf("save section: %w", err)
	}
	s.state.MarkSaved()
	s.lastError = ""
	s.setStatusLocked(StatusReady)
	s.log.Info("section saved", "field", s.def.Field)
	return nil
}

// Reset unmounts the section. A round trip still in flight is discarded
// when it returns.
func (s *Section) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = nil
	s.loaded = false
	s.lastError = ""
	s.setStatusLocked(StatusIdle)
}

// Mutate runs fn against the live state. It fails with ErrNotReady before a
// successful load or while a reload is in flight, and with ErrSaveInProgress
// while a save is outstanding.
// Locked reports are enforced by section.State itself.
func (s *Section) Mutate(fn func(st *section.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNotReady
	}
	if s.status == StatusSaving {
		return ErrSaveInProgress
	}
	if !s.editableLocked() {
		return ErrNotReady
	}
	s.updatedAt = time.Now()
	return fn(s.state)
}

// Revert drops local edits back to the last loaded or saved document.
func (s *Section) Revert() error {
	return s.Mutate(func(st *section.State) error { return st.Revert() })
}

func (s *Section) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError is the single user-facing message from the most recent failure.
func (s *Section) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// UpdatedAt is the last time the section changed status or was mutated.
func (s *Section) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Snapshot is a read-only, JSON-safe copy of the section.
type Snapshot struct {
	ReportID  string            `json:"report_id"`
	Section   string            `json:"section"`
	Field     string            `json:"field"`
	Status    Status            `json:"state"`
	Dirty     bool              `json:"dirty"`
	Locked    bool              `json:"locked"`
	Document  document.Document `json:"document"`
	Errors    map[string]string `json:"errors"`
	Warnings  map[string]string `json:"warnings"`
	LastError string            `json:"last_error,omitempty"`
}

func (s *Section) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ReportID:  s.reportID,
		Section:   s.def.ID,
		Field:     s.def.Field,
		Status:    s.status,
		Errors:    map[string]string{},
		Warnings:  map[string]string{},
		LastError: s.lastError,
	}
	if s.state != nil {
		snap.Dirty = s.state.Dirty()
		snap.Locked = s.state.Locked()
		snap.Document = s.state.Document()
		snap.Errors = s.state.Errors()
		snap.Warnings = s.state.Warnings()
	}
	return snap
}

// editableLocked reports whether edits and saves are allowed: after a
// successful load, or after a failed save. Not while a reload is in flight.
func (s *Section) editableLocked() bool {
	return s.status == StatusReady || s.status == StatusError
}

func (s *Section) setStatusLocked(status Status) {
	s.status = status
	s.updatedAt = time.Now()
}
