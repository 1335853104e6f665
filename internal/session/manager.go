package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/brsrform/internal/persistence"
	"github.com/dgallion1/brsrform/internal/registry"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrUnknownSection = errors.New("unknown section")
)

// Config controls session lifetime.
type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// Manager opens sections against a backend and expires idle sessions.
type Manager struct {
	reg      *registry.Registry
	backend  persistence.Backend
	sessions *Store
	log      *slog.Logger
	cfg      Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(reg *registry.Registry, backend persistence.Backend, cfg Config, log *slog.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	return &Manager{
		reg:      reg,
		backend:  backend,
		sessions: NewStore(cfg.TTL),
		log:      log,
		cfg:      cfg,
	}
}

// Start launches the cleanup ticker.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.expire(now)
			}
		}
	}()
}

// Stop halts the cleanup ticker and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) expire(now time.Time) {
	for _, sess := range m.sessions.Cleanup(now) {
		m.log.Info("session expired", "session_id", sess.ID, "report_id", sess.ReportID())
	}
}

// Open mounts sectionID of reportID and loads it. The session is registered
// even when the load fails so the caller can retry it with Load; the load
// error is returned alongside it.
func (m *Manager) Open(ctx context.Context, reportID, sectionID string) (*Session, error) {
	def, ok := m.reg.Lookup(sectionID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSection, sectionID)
	}
	id := uuid.NewString()
	sess := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		Section:   persistence.NewSection(reportID, def, m.backend, m.log.With("session_id", id)),
	}
	m.sessions.Put(sess)
	m.log.Info("session opened", "session_id", id, "report_id", reportID, "section", sectionID)
	return sess, sess.Load(ctx)
}

func (m *Manager) Get(id string) (*Session, error) {
	sess := m.sessions.Get(id)
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Close unmounts a session. A load or save still in flight is discarded.
func (m *Manager) Close(id string) error {
	sess := m.sessions.Delete(id)
	if sess == nil {
		return ErrNotFound
	}
	sess.Reset()
	m.log.Info("session closed", "session_id", id)
	return nil
}

func (m *Manager) Len() int {
	return m.sessions.Len()
}

// Registry exposes the section definitions sessions are opened against.
func (m *Manager) Registry() *registry.Registry {
	return m.reg
}
