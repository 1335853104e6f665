package persistence

import (
	"context"
	"time"

	"github.com/dgallion1/brsrform/internal/document"
	"github.com/dgallion1/brsrform/internal/stats"
)

// Timed records the latency of every round trip made through Backend.
type Timed struct {
	backend Backend
	stats   *stats.Latency
}

func NewTimed(backend Backend, latency *stats.Latency) *Timed {
	return &Timed{backend: backend, stats: latency}
}

func (t *Timed) LoadReport(ctx context.Context, reportID string) (*Record, error) {
	start := time.Now()
	rec, err := t.backend.LoadReport(ctx, reportID)
	t.stats.Record("load", time.Since(start), err)
	return rec, err
}

func (t *Timed) SaveSection(ctx context.Context, reportID, field string, doc document.Document) error {
	start := time.Now()
	err := t.backend.SaveSection(ctx, reportID, field, doc)
	t.stats.Record("save", time.Since(start), err)
	return err
}
