package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgallion1/brsrform/internal/document"
	"github.com/dgallion1/brsrform/internal/persistence"
)

// Backend serves persistence.Section directly from the store, skipping HTTP.
type Backend struct {
	store *Store
}

func NewBackend(s *Store) *Backend {
	return &Backend{store: s}
}

func (b *Backend) LoadReport(ctx context.Context, reportID string) (*persistence.Record, error) {
	rec, err := b.store.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return &persistence.Record{
		ReportID:  rec.ID,
		Submitted: rec.Submitted,
		Sections:  rec.Sections,
	}, nil
}

func (b *Backend) SaveSection(ctx context.Context, reportID, field string, doc document.Document) error {
	err := b.store.PatchSection(ctx, reportID, field, doc)
	if errors.Is(err, ErrSubmitted) {
		return fmt.Errorf("%w: %w", persistence.ErrSubmitted, err)
	}
	return err
}
