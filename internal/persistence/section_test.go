package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dgallion1/brsrform/internal/document"
	"github.com/dgallion1/brsrform/internal/registry"
	"github.com/dgallion1/brsrform/internal/section"
	"github.com/dgallion1/brsrform/internal/stats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const demoRegistry = `
sections:
  - id: demo
    title: Demo
    field: demo_data
    shape:
      a: {x: "", y: []}
      b: false
      hasPolicy: false
      details: ""
      total: null
      part: null
    rows:
      - {path: a.y, template: {n: 0}}
    rules:
      - {kind: required_if, when: hasPolicy, path: details}
      - {kind: sum_not_exceeds, path: total, parts: [part]}
`

type saveCall struct {
	reportID string
	field    string
	doc      document.Document
}

type fakeBackend struct {
	mu      sync.Mutex
	rec     *Record
	loadErr error
	saveErr error
	saves   []saveCall

	// block, when set, holds each call until it is closed; entered is
	// signalled as a call starts waiting.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeBackend) wait() {
	f.mu.Lock()
	block, entered := f.block, f.entered
	f.mu.Unlock()
	if block == nil {
		return
	}
	entered <- struct{}{}
	<-block
}

func (f *fakeBackend) LoadReport(_ context.Context, reportID string) (*Record, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.rec == nil {
		return &Record{ReportID: reportID}, nil
	}
	return f.rec, nil
}

func (f *fakeBackend) SaveSection(_ context.Context, reportID, field string, doc document.Document) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, saveCall{reportID, field, doc})
	return nil
}

func (f *fakeBackend) blockCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = make(chan struct{})
	f.entered = make(chan struct{}, 1)
}

func (f *fakeBackend) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.block)
	f.block = nil
}

func newTestSection(t *testing.T, backend Backend) *Section {
	t.Helper()
	reg, err := registry.Load(strings.NewReader(demoRegistry))
	require.NoError(t, err)
	def, ok := reg.Lookup("demo")
	require.True(t, ok)
	return NewSection("r1", def, backend, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSection_LoadMergesOntoShape(t *testing.T) {
	fb := &fakeBackend{rec: &Record{
		ReportID: "r1",
		Sections: map[string]document.Document{
			"demo_data":  {"a": map[string]any{"x": "hello"}},
			"other_data": {"b": true},
		},
	}}
	s := newTestSection(t, fb)
	require.NoError(t, s.Load(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, StatusReady, snap.Status)
	assert.False(t, snap.Dirty)
	assert.False(t, snap.Locked)
	assert.Equal(t, map[string]any{"x": "hello", "y": []any{}}, snap.Document["a"])
	assert.Equal(t, false, snap.Document["b"])
}

func TestSection_LoadAbsentSectionUsesShape(t *testing.T) {
	s := newTestSection(t, &fakeBackend{})
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, s.Definition().Shape(), s.Snapshot().Document)
}

func TestSection_LoadDropsLegacyKeys(t *testing.T) {
	fb := &fakeBackend{rec: &Record{Sections: map[string]document.Document{
		"demo_data": {"b": true, "retired_question": "old answer"},
	}}}
	s := newTestSection(t, fb)
	require.NoError(t, s.Load(context.Background()))

	doc := s.Snapshot().Document
	assert.NotContains(t, doc, "retired_question")
	assert.Equal(t, true, doc["b"])
}

func TestSection_LoadFailureNeedsRetry(t *testing.T) {
	fb := &fakeBackend{loadErr: errors.New("connection refused")}
	s := newTestSection(t, fb)

	err := s.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusError, s.Status())
	assert.Contains(t, s.LastError(), "connection refused")

	err = s.Mutate(func(st *section.State) error {
		return st.SetField(document.MustPath("b"), true)
	})
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, s.Save(context.Background(), false), ErrNotReady)

	fb.mu.Lock()
	fb.loadErr = nil
	fb.mu.Unlock()
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, StatusReady, s.Status())
	assert.Empty(t, s.LastError())
}

func TestSection_SaveSendsOnlyItsField(t *testing.T) {
	fb := &fakeBackend{}
	s := newTestSection(t, fb)
	require.NoError(t, s.Load(context.Background()))

	require.NoError(t, s.Mutate(func(st *section.State) error {
		if err := st.AddRow(document.MustPath("a.y"), nil); err != nil {
			return err
		}
		return st.SetArrayRow(document.MustPath("a.y"), 0, "n", 5.0)
	}))
	assert.True(t, s.Snapshot().Dirty)

	require.NoError(t, s.Save(context.Background(), false))
	require.Len(t, fb.saves, 1)
	assert.Equal(t, "r1", fb.saves[0].reportID)
	assert.Equal(t, "demo_data", fb.saves[0].field)
	assert.Equal(t, []any{map[string]any{"n": 5.0}}, fb.saves[0].doc["a"].(map[string]any)["y"])

	snap := s.Snapshot()
	assert.False(t, snap.Dirty)
	assert.Equal(t, StatusReady, snap.Status)
}

func TestSection_SaveIsIdempotent(t *testing.T) {
	fb := &fakeBackend{}
	s := newTestSection(t, fb)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Mutate(func(st *section.State) error {
		return st.SetField(document.MustPath("a.x"), "hello")
	}))

	require.NoError(t, s.Save(context.Background(), false))
	require.NoError(t, s.Save(context.Background(), false))

	require.Len(t, fb.saves, 2)
	assert.Equal(t, fb.saves[0].doc, fb.saves[1].doc)
	assert.False(t, s.Snapshot().Dirty)
}

func TestSection_BlockingErrorsSkipNetwork(t *testing.T) {
	fb := &fakeBackend{}
	s := newTestSection(t, fb)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Mutate(func(st *section.State) error {
		return st.SetField(document.MustPath("hasPolicy"), true)
	}))

	err := s.Save(context.Background(), true)
	require.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Errors, "details")
	assert.Empty(t, fb.saves)

	snap := s.Snapshot()
	assert.True(t, snap.Dirty)
	assert.Contains(t, snap.Errors, "details")
	assert.Equal(t, StatusReady, snap.Status)

	// Fixing the field clears its message and lets the save through.
	require.NoError(t, s.Mutate(func(st *section.State) error {
		return st.SetField(document.MustPath("details"), "Code of conduct")
	}))
	assert.NotContains(t, s.Snapshot().Errors, "details")
	require.NoError(t, s.Save(context.Background(), false))
	assert.Len(t, fb.saves, 1)
}

func TestSection_WarningsNeedConfirmation(t *testing.T) {
	fb := &fakeBackend{}
	s := newTestSection(t, fb)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Mutate(func(st *section.State) error {
		if err := st.SetNumber(document.MustPath("total"), "10"); err != nil {
			return err
		}
		return st.SetNumber(document.MustPath("part"), "12")
	}))

	err := s.Save(context.Background(), false)
	require.ErrorIs(t, err, ErrWarningsUnconfirmed)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Empty(t, fb.saves)
	assert.Contains(t, s.Snapshot().Warnings, "total")

	require.NoError(t, s.Save(context.Background(), true))
	assert.Len(t, fb.saves, 1)
}

func TestSection_SaveFailureStaysDirty(t *testing.T) {
	fb := &fakeBackend{saveErr: errors.New("502 bad gateway")}
	s := newTestSection(t, fb)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Mutate(func(st *section.State) error {
		return st.SetField(document.MustPath("a.x"), "draft")
	}))

	require.Error(t, s.Save(context.Background(), false))
	snap := s.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	assert.True(t, snap.Dirty)
	assert.Contains(t, snap.LastError, "502 bad gateway")

	// Still editable after a failed save.
	require.NoError(t, s.Mutate(func(st *section.State) error {
		return st.SetField(document.MustPath("b"), true)
	}))

	fb.mu.Lock()
	fb.saveErr = nil
	fb.mu.Unlock()
	require.NoError(t, s.Save(context.Background(), false))
	assert.Equal(t, StatusReady, s.Status())
	assert.Empty(t, s.LastError())
	assert.Equal(t, "draft", fb.saves[0].doc["a"].(map[string]any)["x"])
}

func TestSection_LockedReportRejectsChanges(t *testing.T) {
	fb := &fakeBackend{rec: &Record{Submitted: true, Sections: map[string]document.Document{
		"demo_data": {"b": true},
	}}}
	s := newTestSection(t, fb)
	require.NoError(t, s.Load(context.Background()))

	before := s.Snapshot()
	require.True(t, before.Locked)

	err := s.Mutate(func(st *section.State) error {
		return st.SetField(document.MustPath("b"), false)
	})
	assert.ErrorIs(t, err, section.ErrLocked)
	assert.ErrorIs(t, s.Save(context.Background(), true), section.ErrLocked)

	after := s.Snapshot()
	assert.Equal(t, before.Document, after.Document)
	assert.False(t, after.Dirty)
	assert.Empty(t, fb.saves)
}

func TestSection_ConcurrentSaveRejected(t *testing.T) {
	fb := &fakeBackend{}
	s := newTestSection(t, fb)
	require.NoError(t, s.Load(context.Background()))
	fb.blockCalls()

	done := make(chan error, 1)
	go func() { done <- s.Save(context.Background(), false) }()
	<-fb.entered

	assert.Equal(t, StatusSaving, s.Status())
	assert.ErrorIs(t, s.Save(context.Background(), false), ErrSaveInProgress)
	assert.ErrorIs(t, s.Mutate(func(*section.State) error { return nil }), ErrSaveInProgress)
	assert.ErrorIs(t, s.Load(context.Background()), ErrSaveInProgress)

	fb.release()
	require.NoError(t, <-done)
	assert.Equal(t, StatusReady, s.Status())
	assert.Len(t, fb.saves, 1)
}

func TestSection_ResetDiscardsInFlightLoad(t *testing.T) {
	fb := &fakeBackend{rec: &Record{Sections: map[string]document.Document{
		"demo_data": {"b": true},
	}}}
	s := newTestSection(t, fb)
	fb.blockCalls()

	done := make(chan error, 1)
	go func() { done <- s.Load(context.Background()) }()
	<-fb.entered
	assert.Equal(t, StatusLoading, s.Status())

	s.Reset()
	fb.release()

	assert.ErrorIs(t, <-done, ErrStale)
	snap := s.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Nil(t, snap.Document)
}

func TestSection_SaveDuringReloadRejected(t *testing.T) {
	fb := &fakeBackend{rec: &Record{Sections: map[string]document.Document{
		"demo_data": {"a": map[string]any{"x": "server-old"}},
	}}}
	s := newTestSection(t, fb)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Mutate(func(st *section.State) error {
		return st.SetField(document.MustPath("a.x"), "user-edit")
	}))
	fb.blockCalls()

	done := make(chan error, 1)
	go func() { done <- s.Load(context.Background()) }()
	<-fb.entered
	require.Equal(t, StatusLoading, s.Status())

	assert.ErrorIs(t, s.Save(context.Background(), true), ErrNotReady)

	fb.release()
	require.NoError(t, <-done)

	assert.Empty(t, fb.saves)
	snap := s.Snapshot()
	assert.Equal(t, StatusReady, snap.Status)
	assert.False(t, snap.Dirty)
	assert.Equal(t, "server-old", snap.Document["a"].(map[string]any)["x"])
}

func TestSection_MutateDuringReloadRejected(t *testing.T) {
	fb := &fakeBackend{}
	s := newTestSection(t, fb)
	require.NoError(t, s.Load(context.Background()))
	fb.blockCalls()

	done := make(chan error, 1)
	go func() { done <- s.Load(context.Background()) }()
	<-fb.entered

	err := s.Mutate(func(st *section.State) error {
		return st.SetField(document.MustPath("a.x"), "lost")
	})
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, s.Revert(), ErrNotReady)

	fb.release()
	require.NoError(t, <-done)
	assert.Equal(t, "", s.Snapshot().Document["a"].(map[string]any)["x"])
	assert.False(t, s.Snapshot().Dirty)
}

func TestSection_SubmittedWhileEditingLocks(t *testing.T) {
	fb := &fakeBackend{saveErr: fmt.Errorf("patch report: %w", ErrSubmitted)}
	s := newTestSection(t, fb)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Mutate(func(st *section.State) error {
		return st.SetField(document.MustPath("a.x"), "late")
	}))

	require.ErrorIs(t, s.Save(context.Background(), false), ErrSubmitted)
	snap := s.Snapshot()
	assert.True(t, snap.Locked)
	assert.Equal(t, StatusError, snap.Status)

	err := s.Mutate(func(st *section.State) error {
		return st.SetField(document.MustPath("b"), true)
	})
	assert.ErrorIs(t, err, section.ErrLocked)
	assert.ErrorIs(t, s.Save(context.Background(), true), section.ErrLocked)
	assert.Equal(t, snap.Document, s.Snapshot().Document)
}

func TestSection_ResetDiscardsInFlightSave(t *testing.T) {
	fb := &fakeBackend{}
	s := newTestSection(t, fb)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Mutate(func(st *section.State) error {
		return st.SetField(document.MustPath("a.x"), "x")
	}))
	fb.blockCalls()

	done := make(chan error, 1)
	go func() { done <- s.Save(context.Background(), false) }()
	<-fb.entered
	s.Reset()
	fb.release()

	assert.ErrorIs(t, <-done, ErrStale)
	assert.Equal(t, StatusIdle, s.Status())
}

func TestSection_Revert(t *testing.T) {
	s := newTestSection(t, &fakeBackend{})
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Mutate(func(st *section.State) error {
		return st.SetField(document.MustPath("a.x"), "draft")
	}))
	require.NoError(t, s.Revert())

	snap := s.Snapshot()
	assert.False(t, snap.Dirty)
	assert.Equal(t, "", snap.Document["a"].(map[string]any)["x"])
}

func TestTimed_RecordsRoundTrips(t *testing.T) {
	lat := stats.NewLatency(0)
	fb := &fakeBackend{}
	s := newTestSection(t, NewTimed(fb, lat))

	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Save(context.Background(), false))
	fb.saveErr = errors.New("down")
	require.Error(t, s.Save(context.Background(), false))

	snap := lat.Snapshot()
	assert.Equal(t, 1, snap["load"].Count)
	assert.Equal(t, 2, snap["save"].Count)
	assert.Equal(t, 1, snap["save"].Failures)
}
