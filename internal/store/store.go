// Package store persists report records in SQLite, one JSON row per section
// wire field.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dgallion1/brsrform/internal/document"
)

var (
	ErrNotFound  = errors.New("report not found")
	ErrSubmitted = errors.New("report already submitted")
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    company TEXT NOT NULL,
    financial_year TEXT NOT NULL,
    submitted INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS report_sections (
    report_id TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
    field TEXT NOT NULL,
    data TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (report_id, field)
);

CREATE INDEX IF NOT EXISTS idx_reports_updated ON reports(updated_at);
`

// Report is the header row of a report.
type Report struct {
	ID            string    `json:"report_id"`
	Company       string    `json:"company"`
	FinancialYear string    `json:"financial_year"`
	Submitted     bool      `json:"isSubmitted"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Record is a report with every stored section document keyed by wire field.
type Record struct {
	Report
	Sections map[string]document.Document
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file if needed and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts an empty report and returns its header.
func (s *Store) Create(ctx context.Context, company, financialYear string) (*Report, error) {
	now := s.now()
	r := &Report{
		ID:            uuid.NewString(),
		Company:       company,
		FinancialYear: financialYear,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (id, company, financial_year, submitted, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)`,
		r.ID, r.Company, r.FinancialYear, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	return r, nil
}

// Get loads a report header and all its section documents.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	rep, err := s.header(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT field, data FROM report_sections WHERE report_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer rows.Close()

	rec := &Record{Report: *rep, Sections: make(map[string]document.Document)}
	for rows.Next() {
		var field, data string
		if err := rows.Scan(&field, &data); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		doc, err := document.Decode([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", field, err)
		}
		rec.Sections[field] = doc
	}
	return rec, rows.Err()
}

// PatchSection replaces one section document. Other sections are untouched.
func (s *Store) PatchSection(ctx context.Context, id, field string, doc document.Document) error {
	return s.Patch(ctx, id, map[string]document.Document{field: doc})
}

// Patch replaces the given section documents in one transaction.
func (s *Store) Patch(ctx context.Context, id string, sections map[string]document.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin patch: %w", err)
	}
	defer tx.Rollback()

	rep, err := s.header(ctx, tx, id)
	if err != nil {
		return err
	}
	if rep.Submitted {
		return ErrSubmitted
	}

	now := formatTime(s.now())
	for field, doc := range sections {
		if doc == nil {
			doc = document.Document{}
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode section %s: %w", field, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO report_sections (report_id, field, data, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (report_id, field) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
			id, field, string(data), now)
		if err != nil {
			return fmt.Errorf("upsert section %s: %w", field, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE reports SET updated_at = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("touch report: %w", err)
	}
	return tx.Commit()
}

// Submit locks the report against further patches.
func (s *Store) Submit(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET submitted = 1, updated_at = ? WHERE id = ?`, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("submit report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns report headers, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company, financial_year, submitted, created_at, updated_at FROM reports ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := []Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) header(ctx context.Context, q queryer, id string) (*Report, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, company, financial_year, submitted, created_at, updated_at FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (*Report, error) {
	var (
		r                Report
		created, updated string
	)
	if err := sc.Scan(&r.ID, &r.Company, &r.FinancialYear, &r.Submitted, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	r.CreatedAt, _ = time.Parse(timeLayout, created)
	r.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &r, nil
}

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
