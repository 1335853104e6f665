package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/brsrform/internal/document"
	"github.com/dgallion1/brsrform/internal/render"
	"github.com/dgallion1/brsrform/internal/store"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

type sectionInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Field string `json:"field"`
}

func (s *Server) handleListSections(w http.ResponseWriter, r *http.Request) {
	defs := s.reg.All()
	out := make([]sectionInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, sectionInfo{ID: def.ID, Title: def.Title, Field: def.Field})
	}
	writeJSON(w, http.StatusOK, out)
}

type createReportRequest struct {
	Company       string `json:"company"`
	FinancialYear string `json:"financial_year"`
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if err := s.decodeBody(w, r, &req, false); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Company) == "" {
		jsonError(w, "company is required", http.StatusBadRequest)
		return
	}
	rep, err := s.store.Create(r.Context(), req.Company, req.FinancialYear)
	if err != nil {
		s.log.Error("create report", "error", err)
		jsonError(w, "could not create report", http.StatusInternalServerError)
		return
	}
	s.log.Info("report created", "report_id", rep.ID, "company", rep.Company)
	writeJSON(w, http.StatusCreated, rep)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.List(r.Context())
	if err != nil {
		s.log.Error("list reports", "error", err)
		jsonError(w, "could not list reports", http.StatusInternalServerError)
		return
	}
	if reports == nil {
		reports = []store.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// handleGetReport returns the header fields and every stored section
// document as one flat object keyed by wire field.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.getRecord(w, r)
	if !ok {
		return
	}
	out := map[string]any{
		"report_id":      rec.ID,
		"company":        rec.Company,
		"financial_year": rec.FinancialYear,
		"isSubmitted":    rec.Submitted,
		"created_at":     rec.CreatedAt,
		"updated_at":     rec.UpdatedAt,
	}
	for field, doc := range rec.Sections {
		out[field] = doc
	}
	writeJSON(w, http.StatusOK, out)
}

type patchResponse struct {
	Saved   []string `json:"saved"`
	Ignored []string `json:"ignored"`
}

// handlePatchReport stores the section documents named by known wire fields
// and leaves every other section untouched. Unknown keys are reported back
// as ignored.
func (s *Server) handlePatchReport(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "reportID")

	var body map[string]json.RawMessage
	if err := s.decodeBody(w, r, &body, false); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	res := patchResponse{Saved: []string{}, Ignored: []string{}}
	sections := make(map[string]document.Document)
	for key, raw := range body {
		if key == "reportId" {
			var id string
			if err := json.Unmarshal(raw, &id); err != nil || (id != "" && id != reportID) {
				jsonError(w, "reportId does not match the URL", http.StatusBadRequest)
				return
			}
			continue
		}
		if _, ok := s.reg.ByField(key); !ok {
			res.Ignored = append(res.Ignored, key)
			continue
		}
		doc, err := document.Decode(raw)
		if err != nil {
			jsonError(w, fmt.Sprintf("%s: section must be a JSON object", key), http.StatusBadRequest)
			return
		}
		sections[key] = doc
		res.Saved = append(res.Saved, key)
	}
	slices.Sort(res.Saved)
	slices.Sort(res.Ignored)

	if len(res.Ignored) > 0 {
		s.log.Warn("ignored unknown section fields", "report_id", reportID, "fields", res.Ignored)
	}
	if !s.limiter.Allow(reportID) {
		jsonError(w, "too many saves for this report", http.StatusTooManyRequests)
		return
	}

	if err := s.store.Patch(r.Context(), reportID, sections); err != nil {
		s.storeError(w, "patch report", reportID, err)
		return
	}
	s.log.Info("report patched", "report_id", reportID, "fields", res.Saved)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "reportID")
	if err := s.store.Submit(r.Context(), reportID); err != nil {
		s.storeError(w, "submit report", reportID, err)
		return
	}
	s.log.Info("report submitted", "report_id", reportID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.getRecord(w, r)
	if !ok {
		return
	}
	title := strings.TrimSpace(fmt.Sprintf("%s BRSR %s", rec.Company, rec.FinancialYear))
	outline := render.BuildOutline(s.reg, title, rec.Sections)

	// Render fully before writing so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := render.DOCX(outline, &buf); err != nil {
		s.log.Error("render docx", "report_id", rec.ID, "error", err)
		jsonError(w, "could not render report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", docxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="brsr-%s.docx"`, rec.ID))
	w.Write(buf.Bytes())
}

// handlePreviewSection renders one section of a stored report as HTML.
func (s *Server) handlePreviewSection(w http.ResponseWriter, r *http.Request) {
	def, ok := s.reg.Lookup(chi.URLParam(r, "sectionID"))
	if !ok {
		jsonError(w, "unknown section", http.StatusNotFound)
		return
	}
	rec, ok := s.getRecord(w, r)
	if !ok {
		return
	}
	out, err := render.HTML(&render.Outline{Sections: []*render.Node{render.SectionNode(def, rec.Sections[def.Field])}})
	if err != nil {
		s.log.Error("render preview", "report_id", rec.ID, "section", def.ID, "error", err)
		jsonError(w, "could not render section", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(out)
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) (*store.Record, bool) {
	reportID := chi.URLParam(r, "reportID")
	rec, err := s.store.Get(r.Context(), reportID)
	if err != nil {
		s.storeError(w, "get report", reportID, err)
		return nil, false
	}
	return rec, true
}

func (s *Server) storeError(w http.ResponseWriter, op, reportID string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, "report not found", http.StatusNotFound)
	case errors.Is(err, store.ErrSubmitted):
		jsonError(w, "report already submitted", http.StatusConflict)
	default:
		s.log.Error(op, "report_id", reportID, "error", err)
		jsonError(w, "storage error", http.StatusInternalServerError)
	}
}
