// Package reportclient talks to the report REST API and implements
// persistence.Backend over HTTP.
package reportclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/dgallion1/brsrform/internal/document"
	"github.com/dgallion1/brsrform/internal/persistence"
)

var (
	ErrNotFound    = errors.New("report not found")
	ErrSubmitted   = persistence.ErrSubmitted
	ErrRateLimited = errors.New("rate limited by server")
	// ErrFieldIgnored means the server did not recognise the section's wire
	// field, so nothing was stored.
	ErrFieldIgnored = errors.New("server ignored section field")
)

// Client communicates with the report API. Full report records are cached
// briefly so mounting several sections of one report costs one GET; a save
// evicts the report from the cache.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	records    *gocache.Cache
	limiter    *rate.Limiter
	retries    int
	retryBase  time.Duration
}

type Option func(*Client)

// WithCacheTTL sets how long a loaded report is reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.records = nil
			return
		}
		c.records = gocache.New(ttl, 2*ttl)
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetries sets how many times a GET or PATCH is resent after a
// transient failure, waiting roughly base, 2*base, ... between attempts.
func WithRetries(n int, base time.Duration) Option {
	return func(c *Client) {
		c.retries = max(n, 0)
		c.retryBase = base
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		records:   gocache.New(5*time.Second, 10*time.Second),
		limiter:   rate.NewLimiter(rate.Limit(10), 5),
		retries:   2,
		retryBase: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReportSummary is one entry of GET /api/reports.
type ReportSummary struct {
	ID            string    `json:"report_id"`
	Company       string    `json:"company"`
	FinancialYear string    `json:"financial_year"`
	Submitted     bool      `json:"isSubmitted"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SectionInfo is one entry of GET /api/sections.
type SectionInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Field string `json:"field"`
}

// PatchResult is the server's answer to a section save.
type PatchResult struct {
	Saved   []string `json:"saved"`
	Ignored []string `json:"ignored"`
}

// LoadReport fetches the full report record. Top-level object values are
// treated as section documents keyed by wire field.
func (c *Client) LoadReport(ctx context.Context, reportID string) (*persistence.Record, error) {
	if c.records != nil {
		if v, ok := c.records.Get(reportID); ok {
			return v.(*persistence.Record), nil
		}
	}

	var raw map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/reports/"+url.PathEscape(reportID), nil, &raw); err != nil {
		return nil, fmt.Errorf("load report %s: %w", reportID, err)
	}

	rec := &persistence.Record{ReportID: reportID, Sections: make(map[string]document.Document)}
	for key, val := range raw {
		switch key {
		case "isSubmitted":
			if err := json.Unmarshal(val, &rec.Submitted); err != nil {
				return nil, fmt.Errorf("decode isSubmitted: %w", err)
			}
		case "report_id":
			if err := json.Unmarshal(val, &rec.ReportID); err != nil {
				return nil, fmt.Errorf("decode report_id: %w", err)
			}
		default:
			if len(val) == 0 || val[0] != '{' {
				continue
			}
			doc, err := document.Decode(val)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
			rec.Sections[key] = doc
		}
	}

	if c.records != nil {
		c.records.SetDefault(reportID, rec)
	}
	return rec, nil
}

// SaveSection sends {reportId, <field>: doc}. A field the server reports as
// ignored is an error, since the data was silently dropped.
func (c *Client) SaveSection(ctx context.Context, reportID, field string, doc document.Document) error {
	if c.records != nil {
		c.records.Delete(reportID)
	}
	if doc == nil {
		doc = document.Document{}
	}
	body := map[string]any{"reportId": reportID, field: doc}

	var res PatchResult
	if err := c.do(ctx, http.MethodPatch, "/api/reports/"+url.PathEscape(reportID), body, &res); err != nil {
		return fmt.Errorf("save %s: %w", field, err)
	}
	if !slices.Contains(res.Saved, field) {
		return fmt.Errorf("save %s: %w", field, ErrFieldIgnored)
	}
	return nil
}

// CreateReport starts an empty report and returns its ID.
func (c *Client) CreateReport(ctx context.Context, company, financialYear string) (string, error) {
	var res struct {
		ID string `json:"report_id"`
	}
	body := map[string]string{"company": company, "financial_year": financialYear}
	if err := c.do(ctx, http.MethodPost, "/api/reports", body, &res); err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	return res.ID, nil
}

func (c *Client) ListReports(ctx context.Context) ([]ReportSummary, error) {
	var res []ReportSummary
	if err := c.do(ctx, http.MethodGet, "/api/reports", nil, &res); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return res, nil
}

func (c *Client) ListSections(ctx context.Context) ([]SectionInfo, error) {
	var res []SectionInfo
	if err := c.do(ctx, http.MethodGet, "/api/sections", nil, &res); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return res, nil
}

// Submit locks the report on the server.
func (c *Client) Submit(ctx context.Context, reportID string) error {
	if c.records != nil {
		c.records.Delete(reportID)
	}
	if err := c.do(ctx, http.MethodPost, "/api/reports/"+url.PathEscape(reportID)+"/submit", nil, nil); err != nil {
		return fmt.Errorf("submit report: %w", err)
	}
	return nil
}

// Export streams the .docx rendering of a report into w.
func (c *Client) Export(ctx context.Context, reportID string, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, "/api/reports/"+url.PathEscape(reportID)+"/export.docx", nil)
	if err != nil {
		return fmt.Errorf("export report: %w", err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("export report: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var data []byte
	if in != nil {
		var err error
		if data, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	resp, err := c.send(ctx, method, path, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send issues the request, resending idempotent ones after transient
// failures, and turns any non-2xx status into an error.
func (c *Client) send(ctx context.Context, method, path string, data []byte) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.sendOnce(ctx, method, path, data)
		if err == nil || !IsRetryable(err) || !idempotent(method) || attempt >= c.retries {
			return resp, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff(c.retryBase, attempt)):
		}
	}
}

func (c *Client) sendOnce(ctx context.Context, method, path string, data []byte) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &RetryableError{Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	msg := serverMessage(respBody)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", msg, ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return nil, fmt.Errorf("%s: %w", msg, ErrSubmitted)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", msg, ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, &RetryableError{StatusCode: resp.StatusCode, Message: msg}
	}
	return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
}

// serverMessage extracts {"error": "..."} or falls back to the raw body.
func serverMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return string(bytes.TrimSpace(body))
}
