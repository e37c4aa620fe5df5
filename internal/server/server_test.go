package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bryan-buckman/dealscout/internal/database"
	"github.com/bryan-buckman/dealscout/internal/model"
	"github.com/bryan-buckman/dealscout/internal/pipeline"
	"github.com/shopspring/decimal"
)

type fakeRunner struct {
	mu      sync.Mutex
	opts    []pipeline.RunOptions
	err     error
	running bool
}

func (f *fakeRunner) Run(_ context.Context, opts pipeline.RunOptions) (pipeline.RunReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return pipeline.RunReport{}, f.err
	}
	return pipeline.RunReport{RunID: "run-1", Status: pipeline.RunCompleted}, nil
}

func (f *fakeRunner) Sources() []model.Source {
	return []model.Source{{Name: "mydealz", URL: "https://www.mydealz.de/rss/hot"}}
}

func (f *fakeRunner) Running() bool { return f.running }

func newTestServer(t *testing.T, runner *fakeRunner) (*httptest.Server, *database.DB) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := New(db, runner, Options{
		CronSecret:        "s3cret",
		DashboardUser:     "admin",
		DashboardPassword: "pw",
		Components:        map[string]bool{"gemini": true, "ebay": false},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, db
}

func do(t *testing.T, method, url string, auth bool, header map[string]string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	if auth {
		req.SetBasicAuth("admin", "pw")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, &fakeRunner{})
	resp := do(t, http.MethodGet, ts.URL+"/health", false, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "healthy" {
		t.Fatalf("body %v", body)
	}
}

func TestCronRequiresSecret(t *testing.T) {
	runner := &fakeRunner{}
	ts, _ := newTestServer(t, runner)

	if resp := do(t, http.MethodPost, ts.URL+"/api/cron", false, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing secret: status %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, ts.URL+"/api/cron", false, map[string]string{"X-Cron-Secret": "wrong"}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong secret: status %d", resp.StatusCode)
	}
	if len(runner.opts) != 0 {
		t.Fatal("unauthorized requests must not start a run")
	}

	resp := do(t, http.MethodPost, ts.URL+"/api/cron", false, map[string]string{"X-Cron-Secret": "s3cret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var report pipeline.RunReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil || report.RunID != "run-1" {
		t.Fatalf("report %+v, %v", report, err)
	}

	do(t, http.MethodGet, ts.URL+"/api/cron?secret=s3cret&force=true", false, nil)
	if len(runner.opts) != 2 || runner.opts[0].IgnoreWindow || !runner.opts[1].IgnoreWindow {
		t.Fatalf("unexpected run options %+v", runner.opts)
	}
}

func TestCronConflict(t *testing.T) {
	ts, _ := newTestServer(t, &fakeRunner{err: pipeline.ErrRunInProgress})
	resp := do(t, http.MethodPost, ts.URL+"/api/cron", false, map[string]string{"X-Cron-Secret": "s3cret"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status %d, want 409", resp.StatusCode)
	}

	busy := &fakeRunner{running: true}
	ts2, _ := newTestServer(t, busy)
	resp = do(t, http.MethodPost, ts2.URL+"/api/cron?async=true", false, map[string]string{"X-Cron-Secret": "s3cret"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("async status %d, want 409", resp.StatusCode)
	}
}

func TestDashboardRequiresAuth(t *testing.T) {
	ts, _ := newTestServer(t, &fakeRunner{})
	for _, path := range []string{"/", "/api/logs", "/api/deals", "/api/queries", "/api/diagnostics"} {
		if resp := do(t, http.MethodGet, ts.URL+path, false, nil); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s without auth: status %d", path, resp.StatusCode)
		}
	}
}

func TestDashboardClosedWithoutPassword(t *testing.T) {
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	s, err := New(db, &fakeRunner{}, Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/deals", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", rec.Code)
	}
}

func TestDashboardRendersDeals(t *testing.T) {
	ts, db := newTestServer(t, &fakeRunner{})
	db.AddDeal(&model.Deal{
		ProductName: "Sony WH-1000XM5",
		ProductURL:  "https://deals.example/1",
		AskingPrice: decimal.RequireFromString("249.99"),
		ResalePrice: decimal.RequireFromString("278.10"),
		Profit:      decimal.RequireFromString("28.11"),
		FeeAmount:   decimal.RequireFromString("30.90"),
		Source:      "https://www.mydealz.de/rss/hot",
	})
	id, _ := db.CreateLog("run-1", "https://www.mydealz.de/rss/hot")
	db.UpdateLog(id, model.StatusSuccess, 1234, "10 entries")

	resp := do(t, http.MethodGet, ts.URL+"/", true, nil)
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	for _, want := range []string{"Sony WH-1000XM5", "28.11 €", "1,234", "Success"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestListEndpoints(t *testing.T) {
	ts, db := newTestServer(t, &fakeRunner{})
	for i := 0; i < 3; i++ {
		db.AddQuery(&model.QueryRecord{ProductName: "x", Query: "xyz", Outcome: model.QuoteEmpty})
	}

	resp := do(t, http.MethodGet, ts.URL+"/api/queries?limit=2", true, nil)
	var queries []model.QueryRecord
	if err := json.NewDecoder(resp.Body).Decode(&queries); err != nil {
		t.Fatal(err)
	}
	if len(queries) != 2 {
		t.Fatalf("limit ignored: got %d", len(queries))
	}

	resp = do(t, http.MethodGet, ts.URL+"/api/deals", true, nil)
	raw, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Fatalf("empty list should encode as [], got %s", raw)
	}
}

func TestDiagnosticsHidesSecrets(t *testing.T) {
	ts, _ := newTestServer(t, &fakeRunner{})
	resp := do(t, http.MethodGet, ts.URL+"/api/diagnostics", true, nil)
	raw, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(raw), "s3cret") || strings.Contains(string(raw), "\"pw\"") {
		t.Fatalf("diagnostics leaked a secret: %s", raw)
	}
	var body struct {
		Database   map[string]string `json:"database"`
		Components map[string]bool   `json:"components"`
		Sources    int               `json:"sources"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatal(err)
	}
	if body.Database["type"] != "SQLite" || body.Database["status"] != "ok" {
		t.Errorf("database %v", body.Database)
	}
	if !body.Components["gemini"] || body.Components["ebay"] || !body.Components["cron_secret"] {
		t.Errorf("components %v", body.Components)
	}
	if body.Sources != 1 {
		t.Errorf("sources = %d", body.Sources)
	}
}

func TestExportSourcesOPML(t *testing.T) {
	ts, _ := newTestServer(t, &fakeRunner{})
	resp := do(t, http.MethodGet, ts.URL+"/api/sources.opml", true, nil)
	raw, _ := io.ReadAll(resp.Body)
	if resp.Header.Get("Content-Type") != "application/xml" || !strings.Contains(string(raw), `xmlUrl="https://www.mydealz.de/rss/hot"`) {
		t.Fatalf("unexpected export (%s): %s", resp.Header.Get("Content-Type"), raw)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, &fakeRunner{})
	do(t, http.MethodGet, ts.URL+"/health", false, nil)
	resp := do(t, http.MethodGet, ts.URL+"/metrics", false, nil)
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "dealscout_http_requests_total") {
		t.Fatal("metrics output missing request counter")
	}
}
