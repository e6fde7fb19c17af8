package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/peptaide/peptaide/internal/config"
	"github.com/peptaide/peptaide/internal/importer"
	"github.com/peptaide/peptaide/internal/tables"
)

const (
	testAPIKey  = "test-key"
	testUserIDs = "9f0b2a64-4f1c-46a8-8f7d-5b6a1c2d3e4f"
)

// newTestServer wires routes without a database. Handlers that touch the
// store are not exercised here; middleware and request validation are.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{RequestTimeout: time.Minute},
		Import: config.ImportConfig{
			MaxCSVBytes:    256,
			MaxBundleBytes: 256,
			Timeout:        time.Minute,
		},
		Security: config.SecurityConfig{APIKeys: []string{testAPIKey + ":" + testUserIDs}},
	}
	keys, err := cfg.Security.ParseAPIKeys()
	if err != nil {
		t.Fatal(err)
	}
	s := &Server{cfg: cfg, apiKeys: keys, router: chi.NewRouter()}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func TestAPIRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestListTables(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Tables []struct {
			Name    string   `json:"name"`
			Columns []string `json:"columns"`
		} `json:"tables"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Tables) != tables.Count() {
		t.Errorf("tables = %d, want %d", len(body.Tables), tables.Count())
	}
	for _, tbl := range body.Tables {
		if tbl.Name == "" || len(tbl.Columns) == 0 {
			t.Errorf("incomplete table entry: %+v", tbl)
		}
	}
}

// stubImporter lets handler tests script import outcomes without a database.
type stubImporter struct {
	eventsResult importer.Result
	bundleResult importer.BundleResult
}

func (st *stubImporter) ImportEvents(_ context.Context, _ uuid.UUID, _ string, _ importer.EventsOptions) importer.Result {
	return st.eventsResult
}

func (st *stubImporter) ImportBundle(_ context.Context, _ uuid.UUID, _ []byte, _ importer.BundleOptions) importer.BundleResult {
	return st.bundleResult
}

func TestImportEvents_StatusFollowsResult(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
		want int
	}{
		{"successful run is 200", true, http.StatusOK},
		{"failed run is 400", false, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t)
			s.importer = &stubImporter{eventsResult: importer.Result{OK: tc.ok, Mode: importer.ModeDryRun}}

			req := httptest.NewRequest(http.MethodPost, "/api/import/events",
				bytes.NewBufferString("substance,dose,date\nBPC-157,1 mg,2026-01-02\n"))
			req.Header.Set("X-API-Key", testAPIKey)
			req.Header.Set("Content-Type", "text/csv")
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
			var body importer.Result
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.OK != tc.ok {
				t.Errorf("ok = %v, want %v", body.OK, tc.ok)
			}
		})
	}
}

func TestImportBundle_StatusFollowsResult(t *testing.T) {
	s := newTestServer(t)
	s.importer = &stubImporter{bundleResult: importer.BundleResult{OK: false, Mode: importer.ModeDryRun}}

	req := httptest.NewRequest(http.MethodPost, "/api/import/bundle",
		bytes.NewBufferString("not a zip"))
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Content-Type", "application/zip")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}

func TestImportEvents_TooLarge(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "events.csv")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(bytes.Repeat([]byte("a"), 1024)) // over the 256 byte test limit
	mw.Close()
	size := buf.Len()

	req := httptest.NewRequest(http.MethodPost, "/api/import/events", &buf)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusRequestEntityTooLarge, rec.Body.String())
	}

	// The rejection carries the same shape as a processed import result, with
	// the uploaded size in the error text.
	var body importer.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.OK {
		t.Error("ok = true, want false")
	}
	if len(body.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly one", body.Errors)
	}
	if !strings.Contains(body.Errors[0], strconv.Itoa(size)) {
		t.Errorf("error %q does not mention the uploaded size %d", body.Errors[0], size)
	}
	if body.RowErrors == nil {
		t.Error("row_errors is null, want []")
	}
}

func TestImportEvents_BadMode(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/import/events?mode=sideways",
		bytes.NewBufferString("substance,dose,date\n"))
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Code != "BAD_MODE" {
		t.Errorf("code = %q, want BAD_MODE", body.Code)
	}
}

func TestImportEvents_MissingFile(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("mode", "dry-run")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/import/events", &buf)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCrossSitePostRejected(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/import/events", bytes.NewBufferString("x"))
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}
