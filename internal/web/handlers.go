package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/peptaide/peptaide/internal/exporter"
	"github.com/peptaide/peptaide/internal/importer"
	"github.com/peptaide/peptaide/internal/tables"
)

// handleHealth reports service and database health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "database unreachable", "DB_DOWN")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListTables describes the exportable table set.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	type tableInfo struct {
		Name    string   `json:"name"`
		Columns []string `json:"columns"`
	}
	out := make([]tableInfo, 0, tables.Count())
	for _, name := range tables.Names() {
		def, _ := tables.Get(name)
		out = append(out, tableInfo{Name: def.Name, Columns: def.Columns})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": out})
}

// handleImportEvents imports the simple events CSV format.
func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	data, mode, done := s.readImportUpload(w, r, s.cfg.Import.MaxCSVBytes, oversizeEventsBody, "file", "events", "csv")
	if done {
		return
	}

	opts := importer.EventsOptions{
		Mode:            mode,
		ReplaceExisting: formBool(r, "replace", false),
		InferCycles:     formBool(r, "infer_cycles", true),
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	w.Header().Set("Cache-Control", "no-store")
	result := s.importer.ImportEvents(ctx, userID, string(data), opts)
	writeJSON(w, statusForResult(result.OK), result)
}

// handleImportBundle imports a full export archive.
func (s *Server) handleImportBundle(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	data, mode, done := s.readImportUpload(w, r, s.cfg.Import.MaxBundleBytes, oversizeBundleBody, "bundle", "file")
	if done {
		return
	}

	opts := importer.BundleOptions{
		Mode:            mode,
		ReplaceExisting: formBool(r, "replace", false),
		MaxBytes:        int(s.cfg.Import.MaxBundleBytes),
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	w.Header().Set("Cache-Control", "no-store")
	result := s.importer.ImportBundle(ctx, userID, data, opts)
	writeJSON(w, statusForResult(result.OK), result)
}

// handleExport streams the user's full data set as a zip archive.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	now := time.Now().UTC()
	data, err := s.exporter.CollectAll(r.Context(), userID, now)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "export failed: "+err.Error(), "EXPORT_FAILED")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exporter.Filename(now)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// handleListRuns returns recent import audit records, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer", "BAD_LIMIT")
			return
		}
		limit = n
	}

	runs, err := s.store.ListImportRuns(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "list import runs: "+err.Error(), "RUNS_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// readImportUpload reads the uploaded payload and the requested mode. It
// accepts a multipart form (first matching field wins) or a raw body. The
// bool result reports whether a response was already written. Oversized
// uploads answer 413 with the route's result shape built by oversize.
func (s *Server) readImportUpload(w http.ResponseWriter, r *http.Request, maxBytes int64, oversize func(importer.Mode, string) any, fields ...string) ([]byte, importer.Mode, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	var data []byte
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if bodyTooLarge(err) {
				writeOversize(w, r, maxBytes, oversize)
				return nil, "", true
			}
			writeError(w, r, http.StatusBadRequest, "invalid multipart form", "BAD_FORM")
			return nil, "", true
		}
		file, _, err := firstFormFile(r, fields)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error(), "NO_FILE")
			return nil, "", true
		}
		defer file.Close()
		data, err = io.ReadAll(file)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "failed to read upload", "BAD_UPLOAD")
			return nil, "", true
		}
	} else {
		var err error
		data, err = io.ReadAll(r.Body)
		if err != nil {
			if bodyTooLarge(err) {
				writeOversize(w, r, maxBytes, oversize)
				return nil, "", true
			}
			writeError(w, r, http.StatusBadRequest, "failed to read request body", "BAD_UPLOAD")
			return nil, "", true
		}
	}

	mode, err := importer.ParseMode(r.FormValue("mode"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), "BAD_MODE")
		return nil, "", true
	}
	return data, mode, false
}

// statusForResult maps a processed import outcome to its status: 200 when
// the run succeeded, 400 when validation or apply failed.
func statusForResult(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusBadRequest
}

// bodyTooLarge reports whether err is a body limit violation. Multipart
// parsing does not always wrap *http.MaxBytesError, so the known message is
// matched as well.
func bodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

// writeOversize rejects an oversized upload with the route's full result
// shape, echoing the size the client advertised when it sent one.
func writeOversize(w http.ResponseWriter, r *http.Request, maxBytes int64, oversize func(importer.Mode, string) any) {
	// Body parsing aborted, so only the query can carry the mode here.
	mode, err := importer.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		mode = importer.ModeDryRun
	}

	msg := fmt.Sprintf("File too large: limit is %d bytes.", maxBytes)
	if size := r.ContentLength; size > 0 {
		msg = fmt.Sprintf("File too large: %d bytes. Limit is %d bytes.", size, maxBytes)
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusRequestEntityTooLarge, oversize(mode, msg))
}

// oversizeEventsBody shapes a size-cap rejection like an events import
// result, so clients handle one schema.
func oversizeEventsBody(mode importer.Mode, msg string) any {
	return importer.Result{
		Mode:      mode,
		Errors:    []string{msg},
		Warnings:  []string{},
		RowErrors: []importer.RowError{},
	}
}

// oversizeBundleBody shapes a size-cap rejection like a bundle import result.
func oversizeBundleBody(mode importer.Mode, msg string) any {
	return importer.BundleResult{
		Mode:   mode,
		Errors: []string{msg},
		Tables: []importer.TableReport{},
	}
}

// firstFormFile returns the first of the given multipart fields that holds a
// file.
func firstFormFile(r *http.Request, fields []string) (io.ReadCloser, string, error) {
	for _, field := range fields {
		file, header, err := r.FormFile(field)
		if err == nil {
			return file, header.Filename, nil
		}
	}
	return nil, "", fmt.Errorf("no file provided (expected one of fields: %v)", fields)
}

// formBool reads a boolean form or query value with a default for absence.
func formBool(r *http.Request, name string, def bool) bool {
	raw := r.FormValue(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
