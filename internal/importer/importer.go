// Package importer plans and applies bulk data imports: the simple events
// CSV format and full export bundles.
//
// A run moves through parse, validate, and plan; apply only executes when
// the caller asked for it and planning succeeded. Apply runs inside one
// transaction with a savepoint per event row, so a bad row is reported and
// skipped while the rest of the run commits together.
package importer

import (
	"fmt"
	"log/slog"

	"github.com/peptaide/peptaide/internal/store"
)

// Mode selects between previewing and persisting an import.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeApply  Mode = "apply"
)

// ParseMode normalizes a query-string mode value, defaulting to dry-run.
func ParseMode(raw string) (Mode, error) {
	switch raw {
	case "", string(ModeDryRun):
		return ModeDryRun, nil
	case string(ModeApply):
		return ModeApply, nil
	}
	return "", fmt.Errorf("invalid mode %q (want %q or %q)", raw, ModeDryRun, ModeApply)
}

// RowError is a recoverable problem with one input row. RowIndex is the
// 1-based line number in the source CSV, counting the header as line 1.
type RowError struct {
	RowIndex int    `json:"row_index"`
	Message  string `json:"message"`
}

// Summary counts what an import run did, or would do in dry-run mode.
type Summary struct {
	InputRows           int `json:"input_rows"`
	ImportedEvents      int `json:"imported_events"`
	CreatedSubstances   int `json:"created_substances"`
	CreatedRoutes       int `json:"created_routes"`
	CreatedFormulations int `json:"created_formulations"`
	CreatedCycles       int `json:"created_cycles"`
}

// Result is the outcome of an events import. It is always complete: callers
// can render partial success from row_errors and the summary.
type Result struct {
	OK        bool       `json:"ok"`
	Mode      Mode       `json:"mode"`
	Errors    []string   `json:"errors"`
	Warnings  []string   `json:"warnings"`
	RowErrors []RowError `json:"row_errors"`
	Summary   Summary    `json:"summary"`
}

func failedResult(mode Mode, inputRows int, warnings []string, errs ...string) Result {
	return Result{
		OK:        false,
		Mode:      mode,
		Errors:    errs,
		Warnings:  nonNil(warnings),
		RowErrors: []RowError{},
		Summary:   Summary{InputRows: inputRows},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ConflictError marks a uniqueness violation raised while resolving or
// creating a reference entity.
type ConflictError struct {
	Kind string
	Key  string
	Err  error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists: %v", e.Kind, e.Key, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Importer runs import pipelines against the store.
type Importer struct {
	store  *store.Store
	logger *slog.Logger
}

func New(st *store.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: st, logger: logger}
}
