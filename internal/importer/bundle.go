package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/peptaide/peptaide/internal/bundle"
	"github.com/peptaide/peptaide/internal/csvio"
	"github.com/peptaide/peptaide/internal/store"
	"github.com/peptaide/peptaide/internal/tables"
)

// TableReport is the per-table outcome of a bundle import.
type TableReport struct {
	Table         string   `json:"table"`
	RowCount      int      `json:"row_count"`
	InsertedCount *int     `json:"inserted_count,omitempty"`
	Warnings      []string `json:"warnings"`
	Errors        []string `json:"errors"`
}

// BundleResult is the outcome of a bundle import.
type BundleResult struct {
	OK         bool          `json:"ok"`
	Mode       Mode          `json:"mode"`
	Format     string        `json:"format,omitempty"`
	ExportedAt string        `json:"exported_at,omitempty"`
	Errors     []string      `json:"errors"`
	Tables     []TableReport `json:"tables"`
}

// BundleOptions control a bundle import.
type BundleOptions struct {
	Mode            Mode
	ReplaceExisting bool
	MaxBytes        int
}

func failedBundleResult(mode Mode, errs ...string) BundleResult {
	return BundleResult{OK: false, Mode: mode, Errors: errs, Tables: []TableReport{}}
}

// ImportBundle restores a full export archive for one user. Every row is
// rebound to the caller's identity; the archived user ids never survive.
func (im *Importer) ImportBundle(ctx context.Context, userID uuid.UUID, data []byte, opts BundleOptions) BundleResult {
	started := time.Now()
	result := im.runBundle(ctx, userID, data, opts)

	im.recordBundleRun(ctx, userID, result, started)
	return result
}

func (im *Importer) runBundle(ctx context.Context, userID uuid.UUID, data []byte, opts BundleOptions) BundleResult {
	b, err := bundle.Unpack(data, opts.MaxBytes)
	if err != nil {
		return failedBundleResult(opts.Mode, err.Error())
	}

	// Parse every table first so a dry-run reports everything at once.
	reports := make([]TableReport, 0, tables.Count())
	rowsByTable := map[string][]map[string]any{}
	ok := true
	for _, name := range tables.Names() {
		def, _ := tables.Get(name)
		report, rows := parseBundleTable(def, b.Tables[name], userID)
		if len(report.Errors) > 0 {
			ok = false
		}
		reports = append(reports, report)
		rowsByTable[name] = rows
	}

	result := BundleResult{
		OK:         ok,
		Mode:       opts.Mode,
		Format:     b.Manifest.Format,
		ExportedAt: b.Manifest.ExportedAt,
		Errors:     []string{},
		Tables:     reports,
	}
	if opts.Mode == ModeDryRun || !ok {
		return result
	}

	if err := im.applyBundle(ctx, userID, opts, rowsByTable, result.Tables); err != nil {
		result.OK = false
		result.Errors = []string{err.Error()}
		return result
	}
	return result
}

// applyBundle persists parsed bundle rows inside one transaction, parents
// before children. InsertedCount is filled on the passed reports.
func (im *Importer) applyBundle(ctx context.Context, userID uuid.UUID, opts BundleOptions, rowsByTable map[string][]map[string]any, reports []TableReport) error {
	tx, err := im.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	st := im.store.WithTx(tx)

	if opts.ReplaceExisting {
		if err := st.DeleteAllUserData(ctx, userID, false); err != nil {
			return fmt.Errorf("replace existing data: %w", err)
		}
	} else {
		for _, name := range tables.Names() {
			if name == "profiles" {
				continue
			}
			def, _ := tables.Get(name)
			nonEmpty, err := st.TableNonEmpty(ctx, def, userID)
			if err != nil {
				return err
			}
			if nonEmpty {
				return fmt.Errorf("Refusing to import: table %s is not empty. Export your data, then use replace mode (or delete your data) before importing.", name)
			}
		}
	}

	reportIdx := map[string]int{}
	for i, r := range reports {
		reportIdx[r.Table] = i
	}

	for _, name := range tables.ImportOrder {
		rows := rowsByTable[name]
		inserted := 0

		if name == "profiles" {
			// The profiles row may already exist for this user; replace it.
			if len(rows) > 0 {
				if err := st.UpsertProfileRow(ctx, rows[0]); err != nil {
					return err
				}
				inserted = 1
			}
		} else if len(rows) > 0 {
			def, _ := tables.Get(name)
			n, err := st.InsertRows(ctx, def, rows)
			if err != nil {
				return err
			}
			inserted = n
		}

		if i, ok := reportIdx[name]; ok {
			count := inserted
			reports[i].InsertedCount = &count
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// parseBundleTable decodes and validates one table's CSV, returning rows
// ready for insertion. user_id cells are rebound to the importing user.
func parseBundleTable(def tables.Definition, csvText string, userID uuid.UUID) (TableReport, []map[string]any) {
	report := TableReport{Table: def.Name, Warnings: []string{}, Errors: []string{}}

	doc, err := csvio.Decode(csvText)
	if err != nil {
		report.Errors = append(report.Errors, "CSV parse error: "+err.Error())
		return report, nil
	}

	if !equalHeader(doc.Header, def.Columns) {
		report.Errors = append(report.Errors,
			fmt.Sprintf("Unexpected header. Expected: %v; got: %v", def.Columns, doc.Header))
		report.RowCount = len(doc.Rows)
		return report, nil
	}

	pkCol := def.PrimaryKey()
	seenPks := map[string]bool{}
	rows := make([]map[string]any, 0, len(doc.Rows))

	for i, raw := range doc.Rows {
		rowNum := i + 2
		if len(raw) != len(doc.Header) {
			report.Errors = append(report.Errors,
				fmt.Sprintf("Row %d: expected %d columns, got %d", rowNum, len(doc.Header), len(raw)))
			continue
		}

		rec := make(map[string]any, len(doc.Header))
		for c, col := range doc.Header {
			val, err := parseBundleCell(raw[c], def.KindOf(col))
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("Row %d col %s: %v", rowNum, col, err))
				continue
			}
			rec[col] = val
		}

		rec["user_id"] = userID.String()

		pk, _ := rec[pkCol].(string)
		switch {
		case pk == "":
			report.Errors = append(report.Errors, fmt.Sprintf("Row %d: missing %s", rowNum, pkCol))
		case seenPks[pk]:
			report.Errors = append(report.Errors, fmt.Sprintf("Row %d: duplicate %s %s", rowNum, pkCol, pk))
		default:
			seenPks[pk] = true
		}

		rows = append(rows, rec)
	}

	report.RowCount = len(rows)
	return report, rows
}

// parseBundleCell coerces a raw cell by declared kind. JSON stays as text;
// the database casts it during insert.
func parseBundleCell(raw string, kind tables.Kind) (any, error) {
	if raw == "" {
		return nil, nil
	}
	switch kind {
	case tables.KindString:
		return raw, nil
	case tables.KindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", raw)
		}
		return n, nil
	case tables.KindBool:
		switch raw {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("expected boolean 'true'/'false', got %q", raw)
	default: // tables.KindJSON
		if !json.Valid([]byte(raw)) {
			return nil, fmt.Errorf("expected JSON, got %q", raw)
		}
		return raw, nil
	}
}

func equalHeader(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func (im *Importer) recordBundleRun(ctx context.Context, userID uuid.UUID, result BundleResult, started time.Time) {
	inputRows, importedEvents, errCount := 0, 0, len(result.Errors)
	for _, t := range result.Tables {
		inputRows += t.RowCount
		errCount += len(t.Errors)
		if t.Table == "administration_events" && t.InsertedCount != nil {
			importedEvents = *t.InsertedCount
		}
	}
	run := store.ImportRun{
		UserID:         userID,
		Source:         "bundle",
		Mode:           string(result.Mode),
		OK:             result.OK,
		InputRows:      inputRows,
		ImportedEvents: importedEvents,
		ErrorCount:     errCount,
		DurationMs:     time.Since(started).Milliseconds(),
	}
	if err := im.store.RecordImportRun(ctx, run); err != nil {
		im.logger.Warn("record import run failed", "error", err, "source", "bundle")
	}
}
