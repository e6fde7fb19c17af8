// Package exporter assembles a user's complete data set into a portable
// archive that the bundle importer accepts back unchanged.
package exporter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/peptaide/peptaide/internal/bundle"
	"github.com/peptaide/peptaide/internal/csvio"
	"github.com/peptaide/peptaide/internal/store"
	"github.com/peptaide/peptaide/internal/tables"
)

const readme = `This archive contains a full export of your data.

Layout:
  meta.json            export format and timestamp
  tables/<table>.csv   one CSV per table, first row is the header

Cells holding arrays or objects are JSON-encoded into a single CSV cell.
Empty cells are NULL. Re-import the archive unmodified; every row is
bound to the importing account regardless of the ids inside.
`

// Exporter collects per-table CSVs and packs them.
type Exporter struct {
	store *store.Store
}

func New(st *store.Store) *Exporter {
	return &Exporter{store: st}
}

// CollectAll exports every table for the user as a zip archive.
func (e *Exporter) CollectAll(ctx context.Context, userID uuid.UUID, now time.Time) ([]byte, error) {
	names := tables.Names()
	tableCSV := make(map[string]string, len(names))

	for _, name := range names {
		def, _ := tables.Get(name)
		rows, err := e.store.ExportRows(ctx, def, userID)
		if err != nil {
			return nil, err
		}
		tableCSV[name] = csvio.Encode(rows, def.Columns)
	}

	manifest := bundle.Manifest{
		Format:     bundle.Format,
		ExportedAt: now.UTC().Format(time.RFC3339),
		Tables:     names,
	}
	return bundle.Pack(manifest, readme, tableCSV)
}

// Filename names a download for the given export time.
func Filename(now time.Time) string {
	return "peptaide-export-" + now.UTC().Format("2006-01-02") + ".zip"
}
