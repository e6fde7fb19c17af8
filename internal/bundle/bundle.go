// Package bundle packs and unpacks the zip archive format used for full data
// exports and bundle imports.
//
// An archive contains meta.json (the manifest), README.txt, and one CSV file
// per exportable table under tables/. The table set is closed: unpacking
// fails when a declared table is missing or an unrecognized file is present.
package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/peptaide/peptaide/internal/tables"
)

// Format identifies the archive layout and CSV conventions this package
// produces and accepts.
const Format = "peptaide-csv-bundle-v1"

const (
	metaName   = "meta.json"
	readmeName = "README.txt"
)

// Manifest is the meta.json payload.
type Manifest struct {
	Format     string   `json:"format"`
	ExportedAt string   `json:"exported_at"`
	Tables     []string `json:"tables"`
}

// Bundle is a decoded archive: the manifest plus raw CSV text per table.
type Bundle struct {
	Manifest Manifest
	Readme   string
	Tables   map[string]string
}

// Error reports a structural problem with an archive.
type Error struct {
	Msg     string
	Missing []string // declared tables with no tables/<name>.csv entry
	Unknown []string // archive entries that are not part of the format
}

func (e *Error) Error() string {
	parts := []string{e.Msg}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing tables: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown entries: "+strings.Join(e.Unknown, ", "))
	}
	return strings.Join(parts, "; ")
}

// Pack assembles an archive from a manifest, a README body, and CSV text per
// table. Entries are written in a fixed order so identical inputs produce
// identical archives.
func Pack(manifest Manifest, readme string, tableCSV map[string]string) ([]byte, error) {
	if manifest.Format == "" {
		manifest.Format = Format
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	metaJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeEntry(zw, metaName, append(metaJSON, '\n')); err != nil {
		return nil, err
	}
	if err := writeEntry(zw, readmeName, []byte(readme)); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tableCSV))
	for name := range tableCSV {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := writeEntry(zw, "tables/"+name+".csv", []byte(tableCSV[name])); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// maxEntryBytes caps the decompressed size of a single archive entry. The
// archive itself is size-checked before Unpack runs; this guards against
// entries that inflate far beyond the archive size.
const maxEntryBytes = 256 << 20

// Unpack decodes an archive. maxBytes bounds the compressed input; pass 0 to
// skip the check. The full exportable table set must be present and nothing
// outside the format may appear.
func Unpack(data []byte, maxBytes int) (*Bundle, error) {
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, &Error{Msg: fmt.Sprintf("archive is %d bytes, limit is %d", len(data), maxBytes)}
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &Error{Msg: "not a valid zip archive: " + err.Error()}
	}

	b := &Bundle{Tables: make(map[string]string, tables.Count())}
	var unknown []string
	sawMeta := false

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		switch {
		case f.Name == metaName:
			sawMeta = true
			raw, err := readEntry(f)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(raw, &b.Manifest); err != nil {
				return nil, &Error{Msg: "meta.json is not valid JSON: " + err.Error()}
			}
		case f.Name == readmeName:
			raw, err := readEntry(f)
			if err != nil {
				return nil, err
			}
			b.Readme = string(raw)
		case strings.HasPrefix(f.Name, "tables/") && strings.HasSuffix(f.Name, ".csv"):
			name := strings.TrimSuffix(strings.TrimPrefix(f.Name, "tables/"), ".csv")
			if _, ok := tables.Get(name); !ok {
				unknown = append(unknown, f.Name)
				continue
			}
			raw, err := readEntry(f)
			if err != nil {
				return nil, err
			}
			b.Tables[name] = string(raw)
		default:
			unknown = append(unknown, f.Name)
		}
	}

	if !sawMeta {
		return nil, &Error{Msg: "missing meta.json"}
	}
	if b.Manifest.Format != Format {
		return nil, &Error{Msg: fmt.Sprintf("unsupported export format %q", b.Manifest.Format)}
	}

	var missing []string
	for _, name := range tables.Names() {
		if _, ok := b.Tables[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 || len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &Error{Msg: "archive does not match the export layout", Missing: missing, Unknown: unknown}
	}

	return b, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, &Error{Msg: fmt.Sprintf("open %s: %v", f.Name, err)}
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, &Error{Msg: fmt.Sprintf("read %s: %v", f.Name, err)}
	}
	if len(raw) > maxEntryBytes {
		return nil, &Error{Msg: fmt.Sprintf("%s inflates past %d bytes", f.Name, maxEntryBytes)}
	}
	return raw, nil
}
