// Package csvio encodes and decodes the delimited text used by data exports
// and imports.
//
// The format is RFC 4180-style: comma delimiter, quoted fields with ""
// escaping, newlines allowed inside quoted fields, LF or CRLF line endings.
// Encoding always terminates the document with a trailing LF.
package csvio

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cell is a tagged union of the value types a CSV cell can carry. Non-scalar
// values are serialized as embedded JSON text inside the cell.
type Cell struct {
	kind cellKind
	s    string
	n    float64
	b    bool
	j    any
}

type cellKind int

const (
	cellNull cellKind = iota
	cellString
	cellNumber
	cellBool
	cellJSON
)

// Null returns the null cell, which encodes to an empty string.
func Null() Cell { return Cell{kind: cellNull} }

// String returns a string-valued cell.
func String(s string) Cell { return Cell{kind: cellString, s: s} }

// Number returns a numeric cell. Non-finite values encode as empty.
func Number(n float64) Cell { return Cell{kind: cellNumber, n: n} }

// Bool returns a boolean cell, encoded as "true"/"false".
func Bool(b bool) Cell { return Cell{kind: cellBool, b: b} }

// JSON returns a cell holding a structured value, encoded as embedded JSON.
func JSON(v any) Cell { return Cell{kind: cellJSON, j: v} }

// IsNull reports whether the cell holds no value.
func (c Cell) IsNull() bool { return c.kind == cellNull }

// Text returns the canonical string form of the cell.
func (c Cell) Text() string {
	switch c.kind {
	case cellString:
		return c.s
	case cellNumber:
		return formatNumber(c.n)
	case cellBool:
		if c.b {
			return "true"
		}
		return "false"
	case cellJSON:
		out, err := json.Marshal(c.j)
		if err != nil {
			return ""
		}
		return string(out)
	default:
		return ""
	}
}

func formatNumber(n float64) string {
	// NaN/Inf cannot round-trip through CSV; encode as empty like null.
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return ""
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// Row maps column names to cell values. Columns missing from the map encode
// as empty cells.
type Row map[string]Cell

// Encode serializes rows using the caller-specified column order. The header
// line is always present and every line ends with LF.
func Encode(rows []Row, columns []string) string {
	var b strings.Builder

	for i, col := range columns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeCell(col))
	}
	b.WriteByte('\n')

	for _, row := range rows {
		for i, col := range columns {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(escapeCell(row[col].Text()))
		}
		b.WriteByte('\n')
	}

	return b.String()
}

// escapeCell quotes a cell iff it contains a quote, comma, CR, or LF.
// Embedded quotes are doubled.
func escapeCell(raw string) string {
	if !strings.ContainsAny(raw, `",`+"\r\n") {
		return raw
	}
	return `"` + strings.ReplaceAll(raw, `"`, `""`) + `"`
}

// ParseError reports malformed CSV input. Line is 1-based.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("csv parse error on line %d: %s", e.Line, e.Msg)
}

// Doc is a decoded CSV document: a header row plus data rows of raw strings.
type Doc struct {
	Header []string
	Rows   [][]string
}

// Decode parses CSV text. It tolerates a UTF-8 BOM on the header, CRLF line
// endings, and fully blank data lines (dropped). Unterminated quoting fails
// with a ParseError identifying the line where the quoted field began.
func Decode(text string) (Doc, error) {
	var rows [][]string
	var row []string
	var cell strings.Builder

	inQuotes := false
	line := 1
	quoteLine := 0

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if inQuotes {
			if ch == '"' {
				if i+1 < len(text) && text[i+1] == '"' {
					cell.WriteByte('"')
					i++
					continue
				}
				inQuotes = false
				continue
			}
			if ch == '\n' {
				line++
			}
			cell.WriteByte(ch)
			continue
		}

		switch ch {
		case '"':
			inQuotes = true
			quoteLine = line
		case ',':
			row = append(row, cell.String())
			cell.Reset()
		case '\n':
			row = append(row, cell.String())
			cell.Reset()
			rows = append(rows, row)
			row = nil
			line++
		case '\r':
			// CRLF is handled when the LF arrives.
		default:
			cell.WriteByte(ch)
		}
	}

	if inQuotes {
		return Doc{}, &ParseError{Line: quoteLine, Msg: "unterminated quoted field"}
	}

	// Support files without a trailing newline.
	if cell.Len() > 0 || row != nil {
		row = append(row, cell.String())
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return Doc{}, nil
	}

	header := rows[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	// Drop truly blank lines, which parse as a single empty cell.
	var data [][]string
	for _, r := range rows[1:] {
		if len(r) == 1 && r[0] == "" {
			continue
		}
		data = append(data, r)
	}

	return Doc{Header: header, Rows: data}, nil
}
