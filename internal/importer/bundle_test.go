package importer

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/peptaide/peptaide/internal/tables"
)

func vendorsDef(t *testing.T) tables.Definition {
	t.Helper()
	def, ok := tables.Get("vendors")
	if !ok {
		t.Fatal("vendors table not registered")
	}
	return def
}

func vendorsHeader(t *testing.T) string {
	return strings.Join(vendorsDef(t).Columns, ",")
}

func TestParseBundleTable_RebindsUserID(t *testing.T) {
	def := vendorsDef(t)
	userID := uuid.New()
	rowID := uuid.New().String()

	csv := vendorsHeader(t) + "\n"
	cells := make([]string, len(def.Columns))
	for i, col := range def.Columns {
		switch col {
		case "id":
			cells[i] = rowID
		case "user_id":
			cells[i] = uuid.New().String() // foreign id from the archive
		case "name":
			cells[i] = "Acme Labs"
		}
	}
	csv += strings.Join(cells, ",") + "\n"

	report, rows := parseBundleTable(def, csv, userID)
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", report.Errors)
	}
	if report.RowCount != 1 || len(rows) != 1 {
		t.Fatalf("RowCount = %d, rows = %d, want 1", report.RowCount, len(rows))
	}
	if got := rows[0]["user_id"]; got != userID.String() {
		t.Errorf("user_id = %v, want %v", got, userID)
	}
	if got := rows[0]["id"]; got != rowID {
		t.Errorf("id = %v, want %v", got, rowID)
	}
	if rows[0]["name"] != "Acme Labs" {
		t.Errorf("name = %v", rows[0]["name"])
	}
}

func TestParseBundleTable_HeaderMismatch(t *testing.T) {
	def := vendorsDef(t)
	report, rows := parseBundleTable(def, "wrong,header\na,b\n", uuid.New())
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "Unexpected header") {
		t.Fatalf("errors = %v, want header mismatch", report.Errors)
	}
	if rows != nil {
		t.Error("mismatched header should produce no rows")
	}
}

func TestParseBundleTable_RowProblems(t *testing.T) {
	def := vendorsDef(t)
	dup := uuid.New().String()

	makeRow := func(id string) string {
		cells := make([]string, len(def.Columns))
		for i, col := range def.Columns {
			if col == "id" {
				cells[i] = id
			}
		}
		return strings.Join(cells, ",")
	}

	csv := vendorsHeader(t) + "\n" +
		makeRow(dup) + "\n" +
		makeRow(dup) + "\n" + // duplicate pk
		makeRow("") + "\n" + // missing pk
		"short,row\n" // wrong width

	report, _ := parseBundleTable(def, csv, uuid.New())
	if len(report.Errors) != 3 {
		t.Fatalf("errors = %v, want 3", report.Errors)
	}
	if !strings.Contains(report.Errors[0], "duplicate id") {
		t.Errorf("errors[0] = %q", report.Errors[0])
	}
	if !strings.Contains(report.Errors[1], "missing id") {
		t.Errorf("errors[1] = %q", report.Errors[1])
	}
	if !strings.Contains(report.Errors[2], "expected") {
		t.Errorf("errors[2] = %q", report.Errors[2])
	}
}

func TestParseBundleCell(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    tables.Kind
		want    any
		wantErr bool
	}{
		{"empty is nil", "", tables.KindNumber, nil, false},
		{"string", "hello", tables.KindString, "hello", false},
		{"number", "2.5", tables.KindNumber, 2.5, false},
		{"bad number", "two", tables.KindNumber, nil, true},
		{"bool true", "true", tables.KindBool, true, false},
		{"bool false", "false", tables.KindBool, false, false},
		{"bad bool", "TRUE", tables.KindBool, nil, true},
		{"json stays text", `["a","b"]`, tables.KindJSON, `["a","b"]`, false},
		{"bad json", `{oops`, tables.KindJSON, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBundleCell(tt.raw, tt.kind)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("value = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}
