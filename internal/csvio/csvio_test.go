package csvio

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestCellText(t *testing.T) {
	tests := []struct {
		name string
		cell Cell
		want string
	}{
		{"null", Null(), ""},
		{"string", String("hello"), "hello"},
		{"number integer", Number(42), "42"},
		{"number fraction", Number(2.5), "2.5"},
		{"number nan", Number(math.NaN()), ""},
		{"number inf", Number(math.Inf(1)), ""},
		{"bool true", Bool(true), "true"},
		{"bool false", Bool(false), "false"},
		{"json array", JSON([]string{"a", "b"}), `["a","b"]`},
		{"json object", JSON(map[string]int{"n": 1}), `{"n":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cell.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeQuoting(t *testing.T) {
	rows := []Row{
		{"name": String(`say "hi"`), "notes": String("a,b"), "extra": String("line1\nline2")},
	}
	got := Encode(rows, []string{"name", "notes", "extra"})
	want := "name,notes,extra\n\"say \"\"hi\"\"\",\"a,b\",\"line1\nline2\"\n"
	if got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeMissingColumnsAreEmpty(t *testing.T) {
	got := Encode([]Row{{"a": String("x")}}, []string{"a", "b"})
	if want := "a,b\nx,\n"; got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	columns := []string{"id", "name", "amount", "active", "tags"}
	rows := []Row{
		{"id": String("1"), "name": String("plain"), "amount": Number(1.25), "active": Bool(true), "tags": JSON([]string{"x"})},
		{"id": String("2"), "name": String("needs,quoting \"here\""), "amount": Null(), "active": Bool(false), "tags": Null()},
		{"id": String("3"), "name": String("multi\nline"), "amount": Number(-7), "active": Null(), "tags": JSON([]any{})},
	}

	doc, err := Decode(Encode(rows, columns))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(doc.Header, columns) {
		t.Fatalf("header = %v, want %v", doc.Header, columns)
	}
	if len(doc.Rows) != len(rows) {
		t.Fatalf("got %d rows, want %d", len(doc.Rows), len(rows))
	}
	for i, row := range rows {
		for j, col := range columns {
			if got, want := doc.Rows[i][j], row[col].Text(); got != want {
				t.Errorf("row %d col %s = %q, want %q", i, col, got, want)
			}
		}
	}
}

func TestDecodeTolerances(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Doc
	}{
		{
			"crlf line endings",
			"a,b\r\n1,2\r\n",
			Doc{Header: []string{"a", "b"}, Rows: [][]string{{"1", "2"}}},
		},
		{
			"no trailing newline",
			"a,b\n1,2",
			Doc{Header: []string{"a", "b"}, Rows: [][]string{{"1", "2"}}},
		},
		{
			"utf8 bom on header",
			"\uFEFFa,b\n1,2\n",
			Doc{Header: []string{"a", "b"}, Rows: [][]string{{"1", "2"}}},
		},
		{
			"blank lines dropped",
			"a,b\n\n1,2\n\n",
			Doc{Header: []string{"a", "b"}, Rows: [][]string{{"1", "2"}}},
		},
		{
			"quoted delimiter and escaped quote",
			"a,b\n\"1,5\",\"say \"\"hi\"\"\"\n",
			Doc{Header: []string{"a", "b"}, Rows: [][]string{{"1,5", `say "hi"`}}},
		},
		{
			"newline inside quoted field",
			"a,b\n\"line1\nline2\",x\n",
			Doc{Header: []string{"a", "b"}, Rows: [][]string{{"line1\nline2", "x"}}},
		},
		{
			"empty input",
			"",
			Doc{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.in)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeUnterminatedQuote(t *testing.T) {
	_, err := Decode("a,b\n1,2\n\"open\nmore\n")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	if pe.Line != 3 {
		t.Errorf("Line = %d, want 3", pe.Line)
	}
}
