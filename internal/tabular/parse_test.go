package tabular

import (
	"strings"
	"testing"

	"github.com/gyeh/welfarebill/internal/model"
)

// row builds a 70-field line with the given 1-based overrides.
func row(first string, set map[int]string) string {
	fields := make([]string, model.RecordWidth)
	fields[0] = first
	for n, v := range set {
		fields[n-1] = v
	}
	return strings.Join(fields, ",")
}

func TestIsDataRow(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"R7", true},
		{"H31", true},
		{"S64", true},
		{" R7 ", true},
		{"12345", true},
		{"R", false},
		{"X7", false},
		{"項目解析結果", false},
		{"", false},
		{"  ", false},
		{"12a", false},
		{"患者名", false},
	}
	for _, tt := range tests {
		if got := IsDataRow(tt.in); got != tt.want {
			t.Errorf("IsDataRow(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParse_FiltersAndNumbersRows(t *testing.T) {
	text := strings.Join([]string{
		"項目解析結果,a,b",
		"区分,氏名",
		row("R7", map[int]string{model.ColPatientName: "山田"}),
		"",
		row("123", map[int]string{model.ColPatientName: "佐藤"}),
		row("", nil),
	}, "\r\n") + "\r\n"

	recs, stats := Parse(text)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Row != 3 || recs[1].Row != 5 {
		t.Errorf("rows = %d, %d; want 3, 5", recs[0].Row, recs[1].Row)
	}
	if recs[0].PatientName() != "山田" || recs[1].PatientName() != "佐藤" {
		t.Errorf("names = %q, %q", recs[0].PatientName(), recs[1].PatientName())
	}
	if stats.Lines != 6 || stats.BlankLines != 1 || stats.HeaderRows != 3 || stats.Records != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.FieldCountWarnings != 0 || stats.ShortRows != 0 {
		t.Errorf("unexpected warnings %+v", stats)
	}
}

func TestParse_SingleQuoteQuoting(t *testing.T) {
	line := row("R7", map[int]string{
		model.ColPatientName:   "'山田,太郎'",
		model.ColNameKana:      "'O''Brien'",
		model.ColInsurerNumber: "'12016010'",
	})
	recs, _ := Parse(line)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.PatientName() != "山田,太郎" {
		t.Errorf("quoted delimiter not preserved: %q", rec.PatientName())
	}
	// Quotes are stripped from every cleaned field.
	if rec.NameKana() != "OBrien" {
		t.Errorf("NameKana = %q", rec.NameKana())
	}
	if rec.InsurerNumber() != "12016010" {
		t.Errorf("InsurerNumber = %q", rec.InsurerNumber())
	}
	if !rec.Valid {
		t.Error("expected valid record")
	}
}

func TestParse_ShortAndLongRows(t *testing.T) {
	short := "R7," + strings.Repeat("x,", 59) + "x" // 61 fields
	long := row("R7", nil) + ",extra,extra"
	ok := "R7," + strings.Repeat(",", 65) // 67 fields

	recs, stats := Parse(short + "\n" + long + "\n" + ok)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Valid {
		t.Error("61-field row should be invalid")
	}
	if !recs[1].Valid || !recs[2].Valid {
		t.Error("long and 67-field rows should be valid")
	}
	if recs[0].Field(model.RecordWidth) != "" {
		t.Error("short row not padded")
	}
	if stats.ShortRows != 1 || stats.FieldCountWarnings != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestParse_UnterminatedQuoteStopsAtLineEnd(t *testing.T) {
	text := "R7,'open\nR8,b\n"
	recs, stats := Parse(text)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Field(2) != "open" || recs[1].Marker() != "R8" {
		t.Errorf("unexpected fields %q / %q", recs[0].Field(2), recs[1].Marker())
	}
	if stats.UnterminatedQuotes != 1 {
		t.Errorf("UnterminatedQuotes = %d", stats.UnterminatedQuotes)
	}
}

func TestSplitFields(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{"'a,b',c", []string{"a,b", "c"}},
		{"'it''s',x", []string{"it's", "x"}},
		{"a'b,c", []string{"a'b", "c"}},
		{",,", []string{"", "", ""}},
	}
	for _, tt := range tests {
		got, closed := splitFields(tt.in)
		if !closed {
			t.Errorf("splitFields(%q) reported unterminated quote", tt.in)
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("splitFields(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
