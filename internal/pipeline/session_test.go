package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/japanese"

	"github.com/gyeh/welfarebill/internal/archive"
	"github.com/gyeh/welfarebill/internal/config"
	"github.com/gyeh/welfarebill/internal/dedup"
	"github.com/gyeh/welfarebill/internal/model"
	"github.com/gyeh/welfarebill/internal/snapshot"
	"github.com/gyeh/welfarebill/internal/store"
)

type visit struct {
	name        string
	insurer     string
	date        string
	recipient   string
	institution string
}

// extract builds a Shift_JIS extract: one analysis header line, then one
// R7 row per visit. Data rows start on line 2.
func extract(t *testing.T, visits ...visit) []byte {
	t.Helper()
	lines := []string{"項目解析結果,患者名,保険者番号"}
	for _, v := range visits {
		fields := make([]string, model.RecordWidth)
		fields[0] = "R7"
		fields[model.ColPatientName-1] = v.name
		fields[model.ColInsuranceType-1] = model.InsuranceSubsidyOnly
		fields[model.ColPublicCode1-1] = "12"
		fields[model.ColInsurerNumber-1] = v.insurer
		fields[model.ColInstitutionName-1] = "サンプル病院"
		fields[model.ColTreatmentDate-1] = v.date
		fields[model.ColRecipientNumber-1] = v.recipient
		fields[model.ColInstitutionCode-1] = "'01" + v.institution + "'"
		lines = append(lines, strings.Join(fields, ","))
	}
	text := strings.Join(lines, "\r\n") + "\r\n"
	buf, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(text))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf
}

var (
	yamada = visit{"山田太郎", "12016010", "20250210", "0123456", "12345678"}
	sato   = visit{"佐藤花子", "12016010", "20250214", "7654321", "31234567"}
	other  = visit{"鈴木一郎", "01130012", "20250211", "1111111", "12345678"}
)

func newConfig(batch int) *config.Config {
	cfg := &config.Config{
		PharmacyName: "さくら薬局",
		MedicalCode:  "0141234567",
		Batch:        batch,
	}
	cfg.ApplyDefaults()
	return cfg
}

func newSession(t *testing.T, cfg *config.Config, kv store.KV) *Session {
	t.Helper()
	s, err := NewSession(cfg, kv, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestSession_SingleRowEndToEnd(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory(0)
	s := newSession(t, newConfig(1), kv)

	st, err := s.Process(ctx, extract(t, yamada), "extract.csv")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if st.Total != 1 || st.Municipality != 1 || st.Included != 1 || st.Duplicates != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if s.Month() != "2025/02" {
		t.Errorf("Month = %q", s.Month())
	}
	p := s.Views().All[0]
	if p.Row != 2 || !p.Included || p.Duplicate || p.InstitutionCode != "12345678" {
		t.Errorf("unexpected patient %+v", p)
	}

	var out bytes.Buffer
	res, err := s.Render(ctx, &out, "extract.csv")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out.Len() == 0 {
		t.Fatal("no workbook written")
	}
	if len(res.Groups) != 1 || res.Summary.RowsRendered != 1 {
		t.Fatalf("expected one rendered row, got %d groups / %d rows", len(res.Groups), res.Summary.RowsRendered)
	}
	want := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	if !res.Groups[0].Canonical.Equal(want) {
		t.Errorf("canonical date = %v, want %v", res.Groups[0].Canonical, want)
	}
	if res.FileName != "調剤券_旭川市_202502_さくら薬局_1回目.xlsx" {
		t.Errorf("FileName = %q", res.FileName)
	}
	if res.Summary.Encoding != "Shift_JIS" || res.Summary.CSVFileName != "extract.csv" {
		t.Errorf("unexpected summary %+v", res.Summary)
	}

	keys, err := dedup.New(kv, dedup.Options{}, zerolog.Nop()).Load(ctx, "2025/02")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(keys) != 1 || res.Keys.Added != 1 {
		t.Errorf("expected one saved key, got %v (added %d)", keys, res.Keys.Added)
	}

	entries, err := archive.New(kv, 0, zerolog.Nop()).List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].FileName != res.FileName || entries[0].PatientCount != 1 || entries[0].BatchNumber != 1 {
		t.Errorf("unexpected archive %+v", entries)
	}
}

func TestSession_Batch2FlagsBilledRows(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory(0)

	first := newSession(t, newConfig(1), kv)
	if _, err := first.Process(ctx, extract(t, yamada), "first.csv"); err != nil {
		t.Fatalf("Process batch 1: %v", err)
	}
	if _, err := first.Render(ctx, &bytes.Buffer{}, "first.csv"); err != nil {
		t.Fatalf("Render batch 1: %v", err)
	}

	second := newSession(t, newConfig(2), kv)
	st, err := second.Process(ctx, extract(t, yamada, sato), "second.csv")
	if err != nil {
		t.Fatalf("Process batch 2: %v", err)
	}
	if st.Duplicates != 1 || st.Included != 1 || st.Target != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}

	dup := second.Views().Duplicates[0]
	if dup.Name != "山田太郎" || !dup.Duplicate || dup.Included {
		t.Errorf("expected yamada flagged duplicate, got %+v", dup)
	}
	if len(second.Views().All) != 2 {
		t.Errorf("duplicate must stay in the candidate list")
	}

	res, err := second.Render(ctx, &bytes.Buffer{}, "second.csv")
	if err != nil {
		t.Fatalf("Render batch 2: %v", err)
	}
	if res.Summary.RowsRendered != 1 || res.Groups[0].Representative().Name != "佐藤花子" {
		t.Errorf("expected only sato rendered, got %d rows", res.Summary.RowsRendered)
	}
	if res.Keys.Added != 0 {
		t.Errorf("batch 2 must not save keys")
	}
	if res.FileName != "調剤券_旭川市_202502_さくら薬局_2回目.xlsx" {
		t.Errorf("FileName = %q", res.FileName)
	}
}

func TestSession_Batch1NeverFlagsDuplicates(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory(0)
	for i := 0; i < 2; i++ {
		s := newSession(t, newConfig(1), kv)
		st, err := s.Process(ctx, extract(t, yamada), "extract.csv")
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if st.Duplicates != 0 || st.Included != 1 {
			t.Fatalf("run %d: unexpected stats %+v", i, st)
		}
		if _, err := s.Render(ctx, &bytes.Buffer{}, "extract.csv"); err != nil {
			t.Fatalf("Render: %v", err)
		}
	}
}

func TestSession_MunicipalityFilter(t *testing.T) {
	s := newSession(t, newConfig(1), store.NewMemory(0))
	st, err := s.Process(context.Background(), extract(t, yamada, other), "extract.csv")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if st.Total != 2 || st.Municipality != 1 || st.Included != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	if len(s.Rows()) != 1 {
		t.Errorf("expected one grouping input, got %d", len(s.Rows()))
	}
}

func TestSession_RenderRefusesInvalidSettings(t *testing.T) {
	ctx := context.Background()
	cfg := newConfig(1)
	cfg.PharmacyName = ""
	cfg.MedicalCode = "12345"
	kv := store.NewMemory(0)
	s := newSession(t, cfg, kv)
	if _, err := s.Process(ctx, extract(t, yamada), "extract.csv"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	var out bytes.Buffer
	_, err := s.Render(ctx, &out, "extract.csv")
	var pe *PipelineError
	if !errors.As(err, &pe) || pe.Phase != "settings" {
		t.Fatalf("expected settings PipelineError, got %v", err)
	}
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected ErrInvalid in chain: %v", err)
	}
	if out.Len() != 0 {
		t.Error("nothing may be written when settings are invalid")
	}
	if keys, _ := dedup.New(kv, dedup.Options{}, zerolog.Nop()).Load(ctx, "2025/02"); len(keys) != 0 {
		t.Errorf("keys saved despite refused render: %v", keys)
	}
}

func TestNewSession_RejectsUnknownOptions(t *testing.T) {
	cfg := newConfig(1)
	cfg.EncodingMode = "latin1"
	if _, err := NewSession(cfg, store.NewMemory(0), zerolog.Nop()); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestSession_PreviousMonth(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory(0)
	s := newSession(t, newConfig(1), kv)
	if _, err := s.Process(ctx, extract(t, yamada), "current.csv"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	late := visit{"高橋次郎", "12012019", "20250120", "2222222", "41234567"}
	st, err := s.ProcessPreviousMonth(ctx, extract(t, late), "late.csv")
	if err != nil {
		t.Fatalf("ProcessPreviousMonth: %v", err)
	}
	if st.Municipality != 1 || st.Included != 0 {
		t.Fatalf("previous-month rows must start excluded: %+v", st)
	}
	if len(s.Rows()) != 1 {
		t.Fatalf("expected only the current row before opting in")
	}

	if err := s.SetPreviousIncluded(99, true); err == nil {
		t.Error("expected error for unknown row")
	}
	if err := s.SetPreviousIncluded(2, true); err != nil {
		t.Fatalf("SetPreviousIncluded: %v", err)
	}
	if len(s.Rows()) != 2 {
		t.Fatalf("expected previous row after opting in")
	}

	res, err := s.Render(ctx, &bytes.Buffer{}, "current.csv")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(res.Groups) != 2 || res.Groups[0].YearMonth != "2025/02" || !res.Groups[1].PreviousMonth() {
		t.Fatalf("expected current month then previous month, got %+v", res.Groups)
	}
	if res.Summary.PreviousMonth != 1 {
		t.Errorf("PreviousMonth = %d", res.Summary.PreviousMonth)
	}
	if res.Keys.Added != 1 {
		t.Errorf("previous-month rows must not be recorded, added %d", res.Keys.Added)
	}
	if s.Month() != "2025/02" {
		t.Errorf("previous-month extract changed the billing month to %q", s.Month())
	}
}

func TestSession_IncludeOverrides(t *testing.T) {
	s := newSession(t, newConfig(1), store.NewMemory(0))
	ctx := context.Background()
	if _, err := s.Process(ctx, extract(t, yamada, sato), "extract.csv"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := s.SetIncluded(3, false); err != nil {
		t.Fatalf("SetIncluded: %v", err)
	}
	if err := s.SetIncluded(1, true); err == nil {
		t.Error("header line is not a target row")
	}
	rows := s.Rows()
	if len(rows) != 1 || rows[0].Name != "山田太郎" {
		t.Errorf("unexpected rows after override: %v", rows)
	}

	if _, err := s.ProcessPreviousMonth(ctx, extract(t, other, sato), "late.csv"); err != nil {
		t.Fatalf("ProcessPreviousMonth: %v", err)
	}
	if n := s.IncludeAllPrevious(); n != 1 {
		t.Errorf("IncludeAllPrevious = %d, want 1", n)
	}
	if len(s.Rows()) != 2 {
		t.Errorf("expected 2 rows, got %d", len(s.Rows()))
	}
}

func TestSession_Snapshot(t *testing.T) {
	ctx := context.Background()
	cfg := newConfig(1)
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "rows.parquet")
	s := newSession(t, cfg, store.NewMemory(0))
	if _, err := s.Process(ctx, extract(t, yamada, sato), "extract.csv"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := s.Render(ctx, &bytes.Buffer{}, "extract.csv"); err != nil {
		t.Fatalf("Render: %v", err)
	}

	rows, err := snapshot.ReadAll(cfg.SnapshotPath)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 2 || rows[0].RecipientNumber != "0123456" || rows[0].Batch != 1 {
		t.Fatalf("unexpected snapshot %+v", rows)
	}
	if rows[0].NameHash == "山田太郎" || rows[0].NameHash == "" {
		t.Errorf("name must be stored hashed, got %q", rows[0].NameHash)
	}
}

func TestSession_ExplicitMonth(t *testing.T) {
	cfg := newConfig(1)
	cfg.TargetMonth = "2025/03"
	s := newSession(t, cfg, store.NewMemory(0))
	if _, err := s.Process(context.Background(), extract(t, yamada), "extract.csv"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if s.Month() != "2025/03" {
		t.Errorf("Month = %q, want 2025/03", s.Month())
	}
}

func TestDominantMonth(t *testing.T) {
	ps := func(dates ...string) []*model.Patient {
		out := make([]*model.Patient, len(dates))
		for i, d := range dates {
			out[i] = &model.Patient{TreatmentDate: d}
		}
		return out
	}
	tests := []struct {
		dates []string
		want  string
	}{
		{[]string{"20250210", "20250211", "20250115"}, "2025/02"},
		{[]string{"20250115", "20250210"}, "2025/02"},
		{[]string{"", "bad"}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := dominantMonth(ps(tt.dates...)); got != tt.want {
			t.Errorf("dominantMonth(%v) = %q, want %q", tt.dates, got, tt.want)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

// assertNothingRecorded checks that neither keys nor an archive entry exist.
func assertNothingRecorded(t *testing.T, kv store.KV) {
	t.Helper()
	ctx := context.Background()
	if keys, _ := dedup.New(kv, dedup.Options{}, zerolog.Nop()).Load(ctx, "2025/02"); len(keys) != 0 {
		t.Errorf("keys recorded without a workbook: %v", keys)
	}
	if entries, _ := archive.New(kv, 0, zerolog.Nop()).List(ctx); len(entries) != 0 {
		t.Errorf("archive entry recorded without a workbook: %+v", entries)
	}
}

func TestSession_FailedWriteRecordsNothing(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory(0)
	s := newSession(t, newConfig(1), kv)
	if _, err := s.Process(ctx, extract(t, yamada), "extract.csv"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	_, err := s.Render(ctx, failingWriter{}, "extract.csv")
	var pe *PipelineError
	if !errors.As(err, &pe) || pe.Phase != "write" {
		t.Fatalf("expected write PipelineError, got %v", err)
	}
	assertNothingRecorded(t, kv)
}

func TestSession_RenderToDirBlockedRecordsNothing(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory(0)
	s := newSession(t, newConfig(1), kv)
	if _, err := s.Process(ctx, extract(t, yamada), "extract.csv"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RenderToDir(ctx, filepath.Join(blocker, "out"), "extract.csv"); err == nil {
		t.Fatal("expected error when the output directory cannot be created")
	}
	assertNothingRecorded(t, kv)
}

func TestSession_RenderToDir(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory(0)
	s := newSession(t, newConfig(1), kv)
	if _, err := s.Process(ctx, extract(t, yamada), "extract.csv"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "out")
	res, err := s.RenderToDir(ctx, dir, "extract.csv")
	if err != nil {
		t.Fatalf("RenderToDir: %v", err)
	}
	if res.Path != filepath.Join(dir, res.FileName) {
		t.Errorf("Path = %q", res.Path)
	}
	if info, err := os.Stat(res.Path); err != nil || info.Size() == 0 {
		t.Fatalf("workbook missing: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the workbook in %s, got %d entries", dir, len(entries))
	}
	if res.Keys.Added != 1 {
		t.Errorf("expected the key recorded after the write, added %d", res.Keys.Added)
	}
}
