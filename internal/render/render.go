// Package render fills the dispensing-claim workbook from row groups.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/gyeh/welfarebill/internal/model"
	"github.com/gyeh/welfarebill/internal/normalize"
)

const (
	headerRow    = 10
	firstDataRow = 11
	lastColumn   = "M"
	tableName    = "DispensingClaims"
	tableStyle   = "TableStyleMedium6"
	mark         = "◯"

	fmtCode8 = "00000000"
	fmtCode7 = "0000000"
	fmtDate  = "yyyy/m/d"
)

// Headers are the table column names, A through M.
var Headers = []string{
	"番号", "調剤薬局名", "薬局コード", "診療医療機関名", "医療機関コード", "受給者番号",
	"氏名", "氏名カナ", "生年月日", "調剤年月日", "社保", "自立支援", "難病",
}

// Settings is the pharmacy data written next to the rows.
type Settings struct {
	PharmacyName string
	MedicalCode  string // 10-digit institution code of the pharmacy
	Municipality string
	YearMonth    string // billing month, "YYYY/MM"
}

// Renderer writes workbooks from a template file, or from the built-in
// clean template when TemplatePath is empty.
type Renderer struct {
	TemplatePath string
	Log          zerolog.Logger
}

// Render fills a fresh copy of the template and writes it to w. It returns
// the number of data rows written.
func (r *Renderer) Render(w io.Writer, groups []model.RowGroup, s Settings) (int, error) {
	f, err := r.open()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := Fill(f, groups, s, r.Log)
	if err != nil {
		return 0, err
	}
	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return n, nil
}

func (r *Renderer) open() (*excelize.File, error) {
	if r.TemplatePath == "" {
		return CleanTemplate()
	}
	f, err := excelize.OpenFile(r.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("open template %s: %w", r.TemplatePath, err)
	}
	return f, nil
}

// Fill writes settings, header and one row per group into the first sheet
// of f, then lays the table over the data.
func Fill(f *excelize.File, groups []model.RowGroup, s Settings, log zerolog.Logger) (int, error) {
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return 0, fmt.Errorf("template has no worksheet")
	}

	styles, err := newStyles(f)
	if err != nil {
		return 0, err
	}

	if err := setInfo(f, sheet, s); err != nil {
		return 0, err
	}
	for i, h := range Headers {
		if err := f.SetCellValue(sheet, cell(i+1, headerRow), h); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	pharmacyCode, ok := FormatMedicalCode(s.MedicalCode)
	if !ok {
		log.Warn().Str("code", pharmacyCode).Msg("pharmacy code does not start with an institution type digit (1, 3 or 4)")
	}

	for i := range groups {
		row := firstDataRow + i
		if err := writeRow(f, sheet, row, i+1, &groups[i], s, pharmacyCode, styles, log); err != nil {
			return i, fmt.Errorf("write row %d: %w", row, err)
		}
	}

	if len(groups) == 0 {
		return 0, nil
	}
	last := firstDataRow + len(groups) - 1
	stripes := true
	err = f.AddTable(sheet, &excelize.Table{
		Range:          fmt.Sprintf("A%d:%s%d", headerRow, lastColumn, last),
		Name:           tableName,
		StyleName:      tableStyle,
		ShowRowStripes: &stripes,
	})
	if err != nil {
		return len(groups), fmt.Errorf("add table: %w", err)
	}
	return len(groups), nil
}

type styleSet struct {
	code8, code7, date int
}

func newStyles(f *excelize.File) (styleSet, error) {
	var s styleSet
	for _, def := range []struct {
		dst *int
		fmt string
	}{
		{&s.code8, fmtCode8},
		{&s.code7, fmtCode7},
		{&s.date, fmtDate},
	} {
		numFmt := def.fmt
		id, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
		if err != nil {
			return s, fmt.Errorf("create %q style: %w", def.fmt, err)
		}
		*def.dst = id
	}
	return s, nil
}

func setInfo(f *excelize.File, sheet string, s Settings) error {
	month := s.YearMonth
	if t, err := time.Parse("2006/01", s.YearMonth); err == nil {
		month = fmt.Sprintf("%d年%d月分", t.Year(), int(t.Month()))
	}
	for ref, v := range map[string]string{"B3": month, "B4": s.PharmacyName, "B5": s.MedicalCode} {
		if err := f.SetCellValue(sheet, ref, v); err != nil {
			return fmt.Errorf("write %s: %w", ref, err)
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row, num int, g *model.RowGroup, s Settings, pharmacyCode string, st styleSet, log zerolog.Logger) error {
	p := g.Representative()
	if p == nil {
		return fmt.Errorf("empty group")
	}

	institutionCode, ok := FormatMedicalCode(p.InstitutionCode)
	if !ok {
		log.Warn().Int("row", p.Row).Str("code", institutionCode).Msg("institution code has an unexpected type digit")
	}

	type cellValue struct {
		col   int
		value any
		style int
	}
	vals := []cellValue{
		{1, num, 0},
		{2, s.PharmacyName, 0},
		{3, numeric(pharmacyCode), st.code8},
		{4, p.InstitutionName, 0},
		{5, numeric(institutionCode), st.code8},
		{6, numeric(p.RecipientNumber), st.code7},
		{7, p.Name, 0},
		{8, p.NameKana, 0},
		{9, dateOrRaw(p.BirthDate), st.date},
		{10, canonicalOrRaw(g), st.date},
		{11, flag(p.HasMainInsurance()), 0},
		{12, flag(p.HasRehabSubsidy()), 0},
		{13, flag(p.HasIntractableSubsidy()), 0},
	}
	for _, v := range vals {
		ref := cell(v.col, row)
		if err := f.SetCellValue(sheet, ref, v.value); err != nil {
			return err
		}
		if v.style != 0 {
			if err := f.SetCellStyle(sheet, ref, ref, v.style); err != nil {
				return err
			}
		}
	}
	return nil
}

// numeric writes digit strings as numbers so the zero-padding format
// applies; anything else stays text.
func numeric(s string) any {
	if s == "" {
		return ""
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
		return n
	}
	return s
}

func dateOrRaw(s string) any {
	if t, ok := normalize.ParseDate(s); ok {
		return t
	}
	return s
}

func canonicalOrRaw(g *model.RowGroup) any {
	if g.HasCanonical() {
		return g.Canonical
	}
	return g.RawDate
}

func flag(b bool) string {
	if b {
		return mark
	}
	return ""
}

func cell(col, row int) string {
	ref, _ := excelize.CoordinatesToCellName(col, row)
	return ref
}

// FormatMedicalCode strips quotes and every leading "01" pad, then keeps the
// last 8 digits. ok is false when an 8-digit result does not start with an
// institution type digit (1 hospital, 3 dental, 4 pharmacy).
func FormatMedicalCode(code string) (string, bool) {
	c := normalize.TrimQuotes(code)
	for strings.HasPrefix(c, "01") && len(c) > 2 {
		c = c[2:]
	}
	if len(c) > 8 {
		c = c[len(c)-8:]
	}
	if len(c) >= 8 && !strings.ContainsRune("134", rune(c[0])) {
		return c, false
	}
	return c, true
}
