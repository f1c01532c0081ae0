package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/gyeh/welfarebill/internal/normalize"
)

// CleanTemplate builds the blank claim workbook: a merged title row, the
// billing-month/pharmacy labels in A3:A5, and an empty header row 10.
func CleanTemplate() (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	title, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Size: 16, Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create title style: %w", err)
	}

	steps := []func() error{
		func() error { return f.SetCellValue(sheet, "A1", "調剤券請求書") },
		func() error { return f.MergeCell(sheet, "A1", lastColumn+"1") },
		func() error { return f.SetCellStyle(sheet, "A1", "A1", title) },
		func() error { return f.SetCellValue(sheet, "A3", "請求年月:") },
		func() error { return f.SetCellValue(sheet, "A4", "薬局名:") },
		func() error { return f.SetCellValue(sheet, "A5", "医療機関コード:") },
		func() error { return f.SetRowHeight(sheet, headerRow, 20) },
		func() error { return f.SetColWidth(sheet, "B", "D", 20) },
		func() error { return f.SetColWidth(sheet, "G", "H", 16) },
		func() error { return f.SetColWidth(sheet, "I", "J", 12) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			f.Close()
			return nil, fmt.Errorf("build template: %w", err)
		}
	}
	return f, nil
}

var fileNameReplacer = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

// SanitizeFileName replaces characters that are invalid in file names.
func SanitizeFileName(s string) string {
	return fileNameReplacer.Replace(s)
}

// BatchLabel is the localized batch marker used in file names.
func BatchLabel(batch int) string {
	if batch == 1 {
		return "1回目"
	}
	return "2回目"
}

// FileName builds 調剤券_<municipality>_<YYYYMM>_<pharmacy>_<batch>.xlsx.
// An empty month falls back to now; an empty pharmacy to 薬局.
func FileName(s Settings, batch int, now time.Time) string {
	ym := normalize.CompactYearMonth(s.YearMonth)
	if ym == "" {
		ym = now.Format("200601")
	}
	pharmacy := s.PharmacyName
	if pharmacy == "" {
		pharmacy = "薬局"
	}
	muni := s.Municipality
	if muni == "" {
		muni = "旭川市"
	}
	name := strings.Join([]string{"調剤券", muni, ym, pharmacy, BatchLabel(batch)}, "_") + ".xlsx"
	return SanitizeFileName(name)
}
