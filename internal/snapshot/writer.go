// Package snapshot exports rendered rows to a Parquet audit file. Names are
// written as hashes only.
package snapshot

import (
	"fmt"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/gyeh/welfarebill/internal/model"
	"github.com/gyeh/welfarebill/internal/normalize"
)

// Rows converts rendered groups, numbered from 1 in render order.
func Rows(groups []model.RowGroup, batch int, hash normalize.Hasher) []model.SnapshotRow {
	if hash == nil {
		hash = normalize.NameHash
	}
	rows := make([]model.SnapshotRow, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		p := g.Representative()
		if p == nil {
			continue
		}
		row := model.SnapshotRow{
			RowNumber:       int32(len(rows) + 1),
			Batch:           int32(batch),
			YearMonth:       g.YearMonth,
			RecipientNumber: p.RecipientNumber,
			NameHash:        hash(p.Name),
			InstitutionCode: p.InstitutionCode,
			VisitSummary:    g.VisitSummary(),
			VisitCount:      int32(len(g.Dates)),
			SubsidyLabels:   strings.Join(p.SubsidyLabels, ","),
			PreviousMonth:   g.PreviousMonth(),
		}
		if g.HasCanonical() {
			d := g.Canonical.Format("2006-01-02")
			row.CanonicalDate = &d
		}
		rows = append(rows, row)
	}
	return rows
}

// Write writes rows to path, replacing any existing file.
func Write(path string, rows []model.SnapshotRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	w := parquet.NewGenericWriter[model.SnapshotRow](f)
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("write snapshot rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close snapshot writer: %w", err)
	}
	return f.Close()
}
