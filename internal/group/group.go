// Package group collapses same-month visits of one recipient into a single
// invoice row.
package group

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/gyeh/welfarebill/internal/model"
	"github.com/gyeh/welfarebill/internal/normalize"
)

type groupKey struct {
	recipient string
	name      string
	yearMonth string
}

// Result is the grouping output plus the rows that could not be grouped.
type Result struct {
	Groups  []model.RowGroup
	Skipped int
}

// Build groups patients by (recipient number, name, treatment year-month).
// Patients missing any of the three are skipped with a warning. Groups come
// out newest month first; within a month, first-seen order is kept.
func Build(patients []*model.Patient, log zerolog.Logger) Result {
	var (
		res   Result
		order []groupKey
		byKey = make(map[groupKey]*model.RowGroup)
	)

	for _, p := range patients {
		ym := normalize.YearMonth(p.TreatmentDate)
		if p.RecipientNumber == "" || p.Name == "" || ym == "" {
			log.Warn().
				Int("row", p.Row).
				Bool("has_recipient", p.RecipientNumber != "").
				Bool("has_name", p.Name != "").
				Str("treatment_date", p.TreatmentDate).
				Msg("skipping row missing recipient, name or treatment date")
			res.Skipped++
			continue
		}

		k := groupKey{p.RecipientNumber, p.Name, ym}
		g, ok := byKey[k]
		if !ok {
			g = &model.RowGroup{YearMonth: ym, RawDate: p.TreatmentDate}
			byKey[k] = g
			order = append(order, k)
		}
		g.Records = append(g.Records, p)
		addDate(g, p.TreatmentDate)
	}

	res.Groups = make([]model.RowGroup, 0, len(order))
	for _, k := range order {
		res.Groups = append(res.Groups, *byKey[k])
	}
	sort.SliceStable(res.Groups, func(i, j int) bool {
		return res.Groups[i].YearMonth > res.Groups[j].YearMonth
	})
	return res
}

func addDate(g *model.RowGroup, raw string) {
	for _, d := range g.Dates {
		if d == raw {
			return
		}
	}
	g.Dates = append(g.Dates, raw)
	t, ok := normalize.ParseDate(raw)
	if !ok {
		return
	}
	g.Parsed = append(g.Parsed, t)
	if g.Canonical.IsZero() || t.Before(g.Canonical) {
		g.Canonical = t
	}
}

// Patients flattens groups back to every grouped record, in group order.
func Patients(groups []model.RowGroup) []*model.Patient {
	out := make([]*model.Patient, 0, len(groups))
	for i := range groups {
		out = append(out, groups[i].Records...)
	}
	return out
}
