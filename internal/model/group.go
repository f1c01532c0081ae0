package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RowGroup collapses the patients sharing (recipient, name, year-month)
// into one rendered row. Records[0] is the representative.
type RowGroup struct {
	YearMonth string
	Records   []*Patient
	Dates     []string    // distinct raw dates, first-seen order
	Parsed    []time.Time // dates that parsed, in Dates order
	Canonical time.Time   // earliest parsed date; zero when none parsed
	RawDate   string      // first raw date, the display fallback
}

// Representative returns the patient whose non-date fields fill the row.
func (g *RowGroup) Representative() *Patient {
	if len(g.Records) == 0 {
		return nil
	}
	return g.Records[0]
}

// HasCanonical reports whether at least one visit date parsed.
func (g *RowGroup) HasCanonical() bool {
	return !g.Canonical.IsZero()
}

// PreviousMonth reports whether the group came from a late submission.
func (g *RowGroup) PreviousMonth() bool {
	rep := g.Representative()
	return rep != nil && rep.PreviousMonth
}

// VisitSummary renders the visit dates compactly: "2025/2/10" for a single
// visit, "2025/2(7,10,25)" for several in one month.
func (g *RowGroup) VisitSummary() string {
	if len(g.Parsed) == 0 {
		return strings.Join(g.Dates, ", ")
	}
	dates := append([]time.Time(nil), g.Parsed...)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	first := dates[0]
	if len(dates) == 1 {
		return fmt.Sprintf("%d/%d/%d", first.Year(), int(first.Month()), first.Day())
	}

	days := make([]string, 0, len(dates))
	for _, d := range dates {
		if d.Year() != first.Year() || d.Month() != first.Month() {
			return joinFull(dates)
		}
		days = append(days, fmt.Sprint(d.Day()))
	}
	return fmt.Sprintf("%d/%d(%s)", first.Year(), int(first.Month()), strings.Join(days, ","))
}

func joinFull(dates []time.Time) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = fmt.Sprintf("%d/%d/%d", d.Year(), int(d.Month()), d.Day())
	}
	return strings.Join(parts, ", ")
}
