// Package tabular splits decoded extract text into fixed-width records.
//
// The provider quotes with single quotes (to keep numeric-looking strings
// intact), which encoding/csv cannot be configured for, so lines are split
// here. A quoted field never spans lines.
package tabular

import (
	"regexp"
	"strings"

	"github.com/gyeh/welfarebill/internal/model"
)

const (
	delimiter = ','
	quote     = '\''

	// HeaderMarker is the first cell of the provider's analysis header row.
	HeaderMarker = "項目解析結果"
)

var (
	eraPrefixed = regexp.MustCompile(`^[RHS]\d+`)
	allDigits   = regexp.MustCompile(`^\d+$`)
)

// Stats counts what the parser saw and dropped.
type Stats struct {
	Lines              int
	BlankLines         int
	HeaderRows         int
	Records            int
	ShortRows          int // fewer than model.MinValidFields fields
	FieldCountWarnings int // any row not exactly model.RecordWidth wide
	UnterminatedQuotes int
}

// Parse returns the data rows of text in source order. Structural problems
// are counted, never fatal.
func Parse(text string) ([]model.RawRecord, Stats) {
	var (
		recs  []model.RawRecord
		stats Stats
	)
	for i, line := range splitLines(text) {
		stats.Lines++
		if strings.TrimSpace(line) == "" {
			stats.BlankLines++
			continue
		}

		fields, closed := splitFields(line)
		if !closed {
			stats.UnterminatedQuotes++
		}
		for j, f := range fields {
			fields[j] = clean(f)
		}

		if !IsDataRow(fields[0]) {
			stats.HeaderRows++
			continue
		}

		if len(fields) != model.RecordWidth {
			stats.FieldCountWarnings++
		}
		rec := model.NewRawRecord(fields, i+1)
		if !rec.Valid {
			stats.ShortRows++
		}
		recs = append(recs, rec)
	}
	stats.Records = len(recs)
	return recs, stats
}

// IsDataRow applies the row filter to a row's first field: era-prefixed
// (R7, H31, S64) or all-digit markers are data, anything else is structure.
func IsDataRow(first string) bool {
	first = strings.TrimSpace(first)
	if first == "" || first == HeaderMarker {
		return false
	}
	return eraPrefixed.MatchString(first) || allDigits.MatchString(first)
}

// splitLines splits on \r\n, \n and lone \r.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// splitFields splits one line. Inside a quoted field '' is a literal quote.
// closed is false when the line ends inside a quoted field.
func splitFields(line string) (fields []string, closed bool) {
	var cur strings.Builder
	inQuote, atStart := false, true
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inQuote && r == quote:
			if i+1 < len(runes) && runes[i+1] == quote {
				cur.WriteRune(quote)
				i++
				continue
			}
			inQuote = false
		case inQuote:
			cur.WriteRune(r)
		case r == delimiter:
			fields = append(fields, cur.String())
			cur.Reset()
			atStart = true
			continue
		case r == quote && atStart:
			inQuote = true
		default:
			cur.WriteRune(r)
		}
		atStart = false
	}
	fields = append(fields, cur.String())
	return fields, !inQuote
}

func clean(f string) string {
	return strings.TrimSpace(strings.ReplaceAll(f, "'", ""))
}
