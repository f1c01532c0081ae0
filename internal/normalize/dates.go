package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	compactDate = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	slashDate   = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})[/-](\d{1,2})$`)
	eraDate     = regexp.MustCompile(`^([RHS])(\d{1,2})[./-](\d{1,2})[./-](\d{1,2})$`)
	monthPrefix = regexp.MustCompile(`^\d{4}/\d{2}`)
)

// Offsets from an era year to the Gregorian year.
var eraOffsets = map[string]int{
	"R": 2018, // Reiwa
	"H": 1988, // Heisei
	"S": 1925, // Showa
}

// ParseDate parses the date shapes found in dispensing extracts: YYYYMMDD,
// YYYY/M/D, YYYY-M-D and era-prefixed R7/2/10 style. Whitespace is ignored.
// The second result is false when the input is empty or not a real date.
func ParseDate(s string) (time.Time, bool) {
	s = StripSpaces(s)
	if s == "" {
		return time.Time{}, false
	}
	if m := compactDate.FindStringSubmatch(s); m != nil {
		return makeDate(m[1], m[2], m[3], 0)
	}
	if m := slashDate.FindStringSubmatch(s); m != nil {
		return makeDate(m[1], m[2], m[3], 0)
	}
	if m := eraDate.FindStringSubmatch(s); m != nil {
		return makeDate(m[2], m[3], m[4], eraOffsets[m[1]])
	}
	return time.Time{}, false
}

func makeDate(ys, ms, ds string, offset int) (time.Time, bool) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	y += offset
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow; reject anything it had to adjust.
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// YearMonth derives the "YYYY/MM" month of a treatment date. YYYY/MM/..
// shaped values yield their first 7 characters; everything else must parse.
// Returns "" when no month can be derived.
func YearMonth(s string) string {
	s = StripSpaces(s)
	if monthPrefix.MatchString(s) {
		return s[:7]
	}
	t, ok := ParseDate(s)
	if !ok {
		return ""
	}
	return FormatYearMonth(t)
}

// FormatYearMonth formats t as "YYYY/MM".
func FormatYearMonth(t time.Time) string {
	return fmt.Sprintf("%04d/%02d", t.Year(), int(t.Month()))
}

// CompactYearMonth turns "YYYY/MM" into "YYYYMM" for file names.
func CompactYearMonth(ym string) string {
	if len(ym) == 7 && ym[4] == '/' {
		return ym[:4] + ym[5:]
	}
	return ym
}
