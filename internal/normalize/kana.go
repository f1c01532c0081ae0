package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var halfWidthKana = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0xFF61, Hi: 0xFF9F, Stride: 1}},
}

// Half-width sound marks become combining marks so they compose with the
// preceding kana instead of widening to the spacing ゛/゜.
var soundMarks = map[rune]rune{
	0xFF9E: 0x3099,
	0xFF9F: 0x309A,
}

func isStrayQuote(r rune) bool {
	return r == '\'' || r == '"' || r == '`'
}

func kanaTransformer() transform.Transformer {
	return transform.Chain(
		runes.Remove(runes.Predicate(isStrayQuote)),
		runes.Map(func(r rune) rune {
			if m, ok := soundMarks[r]; ok {
				return m
			}
			return r
		}),
		runes.If(runes.In(halfWidthKana), width.Widen, nil),
	)
}

// FixKanaAndTrim strips stray quotes, widens half-width katakana and trims.
// Voiced pairs such as ｶﾞ become the single rune ガ. Idempotent.
func FixKanaAndTrim(s string) string {
	if s == "" {
		return ""
	}
	out, _, err := transform.String(kanaTransformer(), s)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(composeMarks(out))
}

// composeMarks joins a combining sound mark with the rune before it.
// Only those pairs are normalized so other characters keep their code points.
func composeMarks(s string) string {
	if !strings.ContainsAny(s, "\u3099\u309a") {
		return s
	}
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(rs); i++ {
		if i+1 < len(rs) && (rs[i+1] == 0x3099 || rs[i+1] == 0x309A) {
			pair := norm.NFC.String(string(rs[i : i+2]))
			if len([]rune(pair)) == 1 {
				b.WriteString(pair)
				i++
				continue
			}
		}
		b.WriteRune(rs[i])
	}
	return b.String()
}

// StripSpaces removes every whitespace rune and stray quote. Used for date
// fields where the source inserts padding inside the value.
func StripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || isStrayQuote(r) {
			return -1
		}
		return r
	}, s)
}

// TrimQuotes trims surrounding whitespace and removes stray quotes.
func TrimQuotes(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if isStrayQuote(r) {
			return -1
		}
		return r
	}, s))
}
