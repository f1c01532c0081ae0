// Package decode turns a raw extract buffer into text, resolving whether the
// provider sent Shift_JIS (CP932) or UTF-8.
package decode

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dimchansky/utfbom"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Mode selects which encoding is tried first.
type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeANSIFirst Mode = "ansi-first"
	ModeUTF8First Mode = "utf8-first"
)

// Modes lists the recognized modes.
var Modes = []Mode{ModeAuto, ModeANSIFirst, ModeUTF8First}

// ParseMode validates a mode string. Empty selects ansi-first.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeANSIFirst, nil
	}
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown encoding mode %q (want auto, ansi-first or utf8-first)", s)
}

// Encoding names reported in Result.
const (
	EncodingUTF8     = "utf-8"
	EncodingShiftJIS = "shift_jis"
)

// Result is decoded text plus a description of the path taken.
type Result struct {
	Text     string
	Label    string
	Encoding string
	Fallback bool // true when the first choice was rejected
}

// garbleWindow is how many runes of output are inspected for garbling.
const garbleWindow = 1000

type attempt struct {
	encoding string
	label    string
	decode   func([]byte) (string, bool)
}

var (
	utf8Attempt     = attempt{EncodingUTF8, "UTF-8", decodeUTF8}
	shiftJISAttempt = attempt{EncodingShiftJIS, "Shift_JIS", decodeShiftJIS}
)

func order(buf []byte, mode Mode) ([]attempt, string) {
	switch mode {
	case ModeUTF8First:
		return []attempt{utf8Attempt, shiftJISAttempt}, ""
	case ModeAuto:
		if sniff(buf) == EncodingUTF8 {
			return []attempt{utf8Attempt, shiftJISAttempt}, " (detected)"
		}
		return []attempt{shiftJISAttempt, utf8Attempt}, " (detected)"
	default:
		return []attempt{shiftJISAttempt, utf8Attempt}, ""
	}
}

// Decode never fails: when every attempt is rejected it force-decodes as
// Shift_JIS and lets replacement characters through. A UTF-8 BOM wins over
// any mode.
func Decode(buf []byte, mode Mode) Result {
	if text, ok := stripBOM(buf); ok {
		return Result{Text: text, Label: "UTF-8 (BOM)", Encoding: EncodingUTF8}
	}

	attempts, suffix := order(buf, mode)
	for i, a := range attempts {
		text, ok := a.decode(buf)
		if !ok {
			continue
		}
		res := Result{Text: text, Label: a.label + suffix, Encoding: a.encoding}
		if i > 0 {
			res.Label = a.label + " (fallback)"
			res.Fallback = true
		}
		return res
	}

	return Result{Text: forceShiftJIS(buf), Label: "Shift_JIS (forced)", Encoding: EncodingShiftJIS, Fallback: true}
}

func stripBOM(buf []byte) (string, bool) {
	r, enc := utfbom.Skip(bytes.NewReader(buf))
	if enc != utfbom.UTF8 {
		return "", false
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func decodeUTF8(buf []byte) (string, bool) {
	if !utf8.Valid(buf) {
		return "", false
	}
	text := string(buf)
	return text, !Garbled(text)
}

func decodeShiftJIS(buf []byte) (string, bool) {
	b, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), buf)
	if err != nil {
		return "", false
	}
	text := string(b)
	return text, !Garbled(text)
}

func forceShiftJIS(buf []byte) string {
	var out strings.Builder
	dec := japanese.ShiftJIS.NewDecoder()
	// Decode line by line so one bad sequence cannot drop the rest.
	for _, line := range bytes.SplitAfter(buf, []byte("\n")) {
		b, _, err := transform.Bytes(dec, line)
		if err != nil {
			out.WriteString(strings.ToValidUTF8(string(line), "\uFFFD"))
			continue
		}
		out.Write(b)
	}
	return out.String()
}

// sniff reports the encoding chardet considers most likely.
func sniff(buf []byte) string {
	res, err := chardet.NewTextDetector().DetectBest(buf)
	if err != nil {
		return ""
	}
	switch strings.ToUpper(res.Charset) {
	case "UTF-8", "ISO-8859-1":
		// Pure ASCII reports as ISO-8859-1; it is valid UTF-8 either way.
		if utf8.Valid(buf) {
			return EncodingUTF8
		}
	}
	return EncodingShiftJIS
}

// Garbled reports whether the first 1000 runes of text contain U+FFFD, the
// tofu box U+25A1, or a run of three or more '?'.
func Garbled(text string) bool {
	run := 0
	n := 0
	for _, r := range text {
		if n == garbleWindow {
			break
		}
		n++
		switch r {
		case utf8.RuneError, '\u25A1':
			return true
		case '?':
			run++
			if run >= 3 {
				return true
			}
		default:
			run = 0
		}
	}
	return false
}
