// mkfixture writes a synthetic dispensing extract for manual runs and demos.
// Rows are spread over buckets that exercise the pipeline: municipality
// matches by insurer and by address, outsiders, repeat visits, half-width
// kana names and short rows.
// Usage: go run ./cmd/mkfixture --out testdata/extract.csv --rows 40 --month 2025/02 --encoding sjis
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"golang.org/x/text/encoding/japanese"

	"github.com/gyeh/welfarebill/internal/model"
)

var (
	familyNames = []string{"山田", "佐藤", "鈴木", "高橋", "田中", "伊藤", "渡辺", "中村"}
	givenNames  = []string{"太郎", "花子", "一郎", "次郎", "美咲", "健太", "陽子", "翔"}
	kanaNames   = []string{"ﾔﾏﾀﾞﾀﾛｳ", "ｻﾄｳﾊﾅｺ", "ｽｽﾞｷｲﾁﾛｳ", "ﾀｶﾊｼｼﾞﾛｳ"}
	hospitals   = []struct{ name, code string }{
		{"旭川中央病院", "0112345678"},
		{"北星歯科医院", "0131234567"},
		{"神楽クリニック", "0114567890"},
	}
	publicCodes = []string{"12", "21", "15", "54", ""}
)

type bucket struct {
	name string
	want int
	make func(r *rand.Rand, month string) []string
}

func main() {
	out := flag.String("out", "testdata/extract.csv", "output extract")
	rows := flag.Int("rows", 40, "data rows to write")
	month := flag.String("month", "2025/02", "treatment month YYYY/MM")
	enc := flag.String("encoding", "sjis", "output encoding: sjis, utf8 or utf8-bom")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	if len(*month) != 7 || (*month)[4] != '/' {
		fmt.Fprintf(os.Stderr, "month must be YYYY/MM, got %q\n", *month)
		os.Exit(1)
	}

	r := rand.New(rand.NewSource(*seed))
	buckets := []*bucket{
		{name: "insurer", want: *rows * 4 / 10, make: insurerRow},
		{name: "address", want: *rows * 2 / 10, make: addressRow},
		{name: "outside", want: *rows * 2 / 10, make: outsideRow},
		{name: "repeat", want: *rows / 10, make: repeatRow},
		{name: "short", want: 1, make: shortRow},
	}

	lines := []string{headerLine()}
	counts := make(map[string]int)
	// Insurer rows fill whatever the capped buckets leave.
	for written := 0; written < *rows; {
		for _, b := range buckets {
			if written >= *rows {
				break
			}
			if counts[b.name] >= b.want && b.name != "insurer" {
				continue
			}
			lines = append(lines, strings.Join(b.make(r, *month), ","))
			counts[b.name]++
			written++
		}
	}
	text := strings.Join(lines, "\r\n") + "\r\n"

	data, err := encode(text, *enc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d rows to %s (%s)\n", len(lines)-1, *out, *enc)
	for _, b := range buckets {
		fmt.Printf("  %-8s %d\n", b.name, counts[b.name])
	}
}

func encode(text, enc string) ([]byte, error) {
	switch enc {
	case "sjis":
		return japanese.ShiftJIS.NewEncoder().Bytes([]byte(text))
	case "utf8":
		return []byte(text), nil
	case "utf8-bom":
		return append([]byte{0xEF, 0xBB, 0xBF}, text...), nil
	}
	return nil, fmt.Errorf("unknown encoding %q", enc)
}

func headerLine() string {
	fields := make([]string, model.RecordWidth)
	fields[0] = "項目解析結果"
	fields[model.ColPatientName-1] = "患者氏名"
	fields[model.ColInsurerNumber-1] = "保険者番号"
	fields[model.ColTreatmentDate-1] = "調剤年月日"
	fields[model.ColRecipientNumber-1] = "受給者番号"
	fields[model.ColInstitutionCode-1] = "医療機関コード"
	return strings.Join(fields, ",")
}

func baseRow(r *rand.Rand, month string) []string {
	fields := make([]string, model.RecordWidth)
	fields[0] = "R7"
	h := hospitals[r.Intn(len(hospitals))]
	fields[model.ColPatientName-1] = familyNames[r.Intn(len(familyNames))] + " " + givenNames[r.Intn(len(givenNames))]
	fields[model.ColNameKana-1] = kanaNames[r.Intn(len(kanaNames))]
	fields[model.ColBirthDate-1] = fmt.Sprintf("S%d.%d.%d", 30+r.Intn(30), 1+r.Intn(12), 1+r.Intn(28))
	fields[model.ColInsuranceType-1] = model.InsuranceSubsidyOnly
	if r.Intn(3) == 0 {
		fields[model.ColInsuranceType-1] = "国保"
	}
	fields[model.ColPublicCode1-1] = "12"
	fields[model.ColPublicCode2-1] = publicCodes[r.Intn(len(publicCodes))]
	fields[model.ColInstitutionName-1] = h.name
	fields[model.ColInstitutionCode-1] = "'" + h.code + "'"
	fields[model.ColTreatmentDate-1] = fmt.Sprintf("%s%02d", strings.ReplaceAll(month, "/", ""), 1+r.Intn(28))
	fields[model.ColRecipientNumber-1] = fmt.Sprintf("'%07d'", r.Intn(10000000))
	return fields
}

func insurerRow(r *rand.Rand, month string) []string {
	fields := baseRow(r, month)
	fields[model.ColInsurerNumber-1] = []string{"12016010", "12012019"}[r.Intn(2)]
	fields[model.ColAddress-1] = "北海道札幌市"
	return fields
}

func addressRow(r *rand.Rand, month string) []string {
	fields := baseRow(r, month)
	fields[model.ColInsurerNumber-1] = "12099999"
	fields[model.ColAddress-1] = fmt.Sprintf("北海道旭川市%d条通%d丁目", 1+r.Intn(10), 1+r.Intn(20))
	return fields
}

func outsideRow(r *rand.Rand, month string) []string {
	fields := baseRow(r, month)
	fields[model.ColInsurerNumber-1] = "01130012"
	fields[model.ColAddress-1] = "北海道函館市"
	return fields
}

// repeatRow is a second same-month visit of a fixed patient.
func repeatRow(r *rand.Rand, month string) []string {
	fields := insurerRow(r, month)
	fields[model.ColPatientName-1] = "山田 太郎"
	fields[model.ColRecipientNumber-1] = "'0123456'"
	return fields
}

// shortRow drops the tail fields the way truncated exports do.
func shortRow(r *rand.Rand, month string) []string {
	return insurerRow(r, month)[:model.MinValidFields-2]
}
