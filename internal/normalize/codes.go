package normalize

import "strings"

// RemoveLeading01 strips quotes and at most one leading "01" padding prefix
// from an institution code.
func RemoveLeading01(code string) string {
	code = TrimQuotes(code)
	return strings.TrimPrefix(code, "01")
}

// subsidyLabels maps public-subsidy codes to their invoice labels.
var subsidyLabels = []struct {
	code  string
	label string
}{
	{"21", "精"},
	{"15", "更"},
	{"16", "育"},
	{"54", "難"},
}

// SubsidyLabels returns the labels for the codes present, in lookup order.
func SubsidyLabels(codes [3]string) []string {
	var labels []string
	for _, sl := range subsidyLabels {
		for _, c := range codes {
			if c == sl.code {
				labels = append(labels, sl.label)
				break
			}
		}
	}
	return labels
}
