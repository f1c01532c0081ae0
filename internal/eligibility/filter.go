// Package eligibility decides which patients belong on the municipal invoice.
package eligibility

import (
	"fmt"
	"strings"

	"github.com/gyeh/welfarebill/internal/model"
)

// Policy selects the eligibility definition.
type Policy string

const (
	// PolicyMunicipality gates on the municipality test alone; subsidy codes
	// are informational.
	PolicyMunicipality Policy = "municipality"
	// PolicyWelfareCode additionally requires public code 12.
	PolicyWelfareCode Policy = "welfare-code"
)

// ParsePolicy validates a policy name. Empty selects PolicyMunicipality.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyMunicipality:
		return PolicyMunicipality, nil
	case PolicyWelfareCode:
		return PolicyWelfareCode, nil
	}
	return "", fmt.Errorf("unknown eligibility policy %q", s)
}

// Municipality identifies the target city by insurer number or address.
type Municipality struct {
	Name           string
	InsurerNumbers []string
}

// DefaultMunicipality is Asahikawa.
var DefaultMunicipality = Municipality{
	Name:           "旭川市",
	InsurerNumbers: []string{"12016010", "12012019"},
}

// Matches applies the municipality test: insurer allowlist first, then the
// address substring.
func (m Municipality) Matches(p *model.Patient) bool {
	for _, n := range m.InsurerNumbers {
		if p.InsurerNumber == n {
			return true
		}
	}
	return m.Name != "" && strings.Contains(p.Address, m.Name)
}

// Lookup reports whether a patient was already billed in batch 1.
type Lookup func(p *model.Patient) bool

// Options configures one filter pass.
type Options struct {
	Municipality Municipality
	Policy       Policy
	Batch        int
	// Billed is consulted for batch 2 only. Nil means nothing was billed.
	Billed Lookup
}

// Views are four views over the same patients.
type Views struct {
	All          []*model.Patient
	Municipality []*model.Patient
	Target       []*model.Patient // == Municipality, duplicates flagged
	Duplicates   []*model.Patient
}

// Filter sets InMunicipality, Duplicate and Included on every patient and
// returns the views. Duplicates are kept in Target with Included=false so an
// operator can still opt them back in.
func Filter(patients []*model.Patient, opts Options) Views {
	v := Views{All: patients}
	for _, p := range patients {
		p.InMunicipality = opts.Municipality.Matches(p)
		if !p.InMunicipality || !opts.Policy.admits(p) {
			p.Included = false
			continue
		}
		v.Municipality = append(v.Municipality, p)

		if opts.Batch == 2 && opts.Billed != nil && opts.Billed(p) {
			p.Duplicate = true
			p.Included = false
			v.Duplicates = append(v.Duplicates, p)
		} else {
			p.Duplicate = false
			p.Included = true
		}
	}
	v.Target = v.Municipality
	return v
}

// FilterPreviousMonth handles a late submission for an earlier month: the
// municipality test only, no duplicate check, and nothing included until the
// operator opts rows in.
func FilterPreviousMonth(patients []*model.Patient, opts Options) Views {
	v := Views{All: patients}
	for _, p := range patients {
		p.PreviousMonth = true
		p.Included = false
		p.Duplicate = false
		p.InMunicipality = opts.Municipality.Matches(p)
		if p.InMunicipality && opts.Policy.admits(p) {
			v.Municipality = append(v.Municipality, p)
		}
	}
	v.Target = v.Municipality
	return v
}

func (pol Policy) admits(p *model.Patient) bool {
	if pol == PolicyWelfareCode {
		return p.HasWelfareCode()
	}
	return true
}

// Included returns the Target members currently flagged Included, in order.
func (v Views) Included() []*model.Patient {
	var out []*model.Patient
	for _, p := range v.Target {
		if p.Included {
			out = append(out, p)
		}
	}
	return out
}

// ByRow finds a Target member by source row number.
func (v Views) ByRow(row int) (*model.Patient, bool) {
	for _, p := range v.Target {
		if p.Row == row {
			return p, true
		}
	}
	return nil, false
}

// Stats summarizes the views.
type Stats struct {
	Total        int
	Municipality int
	Target       int
	Duplicates   int
	Included     int
	Rehab        int
	Intractable  int
	MainInsured  int
}

func (v Views) Stats() Stats {
	s := Stats{
		Total:        len(v.All),
		Municipality: len(v.Municipality),
		Target:       len(v.Target),
		Duplicates:   len(v.Duplicates),
	}
	for _, p := range v.Target {
		if p.Included {
			s.Included++
		}
		if p.HasRehabSubsidy() {
			s.Rehab++
		}
		if p.HasIntractableSubsidy() {
			s.Intractable++
		}
		if p.HasMainInsurance() {
			s.MainInsured++
		}
	}
	return s
}
