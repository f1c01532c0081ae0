package model

// Public-subsidy program codes carried in columns 22/26/30.
const (
	CodeMentalHealth     = "21"
	CodeRehabilitation   = "15"
	CodeChildCare        = "16"
	CodeIntractable      = "54"
	CodeWelfare          = "12"
	InsuranceSubsidyOnly = "公費単独"
)

// Patient is the normalized view of one extract row plus the pipeline's
// decisions about it. Included is the only flag rendering consults.
type Patient struct {
	Row int

	RecipientNumber string
	Name            string
	NameKana        string
	BirthDate       string

	TreatmentDate   string
	InstitutionName string
	InstitutionCode string
	InsurerNumber   string
	Address         string

	PublicCodes   [3]string
	SubsidyLabels []string
	InsuranceType string

	InMunicipality bool
	Duplicate      bool
	Included       bool
	PreviousMonth  bool
}

func (p *Patient) hasCode(codes ...string) bool {
	for _, pc := range p.PublicCodes {
		for _, c := range codes {
			if pc == c {
				return true
			}
		}
	}
	return false
}

// HasMainInsurance reports whether the visit is billed to a main insurer
// in addition to public subsidy.
func (p *Patient) HasMainInsurance() bool {
	return p.InsuranceType != InsuranceSubsidyOnly
}

// HasRehabSubsidy reports mental-health, rehabilitation or child-care support.
func (p *Patient) HasRehabSubsidy() bool {
	return p.hasCode(CodeMentalHealth, CodeRehabilitation, CodeChildCare)
}

func (p *Patient) HasIntractableSubsidy() bool {
	return p.hasCode(CodeIntractable)
}

func (p *Patient) HasWelfareCode() bool {
	return p.hasCode(CodeWelfare)
}
