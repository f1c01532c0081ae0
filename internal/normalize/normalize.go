package normalize

import (
	"github.com/gyeh/welfarebill/internal/model"
)

// ToPatient maps a raw extract record onto a Patient. Text fields get the
// kana fix, date fields lose all whitespace, and the institution code loses
// its legacy 01 prefix. The result starts out Included.
func ToPatient(rec model.RawRecord) *model.Patient {
	codes := rec.PublicCodes()
	for i := range codes {
		codes[i] = TrimQuotes(codes[i])
	}

	return &model.Patient{
		Row: rec.Row,

		RecipientNumber: FixKanaAndTrim(rec.RecipientNumber()),
		Name:            FixKanaAndTrim(rec.PatientName()),
		NameKana:        FixKanaAndTrim(rec.NameKana()),
		BirthDate:       StripSpaces(rec.BirthDate()),

		TreatmentDate:   StripSpaces(rec.TreatmentDate()),
		InstitutionName: FixKanaAndTrim(rec.InstitutionName()),
		InstitutionCode: RemoveLeading01(rec.InstitutionCode()),
		InsurerNumber:   TrimQuotes(rec.InsurerNumber()),
		Address:         FixKanaAndTrim(rec.Address()),

		PublicCodes:   codes,
		SubsidyLabels: SubsidyLabels(codes),
		InsuranceType: TrimQuotes(rec.InsuranceType()),

		Included: true,
	}
}

// ToPatients normalizes records in order.
func ToPatients(recs []model.RawRecord) []*model.Patient {
	out := make([]*model.Patient, len(recs))
	for i, rec := range recs {
		out[i] = ToPatient(rec)
	}
	return out
}
