package model

// RecordWidth is the fixed column count of a dispensing extract row.
const RecordWidth = 70

// MinValidFields is the field count below which a row is flagged invalid.
const MinValidFields = 65

// Column positions (1-based) in the dispensing extract.
const (
	ColPatientName     = 10
	ColNameKana        = 11
	ColBirthDate       = 12
	ColInsuranceType   = 17
	ColPublicCode1     = 22
	ColInsurerNumber   = 23
	ColPublicCode2     = 26
	ColPublicCode3     = 30
	ColInstitutionName = 34
	ColAddress         = 38
	ColTreatmentDate   = 56
	ColRecipientNumber = 58
	ColInstitutionCode = 65
)

// RawRecord is one parsed extract row: exactly RecordWidth positional fields.
type RawRecord struct {
	fields [RecordWidth]string
	Row    int  // 1-based source line number
	Valid  bool // false when fewer than MinValidFields fields were present
}

// NewRawRecord pads or truncates fields to RecordWidth.
func NewRawRecord(fields []string, row int) RawRecord {
	rec := RawRecord{Row: row, Valid: len(fields) >= MinValidFields}
	copy(rec.fields[:], fields)
	return rec
}

// Field returns the 1-based field n, or "" when n is out of range.
func (r RawRecord) Field(n int) string {
	if n < 1 || n > RecordWidth {
		return ""
	}
	return r.fields[n-1]
}

// Fields returns a copy of all positional fields.
func (r RawRecord) Fields() []string {
	out := make([]string, RecordWidth)
	copy(out, r.fields[:])
	return out
}

func (r RawRecord) Marker() string          { return r.fields[0] }
func (r RawRecord) PatientName() string     { return r.Field(ColPatientName) }
func (r RawRecord) NameKana() string        { return r.Field(ColNameKana) }
func (r RawRecord) BirthDate() string       { return r.Field(ColBirthDate) }
func (r RawRecord) InsuranceType() string   { return r.Field(ColInsuranceType) }
func (r RawRecord) InsurerNumber() string   { return r.Field(ColInsurerNumber) }
func (r RawRecord) InstitutionName() string { return r.Field(ColInstitutionName) }
func (r RawRecord) Address() string         { return r.Field(ColAddress) }
func (r RawRecord) TreatmentDate() string   { return r.Field(ColTreatmentDate) }
func (r RawRecord) RecipientNumber() string { return r.Field(ColRecipientNumber) }
func (r RawRecord) InstitutionCode() string { return r.Field(ColInstitutionCode) }

// PublicCodes returns the three public-subsidy code fields in column order.
func (r RawRecord) PublicCodes() [3]string {
	return [3]string{r.Field(ColPublicCode1), r.Field(ColPublicCode2), r.Field(ColPublicCode3)}
}
