package model

// SnapshotRow is one rendered invoice row as written to the Parquet audit
// snapshot. Names are stored hashed only.
type SnapshotRow struct {
	RowNumber       int32   `parquet:"row_number"`
	Batch           int32   `parquet:"batch"`
	YearMonth       string  `parquet:"year_month"`
	RecipientNumber string  `parquet:"recipient_number"`
	NameHash        string  `parquet:"name_hash"`
	InstitutionCode string  `parquet:"institution_code"`
	CanonicalDate   *string `parquet:"canonical_date,optional"`
	VisitSummary    string  `parquet:"visit_summary"`
	VisitCount      int32   `parquet:"visit_count"`
	SubsidyLabels   string  `parquet:"subsidy_labels"`
	PreviousMonth   bool    `parquet:"previous_month"`
}
