package model

import "time"

// ArchiveEntry records one successful render.
type ArchiveEntry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	FileName     string    `json:"fileName"`
	CSVFileName  string    `json:"csvFileName"`
	BatchNumber  int       `json:"batchNumber"`
	PatientCount int       `json:"patientCount"`
	PharmacyName string    `json:"pharmacyName"`
}

// RunSummary captures counts and timings from a single processing run.
type RunSummary struct {
	RunID          string
	CSVFileName    string
	Encoding       string
	Batch          int
	LinesRead      int
	RecordsParsed  int
	HeaderRows     int
	ShortRows      int
	Patients       int
	Municipality   int
	Duplicates     int
	Included       int
	PreviousMonth  int
	RowsSkipped    int
	RowsRendered   int
	KeysSaved      int
	DurationDecode time.Duration
	DurationParse  time.Duration
	DurationFilter time.Duration
	DurationRender time.Duration
	DurationTotal  time.Duration
}
