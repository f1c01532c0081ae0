// Package pipeline runs one extract through decode, parse, normalize,
// eligibility and dedup, and renders the operator-approved rows.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gyeh/welfarebill/internal/archive"
	"github.com/gyeh/welfarebill/internal/config"
	"github.com/gyeh/welfarebill/internal/decode"
	"github.com/gyeh/welfarebill/internal/dedup"
	"github.com/gyeh/welfarebill/internal/eligibility"
	"github.com/gyeh/welfarebill/internal/model"
	"github.com/gyeh/welfarebill/internal/normalize"
	"github.com/gyeh/welfarebill/internal/store"
	"github.com/gyeh/welfarebill/internal/tabular"
)

// PipelineError wraps an error with the phase where it occurred.
type PipelineError struct {
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Session holds the state of one processing run: the current extract's
// views, the optional previous-month views and the run summary.
type Session struct {
	cfg    *config.Config
	log    zerolog.Logger
	mode   decode.Mode
	policy eligibility.Policy
	hash   normalize.Hasher

	dedup   *dedup.Engine
	archive *archive.Log
	now     func() time.Time

	month    string
	current  eligibility.Views
	previous eligibility.Views
	summary  model.RunSummary
}

// NewSession validates the enumerated options in cfg and binds the stores.
func NewSession(cfg *config.Config, kv store.KV, log zerolog.Logger) (*Session, error) {
	if err := cfg.ValidateOptions(); err != nil {
		return nil, &PipelineError{Phase: "config", Err: err}
	}
	mode, _ := decode.ParseMode(cfg.EncodingMode)
	policy, _ := eligibility.ParsePolicy(cfg.EligibilityPolicy)
	hash, _ := normalize.HasherFor(cfg.NameHash)

	runID := uuid.NewString()
	log = log.With().Str("run_id", runID).Int("batch", cfg.Batch).Logger()

	return &Session{
		cfg:    cfg,
		log:    log,
		mode:   mode,
		policy: policy,
		hash:   hash,
		dedup: dedup.New(kv, dedup.Options{
			Hash:     hash,
			Flat:     cfg.DedupScope == config.ScopeFlat,
			Capacity: cfg.DedupCapacity,
		}, log),
		archive: archive.New(kv, cfg.ArchiveLimit, log),
		now:     time.Now,
		summary: model.RunSummary{RunID: runID, Batch: cfg.Batch},
	}, nil
}

// Month is the billing month the session resolved, "YYYY/MM".
func (s *Session) Month() string { return s.month }

// Views returns the current extract's views.
func (s *Session) Views() eligibility.Views { return s.current }

// PreviousViews returns the previous-month views (empty when none loaded).
func (s *Session) PreviousViews() eligibility.Views { return s.previous }

// Summary returns the counts gathered so far.
func (s *Session) Summary() model.RunSummary { return s.summary }

func (s *Session) options() eligibility.Options {
	return eligibility.Options{
		Municipality: s.cfg.Municipality(),
		Policy:       s.policy,
		Batch:        s.cfg.Batch,
	}
}

// load decodes, parses and normalizes one buffer.
func (s *Session) load(buf []byte, csvName string) ([]*model.Patient, tabular.Stats, decode.Result) {
	start := time.Now()
	dec := decode.Decode(buf, s.mode)
	decodeDur := time.Since(start)
	ev := s.log.Info()
	if dec.Fallback {
		ev = s.log.Warn()
	}
	ev.Str("file", csvName).
		Str("encoding", dec.Label).
		Int("bytes", len(buf)).
		Str("duration", decodeDur.String()).
		Msg("decoded extract")

	start = time.Now()
	recs, stats := tabular.Parse(dec.Text)
	patients := normalize.ToPatients(recs)
	parseDur := time.Since(start)

	s.log.Info().
		Int("lines", stats.Lines).
		Int("records", stats.Records).
		Int("header_rows", stats.HeaderRows).
		Int("short_rows", stats.ShortRows).
		Int("field_count_warnings", stats.FieldCountWarnings).
		Int("unterminated_quotes", stats.UnterminatedQuotes).
		Str("duration", parseDur.String()).
		Msg("parsed extract")

	s.summary.DurationDecode += decodeDur
	s.summary.DurationParse += parseDur
	return patients, stats, dec
}

// Process runs the current extract through eligibility. For batch 2 the
// processed keys of the billing month are consulted; a store failure there
// aborts the run.
func (s *Session) Process(ctx context.Context, buf []byte, csvName string) (eligibility.Stats, error) {
	patients, stats, dec := s.load(buf, csvName)

	s.month = s.cfg.TargetMonth
	if s.month == "" {
		s.month = dominantMonth(patients)
	}

	start := time.Now()
	opts := s.options()
	if s.cfg.Batch == 2 {
		if s.month == "" {
			s.log.Warn().Msg("no billing month derivable; duplicate check skipped")
		} else {
			set, err := s.dedup.Lookup(ctx, s.month)
			if err != nil {
				return eligibility.Stats{}, &PipelineError{Phase: "dedup", Err: err}
			}
			s.log.Info().Str("month", s.month).Int("billed_keys", len(set)).Msg("loaded processed keys")
			opts.Billed = s.dedup.Matcher(set)
		}
	}
	s.current = eligibility.Filter(patients, opts)
	st := s.current.Stats()
	filterDur := time.Since(start)

	s.log.Info().
		Str("month", s.month).
		Int("patients", st.Total).
		Int("municipality", st.Municipality).
		Int("duplicates", st.Duplicates).
		Int("included", st.Included).
		Str("duration", filterDur.String()).
		Msg("filtered patients")

	s.summary.CSVFileName = csvName
	s.summary.Encoding = dec.Label
	s.summary.LinesRead = stats.Lines
	s.summary.RecordsParsed = stats.Records
	s.summary.HeaderRows = stats.HeaderRows
	s.summary.ShortRows = stats.ShortRows
	s.summary.Patients = st.Total
	s.summary.Municipality = st.Municipality
	s.summary.Duplicates = st.Duplicates
	s.summary.Included = st.Included
	s.summary.DurationFilter += filterDur
	return st, nil
}

// ProcessPreviousMonth loads a late submission. Its rows skip the duplicate
// check and start excluded.
func (s *Session) ProcessPreviousMonth(ctx context.Context, buf []byte, csvName string) (eligibility.Stats, error) {
	patients, _, _ := s.load(buf, csvName)

	start := time.Now()
	s.previous = eligibility.FilterPreviousMonth(patients, s.options())
	st := s.previous.Stats()
	s.summary.DurationFilter += time.Since(start)

	s.log.Info().
		Str("file", csvName).
		Int("patients", st.Total).
		Int("municipality", st.Municipality).
		Msg("loaded previous-month extract")
	return st, nil
}

// SetIncluded overrides the inclusion of a current-extract row.
func (s *Session) SetIncluded(row int, included bool) error {
	p, ok := s.current.ByRow(row)
	if !ok {
		return fmt.Errorf("row %d is not a target row", row)
	}
	p.Included = included
	return nil
}

// SetPreviousIncluded overrides the inclusion of a previous-month row.
func (s *Session) SetPreviousIncluded(row int, included bool) error {
	p, ok := s.previous.ByRow(row)
	if !ok {
		return fmt.Errorf("row %d is not a previous-month target row", row)
	}
	p.Included = included
	return nil
}

// IncludeAllPrevious opts every previous-month target row in.
func (s *Session) IncludeAllPrevious() int {
	for _, p := range s.previous.Target {
		p.Included = true
	}
	return len(s.previous.Target)
}

// Rows returns the grouping input: included current rows, then included
// previous-month rows.
func (s *Session) Rows() []*model.Patient {
	rows := s.current.Included()
	return append(rows, s.previous.Included()...)
}

// dominantMonth picks the year-month most rows fall in, the newest
// on a tie. Rows without a derivable month are ignored.
func dominantMonth(patients []*model.Patient) string {
	counts := make(map[string]int)
	for _, p := range patients {
		if ym := normalize.YearMonth(p.TreatmentDate); ym != "" {
			counts[ym]++
		}
	}
	months := make([]string, 0, len(counts))
	for m := range counts {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool {
		if counts[months[i]] != counts[months[j]] {
			return counts[months[i]] > counts[months[j]]
		}
		return months[i] > months[j]
	})
	if len(months) == 0 {
		return ""
	}
	return months[0]
}
