package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gyeh/welfarebill/internal/exitcode"
	"github.com/gyeh/welfarebill/internal/pipeline"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the claim workbook and record the batch",
	RunE:  runRender,
}

var (
	includeRows         string
	excludeRows         string
	includePreviousRows string
	includeAllPrevious  bool
)

func init() {
	f := renderCmd.Flags()
	f.StringVar(&cfg.FilePath, "file", "", "Path to the dispensing extract (required)")
	f.IntVar(&cfg.Batch, "batch", 1, "Billing batch: 1 or 2")
	f.StringVar(&cfg.PreviousMonthFile, "previous-month", "", "Late extract for an earlier month")
	f.StringVar(&cfg.TargetMonth, "month", "", "Billing month YYYY/MM (default: derived from the extract)")
	f.StringVar(&cfg.OutputDir, "out", "", "Output directory (default .)")
	f.StringVar(&cfg.TemplatePath, "template", "", "Workbook template (default: built-in)")
	f.StringVar(&cfg.SnapshotPath, "snapshot", "", "Also write the rendered rows to this Parquet file")
	f.StringVar(&cfg.PharmacyName, "pharmacy", "", "Pharmacy name")
	f.StringVar(&cfg.MedicalCode, "medical-code", "", "10-digit medical institution code of the pharmacy")
	f.StringVar(&includeRows, "include-rows", "", "Comma-separated source rows to opt in (e.g. duplicates)")
	f.StringVar(&excludeRows, "exclude-rows", "", "Comma-separated source rows to leave out")
	f.StringVar(&includePreviousRows, "include-previous-rows", "", "Comma-separated previous-month rows to opt in")
	f.BoolVar(&includeAllPrevious, "include-all-previous", false, "Opt in every previous-month row")
	_ = renderCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	log := setup()
	ctx := context.Background()

	validate(log)
	if err := cfg.ValidateSettings(); err != nil {
		log.Error().Err(err).Msg("pharmacy settings incomplete; refusing to render")
		os.Exit(exitcode.ConfigError)
	}

	include := mustRows(log, "--include-rows", includeRows)
	exclude := mustRows(log, "--exclude-rows", excludeRows)
	includePrev := mustRows(log, "--include-previous-rows", includePreviousRows)

	kv := openStore(ctx, log)
	defer kv.Close()

	sess, err := pipeline.NewSession(&cfg, kv, log)
	if err != nil {
		log.Error().Err(err).Msg("invalid options")
		os.Exit(exitcode.ConfigError)
	}
	process(ctx, sess, log)

	partial := false
	apply := func(flag string, rows []int, set func(int, bool) error, included bool) {
		for _, row := range rows {
			if err := set(row, included); err != nil {
				log.Warn().Err(err).Str("flag", flag).Msg("row override ignored")
				partial = true
			}
		}
	}
	apply("--include-rows", include, sess.SetIncluded, true)
	apply("--exclude-rows", exclude, sess.SetIncluded, false)
	apply("--include-previous-rows", includePrev, sess.SetPreviousIncluded, true)
	if includeAllPrevious {
		n := sess.IncludeAllPrevious()
		log.Info().Int("rows", n).Msg("included all previous-month rows")
	}

	res, err := sess.RenderToDir(ctx, cfg.OutputDir, filepath.Base(cfg.FilePath))
	if err != nil {
		var pe *pipeline.PipelineError
		if errors.As(err, &pe) {
			log.Error().Err(pe.Err).Str("phase", pe.Phase).Msg("render failed")
			if pe.Phase == "settings" {
				os.Exit(exitcode.ConfigError)
			}
			os.Exit(exitcode.RenderError)
		}
		log.Error().Err(err).Msg("render failed")
		os.Exit(exitcode.RenderError)
	}

	sum := res.Summary
	fmt.Printf("Render complete: %d rows written to %s (%.1fs)\n", sum.RowsRendered, res.Path, sum.DurationTotal.Seconds())
	fmt.Printf("  Billing month:  %s\n", sess.Month())
	fmt.Printf("  Duplicates:     %d\n", sum.Duplicates)
	fmt.Printf("  Previous month: %d\n", sum.PreviousMonth)
	fmt.Printf("  Skipped rows:   %d\n", sum.RowsSkipped)
	if cfg.Batch == 1 {
		fmt.Printf("  Keys recorded:  %d\n", sum.KeysSaved)
	}

	if partial || sum.RowsSkipped > 0 || res.Keys.Dropped {
		os.Exit(exitcode.PartialSuccess)
	}
	return nil
}

func mustRows(log zerolog.Logger, flag, s string) []int {
	rows, err := parseRows(s)
	if err != nil {
		log.Error().Err(err).Str("flag", flag).Msg("invalid row list")
		os.Exit(exitcode.UsageError)
	}
	return rows
}

// parseRows reads a list like "3,5, 12".
func parseRows(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var rows []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("bad row number %q", part)
		}
		rows = append(rows, n)
	}
	return rows, nil
}
