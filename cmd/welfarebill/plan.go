package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gyeh/welfarebill/internal/eligibility"
	"github.com/gyeh/welfarebill/internal/exitcode"
	"github.com/gyeh/welfarebill/internal/normalize"
	"github.com/gyeh/welfarebill/internal/pipeline"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry run: classify the extract and print the rows (no writes)",
	RunE:  runPlan,
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&cfg.FilePath, "file", "", "Path to the dispensing extract (required)")
	f.IntVar(&cfg.Batch, "batch", 1, "Billing batch: 1 or 2")
	f.StringVar(&cfg.PreviousMonthFile, "previous-month", "", "Late extract for an earlier month")
	f.StringVar(&cfg.TargetMonth, "month", "", "Billing month YYYY/MM (default: derived from the extract)")
	_ = planCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	log := setup()
	ctx := context.Background()

	validate(log)

	kv := openStore(ctx, log)
	defer kv.Close()

	sess, err := pipeline.NewSession(&cfg, kv, log)
	if err != nil {
		log.Error().Err(err).Msg("invalid options")
		os.Exit(exitcode.ConfigError)
	}

	sha, err := normalize.FileHash(cfg.FilePath)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash file")
		os.Exit(exitcode.InputError)
	}
	st := process(ctx, sess, log)
	sum := sess.Summary()

	fmt.Println("=== welfarebill plan ===")
	fmt.Printf("File:          %s\n", cfg.FilePath)
	fmt.Printf("SHA-256:       %s\n", sha)
	fmt.Printf("Encoding:      %s\n", sum.Encoding)
	fmt.Printf("Billing month: %s\n", sess.Month())
	fmt.Printf("Batch:         %d\n", cfg.Batch)
	fmt.Printf("Lines:         %d (%d records, %d header rows, %d short rows)\n",
		sum.LinesRead, sum.RecordsParsed, sum.HeaderRows, sum.ShortRows)
	fmt.Println()
	printStats("Current extract", st)
	printRows(sess.Views())

	if cfg.PreviousMonthFile != "" {
		printStats("Previous-month extract", sess.PreviousViews().Stats())
		printRows(sess.PreviousViews())
	}
	return nil
}

// process loads the extract and the optional previous-month extract into
// sess, exiting on failure.
func process(ctx context.Context, sess *pipeline.Session, log zerolog.Logger) eligibility.Stats {
	buf, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		log.Error().Err(err).Msg("failed to read extract")
		os.Exit(exitcode.InputError)
	}
	st, err := sess.Process(ctx, buf, filepath.Base(cfg.FilePath))
	if err != nil {
		log.Error().Err(err).Msg("processing failed")
		os.Exit(exitcode.StoreError)
	}

	if cfg.PreviousMonthFile != "" {
		prev, err := os.ReadFile(cfg.PreviousMonthFile)
		if err != nil {
			log.Error().Err(err).Msg("failed to read previous-month extract")
			os.Exit(exitcode.InputError)
		}
		if _, err := sess.ProcessPreviousMonth(ctx, prev, filepath.Base(cfg.PreviousMonthFile)); err != nil {
			log.Error().Err(err).Msg("previous-month processing failed")
			os.Exit(exitcode.InputError)
		}
	}
	return st
}

func printStats(title string, st eligibility.Stats) {
	fmt.Printf("%s:\n", title)
	fmt.Printf("  Patients:      %d\n", st.Total)
	fmt.Printf("  Municipality:  %d\n", st.Municipality)
	fmt.Printf("  Duplicates:    %d\n", st.Duplicates)
	fmt.Printf("  Included:      %d\n", st.Included)
	fmt.Printf("  Rehab support: %d\n", st.Rehab)
	fmt.Printf("  Intractable:   %d\n", st.Intractable)
	fmt.Printf("  Main insured:  %d\n", st.MainInsured)
	fmt.Println()
}

func printRows(v eligibility.Views) {
	if len(v.Target) == 0 {
		return
	}
	fmt.Printf("  %-5s %-4s %-10s %-10s %-10s %s\n", "ROW", "INC", "RECIPIENT", "DATE", "INST", "FLAGS")
	for _, p := range v.Target {
		inc := "no"
		if p.Included {
			inc = "yes"
		}
		flags := ""
		if p.Duplicate {
			flags = "duplicate "
		}
		if p.PreviousMonth {
			flags += "previous-month "
		}
		for _, l := range p.SubsidyLabels {
			flags += l
		}
		fmt.Printf("  %-5d %-4s %-10s %-10s %-10s %s\n", p.Row, inc, p.RecipientNumber, p.TreatmentDate, p.InstitutionCode, flags)
	}
	fmt.Println()
}
