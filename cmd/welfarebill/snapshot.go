package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/welfarebill/internal/exitcode"
	"github.com/gyeh/welfarebill/internal/model"
	"github.com/gyeh/welfarebill/internal/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect Parquet row snapshots",
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the rows of a snapshot file",
	RunE:  runSnapshotShow,
}

var snapshotFile string

func init() {
	snapshotShowCmd.Flags().StringVar(&snapshotFile, "file", "", "Path to the snapshot (required)")
	_ = snapshotShowCmd.MarkFlagRequired("file")
	snapshotCmd.AddCommand(snapshotShowCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshotShow(cmd *cobra.Command, args []string) error {
	log := setup()

	r, err := snapshot.Open(snapshotFile)
	if err != nil {
		log.Error().Err(err).Msg("failed to open snapshot")
		os.Exit(exitcode.InputError)
	}
	defer r.Close()

	fmt.Printf("=== %s: %d rows ===\n", snapshotFile, r.NumRows())
	fmt.Printf("%-4s %-5s %-8s %-10s %-16s %-10s %-11s %s\n",
		"#", "BATCH", "MONTH", "RECIPIENT", "NAME HASH", "INST", "DATE", "VISITS")
	buf := make([]model.SnapshotRow, 256)
	for {
		n, readErr := r.Read(buf)
		for _, row := range buf[:n] {
			date := "-"
			if row.CanonicalDate != nil {
				date = *row.CanonicalDate
			}
			visits := row.VisitSummary
			if row.PreviousMonth {
				visits += " (previous month)"
			}
			fmt.Printf("%-4d %-5d %-8s %-10s %-16s %-10s %-11s %s\n",
				row.RowNumber, row.Batch, row.YearMonth, row.RecipientNumber, row.NameHash, row.InstitutionCode, date, visits)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			log.Error().Err(readErr).Msg("failed to read snapshot rows")
			os.Exit(exitcode.InputError)
		}
	}
	return nil
}
