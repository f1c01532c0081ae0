package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/welfarebill/internal/archive"
	"github.com/gyeh/welfarebill/internal/config"
	"github.com/gyeh/welfarebill/internal/dedup"
	"github.com/gyeh/welfarebill/internal/exitcode"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect or clear the render history",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rendered workbooks, newest first",
	RunE:  runArchiveList,
}

var archiveClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the render history",
	RunE:  runArchiveClear,
}

var (
	archiveDeleteID string
	clearWithKeys   bool
)

func init() {
	archiveClearCmd.Flags().StringVar(&archiveDeleteID, "id", "", "Delete only the entry with this ID")
	archiveClearCmd.Flags().BoolVar(&clearWithKeys, "with-keys", false, "Also clear every processed-key set")
	archiveCmd.AddCommand(archiveListCmd, archiveClearCmd)
	rootCmd.AddCommand(archiveCmd)
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	log := setup()
	ctx := context.Background()
	kv := openStore(ctx, log)
	defer kv.Close()

	entries, err := archive.New(kv, cfg.ArchiveLimit, log).List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to read archive")
		os.Exit(exitcode.StoreError)
	}
	if len(entries) == 0 {
		fmt.Println("Archive is empty")
		return nil
	}
	fmt.Printf("%-36s  %-19s  %-5s  %-5s  %s\n", "ID", "TIMESTAMP", "BATCH", "ROWS", "FILE")
	for _, e := range entries {
		fmt.Printf("%-36s  %-19s  %-5d  %-5d  %s (from %s)\n",
			e.ID, e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.BatchNumber, e.PatientCount, e.FileName, e.CSVFileName)
	}
	return nil
}

func runArchiveClear(cmd *cobra.Command, args []string) error {
	log := setup()
	ctx := context.Background()
	kv := openStore(ctx, log)
	defer kv.Close()

	l := archive.New(kv, cfg.ArchiveLimit, log)
	if archiveDeleteID != "" {
		if err := l.Delete(ctx, archiveDeleteID); err != nil {
			log.Error().Err(err).Msg("failed to delete archive entry")
			os.Exit(exitcode.StoreError)
		}
		fmt.Printf("Deleted archive entry %s\n", archiveDeleteID)
		return nil
	}

	if err := l.Clear(ctx); err != nil {
		log.Error().Err(err).Msg("failed to clear archive")
		os.Exit(exitcode.StoreError)
	}
	fmt.Println("Archive cleared")

	if clearWithKeys {
		e := dedup.New(kv, dedup.Options{Flat: cfg.DedupScope == config.ScopeFlat}, log)
		if err := e.Clear(ctx, ""); err != nil {
			log.Error().Err(err).Msg("failed to clear processed keys")
			os.Exit(exitcode.StoreError)
		}
		fmt.Println("Processed keys cleared")
	}
	return nil
}
