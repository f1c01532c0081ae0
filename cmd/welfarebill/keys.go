package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gyeh/welfarebill/internal/config"
	"github.com/gyeh/welfarebill/internal/dedup"
	"github.com/gyeh/welfarebill/internal/exitcode"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect or clear the processed-key sets used by batch 2",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored key sets and their sizes",
	RunE:  runKeysList,
}

var keysClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear one month's key set, or all of them",
	RunE:  runKeysClear,
}

var (
	keysMonth string
	keysAll   bool
)

func init() {
	keysClearCmd.Flags().StringVar(&keysMonth, "month", "", "Billing month YYYY/MM to clear")
	keysClearCmd.Flags().BoolVar(&keysAll, "all", false, "Clear every key set")
	keysCmd.AddCommand(keysListCmd, keysClearCmd)
	rootCmd.AddCommand(keysCmd)
}

func keyEngine(log zerolog.Logger) (*dedup.Engine, func()) {
	kv := openStore(context.Background(), log)
	e := dedup.New(kv, dedup.Options{
		Flat:     cfg.DedupScope == config.ScopeFlat,
		Capacity: cfg.DedupCapacity,
	}, log)
	return e, func() { kv.Close() }
}

func runKeysList(cmd *cobra.Command, args []string) error {
	log := setup()
	e, done := keyEngine(log)
	defer done()

	months, err := e.Months(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("failed to read processed keys")
		os.Exit(exitcode.StoreError)
	}
	if len(months) == 0 {
		fmt.Println("No processed keys stored")
		return nil
	}
	for _, m := range months {
		name := m.Month
		if name == "" {
			name = dedup.FlatKey
		}
		fmt.Printf("%-16s %6d keys\n", name, m.Keys)
	}
	return nil
}

func runKeysClear(cmd *cobra.Command, args []string) error {
	log := setup()
	if keysMonth == "" && !keysAll {
		log.Error().Msg("--month or --all is required")
		os.Exit(exitcode.UsageError)
	}
	cfg.TargetMonth = keysMonth
	if err := cfg.ValidateOptions(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.ConfigError)
	}

	e, done := keyEngine(log)
	defer done()

	month := keysMonth
	if keysAll {
		month = ""
	}
	if err := e.Clear(context.Background(), month); err != nil {
		log.Error().Err(err).Msg("failed to clear processed keys")
		os.Exit(exitcode.StoreError)
	}
	if month == "" {
		fmt.Println("All processed keys cleared")
	} else {
		fmt.Printf("Processed keys for %s cleared\n", month)
	}
	return nil
}
