package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gyeh/welfarebill/internal/db"
	"github.com/gyeh/welfarebill/internal/exitcode"
	"github.com/gyeh/welfarebill/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres store schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	log := setup()
	ctx := context.Background()

	if !strings.HasPrefix(cfg.Store, "postgres://") && !strings.HasPrefix(cfg.Store, "postgresql://") {
		log.Error().Str("store", store.Describe(cfg.Store)).Msg("--store must be a postgres:// DSN (or set WELFAREBILL_STORE)")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.Store)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.StoreError)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, log); err != nil {
		log.Error().Err(err).Msg("migration failed")
		os.Exit(exitcode.StoreError)
	}

	log.Info().Msg("all migrations applied successfully")
	return nil
}
