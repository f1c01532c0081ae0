package main

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gyeh/welfarebill/internal/config"
	"github.com/gyeh/welfarebill/internal/exitcode"
	"github.com/gyeh/welfarebill/internal/logging"
	"github.com/gyeh/welfarebill/internal/store"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:          "welfarebill",
	Short:        "Welfare dispensing extract → municipal claim workbook",
	Long:         "Reads a pharmacy's monthly dispensing extract, selects the municipality's welfare patients, drops rows already billed in batch 1 and writes the claim workbook.",
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.ConfigPath, "config", "", "YAML settings file")
	pf.StringVar(&cfg.Store, "store", os.Getenv("WELFAREBILL_STORE"), "Store DSN: memory:, file:<path>, sqlite:<path> or postgres://... (or set WELFAREBILL_STORE)")
	pf.StringVar(&cfg.LogFormat, "log-format", "", "Log format: text or json")
	pf.StringVar(&cfg.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&cfg.EncodingMode, "encoding", "", "Extract encoding: auto, ansi-first or utf8-first")
}

// setup overlays the YAML file on the flags, applies defaults and builds the
// run logger.
func setup() zerolog.Logger {
	if cfg.ConfigPath != "" {
		if err := cfg.LoadFromFile(cfg.ConfigPath); err != nil {
			log := logging.Setup(cfg.LogFormat, cfg.LogLevel)
			log.Error().Err(err).Msg("config file rejected")
			os.Exit(exitcode.ConfigError)
		}
	}
	cfg.ApplyDefaults()
	return logging.Setup(cfg.LogFormat, cfg.LogLevel)
}

func openStore(ctx context.Context, log zerolog.Logger) store.KV {
	kv, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		log.Error().Err(err).Str("store", store.Describe(cfg.Store)).Msg("store unavailable")
		os.Exit(exitcode.StoreError)
	}
	return kv
}

// validate checks the input flags; bad option values are configuration
// errors, a missing or unreadable file is a usage error.
func validate(log zerolog.Logger) {
	err := cfg.Validate()
	if err == nil {
		return
	}
	log.Error().Err(err).Msg("config validation failed")
	if errors.Is(err, config.ErrInvalid) {
		os.Exit(exitcode.ConfigError)
	}
	os.Exit(exitcode.UsageError)
}
