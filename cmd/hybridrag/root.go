package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/hybridrag/internal/config"
	"github.com/dshills/hybridrag/internal/logging"
)

// app holds the global flags and what PersistentPreRunE derives from them
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "hybridrag",
		Short: "Hybrid BM25 + vector document retrieval",
		Long: `hybridrag indexes a corpus of markdown, text and JSON documents into SQLite
and answers queries with a weighted fusion of BM25 keyword scores and
embedding similarity, optionally re-ranked.

Run "hybridrag serve" to expose the corpus to MCP clients over stdio.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", os.Getenv("HYBRIDRAG_CONFIG"), "YAML configuration file")
	flags.StringVar(&a.dbPath, "db", "", "corpus database path (overrides storage.db_path)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(a),
		newIndexCmd(a),
		newSearchCmd(a),
		newEmbedCmd(a),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration, applies flag overrides and builds the
// stderr logger
func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Storage.DBPath = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}
