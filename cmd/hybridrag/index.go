package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/hybridrag/internal/embedder"
	"github.com/dshills/hybridrag/internal/indexer"
	"github.com/dshills/hybridrag/internal/storage"
)

func newIndexCmd(a *app) *cobra.Command {
	var (
		force        bool
		noEmbeddings bool
	)

	cmd := &cobra.Command{
		Use:   "index <dir>",
		Short: "Index a directory of documents",
		Long: `Index every .md, .markdown, .txt and .json file under dir (or a single
file). Unchanged documents are skipped unless --force is given. JSON files
hold an array of {id, title, url, content, category} records.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			emb, err := embedder.New(a.cfg.EmbedderConfig())
			if err != nil {
				return fmt.Errorf("failed to initialize embedder: %w", err)
			}
			defer emb.Close()

			idxCfg := a.cfg.IndexerConfig(force)
			if noEmbeddings {
				idxCfg.GenerateEmbeddings = false
			}

			idx := indexer.NewWithEmbedder(store, emb, indexer.WithLogger(a.logger))
			stats, err := idx.IndexCorpus(ctx, args[0], idxCfg)
			if err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}

			a.logger.Info().
				Int("indexed", stats.DocumentsIndexed).
				Int("skipped", stats.DocumentsSkipped).
				Int("failed", stats.DocumentsFailed).
				Dur("duration", stats.Duration).
				Msg("indexing complete")
			return writeJSON(cmd, stats)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "re-index documents even when unchanged")
	cmd.Flags().BoolVar(&noEmbeddings, "no-embeddings", false, "index for keyword search only")
	return cmd
}

// openStore opens the configured corpus database, creating its directory
func (a *app) openStore() (*storage.SQLiteStorage, error) {
	path := a.cfg.Storage.DBPath
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus database: %w", err)
	}
	return store, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
