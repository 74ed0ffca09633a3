package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/hybridrag/internal/embedder"
	"github.com/dshills/hybridrag/internal/fusion"
	"github.com/dshills/hybridrag/internal/rerank"
	"github.com/dshills/hybridrag/internal/searcher"
	"github.com/dshills/hybridrag/internal/storage"
	"github.com/dshills/hybridrag/pkg/types"
)

type searchOutput struct {
	Query         string             `json:"query"`
	Mode          string             `json:"mode"`
	SearchMethod  string             `json:"searchMethod"`
	QueryKind     string             `json:"queryKind"`
	Weights       fusion.Weights     `json:"weights"`
	Normalization string             `json:"normalization"`
	Reranked      bool               `json:"reranked"`
	Degraded      bool               `json:"degraded"`
	Warnings      []string           `json:"warnings,omitempty"`
	Results       []types.ResultView `json:"results"`
	DurationMS    int64              `json:"durationMs"`
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		limit         int
		mode          string
		alpha         float64
		normalization string
		temperature   float64
		rerankResults bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed corpus",
		Long: `Run a hybrid search against the stored corpus and print the results as
JSON. Combines keyword (BM25) and semantic (vector) retrieval; --mode
restricts it to one of them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			req := searcher.SearchRequest{
				Query:         args[0],
				Limit:         limit,
				Mode:          searcher.SearchMode(mode),
				Normalization: fusion.Method(normalization),
				Temperature:   temperature,
				Rerank:        rerankResults || a.cfg.Rerank.Enabled,
			}
			if cmd.Flags().Changed("alpha") {
				req.Weights = &fusion.Weights{Vector: alpha, Keyword: 1 - alpha}
			}

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

			srch, closeScorer, err := a.newSearcher(emb)
			if err != nil {
				return err
			}
			defer closeScorer()

			corpus, err := storage.LoadCorpus(ctx, store)
			if err != nil {
				return fmt.Errorf("failed to load corpus: %w", err)
			}
			if err := srch.Rebuild(corpus.Chunks, corpus.Vectors); err != nil {
				return err
			}

			resp, err := srch.Search(ctx, req)
			if err != nil {
				return err
			}
			for _, w := range resp.Warnings {
				a.logger.Warn().Msg(w)
			}

			return writeJSON(cmd, searchOutput{
				Query:         req.Query,
				Mode:          string(resp.Mode),
				SearchMethod:  string(resp.SearchMethod),
				QueryKind:     resp.QueryKind.String(),
				Weights:       resp.Weights,
				Normalization: string(resp.Normalization),
				Reranked:      resp.Reranked,
				Degraded:      resp.Degraded,
				Warnings:      resp.Warnings,
				Results:       types.Views(resp.Results),
				DurationMS:    resp.Duration.Milliseconds(),
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", searcher.DefaultLimit, "maximum number of results")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(searcher.ModeHybrid), "hybrid, semantic or keyword")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "vector weight; keyword weight is 1 - alpha (default: query profile)")
	cmd.Flags().StringVar(&normalization, "normalization", "", "minmax, softmax or none (default: configured)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "softmax temperature (default: configured)")
	cmd.Flags().BoolVar(&rerankResults, "rerank", false, "re-rank the fused results")
	return cmd
}

// newSearcher builds a searcher with the configured re-ranker. The returned
// func releases the cross-encoder client, if any.
func (a *app) newSearcher(emb embedder.Embedder) (*searcher.Searcher, func(), error) {
	closeScorer := func() {}

	var scorer rerank.Scorer = rerank.Lexical{}
	if a.cfg.Rerank.Endpoint != "" {
		ce := rerank.NewCrossEncoder(a.cfg.CrossEncoderConfig())
		closeScorer = func() { _ = ce.Close() }
		scorer = ce
	}
	stageCfg := a.cfg.StageConfig()
	stageCfg.Logger = &a.logger

	srch, err := searcher.NewSearcher(emb, a.cfg.SearcherConfig(),
		searcher.WithLogger(a.logger),
		searcher.WithReranker(rerank.NewStage(scorer, stageCfg)))
	if err != nil {
		closeScorer()
		return nil, nil, fmt.Errorf("failed to initialize searcher: %w", err)
	}
	return srch, closeScorer, nil
}
