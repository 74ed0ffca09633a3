package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/hybridrag/internal/embedder"
)

type embedOutput struct {
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Preview   []float32 `json:"preview"`
}

func newEmbedCmd(a *app) *cobra.Command {
	var preview int

	cmd := &cobra.Command{
		Use:   "embed <text>",
		Short: "Embed text with the configured provider",
		Long: `Generate an embedding with the configured provider and print the provider,
model, dimension and the first values of the vector. Useful to check API
keys and connectivity.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			emb, err := embedder.New(a.cfg.EmbedderConfig())
			if err != nil {
				return fmt.Errorf("failed to initialize embedder: %w", err)
			}
			defer emb.Close()

			out, err := emb.GenerateEmbedding(cmd.Context(), embedder.EmbeddingRequest{Text: args[0]})
			if err != nil {
				return fmt.Errorf("embedding failed: %w", err)
			}

			n := min(max(preview, 0), len(out.Vector))
			return writeJSON(cmd, embedOutput{
				Provider:  out.Provider,
				Model:     out.Model,
				Dimension: out.Dimension,
				Preview:   out.Vector[:n],
			})
		},
	}

	cmd.Flags().IntVar(&preview, "preview", 8, "number of vector values to print")
	return cmd
}
