package storage

import (
	"context"
	"fmt"

	"github.com/dshills/hybridrag/pkg/types"
)

// Corpus is the stored corpus in the shape the search indexes are built from
type Corpus struct {
	Chunks    []types.Chunk
	Vectors   map[string][]float32 // Keyed by chunk ID
	Dimension int
	Provider  string
	Model     string
	Skipped   int // Embeddings outside the dominant embedding space
}

// LoadCorpus reads every chunk and the embeddings that share the most
// common embedding space. Chunks without a usable embedding are still
// returned for keyword search.
func LoadCorpus(ctx context.Context, s Storage) (*Corpus, error) {
	chunks, err := s.ListChunks(ctx)
	if err != nil {
		return nil, err
	}
	embeddings, err := s.ListEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	corpus := &Corpus{
		Chunks:  chunks,
		Vectors: make(map[string][]float32, len(embeddings)),
	}
	if len(embeddings) == 0 {
		return corpus, nil
	}

	type space struct {
		dim             int
		provider, model string
	}
	counts := make(map[space]int)
	var best space
	for _, e := range embeddings {
		sp := space{len(e.Vector), e.Provider, e.Model}
		counts[sp]++
		if counts[sp] > counts[best] {
			best = sp
		}
	}
	corpus.Dimension, corpus.Provider, corpus.Model = best.dim, best.provider, best.model

	for _, e := range embeddings {
		if (space{len(e.Vector), e.Provider, e.Model}) != best {
			corpus.Skipped++
			continue
		}
		corpus.Vectors[e.ChunkID] = e.Vector
	}
	if corpus.Dimension == 0 {
		return nil, fmt.Errorf("stored embeddings have no dimension")
	}
	return corpus, nil
}
