// Package types provides shared type definitions for hybridrag.
//
// This package defines the domain types passed between the retrieval
// components: corpus chunks, scored results, and the search method that
// produced them.
//
// # Core Types
//
// Chunk is an immutable slice of a source document. Chunks are created when a
// corpus is loaded and replaced wholesale on reindex:
//
//	chunk := types.Chunk{
//	    ID:      "refunds_chunk_0",
//	    Content: "Refunds take 5-10 business days to appear...",
//	    Metadata: types.ChunkMetadata{
//	        Source:     "https://docs.example.com/refunds",
//	        ChunkIndex: 0,
//	        FileName:   "refunds.md",
//	    },
//	}
//
// ScoredResult is produced per query. It carries the raw and normalized score
// of each retrieval path, the fused score, and an optional re-rank score:
//
//	result.CombinedScore // alpha*NormalizedVectorScore + beta*NormalizedKeywordScore
//	result.RerankScore   // nil unless the re-rank stage ran
//
// ResultView is the flattened shape handed to prompt builders:
//
//	for _, r := range results {
//	    view := r.View()
//	    fmt.Printf("%s (%.3f)\n", view.Source, view.CombinedScore)
//	}
//
// # Errors
//
// ErrIndexUnavailable, ErrEmbeddingFailure and ErrRerankUnavailable describe
// degradations. They are wrapped and logged by the components that recover
// from them and are never fatal to a request.
package types
