// Package searcher implements hybrid document search combining vector
// similarity and BM25 keyword matching.
//
// The searcher provides three search modes:
//   - Hybrid: vector + BM25, fused by weighted sum (default)
//   - Semantic: vector similarity only ("vector" and "faiss" are aliases)
//   - Keyword: BM25 only
//
// # Basic Usage
//
//	s, err := searcher.NewSearcher(emb, searcher.Config{}, searcher.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := s.Rebuild(corpus.Chunks, corpus.Vectors); err != nil {
//	    return err
//	}
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query: "how do I refund a payment",
//	    Limit: 5,
//	})
//	for _, r := range resp.Results {
//	    fmt.Printf("%.3f %s\n", r.CombinedScore, r.Chunk.Metadata.Source)
//	}
//
// # Pipeline
//
//  1. Keyword and vector retrieval run concurrently, each fetching
//     limit * CandidateMultiplier candidates.
//  2. Each list is normalized (minmax, softmax or none).
//  3. Fusion: combined = alpha * vector + beta * keyword. A chunk missing
//     from one list scores 0 on that side. Weights come from the request,
//     else from the profile of the query kind (error-code queries lean on
//     keywords).
//  4. Optional re-ranking of the fused candidates.
//  5. Truncation to the limit.
//
// # Degradation
//
// A failed or slow query embedding, a corpus without embeddings, or a
// missing re-ranker never fail a search. The response reports what ran in
// SearchMethod and lists the problems in Warnings with Degraded set. A
// search before the first Rebuild returns no results with a warning.
//
// # Rebuild
//
// Indexes are immutable. Rebuild builds a new keyword and vector index and
// swaps them in atomically; searches in flight finish on the old snapshot.
package searcher
