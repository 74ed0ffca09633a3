// Package rerank reorders fused search results with a finer relevance signal.
//
// A Scorer assigns a relevance score to each (query, document) pair. Two are
// provided:
//
//   - Lexical: 0.6 * Jaccard(query terms, doc terms) + 0.4 * term-frequency
//     overlap, capped at 1. Terms shorter than three characters are ignored.
//     It needs no model and never fails.
//   - CrossEncoder: an HTTP client for servers that expose the llama.cpp
//     /v1/rerank endpoint.
//
// Stage wraps a Scorer and enforces the re-ranking contract: the output is a
// reordering of at most topK input results, never new ones, and every scored
// result carries its RerankScore. A failing scorer falls back to Lexical for
// that call. A Stage without a scorer is the identity and logs
// ErrRerankUnavailable once.
package rerank
