// Package keyword implements the tokenizer, inverted index and BM25 ranking
// used for keyword retrieval.
//
// An Index is built once from a fixed slice of chunks and is immutable
// afterwards, so any number of goroutines may search it concurrently.
// Rebuilding means constructing a new Index and swapping the pointer:
//
//	idx := keyword.NewIndex(chunks)
//	hits := idx.Search("card declined error", 10)
//	for _, h := range hits {
//	    fmt.Println(h.ChunkID, h.Score)
//	}
//
// # Scoring
//
// Scores follow Okapi BM25 with k1 = 1.2 and b = 0.75:
//
//	score(d, q) = Σ idf(t) * tf(t,d)*(k1+1) / (tf(t,d) + k1*(1 - b + b*|d|/avgdl))
//	idf(t)      = ln(1 + (N - df(t) + 0.5) / (df(t) + 0.5))
//
// The IDF form is the non-negative variant, so a term present in every chunk
// still contributes a small positive weight. Only chunks with a positive
// score are returned. Ties are broken by insertion order, which makes results
// deterministic for a fixed index and query.
//
// An empty query, a query made only of separators, or an empty index yields
// an empty result rather than an error.
package keyword
