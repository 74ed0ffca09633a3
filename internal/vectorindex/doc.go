// Package vectorindex provides cosine-similarity search over chunk
// embeddings behind the VectorIndex interface.
//
// Two implementations satisfy the same contract:
//
//   - Flat scans every stored vector. Results are exact; latency grows
//     linearly with the corpus.
//   - IVF partitions vectors into k-means lists at build time and, per query,
//     scans only the lists whose centroids are closest to the query. Latency
//     drops roughly by Lists/Probes; recall drops when a relevant vector sits
//     in a list that was not probed. With Probes == Lists the result is
//     identical to Flat. Corpora smaller than MinTrainSize skip training and
//     are scanned exhaustively.
//
// Both return at most limit hits sorted by similarity (descending), ties
// broken by insertion ordinal, so repeated queries are deterministic.
//
//	idx, err := vectorindex.New(vectorindex.KindIVF, entries, vectorindex.IVFConfig{Lists: 32, Probes: 4})
//	hits, err := idx.Search(ctx, queryVector, 10)
package vectorindex
