// Package indexer ingests a document corpus into storage.
//
// # Basic Usage
//
//	idx := indexer.NewWithEmbedder(store, emb, indexer.WithLogger(logger))
//
//	stats, err := idx.IndexCorpus(ctx, "./docs", &indexer.Config{
//	    GenerateEmbeddings: true,
//	})
//
//	fmt.Printf("Indexed %d documents in %v\n", stats.DocumentsIndexed, stats.Duration)
//
// # Indexing Pipeline
//
//  1. Discovery: .md, .markdown and .txt files are one document each; a
//     .json file holds an array of {id, title, url, content, category}
//     records, one document per record. Hidden paths are skipped.
//  2. Incremental decision: documents whose SHA-256 content hash matches the
//     stored one are skipped unless ForceReindex is set.
//  3. Chunk: recursive character splitting (see package chunker).
//  4. Embed: chunk texts are sent in batches of up to 100. A failed batch is
//     counted and its chunks are stored without vectors, so keyword search
//     still covers them.
//  5. Store: one transaction per document replaces its chunks and
//     embeddings.
//
// Documents are processed by a bounded errgroup worker pool. Only one
// IndexCorpus call may run at a time per Indexer; a concurrent call fails
// with ErrIndexingInProgress.
package indexer
