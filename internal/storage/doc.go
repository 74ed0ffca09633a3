// Package storage provides SQLite-based persistence for the document corpus.
//
// The storage layer manages:
//   - Source documents and their content hashes
//   - Chunks cut from each document
//   - Vector embeddings for chunks
//   - A log of completed indexing runs
//
// The keyword and vector indexes are rebuilt in memory from this data on
// startup, see LoadCorpus.
//
// # Database Schema
//
// Tables:
//   - documents: Source, title, category, SHA-256 content hash
//   - chunks: Chunk text keyed by "<document>_chunk_<n>"
//   - embeddings: Little-endian float32 vectors, one per chunk
//   - index_runs: Statistics of each indexing pass
//   - schema_version: Applied migrations, ordered by semver
//
// Deleting a document cascades to its chunks and embeddings.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("hybridrag.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	doc := &storage.Document{Source: "https://docs.example.com/refunds", ContentHash: hash}
//	if err := tx.UpsertDocument(ctx, doc); err != nil {
//	    return err
//	}
//	if err := tx.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Build Tags
//
// The default build uses modernc.org/sqlite and needs no C compiler.
// Building with the sqlite_cgo tag switches to github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...
package storage
