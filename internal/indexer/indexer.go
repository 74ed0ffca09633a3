package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/hybridrag/internal/chunker"
	"github.com/dshills/hybridrag/internal/embedder"
	"github.com/dshills/hybridrag/internal/storage"
	"github.com/dshills/hybridrag/pkg/types"
)

// ErrIndexingInProgress is returned when IndexCorpus is called while
// another run holds the lock
var ErrIndexingInProgress = errors.New("indexing already in progress")

// Indexer coordinates the indexing pipeline: load -> chunk -> embed -> store
type Indexer struct {
	storage  storage.Storage
	embedder embedder.Embedder // Nil: chunks are stored without vectors
	logger   zerolog.Logger
	lock     IndexLock

	// Worker pool configuration
	workers int
}

// Config contains configuration for one indexing run
type Config struct {
	Workers            int  // Documents processed concurrently (default: runtime.NumCPU())
	EmbeddingBatch     int  // Texts per embedding request (default and max: embedder.MaxBatchSize)
	GenerateEmbeddings bool // Requires an embedder
	ForceReindex       bool // Re-index documents whose content hash is unchanged
	Chunking           chunker.Config
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	DocumentsIndexed  int
	DocumentsSkipped  int
	DocumentsFailed   int
	ChunksCreated     int
	EmbeddingsCreated int
	EmbeddingsFailed  int
	Duration          time.Duration
	ErrorMessages     []string
}

// Option configures an Indexer
type Option func(*Indexer)

// WithLogger sets the logger (default: disabled)
func WithLogger(logger zerolog.Logger) Option {
	return func(idx *Indexer) { idx.logger = logger }
}

// New creates an Indexer that stores chunks without embeddings
func New(store storage.Storage, opts ...Option) *Indexer {
	idx := &Indexer{
		storage: store,
		logger:  zerolog.Nop(),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// NewWithEmbedder creates an Indexer that also embeds chunks
func NewWithEmbedder(store storage.Storage, emb embedder.Embedder, opts ...Option) *Indexer {
	idx := New(store, opts...)
	idx.embedder = emb
	return idx
}

// run holds the counters of one IndexCorpus call
type run struct {
	indexed, skipped, failed  atomic.Int32
	chunks, embedded, embFail atomic.Int32

	mu       sync.Mutex
	messages []string
}

func (r *run) errorf(format string, args ...any) {
	r.mu.Lock()
	r.messages = append(r.messages, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

// IndexCorpus ingests every document under root, which may also be a
// single file. Per-document failures are counted in the returned
// Statistics; only discovery errors, storage failures to start a run and
// context cancellation are returned as errors.
func (idx *Indexer) IndexCorpus(ctx context.Context, root string, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	if config == nil {
		config = &Config{GenerateEmbeddings: idx.embedder != nil}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = idx.workers
	}
	batch := config.EmbeddingBatch
	if batch <= 0 || batch > embedder.MaxBatchSize {
		batch = embedder.MaxBatchSize
	}

	split, err := chunker.New(config.Chunking)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()

	docs, err := discoverDocuments(root)
	if err != nil {
		return nil, fmt.Errorf("failed to discover documents: %w", err)
	}
	idx.logger.Info().Str("root", root).Int("documents", len(docs)).Msg("indexing corpus")

	r := &run{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, doc := range docs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := idx.indexDocument(gctx, doc, split, config, batch, r)
			if err == nil {
				return nil
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			r.failed.Add(1)
			r.errorf("%s: %v", doc.Source, err)
			idx.logger.Warn().Err(err).Str("source", doc.Source).Msg("document failed")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &Statistics{
		DocumentsIndexed:  int(r.indexed.Load()),
		DocumentsSkipped:  int(r.skipped.Load()),
		DocumentsFailed:   int(r.failed.Load()),
		ChunksCreated:     int(r.chunks.Load()),
		EmbeddingsCreated: int(r.embedded.Load()),
		EmbeddingsFailed:  int(r.embFail.Load()),
		Duration:          time.Since(startTime),
		ErrorMessages:     append([]string{}, r.messages...),
	}

	err = idx.storage.RecordIndexRun(ctx, &storage.IndexRun{
		RootPath:          root,
		DocumentsIndexed:  stats.DocumentsIndexed,
		DocumentsSkipped:  stats.DocumentsSkipped,
		ChunksCreated:     stats.ChunksCreated,
		EmbeddingsCreated: stats.EmbeddingsCreated,
		Duration:          stats.Duration,
	})
	if err != nil {
		return nil, err
	}

	idx.logger.Info().
		Int("indexed", stats.DocumentsIndexed).
		Int("skipped", stats.DocumentsSkipped).
		Int("failed", stats.DocumentsFailed).
		Int("chunks", stats.ChunksCreated).
		Int("embeddings", stats.EmbeddingsCreated).
		Dur("duration", stats.Duration).
		Msg("indexing complete")
	return stats, nil
}

// indexDocument chunks, embeds and stores one document
func (idx *Indexer) indexDocument(ctx context.Context, doc *sourceDocument, split *chunker.Chunker,
	config *Config, batch int, r *run) error {

	if doc.err != nil {
		return doc.err
	}

	existing, err := idx.storage.GetDocumentBySource(ctx, doc.Source)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return err
	default:
		if existing.ContentHash == doc.hash && !config.ForceReindex {
			r.skipped.Add(1)
			return nil
		}
		// The stored ID wins so chunk IDs stay stable across runs
		doc.ID = existing.ID
	}
	if doc.ID == "" {
		doc.ID = newDocumentID()
	}

	chunks, err := split.ChunkDocument(doc.Document)
	if err != nil {
		return err
	}

	var vectors [][]float32
	if config.GenerateEmbeddings && idx.embedder != nil {
		vectors, err = idx.embedChunks(ctx, doc.Source, chunks, batch, r)
		if err != nil {
			return err
		}
	}

	if err := idx.store(ctx, doc, chunks, vectors); err != nil {
		return err
	}

	r.indexed.Add(1)
	r.chunks.Add(int32(len(chunks)))
	for _, v := range vectors {
		if v != nil {
			r.embedded.Add(1)
		}
	}
	return nil
}

// embedChunks returns one vector per chunk, nil where the batch failed
func (idx *Indexer) embedChunks(ctx context.Context, source string, chunks []types.Chunk,
	batch int, r *run) ([][]float32, error) {

	vectors := make([][]float32, len(chunks))
	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err == nil && len(resp.Embeddings) != len(texts) {
			err = fmt.Errorf("%w: got %d embeddings for %d texts", embedder.ErrProviderFailed, len(resp.Embeddings), len(texts))
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.embFail.Add(int32(len(texts)))
			r.errorf("%s: chunks %d-%d: %v", source, start, end-1, err)
			idx.logger.Warn().Err(err).Str("source", source).Msg("embedding batch failed, storing chunks without vectors")
			continue
		}
		for i, e := range resp.Embeddings {
			if e != nil && len(e.Vector) > 0 {
				vectors[start+i] = e.Vector
			}
		}
	}
	return vectors, nil
}

// store persists a document, its chunks and their vectors in one transaction
func (idx *Indexer) store(ctx context.Context, doc *sourceDocument, chunks []types.Chunk, vectors [][]float32) error {
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	record := &storage.Document{
		ID:          doc.ID,
		Source:      doc.Source,
		Title:       doc.Title,
		Category:    doc.Category,
		ContentHash: doc.hash,
		SizeBytes:   int64(len(doc.Content)),
		Extra:       doc.Extra,
	}
	if len(chunks) > 0 {
		record.FileName = chunks[0].Metadata.FileName
	}
	if err := tx.UpsertDocument(ctx, record); err != nil {
		return err
	}
	if err := tx.ReplaceChunks(ctx, record.ID, chunks); err != nil {
		return err
	}

	for i, v := range vectors {
		if v == nil {
			continue
		}
		err := tx.UpsertEmbedding(ctx, &storage.Embedding{
			ChunkID:  chunks[i].ID,
			Vector:   v,
			Provider: idx.embedder.Provider(),
			Model:    idx.embedder.Model(),
		})
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
