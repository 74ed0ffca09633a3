package storage

import (
	"context"
	"time"

	"github.com/dshills/hybridrag/pkg/types"
)

// Storage persists the document corpus, its chunks and their embeddings
type Storage interface {
	// Document operations
	UpsertDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	GetDocumentBySource(ctx context.Context, source string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Chunk operations
	ReplaceChunks(ctx context.Context, documentID string, chunks []types.Chunk) error
	ListChunks(ctx context.Context) ([]types.Chunk, error)
	GetChunk(ctx context.Context, id string) (*types.Chunk, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	ListEmbeddings(ctx context.Context) ([]*Embedding, error)

	// Status operations
	RecordIndexRun(ctx context.Context, run *IndexRun) error
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a Storage bound to a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage
}

// Document is an ingested source document
type Document struct {
	ID          string // Assigned on first upsert when empty
	Source      string // URL or path, unique
	Title       string
	Category    string
	FileName    string
	ContentHash string // Hex SHA-256 of the raw content
	SizeBytes   int64
	Extra       map[string]string
	ChunkCount  int // Populated by reads
	IndexedAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Embedding is the stored vector of one chunk
type Embedding struct {
	ChunkID   string
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// IndexRun records one completed indexing pass
type IndexRun struct {
	ID                int64
	RootPath          string
	DocumentsIndexed  int
	DocumentsSkipped  int
	ChunksCreated     int
	EmbeddingsCreated int
	Duration          time.Duration
	CompletedAt       time.Time
}

// Status summarizes the stored corpus
type Status struct {
	DocumentsCount  int
	ChunksCount     int
	EmbeddingsCount int
	Dimension       int // Of the stored embeddings, 0 when none
	Provider        string
	Model           string
	DatabaseSizeMB  float64
	LastRun         *IndexRun // Nil before the first run
	SchemaVersion   string
	Health          HealthStatus
}

// HealthStatus reports whether the corpus is searchable
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	EmbeddingsComplete  bool // Every chunk has an embedding
}
