package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/hybridrag/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidDocument is returned when a document cannot be stored
	ErrInvalidDocument = errors.New("invalid document")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	store
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer; also keeps ":memory:" databases on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens the database at dbPath and migrates it to the
// current schema
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{store: store{q: db}, db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{store: store{q: tx}, tx: tx}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	store
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions not supported")
}

// store holds the queries shared by the database and its transactions
type store struct {
	q querier
}

// Document operations

// UpsertDocument inserts doc or updates the document with the same source.
// doc.ID is assigned on first insert when empty, and set to the stored ID
// on update.
func (s *store) UpsertDocument(ctx context.Context, doc *Document) error {
	if doc.Source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidDocument)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	extra, err := encodeExtra(doc.Extra)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = now
	}

	query := `
		INSERT INTO documents (id, source, title, category, file_name, content_hash,
			size_bytes, extra, indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			file_name = excluded.file_name,
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			extra = excluded.extra,
			indexed_at = excluded.indexed_at,
			updated_at = excluded.updated_at
		RETURNING id
	`
	err = s.q.QueryRowContext(ctx, query,
		doc.ID, doc.Source, doc.Title, doc.Category, doc.FileName, doc.ContentHash,
		doc.SizeBytes, extra, doc.IndexedAt, now, now,
	).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	err = s.q.QueryRowContext(ctx, "SELECT created_at FROM documents WHERE id = ?", doc.ID).Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	doc.UpdatedAt = now
	return nil
}

const documentColumns = `
	d.id, d.source, d.title, d.category, d.file_name, d.content_hash, d.size_bytes,
	d.extra, d.indexed_at, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id)
`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var (
		doc   Document
		extra sql.NullString
	)
	err := row.Scan(&doc.ID, &doc.Source, &doc.Title, &doc.Category, &doc.FileName,
		&doc.ContentHash, &doc.SizeBytes, &extra, &doc.IndexedAt, &doc.CreatedAt,
		&doc.UpdatedAt, &doc.ChunkCount)
	if err != nil {
		return nil, err
	}
	if doc.Extra, err = decodeExtra(extra); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *store) getDocument(ctx context.Context, where string, arg any) (*Document, error) {
	query := "SELECT " + documentColumns + " FROM documents d WHERE " + where
	doc, err := scanDocument(s.q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (s *store) GetDocument(ctx context.Context, id string) (*Document, error) {
	return s.getDocument(ctx, "d.id = ?", id)
}

func (s *store) GetDocumentBySource(ctx context.Context, source string) (*Document, error) {
	return s.getDocument(ctx, "d.source = ?", source)
}

// ListDocuments returns every document ordered by source
func (s *store) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+documentColumns+" FROM documents d ORDER BY d.source")
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document with its chunks and embeddings
func (s *store) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Chunk operations

// ReplaceChunks deletes the chunks of a document, and their embeddings,
// and inserts chunks in their place
func (s *store) ReplaceChunks(ctx context.Context, documentID string, chunks []types.Chunk) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	query := `
		INSERT INTO chunks (id, document_id, chunk_index, content, content_hash, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	for i := range chunks {
		c := &chunks[i]
		if err := c.Validate(); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		_, err := s.q.ExecContext(ctx, query,
			c.ID, documentID, c.Metadata.ChunkIndex, c.Content, c.ContentHash(), c.TokenCount(), now)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

const chunkColumns = `
	c.id, c.content, c.chunk_index, d.source, d.file_name, d.title, d.category, d.extra
	FROM chunks c JOIN documents d ON c.document_id = d.id
`

func scanChunk(row interface{ Scan(...any) error }) (types.Chunk, error) {
	var (
		c     types.Chunk
		extra sql.NullString
	)
	err := row.Scan(&c.ID, &c.Content, &c.Metadata.ChunkIndex, &c.Metadata.Source,
		&c.Metadata.FileName, &c.Metadata.Title, &c.Metadata.Category, &extra)
	if err != nil {
		return c, err
	}
	c.Metadata.Extra, err = decodeExtra(extra)
	return c, err
}

// ListChunks returns every chunk, with its document metadata, ordered by
// source and chunk index
func (s *store) ListChunks(ctx context.Context) ([]types.Chunk, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+chunkColumns+" ORDER BY d.source, c.chunk_index")
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []types.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *store) GetChunk(ctx context.Context, id string) (*types.Chunk, error) {
	c, err := scanChunk(s.q.QueryRowContext(ctx, "SELECT "+chunkColumns+" WHERE c.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return &c, nil
}

// Embedding operations

func (s *store) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	if len(embedding.Vector) == 0 {
		return errors.New("embedding vector is empty")
	}
	embedding.Dimension = len(embedding.Vector)
	embedding.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO embeddings (chunk_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			created_at = excluded.created_at
	`
	_, err := s.q.ExecContext(ctx, query,
		embedding.ChunkID, SerializeVector(embedding.Vector), embedding.Dimension,
		embedding.Provider, embedding.Model, embedding.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for chunk %s: %w", embedding.ChunkID, err)
	}
	return nil
}

func (s *store) ListEmbeddings(ctx context.Context) ([]*Embedding, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT chunk_id, vector, dimension, provider, model, created_at
		FROM embeddings ORDER BY chunk_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var embeddings []*Embedding
	for rows.Next() {
		var (
			e    Embedding
			blob []byte
		)
		if err := rows.Scan(&e.ChunkID, &blob, &e.Dimension, &e.Provider, &e.Model, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Vector = DeserializeVector(blob)
		embeddings = append(embeddings, &e)
	}
	return embeddings, rows.Err()
}

// Status operations

func (s *store) RecordIndexRun(ctx context.Context, run *IndexRun) error {
	if run.CompletedAt.IsZero() {
		run.CompletedAt = time.Now().UTC()
	}
	result, err := s.q.ExecContext(ctx, `
		INSERT INTO index_runs (root_path, documents_indexed, documents_skipped,
			chunks_created, embeddings_created, duration_ms, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.RootPath, run.DocumentsIndexed, run.DocumentsSkipped, run.ChunksCreated,
		run.EmbeddingsCreated, run.Duration.Milliseconds(), run.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to record index run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	run.ID = id
	return nil
}

func (s *store) lastIndexRun(ctx context.Context) (*IndexRun, error) {
	var (
		run        IndexRun
		durationMS int64
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, root_path, documents_indexed, documents_skipped, chunks_created,
			embeddings_created, duration_ms, completed_at
		FROM index_runs ORDER BY id DESC LIMIT 1
	`).Scan(&run.ID, &run.RootPath, &run.DocumentsIndexed, &run.DocumentsSkipped,
		&run.ChunksCreated, &run.EmbeddingsCreated, &durationMS, &run.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}

// GetStatus summarizes the stored corpus
func (s *store) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{}

	counts := []struct {
		table string
		dst   *int
	}{
		{"documents", &status.DocumentsCount},
		{"chunks", &status.ChunksCount},
		{"embeddings", &status.EmbeddingsCount},
	}
	for _, c := range counts {
		if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}
	status.Health.DatabaseAccessible = true

	// Most common embedding space
	err := s.q.QueryRowContext(ctx, `
		SELECT dimension, provider, model FROM embeddings
		GROUP BY dimension, provider, model
		ORDER BY COUNT(*) DESC LIMIT 1
	`).Scan(&status.Dimension, &status.Provider, &status.Model)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read embedding model: %w", err)
	}
	status.Health.EmbeddingsAvailable = status.EmbeddingsCount > 0
	status.Health.EmbeddingsComplete = status.ChunksCount > 0 && status.EmbeddingsCount == status.ChunksCount

	if status.LastRun, err = s.lastIndexRun(ctx); err != nil {
		return nil, fmt.Errorf("failed to read last index run: %w", err)
	}

	if v, err := currentVersion(ctx, s.q); err == nil {
		status.SchemaVersion = v.String()
	}

	var pageCount, pageSize int
	err = s.q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		err = s.q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		if err == nil {
			status.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
		}
	}

	return status, nil
}

func encodeExtra(extra map[string]string) (sql.NullString, error) {
	if len(extra) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeExtra(s sql.NullString) (map[string]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var extra map[string]string
	if err := json.Unmarshal([]byte(s.String), &extra); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return extra, nil
}
