package types

import "errors"

// Domain errors
var (
	// Retrieval degradations
	ErrIndexUnavailable  = errors.New("index not built")
	ErrEmbeddingFailure  = errors.New("embedding provider failed")
	ErrRerankUnavailable = errors.New("re-ranker unavailable")

	// Chunk validation errors
	ErrInvalidChunkID = errors.New("chunk ID is required")
	ErrEmptyContent   = errors.New("content cannot be empty")
	ErrInvalidIndex   = errors.New("chunk index must be >= 0")
)
