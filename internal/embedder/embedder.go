package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")

	// errMalformedVector marks a provider response that will not improve on retry
	errMalformedVector = errors.New("malformed embedding vector")
)

// Embedding is the vector of one text together with where it came from.
// Vectors from different providers or models live in different spaces and
// must not be compared.
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // Cache key the vector is stored under
}

// Clone returns a deep copy
func (e *Embedding) Clone() *Embedding {
	out := *e
	out.Vector = append([]float32(nil), e.Vector...)
	return &out
}

// check rejects empty vectors, a Dimension that disagrees with the vector
// and values that cannot take part in cosine similarity.
func (e *Embedding) check() error {
	if len(e.Vector) == 0 {
		return fmt.Errorf("%w: empty", errMalformedVector)
	}
	if e.Dimension != len(e.Vector) {
		return fmt.Errorf("%w: dimension %d, vector has %d values", errMalformedVector, e.Dimension, len(e.Vector))
	}
	for i, v := range e.Vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: non-finite value at %d", errMalformedVector, i)
		}
	}
	return nil
}

// EmbeddingRequest asks for the vector of one text. Model overrides the
// provider's default model.
type EmbeddingRequest struct {
	Text  string
	Model string
}

// BatchEmbeddingRequest asks for up to MaxBatchSize vectors at once
type BatchEmbeddingRequest struct {
	Texts []string
	Model string
}

// BatchEmbeddingResponse holds one embedding per requested text, in order
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder turns text into vectors. The indexer embeds chunks in batches,
// the searcher embeds queries and the hybrid cache embeds cache keys.
// Implementations are safe for concurrent use.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension is the vector length of the default model
	Dimension() int
	Provider() string
	Model() string
	Close() error
}

// Cache memoizes embeddings under CacheKey values. It copies vectors on the
// way in and out, so callers may modify what they hold. Safe for
// concurrent use.
type Cache struct {
	entries *lru.Cache[string, *Embedding]
}

// NewCache creates a cache holding at most maxLen embeddings
// (DefaultCacheSize when maxLen <= 0).
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	entries, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		entries, _ = lru.New[string, *Embedding](DefaultCacheSize)
	}
	return &Cache{entries: entries}
}

func (c *Cache) Get(key string) (*Embedding, bool) {
	emb, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return emb.Clone(), true
}

// Set stores emb, evicting the least recently used entry when full
func (c *Cache) Set(key string, emb *Embedding) {
	c.entries.Add(key, emb.Clone())
}

func (c *Cache) Size() int {
	return c.entries.Len()
}

func (c *Cache) Clear() {
	c.entries.Purge()
}

// ComputeHash returns the hex SHA-256 of text
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// CacheKey scopes a text's hash by provider and model so a shared Cache
// never serves a vector from another embedding space.
func CacheKey(provider, model, text string) string {
	return ComputeHash(provider + "\x00" + model + "\x00" + text)
}

// ValidateRequest rejects blank text
func ValidateRequest(req EmbeddingRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest rejects empty and oversized batches and blank texts
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	switch {
	case len(req.Texts) == 0:
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	case len(req.Texts) > MaxBatchSize:
		return fmt.Errorf("%w: %d texts, max %d", ErrBatchTooLarge, len(req.Texts), MaxBatchSize)
	}
	for i, text := range req.Texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text at index %d: %w", ErrInvalidInput, i, ErrEmptyText)
		}
	}
	return nil
}
