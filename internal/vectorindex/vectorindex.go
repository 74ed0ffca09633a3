package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Common errors
var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyVector       = errors.New("vector cannot be empty")
	ErrUnknownKind       = errors.New("unknown vector index kind")
)

// Kind selects a VectorIndex implementation
type Kind string

const (
	KindFlat Kind = "flat" // Exhaustive scan
	KindIVF  Kind = "ivf"  // Inverted-file approximate search
)

// VectorIndex searches stored embeddings by cosine similarity
type VectorIndex interface {
	// Search returns up to limit hits ordered by similarity, most similar first
	Search(ctx context.Context, query []float32, limit int) ([]Hit, error)

	// Len returns the number of stored vectors
	Len() int

	// Dimension returns the vector dimension, 0 when empty
	Dimension() int
}

// Entry is a vector to index
type Entry struct {
	Ordinal int // Chunk position in the corpus, used for tie-breaking
	ChunkID string
	Vector  []float32
}

// Hit is a vector search result
type Hit struct {
	Ordinal    int
	ChunkID    string
	Similarity float64 // Cosine similarity in [-1, 1]
}

// New builds an index of the given kind
func New(kind Kind, entries []Entry, cfg IVFConfig) (VectorIndex, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case KindFlat, "":
		return NewFlat(entries)
	case KindIVF:
		return NewIVF(entries, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// stored is an entry with its precomputed norm
type stored struct {
	Entry
	norm float64
}

// prepare validates entries and copies their vectors
func prepare(entries []Entry) ([]stored, int, error) {
	out := make([]stored, len(entries))
	dim := 0
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return nil, 0, fmt.Errorf("%w: chunk %s", ErrEmptyVector, e.ChunkID)
		}
		if dim == 0 {
			dim = len(e.Vector)
		} else if len(e.Vector) != dim {
			return nil, 0, fmt.Errorf("%w: chunk %s has %d, want %d", ErrDimensionMismatch, e.ChunkID, len(e.Vector), dim)
		}
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		out[i] = stored{
			Entry: Entry{Ordinal: e.Ordinal, ChunkID: e.ChunkID, Vector: vec},
			norm:  Norm(vec),
		}
	}
	return out, dim, nil
}

// checkQuery validates a query vector against the index dimension
func checkQuery(query []float32, dim int) error {
	if len(query) == 0 {
		return ErrEmptyVector
	}
	if dim != 0 && len(query) != dim {
		return fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), dim)
	}
	return nil
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Norm returns the L2 norm of v
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. Zero vectors are returned as a copy.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// similarity computes cosine using the stored norm
func (s *stored) similarity(query []float32, queryNorm float64) float64 {
	if s.norm == 0 || queryNorm == 0 {
		return 0
	}
	sim := dot(query, s.Vector) / (s.norm * queryNorm)
	// Clamp float noise
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// sortHits orders by similarity descending, then by ordinal
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
}

func truncate(hits []Hit, limit int) []Hit {
	if len(hits) > limit {
		return hits[:limit]
	}
	return hits
}
