package vectorindex

import (
	"context"
)

// ctxCheckInterval is how many vectors are scanned between cancellation checks
const ctxCheckInterval = 1024

// Flat is an exhaustive cosine-similarity index
type Flat struct {
	entries []stored
	dim     int
}

// NewFlat builds a brute-force index
func NewFlat(entries []Entry) (*Flat, error) {
	s, dim, err := prepare(entries)
	if err != nil {
		return nil, err
	}
	return &Flat{entries: s, dim: dim}, nil
}

// Search scores every stored vector against query
func (f *Flat) Search(ctx context.Context, query []float32, limit int) ([]Hit, error) {
	if f == nil || len(f.entries) == 0 || limit <= 0 {
		return []Hit{}, nil
	}
	if err := checkQuery(query, f.dim); err != nil {
		return nil, err
	}

	return scan(ctx, f.entries, query, Norm(query), limit)
}

// scan scores entries and returns the best limit hits
func scan(ctx context.Context, entries []stored, query []float32, queryNorm float64, limit int) ([]Hit, error) {
	hits := make([]Hit, 0, len(entries))
	for i := range entries {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		e := &entries[i]
		hits = append(hits, Hit{
			Ordinal:    e.Ordinal,
			ChunkID:    e.ChunkID,
			Similarity: e.similarity(query, queryNorm),
		})
	}

	sortHits(hits)
	return truncate(hits, limit), nil
}

// Len returns the number of stored vectors
func (f *Flat) Len() int {
	if f == nil {
		return 0
	}
	return len(f.entries)
}

// Dimension returns the vector dimension
func (f *Flat) Dimension() int {
	if f == nil {
		return 0
	}
	return f.dim
}
