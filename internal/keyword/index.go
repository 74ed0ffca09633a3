package keyword

import (
	"github.com/dshills/hybridrag/pkg/types"
)

// BM25 defaults
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// posting records how often a term occurs in one chunk
type posting struct {
	ordinal int
	tf      int
}

// Index is an immutable inverted index over a fixed set of chunks
type Index struct {
	chunks      []types.Chunk
	postings    map[string][]posting // Sorted by ordinal
	docLengths  []int
	totalLength int

	k1 float64
	b  float64
}

// Option configures an Index
type Option func(*Index)

// WithParams overrides the BM25 k1 and b parameters
func WithParams(k1, b float64) Option {
	return func(idx *Index) {
		if k1 > 0 {
			idx.k1 = k1
		}
		if b >= 0 && b <= 1 {
			idx.b = b
		}
	}
}

// NewIndex builds an index over chunks. The chunk order defines the ordinal
// used for tie-breaking.
func NewIndex(chunks []types.Chunk, opts ...Option) *Index {
	idx := &Index{
		chunks:     make([]types.Chunk, len(chunks)),
		postings:   make(map[string][]posting),
		docLengths: make([]int, len(chunks)),
		k1:         DefaultK1,
		b:          DefaultB,
	}
	for _, opt := range opts {
		opt(idx)
	}

	for ordinal, chunk := range chunks {
		idx.chunks[ordinal] = chunk.Clone()

		terms := Tokenize(chunk.Content)
		idx.docLengths[ordinal] = len(terms)
		idx.totalLength += len(terms)

		counts := make(map[string]int, len(terms))
		order := make([]string, 0, len(terms))
		for _, term := range terms {
			if counts[term] == 0 {
				order = append(order, term)
			}
			counts[term]++
		}
		// Ordinals grow monotonically, so each postings list stays sorted
		for _, term := range order {
			idx.postings[term] = append(idx.postings[term], posting{ordinal: ordinal, tf: counts[term]})
		}
	}

	return idx
}

// Len returns the number of indexed chunks
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.chunks)
}

// Vocabulary returns the number of distinct terms
func (idx *Index) Vocabulary() int {
	if idx == nil {
		return 0
	}
	return len(idx.postings)
}

// DocFreq returns the number of chunks containing term
func (idx *Index) DocFreq(term string) int {
	if idx == nil {
		return 0
	}
	return len(idx.postings[term])
}

// AvgDocLength returns the mean chunk length in tokens
func (idx *Index) AvgDocLength() float64 {
	if idx.Len() == 0 {
		return 0
	}
	return float64(idx.totalLength) / float64(len(idx.chunks))
}

// Chunk returns the chunk stored at ordinal
func (idx *Index) Chunk(ordinal int) (types.Chunk, bool) {
	if idx == nil || ordinal < 0 || ordinal >= len(idx.chunks) {
		return types.Chunk{}, false
	}
	return idx.chunks[ordinal], true
}
