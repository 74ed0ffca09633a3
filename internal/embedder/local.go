package embedder

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/dshills/hybridrag/internal/keyword"
	"github.com/dshills/hybridrag/internal/vectorindex"
)

// LocalProvider embeds text offline by feature hashing. Each token and
// each adjacent token pair is hashed into one of LocalDimension buckets
// with a hash-derived sign; counts are damped with 1+ln(tf) and the vector
// is L2-normalized. Texts sharing vocabulary get a positive cosine
// similarity; texts with no shared tokens score 0.
type LocalProvider struct {
	model string
	cache *Cache
}

// NewLocalProvider creates the offline embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model: DefaultLocalModel,
		cache: cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := CacheKey(ProviderLocal, l.model, req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    HashEmbedding(req.Text, LocalDimension),
		Dimension: LocalDimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      hash,
	}

	if l.cache != nil {
		l.cache.Set(hash, emb)
	}

	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// Pair features count half as much as single tokens
const pairWeight = 0.5

// HashEmbedding returns the feature-hashed, L2-normalized vector of text
func HashEmbedding(text string, dim int) []float32 {
	vec := make([]float32, dim)
	if dim <= 0 {
		return vec
	}

	tokens := keyword.Tokenize(text)
	weights := make(map[string]float64, 2*len(tokens))
	for i, tok := range tokens {
		weights[tok]++
		if i > 0 {
			weights[tokens[i-1]+" "+tok] += pairWeight
		}
	}

	for feature, w := range weights {
		h := fnv.New64a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum64()

		bucket := int(sum % uint64(dim))
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[bucket] += sign * float32(damp(w))
	}

	return vectorindex.Normalize(vec)
}

func damp(w float64) float64 {
	if w <= 1 {
		return w
	}
	return 1 + math.Log(w)
}
