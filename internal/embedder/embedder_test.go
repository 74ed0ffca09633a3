package embedder

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridrag/internal/vectorindex"
)

func TestComputeHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ComputeHash(""))
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", ComputeHash("hello world"))
	assert.Equal(t, ComputeHash("refund"), ComputeHash("refund"))
	assert.NotEqual(t, ComputeHash("refund"), ComputeHash("Refund"))
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "payout schedule"}))
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{Text: " \n\t"}), ErrEmptyText)
}

func TestCacheKey(t *testing.T) {
	key := CacheKey(ProviderOpenAI, DefaultOpenAIModel, "refund")
	assert.Equal(t, key, CacheKey(ProviderOpenAI, DefaultOpenAIModel, "refund"))
	assert.NotEqual(t, key, CacheKey(ProviderOpenAI, "text-embedding-3-large", "refund"))
	assert.NotEqual(t, key, CacheKey(ProviderJina, DefaultOpenAIModel, "refund"))
	assert.NotEqual(t, key, ComputeHash("refund"))
}

func TestEmbeddingCheck(t *testing.T) {
	tests := []struct {
		name    string
		emb     Embedding
		wantErr bool
	}{
		{"valid", Embedding{Vector: []float32{0.1, 0.2}, Dimension: 2}, false},
		{"empty", Embedding{}, true},
		{"dimension mismatch", Embedding{Vector: []float32{1, 2, 3}, Dimension: 2}, true},
		{"nan", Embedding{Vector: []float32{float32(math.NaN()), 1}, Dimension: 2}, true},
		{"inf", Embedding{Vector: []float32{float32(math.Inf(1)), 1}, Dimension: 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.emb.check()
			if tt.wantErr {
				assert.ErrorIs(t, err, errMalformedVector)
				assert.False(t, retryable(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateBatchRequest(t *testing.T) {
	tooMany := make([]string, MaxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = "text"
	}

	tests := []struct {
		name    string
		texts   []string
		wantErr error
	}{
		{"valid batch", []string{"a", "b", "c"}, nil},
		{"empty batch", []string{}, ErrInvalidInput},
		{"contains empty text", []string{"a", "", "c"}, ErrInvalidInput},
		{"contains blank text", []string{"a", "  "}, ErrEmptyText},
		{"too large", tooMany, ErrBatchTooLarge},
		{"exactly max", tooMany[:MaxBatchSize], nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(BatchEmbeddingRequest{Texts: tt.texts})
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("get returns a copy", func(t *testing.T) {
		cache := NewCache(3)
		_, ok := cache.Get("missing")
		assert.False(t, ok)

		cache.Set("h1", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3, Provider: ProviderJina, Hash: "h1"})
		got, ok := cache.Get("h1")
		require.True(t, ok)
		assert.Equal(t, []float32{1, 2, 3}, got.Vector)

		got.Vector[0] = 99
		again, _ := cache.Get("h1")
		assert.Equal(t, float32(1), again.Vector[0])
		assert.Equal(t, 1, cache.Size())
	})

	t.Run("set stores a copy", func(t *testing.T) {
		cache := NewCache(3)
		emb := &Embedding{Vector: []float32{1, 2}, Dimension: 2}
		cache.Set("h1", emb)
		emb.Vector[0] = 99

		got, ok := cache.Get("h1")
		require.True(t, ok)
		assert.Equal(t, []float32{1, 2}, got.Vector)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("h1", &Embedding{Hash: "h1"})
		cache.Set("h2", &Embedding{Hash: "h2"})
		cache.Get("h1")
		cache.Set("h3", &Embedding{Hash: "h3"})

		_, ok := cache.Get("h2")
		assert.False(t, ok)
		_, ok = cache.Get("h1")
		assert.True(t, ok)
		assert.Equal(t, 2, cache.Size())
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("h1", &Embedding{Hash: "h1"})
		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})

	t.Run("non-positive size uses default", func(t *testing.T) {
		cache := NewCache(0)
		for i := 0; i < 20; i++ {
			cache.Set(fmt.Sprint(i), &Embedding{})
		}
		assert.Equal(t, 20, cache.Size())
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := NewCache(100)
		var wg sync.WaitGroup
		for w := 0; w < 10; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					hash := ComputeHash(fmt.Sprintf("text-%d-%d", w, j))
					cache.Set(hash, &Embedding{Vector: []float32{float32(w), float32(j)}, Hash: hash})
					cache.Get(hash)
				}
			}(w)
		}
		wg.Wait()
		assert.Equal(t, 100, cache.Size())
	})
}

func TestLocalProvider(t *testing.T) {
	provider, err := NewLocalProvider(NewCache(10))
	require.NoError(t, err)
	defer provider.Close()

	assert.Equal(t, ProviderLocal, provider.Provider())
	assert.Equal(t, LocalDimension, provider.Dimension())
	assert.Equal(t, DefaultLocalModel, provider.Model())

	ctx := context.Background()

	t.Run("single embedding", func(t *testing.T) {
		emb, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "How do I issue a refund?"})
		require.NoError(t, err)
		assert.Len(t, emb.Vector, LocalDimension)
		assert.Equal(t, ProviderLocal, emb.Provider)
		assert.InDelta(t, 1.0, vectorindex.Norm(emb.Vector), 1e-5)
	})

	t.Run("deterministic", func(t *testing.T) {
		a := HashEmbedding("card declined error", LocalDimension)
		b := HashEmbedding("card declined error", LocalDimension)
		assert.Equal(t, a, b)
	})

	t.Run("shared vocabulary is similar", func(t *testing.T) {
		refund, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "how do I issue a refund"})
		require.NoError(t, err)
		refund2, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "how to issue a refund"})
		require.NoError(t, err)
		payout, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "payout schedule timing"})
		require.NoError(t, err)

		near := vectorindex.CosineSimilarity(refund.Vector, refund2.Vector)
		far := vectorindex.CosineSimilarity(refund.Vector, payout.Vector)
		assert.Greater(t, near, 0.5)
		assert.Greater(t, near, far)
	})

	t.Run("case and punctuation insensitive", func(t *testing.T) {
		assert.Equal(t, HashEmbedding("Refund, please!", 64), HashEmbedding("refund please", 64))
	})

	t.Run("separator-only text is the zero vector", func(t *testing.T) {
		v := HashEmbedding("?!", 16)
		assert.Equal(t, make([]float32, 16), v)
	})

	t.Run("batch", func(t *testing.T) {
		resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "b", "c"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 3)
		assert.Equal(t, ProviderLocal, resp.Provider)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{})
		assert.ErrorIs(t, err, ErrEmptyText)
		_, err = provider.GenerateBatch(ctx, BatchEmbeddingRequest{})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := provider.GenerateEmbedding(cctx, EmbeddingRequest{Text: strings.Repeat("x ", 10)})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
