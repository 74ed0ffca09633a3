package vectorindex

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(vectors ...[]float32) []Entry {
	out := make([]Entry, len(vectors))
	for i, v := range vectors {
		out[i] = Entry{Ordinal: i, ChunkID: fmt.Sprintf("c%d", i), Vector: v}
	}
	return out
}

// clustered generates n vectors around `clusters` random directions
func clustered(n, clusters, dim int, seed int64) []Entry {
	rng := rand.New(rand.NewSource(seed))
	centers := make([][]float32, clusters)
	for c := range centers {
		centers[c] = make([]float32, dim)
		for d := range centers[c] {
			centers[c][d] = float32(rng.NormFloat64())
		}
	}

	out := make([]Entry, n)
	for i := range out {
		center := centers[i%clusters]
		vec := make([]float32, dim)
		for d := range vec {
			vec[d] = center[d] + float32(rng.NormFloat64()*0.1)
		}
		out[i] = Entry{Ordinal: i, ChunkID: fmt.Sprintf("c%d", i), Vector: vec}
	}
	return out
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1.0, Norm(v), 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestNewFlatValidation(t *testing.T) {
	_, err := NewFlat(entries([]float32{1, 0}, []float32{1, 0, 0}))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewFlat(entries([]float32{}))
	assert.ErrorIs(t, err, ErrEmptyVector)
}

func TestFlatSearch(t *testing.T) {
	idx, err := NewFlat(entries(
		[]float32{1, 0, 0},
		[]float32{0.9, 0.1, 0},
		[]float32{0, 1, 0},
		[]float32{-1, 0, 0},
	))
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, 3, idx.Dimension())

	ctx := context.Background()

	t.Run("orders by similarity", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		require.Len(t, hits, 4)
		assert.Equal(t, []string{"c0", "c1", "c2", "c3"}, []string{hits[0].ChunkID, hits[1].ChunkID, hits[2].ChunkID, hits[3].ChunkID})
		assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
		assert.InDelta(t, -1.0, hits[3].Similarity, 1e-9)
	})

	t.Run("limit", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("similarity bounds", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{0.3, -0.7, 0.2}, 10)
		require.NoError(t, err)
		for _, h := range hits {
			assert.GreaterOrEqual(t, h.Similarity, -1.0)
			assert.LessOrEqual(t, h.Similarity, 1.0)
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := idx.Search(ctx, []float32{1, 0}, 2)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := idx.Search(ctx, nil, 2)
		assert.ErrorIs(t, err, ErrEmptyVector)
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		tied, err := NewFlat(entries([]float32{0, 1}, []float32{1, 0}, []float32{0, 2}))
		require.NoError(t, err)
		hits, err := tied.Search(ctx, []float32{0, 1}, 3)
		require.NoError(t, err)
		assert.Equal(t, "c0", hits[0].ChunkID)
		assert.Equal(t, "c2", hits[1].ChunkID)
	})
}

func TestFlatSearchEmpty(t *testing.T) {
	idx, err := NewFlat(nil)
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), []float32{1, 2}, 5)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestFlatSearchCancelled(t *testing.T) {
	idx, err := NewFlat(clustered(100, 4, 8, 1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = idx.Search(ctx, make([]float32, 8), 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFlatDeterministic(t *testing.T) {
	idx, err := NewFlat(clustered(500, 8, 16, 7))
	require.NoError(t, err)

	query := clustered(1, 1, 16, 99)[0].Vector
	first, err := idx.Search(context.Background(), query, 20)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := idx.Search(context.Background(), query, 20)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestIVFSmallCorpusIsExhaustive(t *testing.T) {
	data := clustered(50, 4, 8, 3)
	ivf, err := NewIVF(data, IVFConfig{Lists: 4})
	require.NoError(t, err)
	assert.Equal(t, 0, ivf.Lists())

	flat, err := NewFlat(data)
	require.NoError(t, err)

	query := data[10].Vector
	want, err := flat.Search(context.Background(), query, 10)
	require.NoError(t, err)
	got, err := ivf.Search(context.Background(), query, 10)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIVFAllProbesMatchesFlat(t *testing.T) {
	data := clustered(600, 6, 16, 11)
	ivf, err := NewIVF(data, IVFConfig{Lists: 8, Probes: 8, MinTrainSize: 100})
	require.NoError(t, err)
	assert.Equal(t, 8, ivf.Lists())

	flat, err := NewFlat(data)
	require.NoError(t, err)

	for _, q := range []int{0, 17, 333, 599} {
		want, err := flat.Search(context.Background(), data[q].Vector, 15)
		require.NoError(t, err)
		got, err := ivf.Search(context.Background(), data[q].Vector, 15)
		require.NoError(t, err)
		assert.Equal(t, want, got, "query %d", q)
	}
}

func TestIVFFindsStoredVector(t *testing.T) {
	data := clustered(800, 10, 16, 5)
	ivf, err := NewIVF(data, IVFConfig{Lists: 16, Probes: 2, MinTrainSize: 100})
	require.NoError(t, err)

	for _, q := range []int{1, 250, 799} {
		hits, err := ivf.Search(context.Background(), data[q].Vector, 5)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, data[q].ChunkID, hits[0].ChunkID)
		assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	}
}

func TestIVFRecall(t *testing.T) {
	data := clustered(1000, 10, 32, 21)
	ivf, err := NewIVF(data, IVFConfig{Lists: 20, Probes: 5, MinTrainSize: 100})
	require.NoError(t, err)
	flat, err := NewFlat(data)
	require.NoError(t, err)

	ctx := context.Background()
	var found, total int
	for q := 0; q < 1000; q += 50 {
		want, err := flat.Search(ctx, data[q].Vector, 10)
		require.NoError(t, err)
		got, err := ivf.Search(ctx, data[q].Vector, 10)
		require.NoError(t, err)
		require.Len(t, got, 10)

		ids := make(map[string]bool, len(got))
		for _, h := range got {
			ids[h.ChunkID] = true
		}
		for _, h := range want {
			total++
			if ids[h.ChunkID] {
				found++
			}
		}
	}

	recall := float64(found) / float64(total)
	assert.Greater(t, recall, 0.8)
}

func TestIVFReturnsLimitWhenProbedListsAreSmall(t *testing.T) {
	data := clustered(300, 30, 8, 13)
	ivf, err := NewIVF(data, IVFConfig{Lists: 30, Probes: 1, MinTrainSize: 100})
	require.NoError(t, err)

	hits, err := ivf.Search(context.Background(), data[0].Vector, 50)
	require.NoError(t, err)
	assert.Len(t, hits, 50)
}

func TestNewByKind(t *testing.T) {
	data := entries([]float32{1, 0}, []float32{0, 1})

	idx, err := New(KindFlat, data, IVFConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Flat{}, idx)

	idx, err = New("IVF", data, IVFConfig{})
	require.NoError(t, err)
	assert.IsType(t, &IVF{}, idx)

	_, err = New("hnsw", data, IVFConfig{})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestWithIVFDefaults(t *testing.T) {
	cfg := withIVFDefaults(IVFConfig{}, 10000)
	assert.Equal(t, 100, cfg.Lists)
	assert.Equal(t, 25, cfg.Probes)
	assert.Equal(t, DefaultIterations, cfg.Iterations)
	assert.Equal(t, int64(DefaultSeed), cfg.Seed)

	small := withIVFDefaults(IVFConfig{Lists: 50}, 10)
	assert.Equal(t, 10, small.Lists)
	assert.Equal(t, 2, small.Probes)
}

func BenchmarkFlatSearch(b *testing.B) {
	idx, err := NewFlat(clustered(10000, 50, 384, 1))
	if err != nil {
		b.Fatal(err)
	}
	query := clustered(1, 1, 384, 2)[0].Vector
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 10)
	}
}

func BenchmarkIVFSearch(b *testing.B) {
	idx, err := NewIVF(clustered(10000, 50, 384, 1), IVFConfig{})
	if err != nil {
		b.Fatal(err)
	}
	query := clustered(1, 1, 384, 2)[0].Vector
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 10)
	}
}
