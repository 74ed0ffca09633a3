package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkValidate(t *testing.T) {
	tests := []struct {
		name  string
		chunk Chunk
		want  error
	}{
		{"valid", Chunk{ID: "doc_chunk_0", Content: "text"}, nil},
		{"missing id", Chunk{ID: " ", Content: "text"}, ErrInvalidChunkID},
		{"empty content", Chunk{ID: "doc_chunk_0", Content: "\n\t"}, ErrEmptyContent},
		{"negative index", Chunk{ID: "doc_chunk_0", Content: "text", Metadata: ChunkMetadata{ChunkIndex: -1}}, ErrInvalidIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.chunk.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "abc_chunk_3", ChunkID("abc", 3))
}

func TestChunkContentHash(t *testing.T) {
	a := Chunk{Content: "same"}
	b := Chunk{Content: "same", Metadata: ChunkMetadata{Source: "elsewhere"}}
	c := Chunk{Content: "different"}

	assert.Len(t, a.ContentHash(), 64)
	assert.Equal(t, a.ContentHash(), b.ContentHash())
	assert.NotEqual(t, a.ContentHash(), c.ContentHash())
}

func TestChunkClone(t *testing.T) {
	orig := Chunk{ID: "x", Content: "c", Metadata: ChunkMetadata{Extra: map[string]string{"lang": "go"}}}
	clone := orig.Clone()
	clone.Metadata.Extra["lang"] = "rust"
	assert.Equal(t, "go", orig.Metadata.Extra["lang"])

	noExtra := Chunk{ID: "y"}.Clone()
	assert.Nil(t, noExtra.Metadata.Extra)
}

func TestViews(t *testing.T) {
	results := []ScoredResult{
		{
			Chunk:                  Chunk{ID: "a", Content: "alpha", Metadata: ChunkMetadata{Source: "a.md"}},
			NormalizedVectorScore:  0.8,
			NormalizedKeywordScore: 0.5,
			CombinedScore:          0.71,
			RerankScore:            Float64Ptr(2.5),
			SearchMethod:           MethodHybrid,
		},
		{
			Chunk:         Chunk{ID: "b", Content: "beta"},
			CombinedScore: 0.3,
			SearchMethod:  MethodKeyword,
		},
	}

	views := Views(results)
	require.Len(t, views, 2)
	assert.Equal(t, "a.md", views[0].Source)
	assert.Equal(t, 0.8, views[0].SemanticScore)
	assert.Equal(t, 0.5, views[0].KeywordScore)
	require.NotNil(t, views[0].RerankScore)
	assert.Equal(t, 2.5, *views[0].RerankScore)
	assert.Nil(t, views[1].RerankScore)
	assert.Equal(t, MethodKeyword, views[1].SearchMethod)
}
