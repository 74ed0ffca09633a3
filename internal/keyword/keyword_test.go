package keyword

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridrag/pkg/types"
)

func chunk(id, content string) types.Chunk {
	return types.Chunk{ID: id, Content: content}
}

func testCorpus() []types.Chunk {
	return []types.Chunk{
		chunk("c0", "Card declined error when paying"),
		chunk("c1", "Refund policy for card payments"),
		chunk("c2", "Webhook signature verification"),
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"lowercases", "Stripe API", []string{"stripe", "api"}},
		{"strips punctuation", "What's the fee? ($1000)", []string{"what", "s", "the", "fee", "1000"}},
		{"keeps underscores", "card_declined err_42", []string{"card_declined", "err_42"}},
		{"collapses whitespace", "  a \t\n b  ", []string{"a", "b"}},
		{"empty", "", []string{}},
		{"only separators", "?!  ...", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUniqueTerms(t *testing.T) {
	assert.Equal(t, []string{"refund", "status"}, UniqueTerms("refund REFUND status refund"))
}

func TestNewIndex(t *testing.T) {
	idx := NewIndex(testCorpus())

	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 2, idx.DocFreq("card"))
	assert.Equal(t, 1, idx.DocFreq("webhook"))
	assert.Equal(t, 0, idx.DocFreq("missing"))
	assert.InDelta(t, 13.0/3.0, idx.AvgDocLength(), 1e-9)

	c, ok := idx.Chunk(2)
	require.True(t, ok)
	assert.Equal(t, "c2", c.ID)

	_, ok = idx.Chunk(3)
	assert.False(t, ok)
}

func TestSearchEmpty(t *testing.T) {
	t.Run("empty index", func(t *testing.T) {
		hits := NewIndex(nil).Search("anything", 5)
		assert.NotNil(t, hits)
		assert.Empty(t, hits)
	})

	t.Run("nil index", func(t *testing.T) {
		var idx *Index
		hits := idx.Search("anything", 5)
		assert.NotNil(t, hits)
		assert.Empty(t, hits)
	})

	t.Run("empty query", func(t *testing.T) {
		hits := NewIndex(testCorpus()).Search("", 5)
		assert.NotNil(t, hits)
		assert.Empty(t, hits)
	})

	t.Run("separator-only query", func(t *testing.T) {
		assert.Empty(t, NewIndex(testCorpus()).Search("?? !!", 5))
	})

	t.Run("no matching terms", func(t *testing.T) {
		assert.Empty(t, NewIndex(testCorpus()).Search("kubernetes", 5))
	})

	t.Run("zero limit", func(t *testing.T) {
		assert.Empty(t, NewIndex(testCorpus()).Search("card", 0))
	})
}

func TestSearchRanking(t *testing.T) {
	idx := NewIndex(testCorpus())

	t.Run("single match", func(t *testing.T) {
		hits := idx.Search("declined", 5)
		require.Len(t, hits, 1)
		assert.Equal(t, "c0", hits[0].ChunkID)
		assert.Greater(t, hits[0].Score, 0.0)
	})

	t.Run("rare term outranks common term", func(t *testing.T) {
		hits := idx.Search("card webhook", 5)
		require.Len(t, hits, 3)
		assert.Equal(t, "c2", hits[0].ChunkID)
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		hits := idx.Search("card", 5)
		require.Len(t, hits, 2)
		assert.Equal(t, hits[0].Score, hits[1].Score)
		assert.Equal(t, "c0", hits[0].ChunkID)
		assert.Equal(t, "c1", hits[1].ChunkID)
	})

	t.Run("limit truncates", func(t *testing.T) {
		hits := idx.Search("card webhook", 2)
		assert.Len(t, hits, 2)
	})

	t.Run("repeated query terms count once", func(t *testing.T) {
		once := idx.Search("declined", 5)
		twice := idx.Search("declined declined", 5)
		require.Len(t, twice, 1)
		assert.Equal(t, once[0].Score, twice[0].Score)
	})
}

func TestSearchLengthNormalization(t *testing.T) {
	idx := NewIndex([]types.Chunk{
		chunk("long", "refund lorem ipsum dolor sit amet consectetur"),
		chunk("short", "refund now"),
	})

	hits := idx.Search("refund", 5)
	require.Len(t, hits, 2)
	assert.Equal(t, "short", hits[0].ChunkID)
}

func TestSearchTermFrequencySaturation(t *testing.T) {
	idx := NewIndex([]types.Chunk{
		chunk("once", "apple banana cherry"),
		chunk("thrice", "apple apple apple"),
		chunk("other", "grape melon kiwi"),
	})

	hits := idx.Search("apple", 5)
	require.Len(t, hits, 2)
	assert.Equal(t, "thrice", hits[0].ChunkID)
	assert.Less(t, hits[0].Score, 3*hits[1].Score)
}

func TestSearchDeterministic(t *testing.T) {
	corpus := make([]types.Chunk, 0, 50)
	for i := 0; i < 50; i++ {
		corpus = append(corpus, chunk(fmt.Sprintf("c%d", i), fmt.Sprintf("payment intent %d refund card %d", i%7, i%3)))
	}
	idx := NewIndex(corpus)

	first := idx.Search("payment refund card 3", 20)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, idx.Search("payment refund card 3", 20))
	}
}

func TestWithParams(t *testing.T) {
	corpus := []types.Chunk{
		chunk("long", "refund lorem ipsum dolor sit amet consectetur"),
		chunk("short", "refund now"),
	}

	// b = 0 disables length normalization
	hits := NewIndex(corpus, WithParams(1.2, 0)).Search("refund", 5)
	require.Len(t, hits, 2)
	assert.Equal(t, hits[0].Score, hits[1].Score)
	assert.Equal(t, "long", hits[0].ChunkID)
}

func BenchmarkSearch(b *testing.B) {
	corpus := make([]types.Chunk, 0, 5000)
	for i := 0; i < 5000; i++ {
		corpus = append(corpus, chunk(fmt.Sprintf("c%d", i),
			fmt.Sprintf("document %d about payments refunds disputes and webhook %d events", i, i%17)))
	}
	idx := NewIndex(corpus)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.Search("refunds webhook 5 events", 10)
	}
}
