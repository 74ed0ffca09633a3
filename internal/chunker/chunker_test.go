package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridrag/pkg/types"
)

func newChunker(t *testing.T, cfg Config) *Chunker {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	c := newChunker(t, Config{})
	assert.Equal(t, DefaultSize, c.size)
	assert.Equal(t, DefaultOverlap, c.overlap)
	assert.Equal(t, DefaultSeparators, c.separators)

	_, err := New(Config{Size: 100, Overlap: 100})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Size: 50})
	assert.ErrorIs(t, err, ErrInvalidConfig, "default overlap exceeds small size")

	c = newChunker(t, Config{Size: 50, Overlap: NoOverlap})
	assert.Equal(t, 0, c.overlap)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		text string
		want []string
	}{
		{
			name: "short text is one chunk",
			cfg:  Config{},
			text: "  Refunds take 5-10 days.  ",
			want: []string{"Refunds take 5-10 days."},
		},
		{
			name: "paragraphs merge up to size",
			cfg:  Config{Size: 20, Overlap: 5},
			text: "aaaa bbbb\n\ncccc dddd\n\neeee ffff",
			want: []string{"aaaa bbbb\n\ncccc dddd", "eeee ffff"},
		},
		{
			name: "words carry overlap",
			cfg:  Config{Size: 10, Overlap: 4},
			text: "one two three four five",
			want: []string{"one two", "two three", "four five"},
		},
		{
			name: "overlap disabled",
			cfg:  Config{Size: 10, Overlap: NoOverlap},
			text: "one two three four five",
			want: []string{"one two", "three four", "five"},
		},
		{
			name: "unbroken text falls back to characters",
			cfg:  Config{Size: 5, Overlap: 1},
			text: "abcdefghij",
			want: []string{"abcde", "efghi", "ij"},
		},
		{
			name: "whitespace only",
			cfg:  Config{},
			text: " \n\n \n ",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChunker(t, tt.cfg)
			assert.Equal(t, tt.want, c.Split(tt.text))
		})
	}
}

func TestSplitRespectsSize(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Disputes are raised by the cardholder's bank. ")
		if i%5 == 4 {
			b.WriteString("\n\n")
		}
		if i%13 == 0 {
			b.WriteString(strings.Repeat("x", 120))
			b.WriteString("\n")
		}
	}
	text := b.String()

	c := newChunker(t, Config{Size: 100, Overlap: 20})
	chunks := c.Split(text)
	require.NotEmpty(t, chunks)

	for i, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 100, "chunk %d", i)
		assert.Equal(t, strings.TrimSpace(chunk), chunk)
		assert.NotEmpty(t, chunk)
	}

	// Every word that fits in a chunk survives intact
	joined := strings.Join(chunks, " ")
	for _, w := range strings.Fields(text) {
		if len(w) <= 100 {
			assert.Contains(t, joined, w)
		}
	}
}

func TestSplitMultibyte(t *testing.T) {
	c := newChunker(t, Config{Size: 4, Overlap: 1})
	chunks := c.Split("héllöwörld")
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk))
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 4)
	}
	assert.Equal(t, "héll", chunks[0])
}

func TestChunkDocument(t *testing.T) {
	c := newChunker(t, Config{Size: 20, Overlap: 5})

	doc := Document{
		ID:       "refunds",
		Title:    "Refunds",
		Source:   "/docs/payments/refunds.md",
		Category: "payments",
		Content:  "aaaa bbbb\n\ncccc dddd\n\neeee ffff",
		Extra:    map[string]string{"lang": "en"},
	}
	chunks, err := c.ChunkDocument(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	for i, ch := range chunks {
		assert.Equal(t, types.ChunkID("refunds", i), ch.ID)
		assert.Equal(t, i, ch.Metadata.ChunkIndex)
		assert.Equal(t, "/docs/payments/refunds.md", ch.Metadata.Source)
		assert.Equal(t, "refunds.md", ch.Metadata.FileName)
		assert.Equal(t, "Refunds", ch.Metadata.Title)
		assert.Equal(t, "payments", ch.Metadata.Category)
		assert.Equal(t, "en", ch.Metadata.Extra["lang"])
		assert.NoError(t, ch.Validate())
	}
	assert.Equal(t, "refunds_chunk_0", chunks[0].ID)

	// Metadata maps are not shared with the document or each other
	chunks[0].Metadata.Extra["lang"] = "de"
	assert.Equal(t, "en", doc.Extra["lang"])
	assert.Equal(t, "en", chunks[1].Metadata.Extra["lang"])
}

func TestChunkDocumentErrors(t *testing.T) {
	c := newChunker(t, Config{})

	_, err := c.ChunkDocument(Document{Content: "text"})
	assert.ErrorIs(t, err, types.ErrInvalidChunkID)

	_, err = c.ChunkDocument(Document{ID: "d", Content: "   "})
	assert.ErrorIs(t, err, types.ErrEmptyContent)
}

func BenchmarkSplit(b *testing.B) {
	text := strings.Repeat("Webhook signatures are verified with the endpoint secret.\n", 500)
	c, _ := New(Config{})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Split(text)
	}
}
