package chunker

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dshills/hybridrag/pkg/types"
)

const (
	// DefaultSize is the target maximum chunk length in characters
	DefaultSize = 800

	// DefaultOverlap is the trailing context carried into the next chunk
	DefaultOverlap = 100

	// NoOverlap disables overlap; any negative Overlap does the same
	NoOverlap = -1
)

// DefaultSeparators are tried in order: paragraphs, lines, words, characters
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// ErrInvalidConfig is returned for an unusable size/overlap combination
var ErrInvalidConfig = errors.New("invalid chunker config")

// Config configures a Chunker. Zero values select the defaults.
type Config struct {
	Size       int
	Overlap    int // 0 selects DefaultOverlap, NoOverlap disables it
	Separators []string
}

// Chunker splits documents into overlapping chunks
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// New creates a Chunker
func New(cfg Config) (*Chunker, error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	switch {
	case cfg.Overlap < 0:
		cfg.Overlap = 0
	case cfg.Overlap == 0:
		cfg.Overlap = DefaultOverlap
	}
	if cfg.Overlap >= cfg.Size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidConfig, cfg.Overlap, cfg.Size)
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = DefaultSeparators
	}

	return &Chunker{
		size:       cfg.Size,
		overlap:    cfg.Overlap,
		separators: append([]string(nil), cfg.Separators...),
	}, nil
}

// Document is a source document before chunking
type Document struct {
	ID       string
	Title    string
	Source   string // URL or file path
	Category string
	Content  string
	Extra    map[string]string
}

// ChunkDocument splits doc and returns chunks with IDs <docID>_chunk_<i>
func (c *Chunker) ChunkDocument(doc Document) ([]types.Chunk, error) {
	if strings.TrimSpace(doc.ID) == "" {
		return nil, types.ErrInvalidChunkID
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, types.ErrEmptyContent
	}

	fileName := ""
	if doc.Source != "" {
		fileName = filepath.Base(doc.Source)
	}

	pieces := c.Split(doc.Content)
	chunks := make([]types.Chunk, 0, len(pieces))
	for i, text := range pieces {
		var extra map[string]string
		if len(doc.Extra) > 0 {
			extra = make(map[string]string, len(doc.Extra))
			for k, v := range doc.Extra {
				extra[k] = v
			}
		}
		chunks = append(chunks, types.Chunk{
			ID:      types.ChunkID(doc.ID, i),
			Content: text,
			Metadata: types.ChunkMetadata{
				Source:     doc.Source,
				ChunkIndex: i,
				FileName:   fileName,
				Title:      doc.Title,
				Category:   doc.Category,
				Extra:      extra,
			},
		})
	}
	return chunks, nil
}

// Split breaks text into chunks of at most Size characters where the
// separators allow it. Empty or whitespace-only pieces are dropped.
func (c *Chunker) Split(text string) []string {
	return c.split(text, c.separators)
}

func (c *Chunker) split(text string, separators []string) []string {
	// Pick the first separator present in text; "" always matches
	separator := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			rest = separators[i+1:]
			break
		}
	}

	var out, good []string
	for _, piece := range splitOn(text, separator) {
		if length(piece) < c.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good, separator)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, c.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, c.merge(good, separator)...)
	}
	return out
}

// merge joins small pieces into chunks up to Size, starting each new chunk
// with up to Overlap characters of the previous one.
func (c *Chunker) merge(pieces []string, separator string) []string {
	sepLen := length(separator)
	var docs, current []string
	total := 0

	joinedLen := func(n int) int {
		if len(current) > 0 {
			return total + n + sepLen
		}
		return total + n
	}

	for _, p := range pieces {
		n := length(p)
		if joinedLen(n) > c.size && len(current) > 0 {
			if doc := join(current, separator); doc != "" {
				docs = append(docs, doc)
			}
			for total > c.overlap || (joinedLen(n) > c.size && total > 0) {
				drop := length(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
		if len(current) > 1 {
			total += sepLen
		}
	}

	if doc := join(current, separator); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func splitOn(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
	} else {
		parts = strings.Split(text, separator)
	}

	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func join(pieces []string, separator string) string {
	return strings.TrimSpace(strings.Join(pieces, separator))
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
