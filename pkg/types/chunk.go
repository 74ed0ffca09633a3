package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Chunk is a section of a source document used for keyword and vector search
type Chunk struct {
	ID       string
	Content  string
	Metadata ChunkMetadata
}

// ChunkMetadata describes where a chunk came from
type ChunkMetadata struct {
	Source     string // URL or path of the source document
	ChunkIndex int    // Position of the chunk within its document (0-based)
	FileName   string
	Title      string
	Category   string
	Extra      map[string]string // Nullable
}

// ChunkID builds the identifier of the i-th chunk of a document
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// Validate checks that the chunk can be indexed
func (c *Chunk) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrInvalidChunkID
	}
	if strings.TrimSpace(c.Content) == "" {
		return ErrEmptyContent
	}
	if c.Metadata.ChunkIndex < 0 {
		return ErrInvalidIndex
	}
	return nil
}

// ContentHash returns the hex SHA-256 of the chunk content
func (c *Chunk) ContentHash() string {
	h := sha256.Sum256([]byte(c.Content))
	return hex.EncodeToString(h[:])
}

// TokenCount estimates the number of tokens in the chunk.
// Uses a simple heuristic: characters / 4
func (c *Chunk) TokenCount() int {
	return len(c.Content) / 4
}

// Clone returns a copy that shares no mutable state with c
func (c Chunk) Clone() Chunk {
	out := c
	if c.Metadata.Extra != nil {
		out.Metadata.Extra = make(map[string]string, len(c.Metadata.Extra))
		for k, v := range c.Metadata.Extra {
			out.Metadata.Extra[k] = v
		}
	}
	return out
}
