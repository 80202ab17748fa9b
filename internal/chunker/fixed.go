package chunker

import (
	"fmt"
	"strings"

	"pdfrag/internal/domain"
)

const (
	DefaultFixedSize   = 500
	DefaultFixedMinLen = 10
)

// FixedChunker slices text into fixed-size rune windows, ignoring structure.
// Windows whose trimmed text is not longer than minLen are dropped.
type FixedChunker struct {
	size   int
	minLen int
}

func NewFixedChunker(size, minLen int) *FixedChunker {
	if size <= 0 {
		size = DefaultFixedSize
	}
	if minLen < 0 {
		minLen = 0
	}
	return &FixedChunker{size: size, minLen: minLen}
}

func (c *FixedChunker) Name() string { return "fixed" }

func (c *FixedChunker) Chunk(documentID, text string) ([]domain.Chunk, error) {
	runes := []rune(text)
	var chunks []domain.Chunk
	for start := 0; start < len(runes); start += c.size {
		end := min(start+c.size, len(runes))
		window := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(window)) <= c.minLen {
			continue
		}
		idx := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:         ChunkID(documentID, idx),
			DocumentID: documentID,
			Index:      idx,
			Heading:    fmt.Sprintf("Part %d", idx+1),
			Text:       window,
		})
	}
	return chunks, nil
}
