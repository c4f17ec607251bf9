package chunking

import (
	"fmt"
	"sort"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 64
)

// PageChunker slides a fixed rune window over the normalized pages of a document
// and remembers which pages every window touched.
type PageChunker struct {
	ChunkSize int
	Overlap   int
}

func NewPageChunker(chunkSize, overlap int) (*PageChunker, error) {
	if chunkSize <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidConfiguration, "new page chunker",
			fmt.Errorf("chunk size must be positive, got %d", chunkSize))
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, domain.WrapError(domain.ErrInvalidConfiguration, "new page chunker",
			fmt.Errorf("overlap must be in [0, %d), got %d", chunkSize, overlap))
	}
	return &PageChunker{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}, nil
}

func (c *PageChunker) Chunk(pages []domain.Page) []domain.Chunk {
	stream, pageMap := buildStream(pages)
	if len(stream) == 0 {
		return nil
	}

	step := c.ChunkSize - c.Overlap
	out := make([]domain.Chunk, 0, (len(stream)+step-1)/step)
	for start := 0; start < len(stream); start += step {
		end := start + c.ChunkSize
		if end > len(stream) {
			end = len(stream)
		}
		out = append(out, domain.Chunk{
			Text:        string(stream[start:end]),
			PageNumbers: distinctPages(pageMap[start:end]),
		})
	}
	return out
}

// buildStream joins normalized non-empty pages with one space. The separator
// belongs to the page before it, so pageMap stays aligned rune for rune.
func buildStream(pages []domain.Page) ([]rune, []int) {
	var stream []rune
	var pageMap []int
	prevPage := 0
	for _, page := range pages {
		text := []rune(Normalize(page.Text))
		if len(text) == 0 {
			continue
		}
		if len(stream) > 0 {
			stream = append(stream, ' ')
			pageMap = append(pageMap, prevPage)
		}
		stream = append(stream, text...)
		for range text {
			pageMap = append(pageMap, page.Number)
		}
		prevPage = page.Number
	}
	return stream, pageMap
}

func distinctPages(window []int) []int {
	seen := make(map[int]struct{}, 4)
	out := make([]int, 0, 4)
	for _, n := range window {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
