package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/core/ports"
)

type Reranker interface {
	Rerank(query string, candidates []domain.Hit, topN int) []domain.Hit
}

// Index is an in-process VectorIndex scoring records by cosine similarity of
// term-frequency vectors. Records are kept in insertion order; upserting an
// existing id replaces it in place.
type Index struct {
	reranker Reranker

	mu      sync.RWMutex
	order   []string
	records map[string]entry
}

type entry struct {
	record domain.Record
	terms  map[string]float64
	norm   float64
}

func New(reranker Reranker) *Index {
	return &Index{
		reranker: reranker,
		records:  make(map[string]entry),
	}
}

func (i *Index) HasIndex(context.Context) (bool, error) {
	return true, nil
}

func (i *Index) Search(_ context.Context, req ports.SearchRequest) ([]domain.Hit, error) {
	if req.TopK <= 0 {
		return []domain.Hit{}, nil
	}
	queryTerms, queryNorm := termVector(req.Query)

	i.mu.RLock()
	hits := make([]domain.Hit, 0, len(i.order))
	for _, id := range i.order {
		e := i.records[id]
		hits = append(hits, domain.Hit{
			ID:        e.record.ID,
			Score:     cosine(queryTerms, queryNorm, e.terms, e.norm),
			ChunkText: e.record.ChunkText,
			Source:    e.record.Source,
			Pages:     e.record.Pages,
		})
	}
	i.mu.RUnlock()

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})
	if len(hits) > req.TopK {
		hits = hits[:req.TopK]
	}
	return hits, nil
}

func (i *Index) SearchWithRerank(ctx context.Context, req ports.RerankRequest) ([]domain.Hit, error) {
	candidates, err := i.Search(ctx, ports.SearchRequest{Query: req.Query, TopK: req.TopK})
	if err != nil {
		return nil, err
	}
	return i.reranker.Rerank(req.Query, candidates, req.TopN), nil
}

func (i *Index) Upsert(_ context.Context, records []domain.Record) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, record := range records {
		terms, norm := termVector(record.ChunkText)
		if _, ok := i.records[record.ID]; !ok {
			i.order = append(i.order, record.ID)
		}
		i.records[record.ID] = entry{record: record, terms: terms, norm: norm}
	}
	return nil
}

func (i *Index) SourceExists(_ context.Context, source string) (bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	for _, e := range i.records {
		if e.record.Source == source {
			return true, nil
		}
	}
	return false, nil
}

// Len reports the number of stored records.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.order)
}

func termVector(text string) (map[string]float64, float64) {
	terms := make(map[string]float64)
	for _, token := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		terms[token]++
	}
	sum := 0.0
	for _, v := range terms {
		sum += v * v
	}
	return terms, math.Sqrt(sum)
}

func cosine(a map[string]float64, normA float64, b map[string]float64, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	dot := 0.0
	for term, v := range a {
		dot += v * b[term]
	}
	return dot / (normA * normB)
}
