package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/core/ports"
)

type RetrievalUseCase struct {
	index ports.VectorIndex
}

func NewRetrievalUseCase(index ports.VectorIndex) *RetrievalUseCase {
	return &RetrievalUseCase{index: index}
}

// Search returns hits in the index's relevance order. Blank queries and
// non-positive topK return no hits without contacting the index.
func (uc *RetrievalUseCase) Search(ctx context.Context, query string, topK int) ([]domain.Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 {
		return []domain.Hit{}, nil
	}

	if err := uc.ensureIndex(ctx, "search"); err != nil {
		return nil, err
	}

	hits, err := uc.index.Search(ctx, ports.SearchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return nonNil(hits), nil
}

// Rerank retrieves topK candidates and returns at most min(topN, topK) of them
// in reranked order.
func (uc *RetrievalUseCase) Rerank(ctx context.Context, query string, topK, topN int) ([]domain.Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 || topN <= 0 {
		return []domain.Hit{}, nil
	}
	if topN > topK {
		topN = topK
	}

	if err := uc.ensureIndex(ctx, "rerank"); err != nil {
		return nil, err
	}

	hits, err := uc.index.SearchWithRerank(ctx, ports.RerankRequest{Query: query, TopK: topK, TopN: topN})
	if err != nil {
		return nil, fmt.Errorf("rerank search: %w", err)
	}
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return nonNil(hits), nil
}

func (uc *RetrievalUseCase) ensureIndex(ctx context.Context, operation string) error {
	ok, err := uc.index.HasIndex(ctx)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if !ok {
		return domain.WrapError(domain.ErrIndexUnavailable, operation, errors.New("index does not exist"))
	}
	return nil
}

func nonNil(hits []domain.Hit) []domain.Hit {
	if hits == nil {
		return []domain.Hit{}
	}
	return hits
}
