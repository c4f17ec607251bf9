package ports

import (
	"context"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
)

// PageExtractor extracts ordered pages from a file of the types it declares.
type PageExtractor interface {
	Extensions() []string
	ExtractPages(ctx context.Context, path string) ([]domain.Page, error)
}

// PageChunker windows pages into page-traceable chunks.
type PageChunker interface {
	Chunk(pages []domain.Page) []domain.Chunk
}

type SearchRequest struct {
	Query string
	TopK  int
}

type RerankRequest struct {
	Query string
	TopK  int
	TopN  int
}

// VectorIndex is the external vector-search service with integrated embedding and reranking.
// SearchWithRerank must only reorder or narrow the candidates Search would return.
type VectorIndex interface {
	HasIndex(ctx context.Context) (bool, error)
	Search(ctx context.Context, req SearchRequest) ([]domain.Hit, error)
	SearchWithRerank(ctx context.Context, req RerankRequest) ([]domain.Hit, error)
	Upsert(ctx context.Context, records []domain.Record) error
	// SourceExists reports whether any record carries exactly this source field.
	SourceExists(ctx context.Context, source string) (bool, error)
}

// Generator is the external answer generation service.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, contextBlock, question string) (string, error)
}

// Embedder builds vectors for records and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// IngestionRepository persists ingestion ledger entries.
type IngestionRepository interface {
	Create(ctx context.Context, ingestion *domain.Ingestion) error
	GetByID(ctx context.Context, id string) (*domain.Ingestion, error)
	UpdateStatus(ctx context.Context, id string, status domain.IngestionStatus, errMessage string) error
	SaveResult(ctx context.Context, id string, result domain.IngestResult) error
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishIngestionRequested(ctx context.Context, ingestionID string) error
	SubscribeIngestionRequested(ctx context.Context, handler func(context.Context, string) error) error
}
