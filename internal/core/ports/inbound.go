package ports

import (
	"context"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
)

// DocumentIngestor is the inbound contract for turning files into indexed records.
type DocumentIngestor interface {
	Ingest(ctx context.Context, filePath string) ([]domain.Record, error)
	Index(ctx context.Context, records []domain.Record) (int, error)
	IngestAndIndex(ctx context.Context, filePath string) (*domain.IngestResult, error)
}

// Retriever is the inbound contract for base and reranked search.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]domain.Hit, error)
	Rerank(ctx context.Context, query string, topK, topN int) ([]domain.Hit, error)
}

// AnswerService is the inbound contract for the cited answer pipeline.
type AnswerService interface {
	Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error)
}

// IngestionScheduler queues ingestion runs for the worker.
type IngestionScheduler interface {
	Schedule(ctx context.Context, filePath string) (*domain.Ingestion, error)
}

// IngestionReader is the inbound read model for ingestion ledger entries.
type IngestionReader interface {
	GetByID(ctx context.Context, id string) (*domain.Ingestion, error)
}

// IngestionProcessor is the inbound contract for asynchronous ingestion runs.
type IngestionProcessor interface {
	ProcessByID(ctx context.Context, ingestionID string) error
}
