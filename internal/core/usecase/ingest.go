package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/core/ports"
)

const defaultUpsertBatchSize = 96

type IngestDocumentUseCase struct {
	extractor ports.PageExtractor
	chunker   ports.PageChunker
	index     ports.VectorIndex
	batchSize int
}

func NewIngestDocumentUseCase(
	extractor ports.PageExtractor,
	chunker ports.PageChunker,
	index ports.VectorIndex,
	batchSize int,
) *IngestDocumentUseCase {
	if batchSize <= 0 {
		batchSize = defaultUpsertBatchSize
	}
	return &IngestDocumentUseCase{
		extractor: extractor,
		chunker:   chunker,
		index:     index,
		batchSize: batchSize,
	}
}

// Ingest extracts and chunks one file into records. It never writes anywhere.
func (uc *IngestDocumentUseCase) Ingest(ctx context.Context, filePath string) ([]domain.Record, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest document", fmt.Errorf("file path is required"))
	}

	pages, err := uc.extractor.ExtractPages(ctx, filePath)
	if err != nil {
		return nil, err
	}

	source := filepath.Base(filePath)
	chunks := uc.chunker.Chunk(pages)
	records := make([]domain.Record, 0, len(chunks))
	for i, chunk := range chunks {
		records = append(records, domain.Record{
			ID:        fmt.Sprintf("%s::chunk_%d", source, i+1),
			ChunkText: chunk.Text,
			Source:    source,
			Pages:     joinPages(chunk.PageNumbers),
		})
	}

	slog.Info("document_chunked", "source", source, "pages", len(pages), "chunks", len(records))
	return records, nil
}

// Index upserts records unless their source is already present in the index.
// It returns the number of records written.
func (uc *IngestDocumentUseCase) Index(ctx context.Context, records []domain.Record) (int, error) {
	upserted, _, err := uc.indexRecords(ctx, records)
	return upserted, err
}

func (uc *IngestDocumentUseCase) IngestAndIndex(ctx context.Context, filePath string) (*domain.IngestResult, error) {
	records, err := uc.Ingest(ctx, filePath)
	if err != nil {
		return nil, err
	}

	upserted, skipped, err := uc.indexRecords(ctx, records)
	if err != nil {
		return nil, err
	}

	return &domain.IngestResult{
		File:     filePath,
		Source:   filepath.Base(filePath),
		Records:  len(records),
		Upserted: upserted,
		Skipped:  skipped,
	}, nil
}

func (uc *IngestDocumentUseCase) indexRecords(ctx context.Context, records []domain.Record) (int, bool, error) {
	if len(records) == 0 {
		return 0, false, nil
	}

	source := records[0].Source
	if source != "" {
		exists, err := uc.index.SourceExists(ctx, source)
		if err != nil {
			return 0, false, fmt.Errorf("check existing source: %w", err)
		}
		if exists {
			slog.Info("ingest_skipped", "source", source, "reason", "source already indexed")
			return 0, true, nil
		}
	}

	total := 0
	for start := 0; start < len(records); start += uc.batchSize {
		end := start + uc.batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := uc.index.Upsert(ctx, records[start:end]); err != nil {
			return total, false, fmt.Errorf("upsert records %d-%d: %w", start, end, err)
		}
		total += end - start
	}

	slog.Info("ingest_completed", "source", source, "upserted", total)
	return total, false, nil
}

func joinPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
