package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/core/ports"
)

type ProcessIngestionUseCase struct {
	repo     ports.IngestionRepository
	ingestor ports.DocumentIngestor
}

func NewProcessIngestionUseCase(repo ports.IngestionRepository, ingestor ports.DocumentIngestor) *ProcessIngestionUseCase {
	return &ProcessIngestionUseCase{
		repo:     repo,
		ingestor: ingestor,
	}
}

func (uc *ProcessIngestionUseCase) ProcessByID(ctx context.Context, ingestionID string) error {
	if err := uc.markStatus(ctx, ingestionID, domain.IngestionProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	result, err := uc.processPipeline(ctx, ingestionID)
	if err != nil {
		if failErr := uc.markFailed(ctx, ingestionID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveResult(ctx, ingestionID, *result); err != nil {
		if failErr := uc.markFailed(ctx, ingestionID, err); failErr != nil {
			return fmt.Errorf("save result: %w; mark failed status: %v", err, failErr)
		}
		return fmt.Errorf("save result: %w", err)
	}

	return nil
}

func (uc *ProcessIngestionUseCase) processPipeline(ctx context.Context, ingestionID string) (*domain.IngestResult, error) {
	ingestion, err := uc.repo.GetByID(ctx, ingestionID)
	if err != nil {
		return nil, fmt.Errorf("fetch ingestion by id: %w", err)
	}

	result, err := uc.ingestor.IngestAndIndex(ctx, ingestion.FilePath)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", ingestion.FilePath, err)
	}
	return result, nil
}

func (uc *ProcessIngestionUseCase) markStatus(ctx context.Context, ingestionID string, status domain.IngestionStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, ingestionID, status, errMessage)
}

func (uc *ProcessIngestionUseCase) markFailed(ctx context.Context, ingestionID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, ingestionID, domain.IngestionFailed, processErr.Error())
}
