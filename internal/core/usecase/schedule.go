package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/core/ports"
)

type ScheduleIngestionUseCase struct {
	repo  ports.IngestionRepository
	queue ports.MessageQueue
	now   func() time.Time
}

func NewScheduleIngestionUseCase(repo ports.IngestionRepository, queue ports.MessageQueue) *ScheduleIngestionUseCase {
	return &ScheduleIngestionUseCase{
		repo:  repo,
		queue: queue,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Schedule records a queued ingestion and publishes it for the worker.
func (uc *ScheduleIngestionUseCase) Schedule(ctx context.Context, filePath string) (*domain.Ingestion, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "schedule ingestion", fmt.Errorf("file path is required"))
	}

	now := uc.now()
	ingestion := &domain.Ingestion{
		ID:        uuid.NewString(),
		FilePath:  filePath,
		Source:    filepath.Base(filePath),
		Status:    domain.IngestionQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.repo.Create(ctx, ingestion); err != nil {
		return nil, fmt.Errorf("create ingestion record: %w", err)
	}
	if err := uc.queue.PublishIngestionRequested(ctx, ingestion.ID); err != nil {
		// No worker will pick the entry up, so it must not stay queued.
		if statusErr := uc.repo.UpdateStatus(ctx, ingestion.ID, domain.IngestionFailed, err.Error()); statusErr != nil {
			slog.Error("ingestion_mark_failed_error",
				"ingestion_id", ingestion.ID,
				"error", statusErr.Error(),
			)
		}
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	return ingestion, nil
}

// GetByID reads a ledger entry.
func (uc *ScheduleIngestionUseCase) GetByID(ctx context.Context, id string) (*domain.Ingestion, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get ingestion", fmt.Errorf("id is required"))
	}
	return uc.repo.GetByID(ctx, id)
}
