package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
)

const schemaLockID int64 = 2026101701

type IngestionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewIngestionRepository(db *sql.DB) *IngestionRepository {
	return &IngestionRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *IngestionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS ingestions (
	id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	source TEXT NOT NULL,
	status TEXT NOT NULL,
	records INTEGER NOT NULL DEFAULT 0,
	upserted INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ingestions_status ON ingestions(status);
CREATE INDEX IF NOT EXISTS idx_ingestions_source ON ingestions(source);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *IngestionRepository) Create(ctx context.Context, ingestion *domain.Ingestion) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO ingestions (
	id, file_path, source, status, records, upserted, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		ingestion.ID, ingestion.FilePath, ingestion.Source, string(ingestion.Status),
		ingestion.Records, ingestion.Upserted, ingestion.Error, ingestion.CreatedAt, ingestion.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ingestion: %w", err)
	}
	return nil
}

func (r *IngestionRepository) GetByID(ctx context.Context, id string) (*domain.Ingestion, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, file_path, source, status, records, upserted, error_message, created_at, updated_at
FROM ingestions
WHERE id = $1
`, id)

	var ingestion domain.Ingestion
	var status string
	err := row.Scan(
		&ingestion.ID, &ingestion.FilePath, &ingestion.Source, &status,
		&ingestion.Records, &ingestion.Upserted, &ingestion.Error, &ingestion.CreatedAt, &ingestion.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get ingestion", fmt.Errorf("ingestion %s", id))
		}
		return nil, fmt.Errorf("scan ingestion: %w", err)
	}
	ingestion.Status = domain.IngestionStatus(status)
	return &ingestion, nil
}

func (r *IngestionRepository) UpdateStatus(ctx context.Context, id string, status domain.IngestionStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE ingestions
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, r.now())
	if err != nil {
		return fmt.Errorf("update ingestion status: %w", err)
	}
	return requireAffected(res, "update ingestion status", id)
}

// SaveResult stores counters and moves the entry to completed, or skipped
// when the source was already indexed.
func (r *IngestionRepository) SaveResult(ctx context.Context, id string, result domain.IngestResult) error {
	status := domain.IngestionCompleted
	if result.Skipped {
		status = domain.IngestionSkipped
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE ingestions
SET status = $2, records = $3, upserted = $4, error_message = '', updated_at = $5
WHERE id = $1
`, id, string(status), result.Records, result.Upserted, r.now())
	if err != nil {
		return fmt.Errorf("save ingestion result: %w", err)
	}
	return requireAffected(res, "save ingestion result", id)
}

func requireAffected(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("ingestion %s", id))
	}
	return nil
}
