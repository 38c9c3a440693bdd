package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/infrastructure/persistence/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExportRepository implements port.ExportRepository
type ExportRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExportRepository creates a new export repository
func NewExportRepository(db *sql.DB, logger *zap.Logger) *ExportRepository {
	return &ExportRepository{
		db:     db,
		logger: logger,
	}
}

// Create records a generated export
func (r *ExportRepository) Create(ctx context.Context, export *entity.Export) error {
	if export.ID == "" {
		export.ID = uuid.NewString()
	}
	export.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO exports (
			id, job_id, user_id, format, template_version,
			credit_account_default, file_storage_key, row_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		export.ID,
		export.JobID,
		export.UserID,
		export.Format,
		export.TemplateVersion,
		export.CreditAccountDefault,
		export.FileStorageKey,
		export.RowCount,
		export.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create export",
			zap.String("job_id", export.JobID),
			zap.String("format", export.Format),
			zap.Error(err))
		return fmt.Errorf("failed to create export: %w", err)
	}

	return nil
}

// ListByJob returns the exports of a job, newest first
func (r *ExportRepository) ListByJob(ctx context.Context, jobID string) ([]*entity.Export, error) {
	query := `
		SELECT id, job_id, user_id, format, template_version,
			credit_account_default, file_storage_key, row_count, created_at
		FROM exports
		WHERE job_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, jobID)
	if err != nil {
		r.logger.Error("Failed to list exports",
			zap.String("job_id", jobID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	defer rows.Close()

	var exports []*entity.Export
	for rows.Next() {
		var e entity.Export
		if err := rows.Scan(
			&e.ID,
			&e.JobID,
			&e.UserID,
			&e.Format,
			&e.TemplateVersion,
			&e.CreditAccountDefault,
			&e.FileStorageKey,
			&e.RowCount,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		exports = append(exports, &e)
	}
	return exports, rows.Err()
}

func (r *ExportRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.ExportRepository = (*ExportRepository)(nil)
