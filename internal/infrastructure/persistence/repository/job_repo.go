package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/infrastructure/persistence/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const jobColumns = `
	id, user_id, status, progress_step, progress_pct,
	video_filename, video_mime, video_size_bytes, video_storage_key,
	detected_receipt_count, needs_review_count, total_amount_sum, degraded_frame_count,
	error_code, error_message,
	created_at, updated_at, started_at, finished_at`

// JobRepository implements port.JobRepository
type JobRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *sql.DB, logger *zap.Logger) *JobRepository {
	return &JobRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a job. ID, status and timestamps are filled in when empty.
func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = entity.JobStatusQueued
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	query := `
		INSERT INTO jobs (
			id, user_id, status, progress_step, progress_pct,
			video_filename, video_mime, video_size_bytes, video_storage_key,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		job.ID,
		job.UserID,
		job.Status,
		job.ProgressStep,
		job.ProgressPct,
		job.VideoFilename,
		job.VideoMime,
		job.VideoSizeBytes,
		job.VideoStorageKey,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create job",
			zap.String("user_id", job.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID returns the job or nil when it does not exist
func (r *JobRepository) GetByID(ctx context.Context, id string) (*entity.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	job, err := scanJob(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get job by ID",
			zap.String("id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// List returns a user's jobs, newest first
func (r *JobRepository) List(ctx context.Context, userID string, filter entity.JobFilter) ([]*entity.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE user_id = ?`
	args := []interface{}{userID}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list jobs",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// Count returns the number of the user's jobs, optionally narrowed to one status
func (r *JobRepository) Count(ctx context.Context, userID, status string) (int, error) {
	query := `SELECT COUNT(*) FROM jobs WHERE user_id = ?`
	args := []interface{}{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}

	var n int
	if err := r.getExecutor(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		r.logger.Error("Failed to count jobs",
			zap.String("user_id", userID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return n, nil
}

// ListQueued returns the oldest queued jobs
func (r *JobRepository) ListQueued(ctx context.Context, limit int) ([]*entity.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT ?`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, entity.JobStatusQueued, limit)
	if err != nil {
		r.logger.Error("Failed to list queued jobs", zap.Error(err))
		return nil, fmt.Errorf("failed to list queued jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListStale returns processing jobs whose last update is older than before
func (r *JobRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*entity.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = ? AND updated_at < ?
		ORDER BY updated_at ASC
		LIMIT ?`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, entity.JobStatusProcessing, before.UTC(), limit)
	if err != nil {
		r.logger.Error("Failed to list stale jobs", zap.Error(err))
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// UpdateProgress writes step, percentage and the optional detected count in one statement.
// Regressions and writes to non-processing jobs are ignored and reported as false.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, progress entity.JobProgress) (bool, error) {
	query := `
		UPDATE jobs
		SET progress_step = ?,
			progress_pct = ?,
			detected_receipt_count = COALESCE(?, detected_receipt_count),
			updated_at = ?
		WHERE id = ? AND status = ? AND progress_pct <= ?
	`

	var detected sql.NullInt64
	if progress.DetectedReceiptCount != nil {
		detected = sql.NullInt64{Int64: int64(*progress.DetectedReceiptCount), Valid: true}
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		progress.Step,
		progress.Pct,
		detected,
		time.Now().UTC(),
		id,
		entity.JobStatusProcessing,
		progress.Pct,
	)
	if err != nil {
		r.logger.Error("Failed to update job progress",
			zap.String("id", id),
			zap.String("step", progress.Step),
			zap.Error(err))
		return false, fmt.Errorf("failed to update job progress: %w", err)
	}

	return affected(result)
}

// Transition changes status only while the current status is one of t.From
func (r *JobRepository) Transition(ctx context.Context, id string, t port.JobTransition) (bool, error) {
	if len(t.From) == 0 {
		return false, fmt.Errorf("transition to %s has no source states", t.To)
	}

	now := time.Now().UTC()
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{t.To, now}

	switch t.To {
	case entity.JobStatusProcessing:
		sets = append(sets, "started_at = COALESCE(started_at, ?)")
		args = append(args, now)
	case entity.JobStatusCompleted, entity.JobStatusFailed, entity.JobStatusCanceled:
		sets = append(sets, "finished_at = ?")
		args = append(args, now)
	}

	if t.ErrorCode != "" {
		sets = append(sets, "error_code = ?", "error_message = ?")
		args = append(args, t.ErrorCode, t.ErrorMessage)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.From)), ", ")
	query := fmt.Sprintf(`UPDATE jobs SET %s WHERE id = ? AND status IN (%s)`,
		strings.Join(sets, ", "), placeholders)

	args = append(args, id)
	for _, from := range t.From {
		args = append(args, from)
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to transition job",
			zap.String("id", id),
			zap.String("to", t.To),
			zap.Error(err))
		return false, fmt.Errorf("failed to transition job: %w", err)
	}

	return affected(result)
}

// RefreshSummary recomputes the job's review count and amount sum from its receipts
func (r *JobRepository) RefreshSummary(ctx context.Context, id string) (*entity.JobSummary, error) {
	exec := r.getExecutor(ctx)

	update := `
		UPDATE jobs
		SET needs_review_count = (
				SELECT COUNT(*) FROM receipts WHERE receipts.job_id = jobs.id AND receipts.needs_review = 1
			),
			total_amount_sum = (
				SELECT COALESCE(SUM(final_total_amount), 0) FROM receipts WHERE receipts.job_id = jobs.id
			),
			updated_at = ?
		WHERE id = ?
	`

	result, err := exec.ExecContext(ctx, update, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to refresh job summary",
			zap.String("id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to refresh job summary: %w", err)
	}
	if ok, err := affected(result); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("job %s: %w", id, entity.ErrNotFound)
	}

	query := `
		SELECT j.needs_review_count, j.total_amount_sum,
			(SELECT COUNT(*) FROM receipts WHERE receipts.job_id = j.id)
		FROM jobs j
		WHERE j.id = ?
	`

	var summary entity.JobSummary
	if err := exec.QueryRowContext(ctx, query, id).Scan(
		&summary.NeedsReviewCount,
		&summary.TotalAmountSum,
		&summary.ReceiptCount,
	); err != nil {
		return nil, fmt.Errorf("failed to read job summary: %w", err)
	}

	return &summary, nil
}

// IncrementDegraded atomically bumps degraded_frame_count
func (r *JobRepository) IncrementDegraded(ctx context.Context, id string) error {
	query := `UPDATE jobs SET degraded_frame_count = degraded_frame_count + 1, updated_at = ? WHERE id = ?`

	if _, err := r.getExecutor(ctx).ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		r.logger.Error("Failed to increment degraded frame count",
			zap.String("id", id),
			zap.Error(err))
		return fmt.Errorf("failed to increment degraded frame count: %w", err)
	}
	return nil
}

// Touch marks a processing job as alive so the stale sweep leaves it alone
func (r *JobRepository) Touch(ctx context.Context, id string) (bool, error) {
	query := `UPDATE jobs SET updated_at = ? WHERE id = ? AND status = ?`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, time.Now().UTC(), id, entity.JobStatusProcessing)
	if err != nil {
		r.logger.Error("Failed to touch job",
			zap.String("id", id),
			zap.Error(err))
		return false, fmt.Errorf("failed to touch job: %w", err)
	}
	return affected(result)
}

func (r *JobRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

func scanJob(row rowScanner) (*entity.Job, error) {
	var job entity.Job
	var errorCode, errorMessage sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Status,
		&job.ProgressStep,
		&job.ProgressPct,
		&job.VideoFilename,
		&job.VideoMime,
		&job.VideoSizeBytes,
		&job.VideoStorageKey,
		&job.DetectedReceiptCount,
		&job.NeedsReviewCount,
		&job.TotalAmountSum,
		&job.DegradedFrameCount,
		&errorCode,
		&errorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	job.ErrorCode = errorCode.String
	job.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}

	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*entity.Job, error) {
	var jobs []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Verify interface compliance
var _ port.JobRepository = (*JobRepository)(nil)
