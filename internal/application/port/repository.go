package port

import (
	"context"
	"time"

	"github.com/garyjia/receipt-scan/internal/domain/entity"
)

// JobTransition describes a conditional status change of a job.
// The update only applies while the job's status is one of From.
type JobTransition struct {
	From         []string
	To           string
	ErrorCode    string
	ErrorMessage string
}

// JobRepository defines persistence operations for Job
type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	GetByID(ctx context.Context, id string) (*entity.Job, error)
	List(ctx context.Context, userID string, filter entity.JobFilter) ([]*entity.Job, error)
	Count(ctx context.Context, userID, status string) (int, error)

	// ListQueued returns the oldest queued jobs, used by the job runner
	ListQueued(ctx context.Context, limit int) ([]*entity.Job, error)

	// ListStale returns processing jobs not updated since before
	ListStale(ctx context.Context, before time.Time, limit int) ([]*entity.Job, error)

	// UpdateProgress writes step, percentage and optional counts in one statement.
	// It returns false when the job is not processing or the percentage would regress.
	UpdateProgress(ctx context.Context, id string, progress entity.JobProgress) (bool, error)

	// Touch refreshes updated_at of a processing job. It returns false once
	// the job left processing.
	Touch(ctx context.Context, id string) (bool, error)

	// Transition applies a conditional status change and reports whether it happened
	Transition(ctx context.Context, id string, t JobTransition) (bool, error)

	// RefreshSummary recomputes needs_review_count and total_amount_sum from the
	// job's receipts in a single statement and returns the new values
	RefreshSummary(ctx context.Context, id string) (*entity.JobSummary, error)

	// IncrementDegraded atomically bumps degraded_frame_count
	IncrementDegraded(ctx context.Context, id string) error
}

// ReceiptRepository defines persistence operations for Receipt
type ReceiptRepository interface {
	Create(ctx context.Context, receipt *entity.Receipt) error
	GetByID(ctx context.Context, id string) (*entity.Receipt, error)
	ListByJob(ctx context.Context, jobID string, filter entity.ReceiptFilter) ([]*entity.Receipt, error)
	Update(ctx context.Context, receipt *entity.Receipt) error
	Delete(ctx context.Context, id string) error
}

// RuleRepository defines persistence operations for Rule
type RuleRepository interface {
	GetByKey(ctx context.Context, userID, storeNameKey string) (*entity.Rule, error)

	// IncrementHit performs hit_count = hit_count + 1 at the storage layer
	IncrementHit(ctx context.Context, id string, usedAt time.Time) error

	// Upsert inserts the rule or overwrites account and tax category of the
	// existing (user_id, store_name_key) row. rule.ID is set to the stored row's ID.
	Upsert(ctx context.Context, rule *entity.Rule) error

	List(ctx context.Context, userID string) ([]*entity.Rule, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*entity.Rule, error)
}

// ExportRepository defines persistence operations for Export
type ExportRepository interface {
	Create(ctx context.Context, export *entity.Export) error
	ListByJob(ctx context.Context, jobID string) ([]*entity.Export, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
