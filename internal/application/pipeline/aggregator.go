package pipeline

import (
	"context"
	"fmt"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"go.uber.org/zap"
)

// Aggregator is the only writer of a job's receipt summary fields
type Aggregator struct {
	jobs   port.JobRepository
	logger *zap.Logger
}

// NewAggregator creates an aggregator
func NewAggregator(jobs port.JobRepository, logger *zap.Logger) *Aggregator {
	return &Aggregator{jobs: jobs, logger: logger}
}

// Recompute derives needs_review_count and total_amount_sum from the job's
// current receipts and stores them on the job
func (a *Aggregator) Recompute(ctx context.Context, jobID string) (*entity.JobSummary, error) {
	summary, err := a.jobs.RefreshSummary(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute job summary: %w", err)
	}

	a.logger.Debug("Job summary recomputed",
		zap.String("job_id", jobID),
		zap.Int("receipts", summary.ReceiptCount),
		zap.Int("needs_review", summary.NeedsReviewCount),
		zap.Int64("total_amount", summary.TotalAmountSum))

	return summary, nil
}
