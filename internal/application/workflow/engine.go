package workflow

import (
	"context"

	"github.com/garyjia/receipt-scan/internal/domain/entity"
)

// Engine applies job lifecycle transitions. Each call validates the trigger
// against the job state machine, persists the change only if the stored status
// still permits it, and publishes the matching event.
// The bool result reports whether this call performed the transition.
type Engine interface {
	// Start claims a queued job for processing
	Start(ctx context.Context, job *entity.Job) (bool, error)

	// Complete finishes a processing job. A non-empty code marks a degraded run.
	Complete(ctx context.Context, job *entity.Job, code, message string) (bool, error)

	// Fail moves a queued or processing job to failed
	Fail(ctx context.Context, job *entity.Job, code, message string) (bool, error)

	// Cancel moves a queued or processing job to canceled
	Cancel(ctx context.Context, job *entity.Job) (bool, error)
}
