package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/receipt-scan/internal/application/dispatcher"
	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/domain/event"
	domainwf "github.com/garyjia/receipt-scan/internal/domain/workflow"
	"go.uber.org/zap"
)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	jobs       port.JobRepository
	dispatcher dispatcher.Dispatcher
	logger     *zap.Logger
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// NewEngine creates a new workflow engine
func NewEngine(jobs port.JobRepository, opts ...EngineOption) Engine {
	e := &engineImpl{
		jobs:   jobs,
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *engineImpl) Start(ctx context.Context, job *entity.Job) (bool, error) {
	return e.transition(ctx, job, domainwf.TriggerStart, "", "")
}

func (e *engineImpl) Complete(ctx context.Context, job *entity.Job, code, message string) (bool, error) {
	return e.transition(ctx, job, domainwf.TriggerComplete, code, message)
}

func (e *engineImpl) Fail(ctx context.Context, job *entity.Job, code, message string) (bool, error) {
	return e.transition(ctx, job, domainwf.TriggerFail, code, message)
}

func (e *engineImpl) Cancel(ctx context.Context, job *entity.Job) (bool, error) {
	return e.transition(ctx, job, domainwf.TriggerCancel, "", "")
}

// transition validates trigger from the job's last known state, then lets the
// storage layer decide atomically whether the stored state still permits it
func (e *engineImpl) transition(ctx context.Context, job *entity.Job, trigger domainwf.Trigger, code, message string) (bool, error) {
	previous := domainwf.State(job.Status)

	target, err := domainwf.Next(previous, trigger)
	if err != nil {
		return false, fmt.Errorf("job %s: %w", job.ID, err)
	}

	sources := domainwf.Sources(trigger)
	from := make([]string, len(sources))
	for i, s := range sources {
		from[i] = s.String()
	}

	ok, err := e.jobs.Transition(ctx, job.ID, port.JobTransition{
		From:         from,
		To:           target.String(),
		ErrorCode:    code,
		ErrorMessage: message,
	})
	if err != nil {
		return false, err
	}
	if !ok {
		e.logger.Info("Job transition skipped, stored status changed",
			zap.String("job_id", job.ID),
			zap.String("trigger", trigger.String()),
			zap.String("last_known", previous.String()))
		return false, nil
	}

	job.Status = target.String()
	if code != "" {
		job.ErrorCode = code
		job.ErrorMessage = message
	}

	e.logger.Info("Job transitioned",
		zap.String("job_id", job.ID),
		zap.String("from", previous.String()),
		zap.String("to", target.String()))

	if e.dispatcher != nil {
		if evtType, ok := eventFor(target); ok {
			evt := event.NewEvent(evtType, job.ID, job.UserID, map[string]interface{}{
				"previous_status":        previous.String(),
				"new_status":             target.String(),
				"error_code":             code,
				"error_message":          message,
				"detected_receipt_count": job.DetectedReceiptCount,
				"needs_review_count":     job.NeedsReviewCount,
				"total_amount_sum":       job.TotalAmountSum,
			})
			e.dispatcher.DispatchAsync(ctx, evt)
		}
	}

	return true, nil
}

func eventFor(state domainwf.State) (event.Type, bool) {
	switch state {
	case domainwf.StateProcessing:
		return event.TypeJobStarted, true
	case domainwf.StateCompleted:
		return event.TypeJobCompleted, true
	case domainwf.StateFailed:
		return event.TypeJobFailed, true
	case domainwf.StateCanceled:
		return event.TypeJobCanceled, true
	}
	return "", false
}
