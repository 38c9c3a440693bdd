package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/dispatcher"
	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/application/workflow"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/domain/event"
	"go.uber.org/zap"
)

// JobProcessor runs one claimed job to a terminal state
type JobProcessor interface {
	Run(ctx context.Context, job *entity.Job) error
}

// JobRunnerConfig holds configuration for the job runner
type JobRunnerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
	// ShutdownGrace is how long Stop waits for running jobs before canceling them
	ShutdownGrace time.Duration
}

// DefaultJobRunnerConfig returns default configuration
func DefaultJobRunnerConfig() JobRunnerConfig {
	return JobRunnerConfig{
		PollInterval:  5 * time.Second,
		BatchSize:     5,
		Concurrency:   2,
		ShutdownGrace: 30 * time.Second,
	}
}

// JobRunner claims queued jobs and runs them on a bounded number of goroutines
type JobRunner struct {
	config    JobRunnerConfig
	jobs      port.JobRepository
	lifecycle workflow.Engine
	processor JobProcessor
	logger    *zap.Logger

	wake  chan struct{}
	slots chan struct{}
	wg    sync.WaitGroup

	mu         sync.Mutex
	isRunning  bool
	pollCancel context.CancelFunc
	runCancel  context.CancelFunc
	pollDone   chan struct{}
}

// NewJobRunner creates a new job runner
func NewJobRunner(config JobRunnerConfig, jobs port.JobRepository, lifecycle workflow.Engine, processor JobProcessor, logger *zap.Logger) *JobRunner {
	d := DefaultJobRunnerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = d.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = d.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = d.Concurrency
	}
	if config.ShutdownGrace < 0 {
		config.ShutdownGrace = 0
	}

	return &JobRunner{
		config:    config,
		jobs:      jobs,
		lifecycle: lifecycle,
		processor: processor,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		slots:     make(chan struct{}, config.Concurrency),
	}
}

// Name returns the worker name for identification
func (r *JobRunner) Name() string {
	return "JobRunner"
}

// Register wakes the runner whenever a job is queued
func (r *JobRunner) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeJobQueued, "job-runner-wake", func(ctx context.Context, evt *event.Event) error {
		r.Wake()
		return nil
	})
}

// Wake triggers a poll without waiting for the next tick
func (r *JobRunner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Start begins the polling loop
func (r *JobRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("job runner already running")
	}

	pollCtx, pollCancel := context.WithCancel(ctx)
	// runs outlive the poll loop so Stop can drain them
	runCtx, runCancel := context.WithCancel(context.WithoutCancel(ctx))

	r.pollCancel = pollCancel
	r.runCancel = runCancel
	r.pollDone = make(chan struct{})
	r.isRunning = true

	r.logger.Info("JobRunner started",
		zap.Duration("poll_interval", r.config.PollInterval),
		zap.Int("batch_size", r.config.BatchSize),
		zap.Int("concurrency", r.config.Concurrency))

	go r.pollLoop(pollCtx, runCtx)
	return nil
}

// Stop stops claiming jobs, waits up to ShutdownGrace for running ones, then cancels them
func (r *JobRunner) Stop() error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.mu.Unlock()

	r.pollCancel()
	<-r.pollDone

	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(r.config.ShutdownGrace):
		r.logger.Warn("Canceling running jobs after shutdown grace",
			zap.Duration("grace", r.config.ShutdownGrace))
		r.runCancel()
		<-drained
	}
	r.runCancel()

	r.logger.Info("JobRunner stopped")
	return nil
}

func (r *JobRunner) pollLoop(pollCtx, runCtx context.Context) {
	defer close(r.pollDone)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.claimBatch(pollCtx, runCtx)
	for {
		select {
		case <-pollCtx.Done():
			r.logger.Debug("Poll loop context cancelled")
			return
		case <-ticker.C:
		case <-r.wake:
		}
		r.claimBatch(pollCtx, runCtx)
	}
}

// claimBatch starts as many queued jobs as there are free slots
func (r *JobRunner) claimBatch(pollCtx, runCtx context.Context) {
	free := cap(r.slots) - len(r.slots)
	if free <= 0 {
		return
	}
	limit := r.config.BatchSize
	if free < limit {
		limit = free
	}

	queued, err := r.jobs.ListQueued(pollCtx, limit)
	if err != nil {
		if pollCtx.Err() == nil {
			r.logger.Error("Failed to list queued jobs", zap.Error(err))
		}
		return
	}

	for _, job := range queued {
		select {
		case r.slots <- struct{}{}:
		case <-pollCtx.Done():
			return
		}

		claimed, err := r.lifecycle.Start(pollCtx, job)
		if err != nil || !claimed {
			<-r.slots
			if err != nil {
				r.logger.Error("Failed to claim job", zap.String("job_id", job.ID), zap.Error(err))
			}
			continue
		}

		r.wg.Add(1)
		go r.run(runCtx, job)
	}
}

func (r *JobRunner) run(ctx context.Context, job *entity.Job) {
	defer r.wg.Done()
	defer func() { <-r.slots }()
	defer func() {
		// the orchestrator recovers its own panics; this guards the runner
		if p := recover(); p != nil {
			r.logger.Error("Job processor panicked", zap.String("job_id", job.ID), zap.Any("panic", p))
		}
	}()

	start := time.Now()
	err := r.processor.Run(ctx, job)
	r.logger.Info("Job run finished",
		zap.String("job_id", job.ID),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	// a subsequent poll may find more work now that a slot is free
	r.Wake()
}
