package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/application/workflow"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StaleSweeperConfig controls the stale job sweep
type StaleSweeperConfig struct {
	// Schedule is a standard 5-field cron expression
	Schedule  string
	MaxAge    time.Duration
	BatchSize int
}

// DefaultStaleSweeperConfig sweeps every five minutes for jobs idle half an hour
func DefaultStaleSweeperConfig() StaleSweeperConfig {
	return StaleSweeperConfig{
		Schedule:  "*/5 * * * *",
		MaxAge:    30 * time.Minute,
		BatchSize: 50,
	}
}

// StaleSweeper fails processing jobs whose progress stopped moving
type StaleSweeper struct {
	config    StaleSweeperConfig
	jobs      port.JobRepository
	lifecycle workflow.Engine
	logger    *zap.Logger
	now       func() time.Time

	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
}

// NewStaleSweeper validates the schedule and creates a sweeper
func NewStaleSweeper(config StaleSweeperConfig, jobs port.JobRepository, lifecycle workflow.Engine, logger *zap.Logger) (*StaleSweeper, error) {
	d := DefaultStaleSweeperConfig()
	if config.Schedule == "" {
		config.Schedule = d.Schedule
	}
	if config.MaxAge <= 0 {
		config.MaxAge = d.MaxAge
	}
	if config.BatchSize <= 0 {
		config.BatchSize = d.BatchSize
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid sweeper schedule %q: %w", config.Schedule, err)
	}

	return &StaleSweeper{
		config:    config,
		jobs:      jobs,
		lifecycle: lifecycle,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Name returns the worker name for identification
func (s *StaleSweeper) Name() string {
	return "StaleSweeper"
}

// Start schedules the sweep
func (s *StaleSweeper) Start(ctx context.Context) error {
	s.ctx, s.stop = context.WithCancel(ctx)
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if _, err := s.cron.AddFunc(s.config.Schedule, func() {
		if _, err := s.Sweep(s.ctx); err != nil {
			s.logger.Error("Stale job sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()

	s.logger.Info("StaleSweeper scheduled",
		zap.String("schedule", s.config.Schedule),
		zap.Duration("max_age", s.config.MaxAge))
	return nil
}

// Stop waits for a running sweep to finish
func (s *StaleSweeper) Stop() error {
	if s.cron == nil {
		return nil
	}
	s.stop()
	<-s.cron.Stop().Done()
	return nil
}

// Sweep fails every processing job not updated within MaxAge and returns how many it failed
func (s *StaleSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.config.MaxAge)

	stale, err := s.jobs.ListStale(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	failed := 0
	for _, job := range stale {
		msg := fmt.Sprintf("no progress since %s", job.UpdatedAt.UTC().Format(time.RFC3339))
		ok, err := s.lifecycle.Fail(ctx, job, entity.ErrorCodeStaleJob, msg)
		if err != nil {
			s.logger.Error("Failed to fail stale job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if ok {
			failed++
			s.logger.Warn("Stale job failed",
				zap.String("job_id", job.ID),
				zap.Time("last_update", job.UpdatedAt))
		}
	}

	return failed, nil
}
