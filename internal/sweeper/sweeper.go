// Package sweeper recovers stuck jobs on a fixed schedule: early-stage jobs
// are re-enqueued up to a retry cap, stalled in-progress jobs are failed as
// a backstop against lost coordinator executions.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/berginj/glovebrand/internal/branding"
	"github.com/berginj/glovebrand/internal/metrics"
)

// retryableStages are the "just enqueued" stages eligible for automatic
// re-enqueue.
var retryableStages = []branding.Stage{branding.StageReceived, branding.StageQueued}

// stallStages are in-progress stages where sitting too long means the
// coordinator execution was lost.
var stallStages = []branding.Stage{
	branding.StageValidated,
	branding.StageCrawled,
	branding.StageLogoSelected,
	branding.StageColorsExtracted,
	branding.StageDesignGenerated,
	branding.StageWizardAttempted,
}

// Config controls the sweep schedule and thresholds.
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Schedule is a six-field cron expression with seconds.
	Schedule       string        `mapstructure:"schedule" yaml:"schedule"`
	RetryThreshold time.Duration `mapstructure:"retry_threshold" yaml:"retry_threshold"`
	StallThreshold time.Duration `mapstructure:"stall_threshold" yaml:"stall_threshold"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	Limit          int           `mapstructure:"limit" yaml:"limit"`
}

// DefaultConfig matches the production sweep cadence.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Schedule:       "0 */5 * * * *",
		RetryThreshold: 5 * time.Minute,
		StallThreshold: 20 * time.Minute,
		MaxRetries:     2,
		Limit:          25,
	}
}

// Sweeper reconciles stale jobs against the store and queue.
type Sweeper struct {
	cfg    Config
	store  branding.JobStore
	queue  branding.Queue
	clock  branding.Clock
	logger *zap.Logger
	cron   *cron.Cron
}

// New builds a sweeper. queue may be nil, in which case retry candidates
// are failed instead of re-enqueued.
func New(cfg Config, store branding.JobStore, queue branding.Queue, clock branding.Clock, logger *zap.Logger) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultConfig().Schedule
	}
	if cfg.RetryThreshold <= 0 {
		cfg.RetryThreshold = 5 * time.Minute
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = 20 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	cfg.Limit = clampLimit(cfg.Limit)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{cfg: cfg, store: store, queue: queue, clock: clock, logger: logger}
}

// Start schedules periodic sweeps until Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("sweeper disabled")
		return nil
	}
	s.cron = cron.New(cron.WithSeconds())
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for an in-flight sweep.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs both passes once.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.clock.Now()

	retryJobs, err := s.store.ListStale(ctx, retryableStages, now.Add(-s.cfg.RetryThreshold), s.cfg.Limit)
	if err != nil {
		return fmt.Errorf("list retry candidates: %w", err)
	}
	for _, job := range retryJobs {
		s.retryJob(ctx, job, now)
	}

	stallJobs, err := s.store.ListStale(ctx, stallStages, now.Add(-s.cfg.StallThreshold), s.cfg.Limit)
	if err != nil {
		return fmt.Errorf("list stalled candidates: %w", err)
	}
	for _, job := range stallJobs {
		s.failStalled(ctx, job)
	}

	s.logger.Info("sweep completed",
		zap.Int("retry_candidates", len(retryJobs)),
		zap.Int("stalled_candidates", len(stallJobs)))
	return nil
}

// StaleJobs reports the current retry and stall candidates without acting
// on them. Backs the debug job listing.
func (s *Sweeper) StaleJobs(ctx context.Context, limit int) (retry, stalled []branding.Job, err error) {
	now := s.clock.Now()
	retry, err = s.store.ListStale(ctx, retryableStages, now.Add(-s.cfg.RetryThreshold), clampLimit(limit))
	if err != nil {
		return nil, nil, fmt.Errorf("list retry candidates: %w", err)
	}
	stalled, err = s.store.ListStale(ctx, stallStages, now.Add(-s.cfg.StallThreshold), clampLimit(limit))
	if err != nil {
		return nil, nil, fmt.Errorf("list stalled candidates: %w", err)
	}
	return retry, stalled, nil
}

func (s *Sweeper) retryJob(ctx context.Context, job branding.Job, now time.Time) {
	nextRetry := job.RetryCount + 1
	log := s.logger.With(zap.String("job_id", job.ID), zap.Int("retry_count", nextRetry))

	if s.queue == nil {
		s.markFailed(ctx, job.ID, "The job queue is not configured. Job cannot be retried automatically.", nextRetry, now)
		log.Warn("retry candidate failed: no queue configured")
		return
	}
	if nextRetry > s.cfg.MaxRetries {
		s.markFailed(ctx, job.ID, fmt.Sprintf("Job exceeded auto-retry limit (%d).", s.cfg.MaxRetries), nextRetry, now)
		metrics.ObserveSweeper("retry_exhausted")
		log.Warn("retry candidate exceeded auto-retry limit")
		return
	}

	msg := branding.Message{JobID: job.ID, TeamURL: job.TeamURL, Mode: job.Mode, Attempt: nextRetry}
	if err := s.queue.Send(ctx, msg); err != nil {
		log.Error("requeue failed", zap.Error(err))
		return
	}
	if err := s.store.UpdateStage(ctx, job.ID, branding.StageQueued, branding.StageUpdate{
		RetryCount:  &nextRetry,
		LastRetryAt: &now,
	}); err != nil {
		log.Error("requeue checkpoint failed", zap.Error(err))
		return
	}
	metrics.ObserveSweeper("requeued")
	log.Info("job requeued")
}

func (s *Sweeper) failStalled(ctx context.Context, job branding.Job) {
	msg := fmt.Sprintf("Job stalled in stage '%s' for more than %s.", job.Stage, s.cfg.StallThreshold)
	if err := s.store.UpdateStage(ctx, job.ID, branding.StageFailed, branding.StageUpdate{Error: msg}); err != nil {
		s.logger.Error("stall checkpoint failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	metrics.ObserveSweeper("stalled")
	s.logger.Warn("stalled job failed",
		zap.String("job_id", job.ID),
		zap.String("previous_stage", string(job.Stage)))
}

func (s *Sweeper) markFailed(ctx context.Context, jobID, reason string, retryCount int, now time.Time) {
	err := s.store.UpdateStage(ctx, jobID, branding.StageFailed, branding.StageUpdate{
		Error:       reason,
		RetryCount:  &retryCount,
		LastRetryAt: &now,
	})
	if err != nil {
		s.logger.Error("failed checkpoint could not be written", zap.String("job_id", jobID), zap.Error(err))
	}
}

// RequeueDeadLetters is the operator escape valve: it moves up to limit
// dead-lettered messages back onto the queue, resetting each job to queued
// with a bumped retry count.
func (s *Sweeper) RequeueDeadLetters(ctx context.Context, limit int) ([]branding.Message, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("no queue configured")
	}
	msgs, err := s.queue.RequeueDeadLetters(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("requeue dead letters: %w", err)
	}
	now := s.clock.Now()
	for _, msg := range msgs {
		job, getErr := s.store.Get(ctx, msg.JobID)
		if getErr != nil {
			s.logger.Warn("dead-letter job not found", zap.String("job_id", msg.JobID), zap.Error(getErr))
			continue
		}
		nextRetry := job.RetryCount + 1
		if err := s.store.UpdateStage(ctx, msg.JobID, branding.StageQueued, branding.StageUpdate{
			RetryCount:  &nextRetry,
			LastRetryAt: &now,
		}); err != nil {
			s.logger.Error("dead-letter checkpoint failed", zap.String("job_id", msg.JobID), zap.Error(err))
		}
	}
	return msgs, nil
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 25
	}
	if limit > 200 {
		return 200
	}
	return limit
}
