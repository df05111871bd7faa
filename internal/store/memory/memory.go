// Package memory implements the job store on a mutex-guarded map. It backs
// tests and single-process local runs; semantics match the postgres
// implementation, including the terminal-stage write guard.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/berginj/glovebrand/internal/branding"
)

// Store is an in-memory JobStore.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]branding.Job
	clock branding.Clock
}

// New creates a Store reading time from clock.
func New(clock branding.Clock) *Store {
	return &Store{jobs: make(map[string]branding.Job), clock: clock}
}

// Upsert writes the whole record, initializing bookkeeping fields.
func (s *Store) Upsert(_ context.Context, job branding.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.StageTimestamps == nil {
		job.StageTimestamps = map[branding.Stage]time.Time{}
	}
	if _, ok := job.StageTimestamps[job.Stage]; !ok {
		job.StageTimestamps[job.Stage] = now
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// UpdateStage merges the update into the stored job. A terminal stage is
// never replaced by a different stage; replaying the same terminal stage is
// allowed so checkpoint retries stay idempotent.
func (s *Store) UpdateStage(_ context.Context, jobID string, stage branding.Stage, update branding.StageUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return branding.ErrJobNotFound
	}
	if job.Stage.Terminal() && job.Stage != stage {
		return branding.ErrTerminalStage
	}
	now := s.clock.Now()
	job.Stage = stage
	job.UpdatedAt = now
	if job.StageTimestamps == nil {
		job.StageTimestamps = map[branding.Stage]time.Time{}
	}
	job.StageTimestamps[stage] = now
	applyUpdate(&job, update)
	s.jobs[jobID] = job
	return nil
}

// Get returns a copy of the job.
func (s *Store) Get(_ context.Context, jobID string) (branding.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return branding.Job{}, branding.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// ListRecent returns up to limit jobs, newest first.
func (s *Store) ListRecent(_ context.Context, limit int) ([]branding.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]branding.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, cloneJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// ListStale returns jobs in one of the given stages whose last update is
// older than olderThan, oldest first.
func (s *Store) ListStale(_ context.Context, stages []branding.Stage, olderThan time.Time, limit int) ([]branding.Job, error) {
	wanted := make(map[branding.Stage]struct{}, len(stages))
	for _, stage := range stages {
		wanted[stage] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []branding.Job
	for _, job := range s.jobs {
		if _, ok := wanted[job.Stage]; !ok {
			continue
		}
		if !job.UpdatedAt.Before(olderThan) {
			continue
		}
		jobs = append(jobs, cloneJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].UpdatedAt.Before(jobs[j].UpdatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// LatestCompletedByTeamURL returns the most recently completed job for the
// normalized team URL.
func (s *Store) LatestCompletedByTeamURL(_ context.Context, teamURL string) (branding.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best branding.Job
	found := false
	for _, job := range s.jobs {
		if job.Stage != branding.StageCompleted || job.TeamURL != teamURL {
			continue
		}
		if !found || job.UpdatedAt.After(best.UpdatedAt) {
			best = job
			found = true
		}
	}
	if !found {
		return branding.Job{}, branding.ErrJobNotFound
	}
	return cloneJob(best), nil
}

func applyUpdate(job *branding.Job, update branding.StageUpdate) {
	if update.Outputs != nil {
		job.Outputs.Merge(*update.Outputs)
	}
	if update.Error != "" {
		job.Error = update.Error
	}
	if update.ErrorDetails != "" {
		job.ErrorDetails = update.ErrorDetails
	}
	if update.RetryCount != nil {
		job.RetryCount = *update.RetryCount
	}
	if update.LastRetryAt != nil {
		t := *update.LastRetryAt
		job.LastRetryAt = &t
	}
	if update.AutofillAttempted != nil {
		job.AutofillAttempted = *update.AutofillAttempted
	}
	if update.AutofillSucceeded != nil {
		job.AutofillSucceeded = *update.AutofillSucceeded
	}
	if update.WizardWarnings != nil {
		job.WizardWarnings = append([]string(nil), update.WizardWarnings...)
	}
	if update.InstanceID != "" {
		job.InstanceID = update.InstanceID
	}
}

func cloneJob(job branding.Job) branding.Job {
	cloned := job
	if job.StageTimestamps != nil {
		cloned.StageTimestamps = make(map[branding.Stage]time.Time, len(job.StageTimestamps))
		for stage, ts := range job.StageTimestamps {
			cloned.StageTimestamps[stage] = ts
		}
	}
	if job.WizardWarnings != nil {
		cloned.WizardWarnings = append([]string(nil), job.WizardWarnings...)
	}
	if job.LastRetryAt != nil {
		t := *job.LastRetryAt
		cloned.LastRetryAt = &t
	}
	return cloned
}
