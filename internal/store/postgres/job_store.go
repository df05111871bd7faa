// Package postgres implements the durable job store on PostgreSQL. The
// record's map-shaped fields (stage timestamps, outputs, warnings) live in
// jsonb columns and are merged server-side so checkpoint replays stay
// idempotent.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/berginj/glovebrand/internal/branding"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobStore is a branding.JobStore on a pgx pool.
type JobStore struct {
	pool  dbPool
	table string
	clock branding.Clock
}

// New connects a pool and returns the store.
func New(ctx context.Context, cfg Config, clock branding.Clock) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, cfg.Table, clock)
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool dbPool, table string, clock branding.Clock) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "branding_jobs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &JobStore{pool: pool, table: table, clock: clock}, nil
}

// Close releases the pool.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const jobColumns = `job_id, team_url, mode, instance_id, stage, created_at, updated_at,
	stage_timestamps, retry_count, last_retry_at, error, error_details,
	autofill_attempted, autofill_succeeded, wizard_warnings, outputs`

// Upsert writes the full record, replacing any previous row for the job.
func (s *JobStore) Upsert(ctx context.Context, job branding.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
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
	timestampsJSON, err := json.Marshal(job.StageTimestamps)
	if err != nil {
		return fmt.Errorf("marshal stage timestamps: %w", err)
	}
	warningsJSON, err := json.Marshal(job.WizardWarnings)
	if err != nil {
		return fmt.Errorf("marshal wizard warnings: %w", err)
	}
	outputsJSON, err := json.Marshal(job.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (job_id) DO UPDATE SET
	team_url = EXCLUDED.team_url,
	mode = EXCLUDED.mode,
	instance_id = EXCLUDED.instance_id,
	stage = EXCLUDED.stage,
	updated_at = EXCLUDED.updated_at,
	stage_timestamps = EXCLUDED.stage_timestamps,
	retry_count = EXCLUDED.retry_count,
	last_retry_at = EXCLUDED.last_retry_at,
	error = EXCLUDED.error,
	error_details = EXCLUDED.error_details,
	autofill_attempted = EXCLUDED.autofill_attempted,
	autofill_succeeded = EXCLUDED.autofill_succeeded,
	wizard_warnings = EXCLUDED.wizard_warnings,
	outputs = EXCLUDED.outputs`, s.table, jobColumns)

	_, err = s.pool.Exec(ctx, query,
		job.ID, job.TeamURL, string(job.Mode), job.InstanceID, string(job.Stage),
		job.CreatedAt, job.UpdatedAt, timestampsJSON, job.RetryCount, job.LastRetryAt,
		job.Error, job.ErrorDetails, job.AutofillAttempted, job.AutofillSucceeded,
		warningsJSON, outputsJSON)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

// UpdateStage merges the update into the stored row. jsonb concatenation
// keeps existing stage timestamps and outputs; the WHERE clause refuses to
// replace a terminal stage with a different one.
func (s *JobStore) UpdateStage(ctx context.Context, jobID string, stage branding.Stage, update branding.StageUpdate) error {
	now := s.clock.Now()
	stampJSON, err := json.Marshal(map[branding.Stage]time.Time{stage: now})
	if err != nil {
		return fmt.Errorf("marshal stage timestamp: %w", err)
	}
	outputsJSON := []byte("{}")
	if update.Outputs != nil {
		outputsJSON, err = json.Marshal(update.Outputs)
		if err != nil {
			return fmt.Errorf("marshal outputs: %w", err)
		}
	}
	var warningsJSON []byte
	if update.WizardWarnings != nil {
		warningsJSON, err = json.Marshal(update.WizardWarnings)
		if err != nil {
			return fmt.Errorf("marshal wizard warnings: %w", err)
		}
	}

	query := fmt.Sprintf(`
UPDATE %s SET
	stage = $2,
	updated_at = $3,
	stage_timestamps = stage_timestamps || $4::jsonb,
	outputs = outputs || $5::jsonb,
	error = COALESCE(NULLIF($6, ''), error),
	error_details = COALESCE(NULLIF($7, ''), error_details),
	retry_count = COALESCE($8, retry_count),
	last_retry_at = COALESCE($9, last_retry_at),
	autofill_attempted = COALESCE($10, autofill_attempted),
	autofill_succeeded = COALESCE($11, autofill_succeeded),
	wizard_warnings = COALESCE($12::jsonb, wizard_warnings),
	instance_id = COALESCE(NULLIF($13, ''), instance_id)
WHERE job_id = $1
  AND (stage NOT IN ('completed','failed','canceled') OR stage = $2)`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		jobID, string(stage), now, stampJSON, outputsJSON,
		update.Error, update.ErrorDetails, update.RetryCount, update.LastRetryAt,
		update.AutofillAttempted, update.AutofillSucceeded, warningsJSON, update.InstanceID)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows: missing job or terminal-stage conflict.
	var current string
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT stage FROM %s WHERE job_id = $1`, s.table), jobID)
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return branding.ErrJobNotFound
		}
		return fmt.Errorf("check job stage: %w", err)
	}
	return branding.ErrTerminalStage
}

// Get returns the job.
func (s *JobStore) Get(ctx context.Context, jobID string) (branding.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE job_id = $1`, jobColumns, s.table)
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return branding.Job{}, branding.ErrJobNotFound
		}
		return branding.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListRecent returns the newest jobs first.
func (s *JobStore) ListRecent(ctx context.Context, limit int) ([]branding.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at DESC LIMIT $1`, jobColumns, s.table)
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListStale returns jobs in the given stages not updated since olderThan,
// oldest first.
func (s *JobStore) ListStale(ctx context.Context, stages []branding.Stage, olderThan time.Time, limit int) ([]branding.Job, error) {
	if limit <= 0 {
		limit = 25
	}
	names := make([]string, len(stages))
	for i, stage := range stages {
		names[i] = string(stage)
	}
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE stage = ANY($1) AND updated_at < $2
ORDER BY updated_at ASC
LIMIT $3`, jobColumns, s.table)
	rows, err := s.pool.Query(ctx, query, names, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// LatestCompletedByTeamURL serves the submission cache short-circuit.
func (s *JobStore) LatestCompletedByTeamURL(ctx context.Context, teamURL string) (branding.Job, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE team_url = $1 AND stage = 'completed'
ORDER BY updated_at DESC
LIMIT 1`, jobColumns, s.table)
	job, err := scanJob(s.pool.QueryRow(ctx, query, teamURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return branding.Job{}, branding.ErrJobNotFound
		}
		return branding.Job{}, fmt.Errorf("latest completed job: %w", err)
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (branding.Job, error) {
	var (
		job            branding.Job
		mode, stage    string
		timestampsJSON []byte
		warningsJSON   []byte
		outputsJSON    []byte
	)
	err := row.Scan(
		&job.ID, &job.TeamURL, &mode, &job.InstanceID, &stage,
		&job.CreatedAt, &job.UpdatedAt, &timestampsJSON, &job.RetryCount,
		&job.LastRetryAt, &job.Error, &job.ErrorDetails,
		&job.AutofillAttempted, &job.AutofillSucceeded, &warningsJSON, &outputsJSON)
	if err != nil {
		return branding.Job{}, err
	}
	job.Mode = branding.Mode(mode)
	job.Stage = branding.Stage(stage)
	if len(timestampsJSON) > 0 {
		if err := json.Unmarshal(timestampsJSON, &job.StageTimestamps); err != nil {
			return branding.Job{}, fmt.Errorf("unmarshal stage timestamps: %w", err)
		}
	}
	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &job.WizardWarnings); err != nil {
			return branding.Job{}, fmt.Errorf("unmarshal wizard warnings: %w", err)
		}
	}
	if len(outputsJSON) > 0 {
		if err := json.Unmarshal(outputsJSON, &job.Outputs); err != nil {
			return branding.Job{}, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}
	return job, nil
}

func collectJobs(rows pgx.Rows) ([]branding.Job, error) {
	var jobs []branding.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}
