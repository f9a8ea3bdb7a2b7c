// Package jobstore persists job records in PostgreSQL. All cross-worker
// coordination goes through this store: the claim is a single conditional
// UPDATE guarded by FOR UPDATE SKIP LOCKED, so mutual exclusion holds even
// when workers run as independent processes.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/assetica/platform-core/internal/job"
	"github.com/assetica/platform-core/shared/postgresql"
)

const jobColumns = `
	job_id, tenant_id, subject, job_type, payload, state,
	attempts, max_attempts, next_attempt_at, lease_expires_at,
	worker_id, last_error, idempotency_key, created_at, updated_at`

// Store handles all database operations on job records
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(pg *postgresql.Client, logger *slog.Logger) *Store {
	return &Store{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// Enqueue durably inserts a new job. The job starts ENQUEUED, or SCHEDULED
// when ScheduledAt is in the future. When an idempotency key matches an
// existing job, the existing job id is returned and nothing is inserted.
func (s *Store) Enqueue(ctx context.Context, n job.NewJob) (string, error) {
	now := time.Now().UTC()

	if n.IdempotencyKey != nil {
		var existingID string
		err := s.db.GetContext(ctx, &existingID,
			`SELECT job_id FROM jobs WHERE idempotency_key = $1`, *n.IdempotencyKey)
		if err == nil {
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("failed to check idempotency key: %w", err)
		}
	}

	if n.MaxAttempts <= 0 {
		n.MaxAttempts = job.DefaultMaxAttempts
	}

	state := job.StateEnqueued
	nextAttemptAt := now
	if n.ScheduledAt != nil && n.ScheduledAt.After(now) {
		state = job.StateScheduled
		nextAttemptAt = n.ScheduledAt.UTC()
	}

	jobID := uuid.New().String()

	query := `
		INSERT INTO jobs (
			job_id, tenant_id, subject, job_type, payload, state,
			attempts, max_attempts, next_attempt_at, idempotency_key,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			0, $7, $8, $9,
			$10, $10
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		jobID, n.TenantID, n.Subject, n.JobType, n.Payload, state,
		n.MaxAttempts, nextAttemptAt, n.IdempotencyKey, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Info("Job enqueued",
		slog.String("job_id", jobID),
		slog.String("job_type", n.JobType),
		slog.String("state", state),
		slog.String("tenant_id", n.TenantID),
	)

	return jobID, nil
}

// ClaimNextDue atomically claims the oldest due job for the given worker.
// Ties among equally-due jobs break by creation order. Returns
// job.ErrNoJobDue when nothing is claimable.
func (s *Store) ClaimNextDue(ctx context.Context, workerID string, now time.Time, lease time.Duration) (*job.Job, error) {
	query := `
		UPDATE jobs
		SET state = $1,
		    worker_id = $2,
		    lease_expires_at = $3,
		    updated_at = $4
		WHERE job_id = (
			SELECT job_id FROM jobs
			WHERE state IN ($5, $6) AND next_attempt_at <= $4
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	var claimed job.Job
	err := s.db.GetContext(ctx, &claimed, query,
		job.StateProcessing, workerID, now.Add(lease).UTC(), now.UTC(),
		job.StateEnqueued, job.StateScheduled,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrNoJobDue
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", claimed.JobID),
		slog.String("job_type", claimed.JobType),
		slog.String("worker_id", workerID),
		slog.Int("attempts", claimed.Attempts),
	)

	return &claimed, nil
}

// MarkSucceeded transitions PROCESSING -> SUCCEEDED, guarded on the
// claiming worker so a reaped-and-reclaimed job cannot be completed by its
// original worker.
func (s *Store) MarkSucceeded(ctx context.Context, jobID, workerID string) error {
	query := `
		UPDATE jobs
		SET state = $1,
		    lease_expires_at = NULL,
		    last_error = NULL,
		    updated_at = $2
		WHERE job_id = $3 AND state = $4 AND worker_id = $5
	`

	res, err := s.db.ExecContext(ctx, query,
		job.StateSucceeded, time.Now().UTC(), jobID, job.StateProcessing, workerID)
	if err != nil {
		return fmt.Errorf("failed to mark job succeeded: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return job.ErrInvalidTransition
	}

	return nil
}

// MarkFailed applies the retry policy to a failed attempt in one guarded
// UPDATE: attempts below max go back to SCHEDULED at nextAttemptAt,
// exhausted jobs go to FAILED.
func (s *Store) MarkFailed(ctx context.Context, jobID, workerID, errMsg string, nextAttemptAt time.Time) error {
	query := `
		UPDATE jobs
		SET attempts = attempts + 1,
		    state = CASE WHEN attempts + 1 >= max_attempts THEN $1 ELSE $2 END,
		    next_attempt_at = $3,
		    lease_expires_at = NULL,
		    last_error = $4,
		    updated_at = $5
		WHERE job_id = $6 AND state = $7 AND worker_id = $8
	`

	res, err := s.db.ExecContext(ctx, query,
		job.StateFailed, job.StateScheduled, nextAttemptAt.UTC(), errMsg,
		time.Now().UTC(), jobID, job.StateProcessing, workerID)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return job.ErrInvalidTransition
	}

	return nil
}

// Requeue is an operator action: FAILED or SUCCEEDED jobs return to
// SCHEDULED with the attempt count reset to zero.
func (s *Store) Requeue(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	query := `
		UPDATE jobs
		SET state = $1,
		    attempts = 0,
		    next_attempt_at = $2,
		    worker_id = NULL,
		    lease_expires_at = NULL,
		    updated_at = $2
		WHERE job_id = $3 AND state IN ($4, $5)
	`

	res, err := s.db.ExecContext(ctx, query,
		job.StateScheduled, now, jobID, job.StateFailed, job.StateSucceeded)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	return s.checkOperatorUpdate(ctx, res, jobID, "requeued")
}

// Delete is an operator action: any non-PROCESSING job moves to DELETED.
// Deleted jobs are never claimable and are purged after the retention
// window.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET state = $1,
		    updated_at = $2
		WHERE job_id = $3 AND state NOT IN ($4, $1)
	`

	res, err := s.db.ExecContext(ctx, query,
		job.StateDeleted, time.Now().UTC(), jobID, job.StateProcessing)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	return s.checkOperatorUpdate(ctx, res, jobID, "deleted")
}

// checkOperatorUpdate distinguishes a missing job from an invalid state
// when an operator UPDATE matched no rows.
func (s *Store) checkOperatorUpdate(ctx context.Context, res sql.Result, jobID, action string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetJob(ctx, jobID); err != nil {
			return err
		}
		return job.ErrInvalidTransition
	}

	s.logger.Info("Job "+action, slog.String("job_id", jobID))
	return nil
}

// ReapExpiredLeases returns PROCESSING jobs with expired leases to
// SCHEDULED so another worker can claim them. This is the crash-recovery
// path; the attempt count is not consumed.
func (s *Store) ReapExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE jobs
		SET state = $1,
		    worker_id = NULL,
		    lease_expires_at = NULL,
		    next_attempt_at = $2,
		    updated_at = $2
		WHERE state = $3 AND lease_expires_at < $2
	`

	res, err := s.db.ExecContext(ctx, query, job.StateScheduled, now.UTC(), job.StateProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired leases: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// PurgeTerminal hard-deletes terminal jobs whose last update is older than
// the cutoff.
func (s *Store) PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error) {
	query := `
		DELETE FROM jobs
		WHERE state IN ($1, $2, $3) AND updated_at < $4
	`

	res, err := s.db.ExecContext(ctx, query,
		job.StateSucceeded, job.StateFailed, job.StateDeleted, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge terminal jobs: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// GetJob retrieves a job by id
func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	var j job.Job
	err := s.db.GetContext(ctx, &j,
		`SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &j, nil
}

// ListFilter narrows a job listing
type ListFilter struct {
	TenantID       string
	JobType        string
	State          string
	IncludeDeleted bool
	PageSize       int
	Cursor         *Cursor
}

// Cursor is a keyset pagination position
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs matching the filter, newest first.
// The extra row lets the caller detect another page.
func (s *Store) ListJobs(ctx context.Context, filter ListFilter) ([]job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIdx)
		args = append(args, filter.TenantID)
		argIdx++
	}

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, filter.State)
		argIdx++
	} else if !filter.IncludeDeleted {
		query += fmt.Sprintf(" AND state <> $%d", argIdx)
		args = append(args, job.StateDeleted)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []job.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
