package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/assetica/platform-core/internal/job"
)

// processJob executes one claimed job attempt and records the outcome.
func (w *Worker) processJob(ctx context.Context, j *job.Job) {
	w.logger.Info("Processing job",
		slog.String("job_id", j.JobID),
		slog.String("job_type", j.JobType),
		slog.Int("attempts", j.Attempts),
	)

	handler, timeout, ok := w.registry.Lookup(j.JobType)
	if !ok {
		w.logger.Error("No handler registered for job type",
			slog.String("job_id", j.JobID),
			slog.String("job_type", j.JobType),
		)
		w.recordFailure(ctx, j, job.ErrUnknownJobType)
		return
	}

	if timeout <= 0 {
		timeout = w.jobTimeout
	}

	if err := w.executeJob(ctx, handler, timeout, j); err != nil {
		w.logger.Error("Job execution failed",
			slog.String("job_id", j.JobID),
			slog.String("job_type", j.JobType),
			slog.Any("error", err),
		)
		w.recordFailure(ctx, j, err)
		return
	}

	if err := w.store.MarkSucceeded(ctx, j.JobID, w.workerID); err != nil {
		// Lease may have expired and been reclaimed mid-flight.
		w.logger.Warn("Failed to mark job succeeded",
			slog.String("job_id", j.JobID),
			slog.Any("error", err),
		)
		return
	}

	w.logger.Info("Job completed successfully",
		slog.String("job_id", j.JobID),
		slog.String("job_type", j.JobType),
	)
}

// executeJob runs the handler with an enforced timeout. The handler runs in
// its own goroutine so a handler that ignores its context cannot block the
// worker past the deadline.
func (w *Worker) executeJob(ctx context.Context, handler Handler, timeout time.Duration, j *job.Job) error {
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- handler.Handle(jobCtx, json.RawMessage(j.Payload))
	}()

	select {
	case err := <-done:
		return err
	case <-jobCtx.Done():
		return fmt.Errorf("job execution aborted: %w", jobCtx.Err())
	}
}

// recordFailure applies the retry policy: the store increments the attempt
// count and decides between SCHEDULED (with backoff) and FAILED.
func (w *Worker) recordFailure(ctx context.Context, j *job.Job, cause error) {
	delay := w.backoff.Delay(j.Attempts + 1)
	nextAttemptAt := time.Now().UTC().Add(delay)

	if err := w.store.MarkFailed(ctx, j.JobID, w.workerID, cause.Error(), nextAttemptAt); err != nil {
		w.logger.Warn("Failed to record job failure",
			slog.String("job_id", j.JobID),
			slog.Any("error", err),
		)
		return
	}

	w.logger.Info("Job attempt failed, retry policy applied",
		slog.String("job_id", j.JobID),
		slog.Int("attempt", j.Attempts+1),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("retry_delay", delay),
	)
}
