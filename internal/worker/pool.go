package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/assetica/platform-core/internal/job"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case <-w.wakeChan:
			w.drainDueJobs(ctx, workerName)

		case <-ticker.C:
			w.drainDueJobs(ctx, workerName)
		}
	}
}

// drainDueJobs claims and processes due jobs until the store reports none.
// A store error suspends claiming until the next tick; the worker never
// crashes on an unreachable store.
func (w *Worker) drainDueJobs(ctx context.Context, workerName string) {
	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := w.store.ClaimNextDue(ctx, w.workerID, time.Now().UTC(), w.leaseDuration)
		if err != nil {
			if errors.Is(err, job.ErrNoJobDue) {
				return
			}
			w.logger.Error("Failed to claim job, suspending until next poll",
				slog.String("worker_name", workerName),
				slog.Any("error", err),
			)
			return
		}

		w.processJob(ctx, claimed)
	}
}
