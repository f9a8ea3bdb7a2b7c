// Package worker runs the background job execution pool: claiming due jobs
// from the store, dispatching them to registered handlers under a timeout,
// and recovering jobs stranded by crashed workers.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/assetica/platform-core/internal/job"
)

// Store is the job persistence surface the worker depends on
type Store interface {
	ClaimNextDue(ctx context.Context, workerID string, now time.Time, lease time.Duration) (*job.Job, error)
	MarkSucceeded(ctx context.Context, jobID, workerID string) error
	MarkFailed(ctx context.Context, jobID, workerID, errMsg string, nextAttemptAt time.Time) error
	ReapExpiredLeases(ctx context.Context, now time.Time) (int, error)
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Store         Store
	Registry      *Registry
	Notifier      Notifier // optional enqueue wake-up channel
	Concurrency   int
	PollInterval  time.Duration
	JobTimeout    time.Duration
	LeaseDuration time.Duration
	ReapInterval  time.Duration
	Backoff       Backoff
	Retention     time.Duration
	PurgeInterval time.Duration
}

// Worker represents the background job worker
type Worker struct {
	logger        *slog.Logger
	store         Store
	registry      *Registry
	notifier      Notifier
	workerID      string
	concurrency   int
	pollInterval  time.Duration
	jobTimeout    time.Duration
	leaseDuration time.Duration
	reapInterval  time.Duration
	backoff       Backoff
	retention     time.Duration
	purgeInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	wakeChan chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	host, _ := os.Hostname()
	return &Worker{
		logger:        cfg.Logger,
		store:         cfg.Store,
		registry:      cfg.Registry,
		notifier:      cfg.Notifier,
		workerID:      fmt.Sprintf("%s-%s", host, uuid.New().String()[:8]),
		concurrency:   cfg.Concurrency,
		pollInterval:  cfg.PollInterval,
		jobTimeout:    cfg.JobTimeout,
		leaseDuration: cfg.LeaseDuration,
		reapInterval:  cfg.ReapInterval,
		backoff:       cfg.Backoff,
		retention:     cfg.Retention,
		purgeInterval: cfg.PurgeInterval,
		stopChan:      make(chan struct{}),
		wakeChan:      make(chan struct{}, 1),
	}
}

// Start begins processing jobs and blocks until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("poll_interval", w.pollInterval),
		slog.Duration("lease_duration", w.leaseDuration),
	)

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	go w.reapLoop(ctx)

	if w.retention > 0 && w.purgeInterval > 0 {
		w.wg.Add(1)
		go w.purgeLoop(ctx)
	}

	if w.notifier != nil {
		if err := w.startConsumer(ctx); err != nil {
			w.logger.Warn("Wake-up consumer unavailable, relying on polling",
				slog.Any("error", err),
			)
		}
	}

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// wake nudges the pool so an immediate job doesn't wait out a poll interval
func (w *Worker) wake() {
	select {
	case w.wakeChan <- struct{}{}:
	default:
	}
}
