package worker

import (
	"context"
	"log/slog"
	"time"
)

// reapLoop periodically returns PROCESSING jobs with expired leases to
// SCHEDULED. A reclaimed job means a worker died mid-processing; that is an
// anomaly worth logging, not an error.
func (w *Worker) reapLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.reapInterval)
	defer ticker.Stop()

	w.logger.Info("Lease reaper started",
		slog.Duration("interval", w.reapInterval),
	)

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := w.store.ReapExpiredLeases(ctx, time.Now().UTC())
			if err != nil {
				w.logger.Error("Lease reap scan failed",
					slog.Any("error", err),
				)
				continue
			}
			if reclaimed > 0 {
				w.logger.Warn("Reclaimed jobs with expired leases",
					slog.Int("count", reclaimed),
				)
				w.wake()
			}
		}
	}
}

// purgeLoop hard-deletes terminal jobs past the retention window.
func (w *Worker) purgeLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.purgeInterval)
	defer ticker.Stop()

	w.logger.Info("Retention purger started",
		slog.Duration("interval", w.purgeInterval),
		slog.Duration("retention", w.retention),
	)

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := w.store.PurgeTerminal(ctx, time.Now().UTC().Add(-w.retention))
			if err != nil {
				w.logger.Error("Retention purge failed",
					slog.Any("error", err),
				)
				continue
			}
			if purged > 0 {
				w.logger.Info("Purged terminal jobs past retention",
					slog.Int("count", purged),
				)
			}
		}
	}
}
