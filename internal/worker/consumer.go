package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Notifier delivers enqueue notifications. The message is only a wake-up
// hint; claiming authority stays with the store, so every delivery is acked
// regardless of content.
type Notifier interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// startConsumer subscribes to enqueue notifications and nudges the pool on
// each one.
func (w *Worker) startConsumer(ctx context.Context) error {
	deliveries, err := w.notifier.Consume(w.workerID)
	if err != nil {
		return err
	}

	w.wg.Add(1)
	go w.consumeNotifications(ctx, deliveries)
	return nil
}

func (w *Worker) consumeNotifications(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer w.wg.Done()

	w.logger.Info("Enqueue notification consumer started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-w.stopChan:
			return

		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("Notification channel closed, relying on polling")
				return
			}

			var msg struct {
				JobID string `json:"job_id"`
			}
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				w.logger.Warn("Malformed enqueue notification",
					slog.Any("error", err),
				)
			} else {
				w.logger.Debug("Enqueue notification received",
					slog.String("job_id", msg.JobID),
				)
			}

			if err := delivery.Ack(false); err != nil {
				w.logger.Warn("Failed to ACK notification",
					slog.Any("error", err),
				)
			}

			w.wake()
		}
	}
}
