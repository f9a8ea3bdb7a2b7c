package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/assetica/platform-core/internal/config"
	"github.com/assetica/platform-core/internal/jobstore"
	"github.com/assetica/platform-core/internal/worker"
	"github.com/assetica/platform-core/shared/logger"
	"github.com/assetica/platform-core/shared/postgresql"
	"github.com/assetica/platform-core/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	store := jobstore.NewStore(dbClient, appLogger.Logger)
	if err := store.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("failed to ensure job schema: %w", err)
	}

	// The notification channel is an optimization; the worker polls the
	// store regardless, so a broker outage only adds pickup latency.
	var notifier worker.Notifier
	rabbitClient, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.RabbitMQ.Host,
		Port:               cfg.RabbitMQ.Port,
		User:               cfg.RabbitMQ.User,
		Password:           cfg.RabbitMQ.Password,
		VHost:              cfg.RabbitMQ.VHost,
		ExchangeName:       cfg.RabbitMQ.Exchange.Name,
		ExchangeType:       cfg.RabbitMQ.Exchange.Type,
		ExchangeDurable:    cfg.RabbitMQ.Exchange.Durable,
		ExchangeAutoDelete: cfg.RabbitMQ.Exchange.AutoDelete,
		QueueName:          cfg.RabbitMQ.Queue.Name,
		QueueDurable:       cfg.RabbitMQ.Queue.Durable,
		QueueAutoDelete:    cfg.RabbitMQ.Queue.AutoDelete,
		QueueExclusive:     cfg.RabbitMQ.Queue.Exclusive,
		RoutingKey:         cfg.RabbitMQ.RoutingKey,
		RetryAttempts:      cfg.RabbitMQ.Connection.RetryAttempts,
		RetryInterval:      cfg.RabbitMQ.Connection.RetryInterval,
		Heartbeat:          cfg.RabbitMQ.Connection.Heartbeat,
		ConnectionTimeout:  cfg.RabbitMQ.Connection.ConnectionTimeout,
	}, appLogger.Logger)
	if err != nil {
		appLogger.Warn("RabbitMQ unavailable, falling back to polling only",
			slog.Any("error", err),
		)
	} else {
		notifier = rabbitClient
		defer rabbitClient.Close()
	}

	registry := worker.NewRegistry()
	registerHandlers(registry, appLogger.Logger)

	w := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Store:         store,
		Registry:      registry,
		Notifier:      notifier,
		Concurrency:   cfg.Worker.Concurrency,
		PollInterval:  cfg.Worker.PollInterval,
		JobTimeout:    cfg.Worker.JobTimeout,
		LeaseDuration: cfg.Worker.LeaseDuration,
		ReapInterval:  cfg.Worker.ReapInterval,
		Backoff: worker.Backoff{
			Base:   cfg.Worker.Backoff.Base,
			Max:    cfg.Worker.Backoff.Max,
			Jitter: cfg.Worker.Backoff.Jitter,
		},
		Retention:     cfg.Worker.Retention,
		PurgeInterval: cfg.Worker.PurgeInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	appLogger.Info("Worker service is running")

	// Wait for interrupt signal to gracefully shutdown the worker
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		if err != nil {
			appLogger.Error("Worker failed",
				slog.Any("error", err),
			)
			return err
		}
	}

	appLogger.Info("Shutting down worker service...")
	cancel()

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		appLogger.Info("Worker service shutdown complete")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timed out, in-flight jobs will be reclaimed by lease expiry")
	}

	return nil
}

// registerHandlers wires job types to their handlers. New job types are
// added here.
func registerHandlers(registry *worker.Registry, logger *slog.Logger) {
	// No-op handler used for pipeline smoke checks
	registry.Register("noop", worker.HandlerFunc(func(ctx context.Context, payload json.RawMessage) error {
		return nil
	}))

	registry.Register("resize-image", worker.HandlerFunc(func(ctx context.Context, payload json.RawMessage) error {
		var req struct {
			AssetID string `json:"asset_id"`
			Width   int    `json:"width"`
			Height  int    `json:"height"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("invalid resize-image payload: %w", err)
		}
		if req.AssetID == "" {
			return fmt.Errorf("resize-image payload missing asset_id")
		}

		logger.Info("Resizing image",
			slog.String("asset_id", req.AssetID),
			slog.Int("width", req.Width),
			slog.Int("height", req.Height),
		)

		// TODO: call the asset pipeline once its internal endpoint is exposed
		select {
		case <-time.After(100 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}), worker.WithTimeout(2*time.Minute))
}
