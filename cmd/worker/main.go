/**
 * Document Conversion Worker - Main Entry Point
 *
 * Consumes conversion and mutation jobs from Redis and runs them:
 * - convert: PDF to .docx, direct text-layer extraction or OCR
 *   (pdftoppm at 300 DPI + tesseract chi_sim+eng)
 * - search / highlight / replace / append / info on .docx files
 *
 * Queue backend is a plain Redis list (default) or asynq, chosen with
 * QUEUE_BACKEND. Job status is tracked in PostgreSQL when DATABASE_URL
 * is set, and finished documents are published to the artifact service
 * when ARTIFACT_URL is set.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/docconvert-worker/internal/clients"
	"github.com/adverant/nexus/docconvert-worker/internal/config"
	"github.com/adverant/nexus/docconvert-worker/internal/logging"
	"github.com/adverant/nexus/docconvert-worker/internal/processor"
	"github.com/adverant/nexus/docconvert-worker/internal/queue"
	"github.com/adverant/nexus/docconvert-worker/internal/storage"
)

// consumer is what main needs from either queue backend.
type consumer interface {
	start(ctx context.Context) error
	stop(ctx context.Context) error
	stats(ctx context.Context) map[string]interface{}
}

type redisBackend struct{ c *queue.RedisConsumer }

func (b redisBackend) start(context.Context) error { return b.c.Start() }
func (b redisBackend) stop(context.Context) error  { return b.c.Stop() }

func (b redisBackend) stats(ctx context.Context) map[string]interface{} {
	counts, err := b.c.GetStats(ctx)
	if err != nil {
		return map[string]interface{}{"backend": "redis", "error": err.Error()}
	}
	out := map[string]interface{}{"backend": "redis"}
	for k, v := range counts {
		out[k] = v
	}
	return out
}

type asynqBackend struct{ c *queue.Consumer }

func (b asynqBackend) start(ctx context.Context) error { return b.c.Start(ctx) }
func (b asynqBackend) stop(ctx context.Context) error  { return b.c.Stop(ctx) }

func (b asynqBackend) stats(context.Context) map[string]interface{} {
	return b.c.GetStatistics()
}

func main() {
	logger := logging.NewLogger("worker")

	if err := godotenv.Load(".env"); err != nil {
		logger.Debug(".env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		logger.Error("Invalid logging configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("Document conversion worker starting...",
		"queue", cfg.QueueName,
		"backend", cfg.QueueBackend,
		"workers", cfg.WorkerConcurrency,
		"ocrWorkers", cfg.OCRWorkers)

	// Job store (optional)
	var store processor.JobStatusStore
	var db *storage.PostgresClient
	if cfg.DatabaseURL != "" {
		logger.Info("Connecting to PostgreSQL...")
		db, err = storage.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.EnsureSchema(ctx)
		cancel()
		if err != nil {
			logger.Error("Failed to prepare job schema", "error", err)
			os.Exit(1)
		}
		if err := healthCheck(db); err != nil {
			logger.Error("Database health check failed", "error", err)
			os.Exit(1)
		}
		store = db
		logger.Info("Job tracking enabled")
	} else {
		logger.Warn("DATABASE_URL not set, job tracking disabled")
	}

	// Artifact publishing (optional, non-fatal if the service is down)
	var artifacts processor.ArtifactPublisher
	if cfg.ArtifactURL != "" {
		client := clients.NewArtifactClient(cfg.ArtifactURL)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.HealthCheck(ctx); err != nil {
			logger.Warn("Artifact service health check failed, uploads may fail", "error", err)
		} else {
			logger.Info("Artifact service connection verified", "url", cfg.ArtifactURL)
		}
		cancel()
		artifacts = client
	} else {
		logger.Warn("ARTIFACT_URL not set, outputs stay on the local filesystem")
	}

	converter := processor.NewConverterFromConfig(cfg, nil)

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Converter:   converter,
		Mutator:     processor.NewMutator(),
		Store:       store,
		Artifacts:   artifacts,
		TempDir:     cfg.TempDir,
		MaxFileSize: cfg.MaxFileSize,
	})
	if err != nil {
		logger.Error("Failed to initialize document processor", "error", err)
		os.Exit(1)
	}

	qc, err := newConsumer(cfg, proc)
	if err != nil {
		logger.Error("Failed to initialize queue consumer", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := qc.start(ctx); err != nil {
		logger.Error("Failed to start queue consumer", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker is READY, waiting for jobs...",
		"queue", cfg.QueueName,
		"ocr", converter.OCRAvailable())

	<-ctx.Done()
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// the Redis client is closed by stop, so take the queue snapshot first
	statsCtx, statsCancel := context.WithTimeout(context.Background(), 5*time.Second)
	logger.Info("Queue statistics at shutdown", kv(qc.stats(statsCtx))...)
	statsCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ProcessingTimeout)*time.Millisecond)
	defer cancel()
	if err := qc.stop(shutdownCtx); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}

	if db != nil {
		s := db.GetStats()
		logger.Info("Database pool statistics at shutdown",
			"openConnections", s.OpenConnections,
			"inUse", s.InUse,
			"idle", s.Idle,
			"waitCount", s.WaitCount,
			"waitDuration", s.WaitDuration.String())
	}

	logger.Info("Shutdown complete")
}

func newConsumer(cfg *config.Config, proc processor.DocumentProcessorInterface) (consumer, error) {
	switch cfg.QueueBackend {
	case "asynq":
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			return nil, err
		}
		return asynqBackend{c: c}, nil
	default:
		c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			return nil, err
		}
		return redisBackend{c: c}, nil
	}
}

// kv flattens a stats map into logger key/value pairs in key order.
func kv(m map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]interface{}, 0, 2*len(m))
	for _, k := range keys {
		out = append(out, k, m[k])
	}
	return out
}

func healthCheck(db *storage.PostgresClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
