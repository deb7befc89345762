/**
 * Asynq Queue Consumer for the conversion worker
 *
 * Alternative backend to the plain Redis list consumer: jobs arrive as
 * asynq tasks of type docconvert:job and asynq owns retries.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/docconvert-worker/internal/logging"
	"github.com/adverant/nexus/docconvert-worker/internal/processor"
)

// Consumer handles job consumption through asynq
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner *jobRunner
	config *ConsumerConfig
	logger *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // milliseconds
}

// retryDelay is 5s doubled per retry, capped at 60s.
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 4 {
		return 60 * time.Second
	}
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	return delay
}

// asynqLogger routes asynq's own logging through the worker logger.
type asynqLogger struct {
	l *logging.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("asynq-consumer")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: retryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warn("Task processing error",
					"type", task.Type(),
					"retry", retried,
					"maxRetry", maxRetry,
					"error", err)
			}),
			Logger: asynqLogger{l: logger},
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		server: server,
		mux:    mux,
		runner: newJobRunner(cfg.Processor, cfg.ProcessingTimeout, logger),
		config: cfg,
		logger: logger,
	}

	mux.HandleFunc(TaskTypeJob, consumer.handleJob)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting asynq queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer...")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleJob processes one docconvert:job task. Errors that a retry cannot
// fix skip asynq's retry.
func (c *Consumer) handleJob(ctx context.Context, task *asynq.Task) error {
	var data JobData
	if err := json.Unmarshal(task.Payload(), &data); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}
	if data.JobID == "" {
		if id, ok := asynq.GetTaskID(ctx); ok {
			data.JobID = id
		}
	}

	verr := data.Validate()
	req := data.ToRequest()
	if verr != nil {
		c.runner.finish(ctx, req, nil, verr)
		return fmt.Errorf("%w: %w", verr, asynq.SkipRetry)
	}

	result, err := c.runner.run(ctx, req)
	if err != nil {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		if isPermanent(err) {
			c.runner.finish(ctx, req, nil, err)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		if retried >= maxRetry {
			c.runner.finish(ctx, req, nil, err)
		}
		return fmt.Errorf("job processing failed: %w", err)
	}

	c.runner.finish(ctx, req, result, nil)

	if payload, err := json.Marshal(result); err == nil {
		if _, werr := task.ResultWriter().Write(payload); werr != nil {
			c.logger.Warn(fmt.Sprintf("[Job %s] Could not store task result", req.JobID), "error", werr)
		}
	}
	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"backend":     "asynq",
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}
