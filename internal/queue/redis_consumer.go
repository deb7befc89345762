/**
 * Direct Redis Queue Consumer for the conversion worker
 *
 * Plain Redis LIST protocol so producers in any language can submit jobs:
 *   <queue>             list of job IDs (LPUSH to submit, BRPOP to take)
 *   <queue>:data        hash jobID -> RedisJobData JSON
 *   <queue>:processing  set of running job IDs
 *   <queue>:completed   set of finished job IDs, results in <queue>:results
 *   <queue>:failed      set of failed job IDs, errors in <queue>:errors
 *   <queue>:events      pub/sub channel of job:<status> events
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/docconvert-worker/internal/logging"
	"github.com/adverant/nexus/docconvert-worker/internal/processor"
	"github.com/adverant/nexus/docconvert-worker/internal/storage"
)

var errNoJobs = errors.New("no jobs available")

// RedisJobData is the envelope stored in the <queue>:data hash.
type RedisJobData struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Payload    JobData   `json:"payload"`
	CreatedAt  time.Time `json:"createdAt"`
	Attempts   int       `json:"attempts"`
	MaxRetries int       `json:"maxRetries"`
}

// queueKeys names the Redis keys derived from a queue name.
type queueKeys struct {
	list, data, processing, completed, failed, results, errors, events string
}

func keysFor(queue string) queueKeys {
	return queueKeys{
		list:       queue,
		data:       queue + ":data",
		processing: queue + ":processing",
		completed:  queue + ":completed",
		failed:     queue + ":failed",
		results:    queue + ":results",
		errors:     queue + ":errors",
		events:     queue + ":events",
	}
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client *redis.Client
	runner *jobRunner
	config *RedisConsumerConfig
	keys   queueKeys
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // milliseconds
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = "docconvert:jobs"
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger := logging.NewLogger("redis-consumer")
	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client: client,
		runner: newJobRunner(cfg.Processor, cfg.ProcessingTimeout, logger),
		config: cfg,
		keys:   keysFor(cfg.QueueName),
		logger: logger,
		ctx:    consumerCtx,
		cancel: cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	c.logger.Info("Queue consumer started successfully")
	return nil
}

// Stop gracefully stops the consumer, letting running jobs finish.
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer...")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Worker stopping", "worker", id)
			return
		default:
		}

		if err := c.processNextJob(); err != nil {
			if errors.Is(err, errNoJobs) || c.ctx.Err() != nil {
				continue
			}
			c.logger.Error("Worker error", "worker", id, "error", err)
			select {
			case <-time.After(time.Second):
			case <-c.ctx.Done():
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.keys.list).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	id := result[1]

	// Jobs are not interrupted by Stop: the queue context only governs
	// waiting for work.
	ctx := context.WithoutCancel(c.ctx)

	raw, err := c.client.HGet(ctx, c.keys.data, id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", id, err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		c.setStatus(ctx, id, storage.StatusFailed, map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = id
	}

	verr := job.Payload.Validate()
	req := job.Payload.ToRequest()
	if verr != nil {
		c.runner.finish(ctx, req, nil, verr)
		c.setStatus(ctx, id, storage.StatusFailed, map[string]interface{}{"error": verr.Error()})
		return nil
	}

	c.setStatus(ctx, id, storage.StatusProcessing, nil)
	c.logger.Info(fmt.Sprintf("[Job %s] Processing %s job", req.JobID, req.Type))

	jobResult, jobErr := c.runner.run(ctx, req)
	if jobErr == nil {
		c.runner.finish(ctx, req, jobResult, nil)
		c.setStatus(ctx, id, storage.StatusCompleted, jobResult)
		c.logger.Info(fmt.Sprintf("[Job %s] Completed successfully", req.JobID))
		return nil
	}

	c.logger.Error(fmt.Sprintf("[Job %s] Failed", req.JobID), "error", jobErr)

	job.Attempts++
	if !isPermanent(jobErr) && job.Attempts < job.MaxRetries {
		updated, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job %s for retry: %w", id, err)
		}
		_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, c.keys.data, id, updated)
			pipe.SRem(ctx, c.keys.processing, id)
			pipe.LPush(ctx, c.keys.list, id)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to re-queue job %s: %w", id, err)
		}
		c.logger.Warn(fmt.Sprintf("[Job %s] Re-queued for retry (attempt %d/%d)", req.JobID, job.Attempts, job.MaxRetries))
		return nil
	}

	c.runner.finish(ctx, req, nil, jobErr)
	c.setStatus(ctx, id, storage.StatusFailed, map[string]interface{}{
		"error":    jobErr.Error(),
		"attempts": job.Attempts,
	})
	return nil
}

// setStatus moves the job between the status sets, stores its result or
// error and publishes a job:<status> event.
func (c *RedisConsumer) setStatus(ctx context.Context, id, status string, payload interface{}) {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			c.logger.Warn("Could not encode job payload", "job", id, "error", err)
		}
	}

	event, _ := json.Marshal(map[string]interface{}{
		"event":     "job:" + status,
		"jobId":     id,
		"timestamp": time.Now().Format(time.RFC3339),
	})

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		switch status {
		case storage.StatusProcessing:
			pipe.SAdd(ctx, c.keys.processing, id)
		case storage.StatusCompleted:
			pipe.SRem(ctx, c.keys.processing, id)
			pipe.SAdd(ctx, c.keys.completed, id)
			if data != nil {
				pipe.HSet(ctx, c.keys.results, id, data)
			}
		case storage.StatusFailed:
			pipe.SRem(ctx, c.keys.processing, id)
			pipe.SAdd(ctx, c.keys.failed, id)
			if data != nil {
				pipe.HSet(ctx, c.keys.errors, id, data)
			}
		}
		pipe.Publish(ctx, c.keys.events, event)
		return nil
	})
	if err != nil {
		c.logger.Warn("Could not update job status in Redis", "job", id, "status", status, "error", err)
	}
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.keys.list)
	processing := pipe.SCard(ctx, c.keys.processing)
	completed := pipe.SCard(ctx, c.keys.completed)
	failed := pipe.SCard(ctx, c.keys.failed)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}
