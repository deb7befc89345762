package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Producer submits jobs to the worker queue.
type Producer interface {
	Enqueue(ctx context.Context, job *JobData) (string, error)
	Close() error
}

// ProducerConfig selects and configures a producer.
type ProducerConfig struct {
	Backend    string // "redis" or "asynq"
	RedisURL   string
	QueueName  string
	MaxRetries int
}

// NewProducer returns the producer matching cfg.Backend.
func NewProducer(cfg *ProducerConfig) (Producer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	switch cfg.Backend {
	case "", "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		return &RedisProducer{
			client:     redis.NewClient(opt),
			keys:       keysFor(cfg.QueueName),
			maxRetries: cfg.MaxRetries,
		}, nil
	case "asynq":
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		return &AsynqProducer{
			client:     asynq.NewClient(opt),
			queue:      cfg.QueueName,
			maxRetries: cfg.MaxRetries,
		}, nil
	}
	return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
}

// RedisProducer writes jobs in the list protocol RedisConsumer reads.
type RedisProducer struct {
	client     *redis.Client
	keys       queueKeys
	maxRetries int
}

// Enqueue stores the job envelope, pushes its ID and announces it.
func (p *RedisProducer) Enqueue(ctx context.Context, job *JobData) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}

	envelope := RedisJobData{
		ID:         job.JobID,
		Type:       TaskTypeJob,
		Payload:    *job,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: p.maxRetries,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	event, _ := json.Marshal(map[string]interface{}{
		"event":     "job:queued",
		"jobId":     job.JobID,
		"timestamp": time.Now().Format(time.RFC3339),
	})

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, p.keys.data, job.JobID, data)
		pipe.LPush(ctx, p.keys.list, job.JobID)
		pipe.Publish(ctx, p.keys.events, event)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}
	return job.JobID, nil
}

func (p *RedisProducer) Close() error {
	return p.client.Close()
}

// AsynqProducer submits docconvert:job tasks.
type AsynqProducer struct {
	client     *asynq.Client
	queue      string
	maxRetries int
}

// Enqueue submits the job as a task whose ID is the job ID.
func (p *AsynqProducer) Enqueue(ctx context.Context, job *JobData) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	info, err := p.client.EnqueueContext(ctx,
		asynq.NewTask(TaskTypeJob, payload),
		asynq.Queue(p.queue),
		asynq.TaskID(job.JobID),
		asynq.MaxRetry(p.maxRetries),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}
	return info.ID, nil
}

func (p *AsynqProducer) Close() error {
	return p.client.Close()
}
