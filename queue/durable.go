package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job is a durable record of one queued action, persisted so a restarted
// process can recover in-flight work. Mirrors the teacher's queue/redis
// Job shape (ActionID/QueueName/EnqueuedAt/RetryCount), repurposed here
// as a job log kept beside dsync's in-process ActionQueue rather than a
// replacement for it.
type Job struct {
	ActionID   string    `json:"actionID"`
	QueueName  string    `json:"queueName"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	RetryCount int       `json:"retryCount"`
}

// DurableLog persists Jobs to Redis so that what was enqueued can be read
// back after a crash. ActionQueue is purely in-memory and never writes to
// it; DurableLog only records a parallel audit trail of what its caller
// reports as enqueued/completed/failed.
type DurableLog struct {
	client *redis.Client
	prefix string
}

// DurableConfig configures a DurableLog.
type DurableConfig struct {
	RedisURL  string
	KeyPrefix string
}

// NewDurableLog connects to Redis and verifies connectivity with Ping,
// the way the teacher's queue/redis.NewQueue does.
func NewDurableLog(ctx context.Context, cfg DurableConfig) (*DurableLog, error) {
	url := cfg.RedisURL
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "dsync:queue:"
	}
	return &DurableLog{client: client, prefix: prefix}, nil
}

// Close releases the underlying Redis connection.
func (d *DurableLog) Close() error {
	return d.client.Close()
}

// Record persists job under its queue's list, appended in submission
// order so a recovering process can replay the FIFO.
func (d *DurableLog) Record(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	key := d.prefix + job.QueueName
	if err := d.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	return nil
}

// Complete removes the oldest recorded job for queueName, mirroring a
// successful shift off the in-memory ActionQueue.
func (d *DurableLog) Complete(ctx context.Context, queueName string) error {
	key := d.prefix + queueName
	if err := d.client.LPop(ctx, key).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Pending returns every job still recorded for queueName, in FIFO order,
// for recovery after a restart.
func (d *DurableLog) Pending(ctx context.Context, queueName string) ([]Job, error) {
	key := d.prefix + queueName
	raw, err := d.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	jobs := make([]Job, 0, len(raw))
	for _, item := range raw {
		var job Job
		if err := json.Unmarshal([]byte(item), &job); err != nil {
			return nil, fmt.Errorf("unmarshal job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
