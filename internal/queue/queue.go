// Package queue provides the conversion job queue with priority lanes.
//
// Delivery is at least once. Consumers must tolerate re-delivery of a job
// whose conversion already reached a terminal state.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/docuforge/conversion-engine/internal/storage"
)

// ErrEmpty indicates no job was available within the wait window.
var ErrEmpty = errors.New("queue empty")

// Job is the descriptor carried through the queue. The payload is the
// conversion ID; workers load the row and drive the state machine from it.
type Job struct {
	ConversionID uuid.UUID        `json:"conversion_id"`
	Priority     storage.Priority `json:"priority"`
	EnqueuedAt   time.Time        `json:"enqueued_at"`
}

// Queue defines the job transport interface.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context, wait time.Duration) (*Job, error)
	Close() error
}

// lanes in dequeue preference order.
var lanes = []storage.Priority{storage.PriorityHigh, storage.PriorityDefault, storage.PriorityLow}

func laneKey(prefix string, p storage.Priority) string {
	return fmt.Sprintf("%sjobs:%s", prefix, p)
}

// RedisQueue implements Queue on Redis lists, one list per priority lane.
type RedisQueue struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

// NewRedisQueue creates a Redis-backed queue and verifies connectivity.
func NewRedisQueue(cfg RedisConfig) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ce:"
	}

	return &RedisQueue{client: client, prefix: prefix}, nil
}

// Enqueue pushes a job onto its priority lane.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.Priority == "" {
		job.Priority = storage.PriorityDefault
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, laneKey(q.prefix, job.Priority), data).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// Dequeue blocks up to wait for a job. BRPOP scans keys in argument order, so
// the high lane drains before default, default before low.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	keys := make([]string, len(lanes))
	for i, lane := range lanes {
		keys[i] = laneKey(q.prefix, lane)
	}

	res, err := q.client.BRPop(ctx, wait, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("redis brpop: %w", err)
	}
	// res is [key, payload]
	if len(res) != 2 {
		return nil, fmt.Errorf("redis brpop: unexpected reply length %d", len(res))
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// MemoryQueue implements Queue in process for development and tests.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   map[storage.Priority][]Job
	notify chan struct{}
	closed bool
}

// NewMemoryQueue creates an in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:   make(map[storage.Priority][]Job),
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends a job to its priority lane.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	if job.Priority == "" {
		job.Priority = storage.PriorityDefault
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("queue closed")
	}
	q.jobs[job.Priority] = append(q.jobs[job.Priority], job)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue returns the next job in lane-priority order, blocking up to wait.
func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		if job := q.pop(); job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrEmpty
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, lane := range lanes {
		if jobs := q.jobs[lane]; len(jobs) > 0 {
			job := jobs[0]
			q.jobs[lane] = jobs[1:]
			return &job
		}
	}
	return nil
}

// Len reports the total queued job count across lanes.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, jobs := range q.jobs {
		n += len(jobs)
	}
	return n
}

// Close marks the queue closed. Pending jobs remain drainable.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
