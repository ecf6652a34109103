// Package queue carries radix arithmetic jobs between clients and workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Common errors.
var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrJobNotFound = errors.New("job not found")
)

// JobStatus represents the state of a job.
type JobStatus uint8

const (
	StatusPending JobStatus = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
)

func (s JobStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("JobStatus(%d)", uint8(s))
}

// Op is the arithmetic a job requests.
type Op uint8

const (
	OpAdd Op = iota // Operands[0] + Operands[1]
	OpSub           // Operands[0] - Operands[1]
	OpSum           // sum of all operands
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpSum:
		return "sum"
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// ParseOp returns the Op named s.
func ParseOp(s string) (Op, error) {
	for _, o := range []Op{OpAdd, OpSub, OpSum} {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// Arity returns the operand count o requires, or -1 for any positive count.
func (o Op) Arity() int {
	switch o {
	case OpAdd, OpSub:
		return 2
	case OpSum:
		return -1
	}
	return 0
}

// Job is a request to evaluate Operation over stored radix ciphertexts.
type Job struct {
	ID           string    `json:"id"`
	Operation    Op        `json:"operation"`
	Operands     []string  `json:"operands"`
	ResultHandle string    `json:"result_handle,omitempty"`
	Status       JobStatus `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks the operand count against the operation.
func (j *Job) Validate() error {
	switch n := j.Operation.Arity(); {
	case n == 0:
		return fmt.Errorf("unknown operation %s", j.Operation)
	case n > 0 && len(j.Operands) != n:
		return fmt.Errorf("%s takes %d operands, got %d", j.Operation, n, len(j.Operands))
	case n < 0 && len(j.Operands) == 0:
		return fmt.Errorf("%s needs at least one operand", j.Operation)
	}
	return nil
}

// Queue moves jobs from producers to workers.
type Queue interface {
	Push(ctx context.Context, job *Job) error
	// Pop blocks for the next job. It returns ErrQueueEmpty when the
	// queue's poll interval elapses without one.
	Pop(ctx context.Context) (*Job, error)
	Update(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Close() error
}

// RedisQueue implements Queue with a Redis list of job IDs and one key per
// job record.
type RedisQueue struct {
	client    *redis.Client
	queueKey  string
	jobPrefix string
	poll      time.Duration
	ttl       time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisQueue connects to Redis and checks the connection.
func NewRedisQueue(cfg RedisConfig, queueName string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisQueueFromClient(client, queueName), nil
}

// NewRedisQueueFromClient wraps an existing client.
func NewRedisQueueFromClient(client *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{
		client:    client,
		queueKey:  "fhe:queue:" + queueName,
		jobPrefix: "fhe:job:",
		poll:      time.Second,
		ttl:       24 * time.Hour,
	}
}

// SetPollInterval bounds how long Pop blocks before returning ErrQueueEmpty.
func (q *RedisQueue) SetPollInterval(d time.Duration) { q.poll = d }

func (q *RedisQueue) Push(ctx context.Context, job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	job.Status = StatusPending

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.jobPrefix+job.ID, data, q.ttl)
	pipe.LPush(ctx, q.queueKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (*Job, error) {
	res, err := q.client.BRPop(ctx, q.poll, q.queueKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrQueueEmpty
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("pop job: %w", err)
	case len(res) < 2:
		return nil, ErrQueueEmpty
	}
	return q.Get(ctx, res[1])
}

func (q *RedisQueue) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.Set(ctx, q.jobPrefix+job.ID, data, q.ttl).Err(); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Get(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, q.jobPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// Len returns the number of pending job IDs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueKey).Result()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
