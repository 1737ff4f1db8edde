package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/podushkina/meetscribe/internal/task"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "meetscribe:"
	pendingKey = keyPrefix + "pending"
	taskPrefix = keyPrefix + "task:"
	jobPrefix  = keyPrefix + "job:"

	recordTTL = 24 * time.Hour
)

var ErrNotFound = errors.New("task not found")

// Job is what a worker needs to process a started task.
type Job struct {
	TaskID      string    `json:"task_id"`
	OwnerID     string    `json:"owner_id"`
	Kind        task.Kind `json:"kind"`
	ObjectKey   string    `json:"object_key"`
	FileName    string    `json:"file_name"`
	Notes       string    `json:"notes,omitempty"`
	DurationSec int       `json:"duration_sec"`
}

type Queue struct {
	client *redis.Client
	now    func() time.Time
}

func New(addr, password string, db int) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Queue{client: client, now: time.Now}, nil
}

// SetClock overrides the time source used for task timestamps.
func (q *Queue) SetClock(now func() time.Time) {
	q.now = now
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Push(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, jobPrefix+job.TaskID, data, recordTTL)
	pipe.RPush(ctx, pendingKey, job.TaskID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push job: %w", err)
	}

	return nil
}

// Pop blocks up to timeout for the next job. A nil job with a nil error
// means nothing was pending.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, pendingKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("pop job: %w", err)
	}

	taskID := result[1]
	data, err := q.client.Get(ctx, jobPrefix+taskID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}

	if err := q.client.Del(ctx, jobPrefix+taskID).Err(); err != nil {
		return nil, fmt.Errorf("delete job: %w", err)
	}

	return &job, nil
}

func (q *Queue) Pending(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, pendingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("pending jobs: %w", err)
	}
	return n, nil
}
