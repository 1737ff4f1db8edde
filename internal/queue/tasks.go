package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/podushkina/meetscribe/internal/task"
	"github.com/redis/go-redis/v9"
)

func ownerKey(ownerID string) string {
	return keyPrefix + "owner:" + ownerID + ":tasks"
}

func (q *Queue) Create(ctx context.Context, t *task.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := q.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, taskPrefix+t.ID, data, recordTTL)
	pipe.ZAdd(ctx, ownerKey(t.OwnerID), redis.Z{Score: float64(t.CreatedAt.UnixNano()), Member: t.ID})
	pipe.Publish(ctx, eventsKey(t.OwnerID), t.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	return nil
}

func (q *Queue) Get(ctx context.Context, id string) (*task.Task, error) {
	data, err := q.client.Get(ctx, taskPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}

	var t task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}

	return &t, nil
}

// Update merges p into the stored task. There is no compare-and-set: the
// last writer wins, which is fine while only the owning run writes a task.
func (q *Queue) Update(ctx context.Context, id string, p task.Patch) (*task.Task, error) {
	t, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}

	if err := t.Apply(p, q.now()); err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}

	if err := q.replace(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// replace overwrites an existing record only, so an update racing a
// delete never brings the task back without its owner index entry.
func (q *Queue) replace(ctx context.Context, t *task.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	ok, err := q.client.SetXX(ctx, taskPrefix+t.ID, data, recordTTL).Result()
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	if err := q.client.Publish(ctx, eventsKey(t.OwnerID), t.ID).Err(); err != nil {
		return fmt.Errorf("publish task update: %w", err)
	}
	return nil
}

// Delete is idempotent: deleting a missing task is not an error.
func (q *Queue) Delete(ctx context.Context, id string) error {
	t, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}

	pipe := q.client.Pipeline()
	pipe.Del(ctx, taskPrefix+id)
	pipe.ZRem(ctx, ownerKey(t.OwnerID), id)
	pipe.Publish(ctx, eventsKey(t.OwnerID), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's tasks, most recently created first.
func (q *Queue) ListByOwner(ctx context.Context, ownerID string) ([]*task.Task, error) {
	ids, err := q.client.ZRevRange(ctx, ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	if len(ids) == 0 {
		return []*task.Task{}, nil
	}

	pipe := q.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, taskPrefix+id)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}

	tasks := make([]*task.Task, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			stale = append(stale, ids[i])
			continue
		}

		var t task.Task
		if err := json.Unmarshal(data, &t); err != nil {
			continue
		}
		tasks = append(tasks, &t)
	}

	// index entries whose record hit the safety TTL
	if len(stale) > 0 {
		if err := q.client.ZRem(ctx, ownerKey(ownerID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("prune task index: %w", err)
		}
	}

	return tasks, nil
}
