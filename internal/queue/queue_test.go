package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/podushkina/meetscribe/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	q, err := New(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}

	return q, mr
}

func TestQueue_PushAndPop(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	ctx := context.Background()

	job := Job{TaskID: "t1", OwnerID: "u1", Kind: task.KindTranscription, ObjectKey: "u1/t1/a.mp3", DurationSec: 90}
	require.NoError(t, q.Push(ctx, job))

	n, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	popped, err := q.Pop(ctx, 1*time.Second)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, job, *popped)

	assert.False(t, mr.Exists(jobPrefix+"t1"))
}

func TestQueue_PopEmpty(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	ctx := context.Background()

	job, err := q.Pop(ctx, 100*time.Millisecond)

	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_CreateGetUpdate(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	ctx := context.Background()

	tsk := &task.Task{OwnerID: "u1", Kind: task.KindTranscription, Status: task.StatusProcessing}
	require.NoError(t, q.Create(ctx, tsk))
	assert.NotEmpty(t, tsk.ID)
	assert.False(t, tsk.CreatedAt.IsZero())

	updated, err := q.Update(ctx, tsk.ID, task.Patch{Progress: task.IntPtr(20), Message: task.StringPtr("Transcribing")})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.ProgressValue())

	got, err := q.Get(ctx, tsk.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Transcribing", got.Message)
	assert.Equal(t, task.StatusProcessing, got.Status)
}

func TestQueue_UpdateRejectsReversal(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	ctx := context.Background()

	tsk := &task.Task{OwnerID: "u1", Kind: task.KindTranscription, Status: task.StatusError}
	require.NoError(t, q.Create(ctx, tsk))

	_, err := q.Update(ctx, tsk.ID, task.Patch{Status: task.StatusPtr(task.StatusProcessing)})
	assert.ErrorIs(t, err, task.ErrInvalidTransition)

	_, err = q.Update(ctx, "missing", task.Patch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueue_UpdateDoesNotRecreateDeletedTask(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	ctx := context.Background()

	tsk := &task.Task{OwnerID: "u1", Kind: task.KindTranscription, Status: task.StatusProcessing}
	require.NoError(t, q.Create(ctx, tsk))

	// Read before the delete, write after it, as a sweep racing a
	// progress update would.
	stale, err := q.Get(ctx, tsk.ID)
	require.NoError(t, err)
	require.NoError(t, q.Delete(ctx, tsk.ID))
	require.NoError(t, stale.Apply(task.Patch{Progress: task.IntPtr(60)}, time.Now()))

	assert.ErrorIs(t, q.replace(ctx, stale), ErrNotFound)
	assert.False(t, mr.Exists(taskPrefix+tsk.ID))
}

func TestQueue_ListByOwner(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		tsk := &task.Task{ID: id, OwnerID: "u1", Status: task.StatusProcessing, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, q.Create(ctx, tsk))
	}
	require.NoError(t, q.Create(ctx, &task.Task{ID: "other", OwnerID: "u2", Status: task.StatusProcessing}))

	tasks, err := q.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "c", tasks[0].ID)
	assert.Equal(t, "b", tasks[1].ID)
	assert.Equal(t, "a", tasks[2].ID)
}

func TestQueue_ListByOwnerPrunesExpiredRecords(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, q.Create(ctx, &task.Task{ID: "a", OwnerID: "u1", Status: task.StatusProcessing}))
	mr.Del(taskPrefix + "a")

	tasks, err := q.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, tasks)

	members, err := mr.ZMembers(ownerKey("u1"))
	if err == nil {
		assert.Empty(t, members)
	}
}

func TestQueue_Delete(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	ctx := context.Background()

	tsk := &task.Task{OwnerID: "u1", Status: task.StatusCompleted}
	require.NoError(t, q.Create(ctx, tsk))

	require.NoError(t, q.Delete(ctx, tsk.ID))
	require.NoError(t, q.Delete(ctx, tsk.ID))

	found, err := q.Get(ctx, tsk.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	tasks, err := q.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestQueue_SubscribeSignalsOnChange(t *testing.T) {
	q, mr := setupTestQueue(t)
	defer mr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := q.Subscribe(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, q.Create(ctx, &task.Task{OwnerID: "u1", Status: task.StatusProcessing}))

	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("expected change signal after create")
	}

	require.NoError(t, q.Notify(ctx, "u1"))
	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("expected change signal after notify")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			// a buffered signal may still be drained before close
			_, ok = <-events
		}
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("expected feed to close after cancel")
	}
}
