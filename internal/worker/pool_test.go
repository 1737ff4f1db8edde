package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podushkina/meetscribe/internal/queue"
	"github.com/podushkina/meetscribe/internal/task"
)

func setupTest(t *testing.T) (*Pool, *queue.Queue, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	q, err := queue.New(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}

	pool := NewPool(q, 1)
	return pool, q, mr
}

func startedTask(t *testing.T, q *queue.Queue, kind task.Kind) *queue.Job {
	t.Helper()
	ctx := context.Background()
	progress := 10
	tsk := &task.Task{OwnerID: "u1", Kind: kind, Status: task.StatusProcessing, Progress: &progress}
	require.NoError(t, q.Create(ctx, tsk))

	job := queue.Job{TaskID: tsk.ID, OwnerID: "u1", Kind: kind, ObjectKey: "uploads/u1/x.mp3", FileName: "x.mp3"}
	require.NoError(t, q.Push(ctx, job))
	return &job
}

func waitForStatus(t *testing.T, q *queue.Queue, id string, want task.Status) *task.Task {
	t.Helper()
	var got *task.Task
	require.Eventually(t, func() bool {
		tsk, err := q.Get(context.Background(), id)
		if err != nil || tsk == nil {
			return false
		}
		got = tsk
		return tsk.Status == want
	}, 3*time.Second, 20*time.Millisecond)
	return got
}

func TestPool_ProcessSuccess(t *testing.T) {
	pool, q, mr := setupTest(t)
	defer mr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan queue.Job, 1)
	pool.Register(task.KindTranscription, func(ctx context.Context, job *queue.Job) error {
		handled <- *job
		_, err := q.Update(ctx, job.TaskID, task.Patch{
			Status:   task.StatusPtr(task.StatusCompleted),
			ResultID: task.StringPtr("m-1"),
		})
		return err
	})

	job := startedTask(t, q, task.KindTranscription)
	pool.Start(ctx)

	select {
	case got := <-handled:
		assert.Equal(t, job.ObjectKey, got.ObjectKey)
	case <-time.After(3 * time.Second):
		t.Fatal("handler was not called")
	}

	updated := waitForStatus(t, q, job.TaskID, task.StatusCompleted)
	assert.Equal(t, "m-1", updated.ResultID)
}

func TestPool_HandlerErrorMarksTaskFailed(t *testing.T) {
	pool, q, mr := setupTest(t)
	defer mr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Register(task.KindTranscription, func(ctx context.Context, job *queue.Job) error {
		return errors.New("staged audio missing")
	})

	job := startedTask(t, q, task.KindTranscription)
	pool.Start(ctx)

	updated := waitForStatus(t, q, job.TaskID, task.StatusError)
	assert.Equal(t, "staged audio missing", updated.Error)
}

func TestPool_UnknownKind(t *testing.T) {
	pool, q, mr := setupTest(t)
	defer mr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := startedTask(t, q, task.Kind("translation"))
	pool.Start(ctx)

	updated := waitForStatus(t, q, job.TaskID, task.StatusError)
	assert.Contains(t, updated.Error, "unknown task kind")
}

func TestPool_StopAfterCancel(t *testing.T) {
	pool, _, mr := setupTest(t)
	defer mr.Close()
	ctx, cancel := context.WithCancel(context.Background())

	pool.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop")
	}
}
