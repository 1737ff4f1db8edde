package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/podushkina/meetscribe/internal/observability"
	"github.com/podushkina/meetscribe/internal/queue"
	"github.com/podushkina/meetscribe/internal/task"
)

const popTimeout = 2 * time.Second

// Handler runs one job. It owns the task's progress and final status;
// the pool only marks the task failed when the handler returns an error.
type Handler func(ctx context.Context, job *queue.Job) error

type Pool struct {
	queue    *queue.Queue
	handlers map[task.Kind]Handler
	count    int
	wg       sync.WaitGroup
	mu       sync.RWMutex
}

func NewPool(q *queue.Queue, count int) *Pool {
	if count < 1 {
		count = 1
	}
	return &Pool{
		queue:    q,
		handlers: make(map[task.Kind]Handler),
		count:    count,
	}
}

func (p *Pool) Register(kind task.Kind, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = handler
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	log.Printf("Started %d workers", p.count)
}

// Stop waits for in-flight jobs after the Start context is cancelled.
func (p *Pool) Stop() {
	p.wg.Wait()
	log.Println("All workers stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log.Printf("Worker %d started", id)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		default:
			job, err := p.queue.Pop(ctx, popTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Worker %d: pop error: %v", id, err)
				continue
			}

			if job == nil {
				continue
			}

			p.process(ctx, id, job)
		}
	}
}

func (p *Pool) process(ctx context.Context, workerID int, job *queue.Job) {
	log.Printf("Worker %d processing task %s (kind: %s)", workerID, job.TaskID, job.Kind)

	p.mu.RLock()
	handler, ok := p.handlers[job.Kind]
	p.mu.RUnlock()

	if !ok {
		p.fail(ctx, workerID, job, fmt.Errorf("unknown task kind: %s", job.Kind))
		return
	}

	if err := handler(ctx, job); err != nil {
		p.fail(ctx, workerID, job, err)
		return
	}

	observability.Default.IncCounter("jobs_processed_total", map[string]string{"kind": string(job.Kind), "result": "ok"}, 1)
	log.Printf("Worker %d: task %s done", workerID, job.TaskID)
}

func (p *Pool) fail(ctx context.Context, workerID int, job *queue.Job, err error) {
	log.Printf("Worker %d: task %s failed: %v", workerID, job.TaskID, err)
	observability.Default.IncCounter("jobs_processed_total", map[string]string{"kind": string(job.Kind), "result": "error"}, 1)

	_, uerr := p.queue.Update(context.WithoutCancel(ctx), job.TaskID, task.Patch{
		Status:  task.StatusPtr(task.StatusError),
		Message: task.StringPtr("Processing failed"),
		Error:   task.StringPtr(err.Error()),
	})
	if uerr != nil {
		log.Printf("Worker %d: update task %s error: %v", workerID, job.TaskID, uerr)
	}
}
