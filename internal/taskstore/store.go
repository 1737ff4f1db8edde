// Package taskstore is the per-user view over persisted background tasks.
//
// A Store keeps an in-memory snapshot of one owner's tasks, ordered most
// recent first. Every reload runs the retention sweep, which deletes
// expired tasks from the backing store and hides them from the snapshot.
// Sync keeps the snapshot fresh from two independent sources, the push
// feed and a poll ticker; both only trigger the same full reload.
package taskstore

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/podushkina/meetscribe/internal/observability"
	"github.com/podushkina/meetscribe/internal/task"
)

const DefaultPollInterval = 5 * time.Second

type Backend interface {
	Create(ctx context.Context, t *task.Task) error
	Update(ctx context.Context, id string, p task.Patch) (*task.Task, error)
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string) ([]*task.Task, error)
	Subscribe(ctx context.Context, ownerID string) (<-chan struct{}, error)
}

type Store struct {
	backend      Backend
	owner        string
	pollInterval time.Duration
	now          func() time.Time

	mu    sync.RWMutex
	tasks []task.Task
}

type Option func(*Store)

func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(backend Backend, ownerID string, opts ...Option) *Store {
	s := &Store{
		backend:      backend,
		owner:        ownerID,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Owner() string { return s.owner }

// Create persists t as a new processing task of the store's owner and
// returns its id.
func (s *Store) Create(ctx context.Context, t task.Task) (string, error) {
	t.OwnerID = s.owner
	if t.Kind == "" {
		t.Kind = task.KindTranscription
	}
	if t.Status == "" {
		t.Status = task.StatusProcessing
	}

	if err := s.backend.Create(ctx, &t); err != nil {
		return "", err
	}
	s.reloadQuietly(ctx)
	return t.ID, nil
}

func (s *Store) Update(ctx context.Context, id string, p task.Patch) error {
	if _, err := s.backend.Update(ctx, id, p); err != nil {
		return err
	}
	s.reloadQuietly(ctx)
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, id); err != nil {
		return err
	}
	s.reloadQuietly(ctx)
	return nil
}

// ClearCompleted removes every finished task, whatever its outcome.
func (s *Store) ClearCompleted(ctx context.Context) (int, error) {
	tasks, err := s.Reload(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, t := range tasks {
		if !t.Status.Terminal() {
			continue
		}
		if err := s.backend.Delete(ctx, t.ID); err != nil {
			return removed, fmt.Errorf("clear task %s: %w", t.ID, err)
		}
		removed++
	}

	s.reloadQuietly(ctx)
	return removed, nil
}

// List returns the last loaded snapshot, most recent first. Entries that
// expired since the last load are hidden already.
func (s *Store) List() []task.Task {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.Expired(now) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Get looks a task up in the current snapshot.
func (s *Store) Get(id string) (task.Task, bool) {
	for _, t := range s.List() {
		if t.ID == id {
			return t, true
		}
	}
	return task.Task{}, false
}

// Active returns the most recent processing task, the only one that is
// surfaced prominently.
func (s *Store) Active() (task.Task, bool) {
	for _, t := range s.List() {
		if t.Status == task.StatusProcessing {
			return t, true
		}
	}
	return task.Task{}, false
}

// Reload fetches the owner's tasks, sweeps expired ones from the backing
// store and replaces the snapshot.
func (s *Store) Reload(ctx context.Context) ([]task.Task, error) {
	loaded, err := s.backend.ListByOwner(ctx, s.owner)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	now := s.now()
	kept := make([]task.Task, 0, len(loaded))
	swept := 0
	for _, t := range loaded {
		if t.Expired(now) {
			if err := s.backend.Delete(ctx, t.ID); err != nil {
				log.Printf("Task sweep: delete %s failed: %v", t.ID, err)
			} else {
				swept++
			}
			continue
		}
		kept = append(kept, *t)
	}

	if swept > 0 {
		observability.Default.IncCounter("tasks_swept_total", nil, float64(swept))
	}

	s.mu.Lock()
	s.tasks = kept
	s.mu.Unlock()

	return s.List(), nil
}

func (s *Store) reloadQuietly(ctx context.Context) {
	if _, err := s.Reload(ctx); err != nil {
		log.Printf("Task store reload for %s failed: %v", s.owner, err)
	}
}
