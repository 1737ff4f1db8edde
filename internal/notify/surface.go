// Package notify turns task snapshots into the cards a user sees: the one
// active upload plus finished and failed uploads that fade out on a timer.
package notify

import (
	"sync"
	"time"

	"github.com/podushkina/meetscribe/internal/task"
)

const (
	CompletedTTL = 5 * time.Second
	ErrorTTL     = 10 * time.Second
)

type CardKind string

const (
	CardActive    CardKind = "active"
	CardCompleted CardKind = "completed"
	CardError     CardKind = "error"
)

type Card struct {
	Kind     CardKind
	TaskID   string
	Message  string
	Progress int
	Error    string
	ResultID string
}

type Surface struct {
	now func() time.Time

	mu        sync.Mutex
	tasks     []task.Task
	finished  map[string]time.Time
	dismissed map[string]bool
}

func NewSurface() *Surface {
	return NewSurfaceWithClock(time.Now)
}

func NewSurfaceWithClock(now func() time.Time) *Surface {
	return &Surface{
		now:       now,
		finished:  make(map[string]time.Time),
		dismissed: make(map[string]bool),
	}
}

// Observe takes a new snapshot, most recent first.
func (s *Surface) Observe(tasks []task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		seen[t.ID] = true
		if t.Status.Terminal() {
			if _, ok := s.finished[t.ID]; !ok {
				s.finished[t.ID] = now
			}
		}
	}
	for id := range s.finished {
		if !seen[id] {
			delete(s.finished, id)
		}
	}
	for id := range s.dismissed {
		if !seen[id] {
			delete(s.dismissed, id)
		}
	}
	s.tasks = append(s.tasks[:0], tasks...)
}

// Dismiss hides a card before its timer runs out.
func (s *Surface) Dismiss(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissed[taskID] = true
}

// Cards returns what is visible now: the active card first, then
// finished cards whose timer has not run out.
func (s *Surface) Cards() []Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []Card
	activeShown := false
	for _, t := range s.tasks {
		if s.dismissed[t.ID] {
			continue
		}
		switch t.Status {
		case task.StatusProcessing:
			if activeShown {
				continue
			}
			activeShown = true
			out = append([]Card{cardFor(CardActive, t)}, out...)
		case task.StatusCompleted:
			if now.Sub(s.finished[t.ID]) < CompletedTTL {
				out = append(out, cardFor(CardCompleted, t))
			}
		case task.StatusError:
			if now.Sub(s.finished[t.ID]) < ErrorTTL {
				out = append(out, cardFor(CardError, t))
			}
		}
	}
	return out
}

func cardFor(kind CardKind, t task.Task) Card {
	return Card{
		Kind:     kind,
		TaskID:   t.ID,
		Message:  t.Message,
		Progress: t.ProgressValue(),
		Error:    t.Error,
		ResultID: t.ResultID,
	}
}
