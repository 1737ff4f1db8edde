package taskstore

import (
	"context"
	"log"
	"time"

	"github.com/podushkina/meetscribe/internal/task"
)

// Changes merges the push feed and the poll ticker into one coalesced
// signal. The push side is best effort: if it cannot be established or
// dies, polling carries on alone. The channel closes when ctx is done.
func (s *Store) Changes(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)

	feed, err := s.backend.Subscribe(ctx, s.owner)
	if err != nil {
		log.Printf("Task feed for %s unavailable, polling only: %v", s.owner, err)
		feed = nil
	}

	go func() {
		defer close(out)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		signal := func() {
			select {
			case out <- struct{}{}:
			default:
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				signal()
			case _, ok := <-feed:
				if !ok {
					log.Printf("Task feed for %s lost, polling only", s.owner)
					feed = nil
					continue
				}
				signal()
			}
		}
	}()

	return out
}

// Sync loads once, then reloads on every change signal and hands each
// snapshot to fn. It returns when ctx is done.
func (s *Store) Sync(ctx context.Context, fn func([]task.Task)) error {
	tasks, err := s.Reload(ctx)
	if err != nil {
		return err
	}
	fn(tasks)

	for range s.Changes(ctx) {
		tasks, err := s.Reload(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("Task sync for %s: %v", s.owner, err)
			continue
		}
		fn(tasks)
	}

	return ctx.Err()
}
