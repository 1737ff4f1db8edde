package queue

import (
	"context"
	"fmt"
	"log"
)

func eventsKey(ownerID string) string {
	return keyPrefix + "events:" + ownerID
}

// Notify publishes a change signal on the owner's feed without touching
// any task, e.g. when a meeting was created.
func (q *Queue) Notify(ctx context.Context, ownerID string) error {
	if err := q.client.Publish(ctx, eventsKey(ownerID), "").Err(); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// Subscribe delivers a signal whenever something in the owner's task set
// changes. Signals are coalesced: the channel has room for one pending
// signal and receivers are expected to reload everything anyway. The
// channel is closed once ctx is done or the subscription breaks.
func (q *Queue) Subscribe(ctx context.Context, ownerID string) (<-chan struct{}, error) {
	ps := q.client.Subscribe(ctx, eventsKey(ownerID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan struct{}, 1)
	msgs := ps.Channel()

	go func() {
		defer close(out)
		defer ps.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					log.Printf("Task feed for %s closed", ownerID)
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, nil
}
