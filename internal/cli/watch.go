package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/podushkina/meetscribe/internal/notify"
	"github.com/podushkina/meetscribe/internal/output"
	"github.com/podushkina/meetscribe/internal/task"
)

func NewWatchCmd(deps *Dependencies) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow task progress until interrupted",
		Long:  "Shows the active task and recently finished ones. Type a task id prefix and press enter to dismiss its card; an empty line dismisses every finished card.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := deps.App(ctx)
			if err != nil {
				return err
			}

			store := a.Tasks(deps.Config.User)
			w := &watcher{out: cmd.OutOrStdout(), surface: notify.NewSurface()}
			go w.tick(ctx, interval)
			go w.readDismissals(ctx, cmd.InOrStdin(), func(id string) error {
				return store.Remove(ctx, id)
			})

			err = store.Sync(ctx, w.observe)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "refresh", time.Second, "how often expired cards are cleared from the screen")
	return cmd
}

// watcher redraws the notification cards on every snapshot and on a
// ticker, so completed and error cards disappear after their TTL.
type watcher struct {
	mu      sync.Mutex
	out     io.Writer
	surface *notify.Surface
	last    string
}

func (w *watcher) observe(tasks []task.Task) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.surface.Observe(tasks)
	w.render()
}

func (w *watcher) tick(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			w.render()
			w.mu.Unlock()
		}
	}
}

// readDismissals dismisses finished cards named on each input line and
// removes their tasks.
func (w *watcher) readDismissals(ctx context.Context, in io.Reader, remove func(id string) error) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		for _, id := range w.dismiss(strings.TrimSpace(scanner.Text())) {
			if err := remove(id); err != nil {
				log.Printf("watch: remove task %s: %v", id, err)
			}
		}
	}
}

func (w *watcher) dismiss(prefix string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ids []string
	for _, c := range w.surface.Cards() {
		if c.Kind == notify.CardActive || !strings.HasPrefix(c.TaskID, prefix) {
			continue
		}
		w.surface.Dismiss(c.TaskID)
		ids = append(ids, c.TaskID)
	}
	if len(ids) > 0 {
		w.render()
	}
	return ids
}

func (w *watcher) render() {
	var buf strings.Builder
	output.NewFormatter(&buf).Cards(w.surface.Cards())
	if buf.String() == w.last {
		return
	}
	w.last = buf.String()
	fmt.Fprintf(w.out, "\n%s", w.last)
}
