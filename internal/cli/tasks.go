package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/podushkina/meetscribe/internal/output"
	"github.com/podushkina/meetscribe/internal/task"
	"github.com/podushkina/meetscribe/internal/taskstore"
)

func NewTasksCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List background tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())
			a, err := deps.App(cmd.Context())
			if err != nil {
				return err
			}

			tasks, err := a.Tasks(deps.Config.User).Reload(cmd.Context())
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				f.Info("No tasks")
				return nil
			}

			f.TaskListHeader()
			now := time.Now()
			for _, t := range tasks {
				f.TaskListItem(t, now)
			}
			return nil
		},
	}

	cmd.AddCommand(newTasksClearCmd(deps))
	cmd.AddCommand(newTasksRemoveCmd(deps))
	return cmd
}

func newTasksClearCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove finished tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())
			a, err := deps.App(cmd.Context())
			if err != nil {
				return err
			}

			n, err := a.Tasks(deps.Config.User).ClearCompleted(cmd.Context())
			if err != nil {
				return err
			}
			f.Success(fmt.Sprintf("Removed %d finished task(s)", n))
			return nil
		},
	}
}

func newTasksRemoveCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove one task; a unique id prefix is enough",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())
			a, err := deps.App(cmd.Context())
			if err != nil {
				return err
			}

			store := a.Tasks(deps.Config.User)
			t, err := resolveTask(cmd, store, args[0])
			if err != nil {
				return err
			}
			if t.Status == task.StatusProcessing {
				f.Warning("Task is still processing; its run keeps going but will no longer be shown")
			}
			if err := store.Remove(cmd.Context(), t.ID); err != nil {
				return err
			}
			f.Success("Removed task " + t.ID)
			return nil
		},
	}
}

func resolveTask(cmd *cobra.Command, store *taskstore.Store, ref string) (task.Task, error) {
	tasks, err := store.Reload(cmd.Context())
	if err != nil {
		return task.Task{}, err
	}

	var matches []task.Task
	for _, t := range tasks {
		if t.ID == ref {
			return t, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return task.Task{}, fmt.Errorf("no task %q", ref)
	case 1:
		return matches[0], nil
	default:
		fmt.Fprintf(os.Stderr, "%d tasks match %q\n", len(matches), ref)
		return task.Task{}, fmt.Errorf("task id %q is ambiguous", ref)
	}
}
