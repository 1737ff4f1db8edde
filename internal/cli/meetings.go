package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/podushkina/meetscribe/internal/output"
)

func NewMeetingsCmd(deps *Dependencies) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "meetings",
		Short: "List saved meetings",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())
			a, err := deps.App(cmd.Context())
			if err != nil {
				return err
			}

			meetings, err := a.Meetings.ListByOwner(cmd.Context(), deps.Config.User, limit)
			if err != nil {
				return err
			}
			if len(meetings) == 0 {
				f.Info("No meetings found")
				return nil
			}

			f.MeetingListHeader()
			for _, m := range meetings {
				f.MeetingListItem(m)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of meetings to list")
	cmd.AddCommand(newMeetingShowCmd(deps))
	return cmd
}

func newMeetingShowCmd(deps *Dependencies) *cobra.Command {
	var transcript bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a meeting's summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := deps.App(cmd.Context())
			if err != nil {
				return err
			}

			m, err := a.Meetings.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if m == nil || m.OwnerID != deps.Config.User {
				return fmt.Errorf("meeting %s not found", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n\n", m.Title)
			fmt.Fprintf(out, "%s, %s, %d min billed\n\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.FileName, m.BilledMinutes())
			if m.Notes != "" {
				fmt.Fprintf(out, "## Notes\n\n%s\n\n", m.Notes)
			}
			fmt.Fprintf(out, "## Summary\n\n%s\n", m.Summary)
			if transcript {
				fmt.Fprintf(out, "\n## Transcript\n\n%s\n", m.Transcript)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&transcript, "transcript", "t", false, "include the full transcript")
	return cmd
}
