package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/podushkina/meetscribe/internal/meeting"
	"github.com/podushkina/meetscribe/internal/output"
	"github.com/podushkina/meetscribe/internal/pipeline"
	"github.com/podushkina/meetscribe/internal/quota"
)

func NewUploadCmd(deps *Dependencies) *cobra.Command {
	var (
		notes string
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Transcribe and summarize a recording",
		Long:  "Uploads an audio or video recording, checks it against your plan's quota, then transcribes, summarizes and saves it as a meeting.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := output.NewFormatter(cmd.OutOrStdout())

			a, err := deps.App(ctx)
			if err != nil {
				return err
			}

			p := a.Pipeline
			p.OnState = f.Stage
			p.AddListener(func(_ context.Context, m meeting.Meeting) error {
				f.Info(fmt.Sprintf("%d minutes billed to %s", m.BilledMinutes(), m.OwnerID))
				return nil
			})

			path := args[0]
			s, err := p.Run(ctx, pipeline.Upload{
				OwnerID:  deps.Config.User,
				Path:     path,
				FileName: filepath.Base(path),
				Notes:    notes,
			}, func(d quota.Decision) bool {
				f.Decision(d)
				if yes {
					return true
				}
				return confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Continue anyway?")
			})
			if s.Cancelled {
				f.Info("Upload cancelled")
				return nil
			}
			if err != nil {
				return err
			}

			m, err := a.Meetings.GetByID(ctx, s.MeetingID)
			if err != nil {
				return err
			}
			if m != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\n# %s\n\n%s\n", m.Title, m.Summary)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&notes, "notes", "n", "", "notes to guide the summary")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "accept low-quota warnings without asking")

	return cmd
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
