package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/podushkina/meetscribe/internal/app"
	"github.com/podushkina/meetscribe/internal/config"
	"github.com/podushkina/meetscribe/internal/version"
)

// Dependencies is shared by every command. The App is opened on first use
// so commands like doctor work without Redis or the database.
type Dependencies struct {
	Config *config.Config

	once sync.Once
	app  *app.App
	err  error
}

func (d *Dependencies) App(ctx context.Context) (*app.App, error) {
	d.once.Do(func() {
		d.app, d.err = app.New(ctx, d.Config, "meetscribe-cli")
		if d.err != nil {
			d.err = fmt.Errorf("initializing app: %w", d.err)
		}
	})
	return d.app, d.err
}

func (d *Dependencies) Close(ctx context.Context) error {
	if d.app == nil {
		return nil
	}
	return d.app.Close(ctx)
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "meetscribe",
		Short:         "Transcribe and summarize meeting recordings",
		Long:          "Upload meeting recordings, transcribe them with Whisper and keep a summarized, searchable record within your plan's minute quota.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")
	rootCmd.PersistentFlags().StringVarP(&deps.Config.User, "user", "u", deps.Config.User, "owner id to act as")

	rootCmd.AddCommand(NewUploadCmd(deps))
	rootCmd.AddCommand(NewTasksCmd(deps))
	rootCmd.AddCommand(NewWatchCmd(deps))
	rootCmd.AddCommand(NewMeetingsCmd(deps))
	rootCmd.AddCommand(NewPlanCmd(deps))
	rootCmd.AddCommand(NewTokenCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}
