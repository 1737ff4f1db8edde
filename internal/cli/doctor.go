package cli

import (
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/podushkina/meetscribe/internal/output"
	"github.com/podushkina/meetscribe/internal/queue"
	"github.com/podushkina/meetscribe/internal/storage"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config
			f := output.NewFormatter(cmd.OutOrStdout())
			ok := true

			for _, bin := range []string{"ffprobe", "ffmpeg"} {
				if _, err := exec.LookPath(bin); err != nil {
					f.SetupCheck(bin, false, "not found; durations fall back to a file size estimate")
				} else {
					f.SetupCheck(bin, true, "installed")
				}
			}

			if cfg.OpenAIAPIKey != "" {
				f.SetupCheck("OpenAI API key", true, "configured")
			} else {
				f.SetupCheck("OpenAI API key", false, "not set. Set OPENAI_API_KEY or add openai_api_key to config.toml")
				ok = false
			}

			if q, err := queue.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB); err != nil {
				f.SetupCheck("Redis", false, err.Error())
				ok = false
			} else {
				_ = q.Close()
				f.SetupCheck("Redis", true, cfg.RedisAddr)
			}

			if db, err := storage.Open(cfg.DatabasePath); err != nil {
				f.SetupCheck("Database", false, err.Error())
				ok = false
			} else {
				_ = db.Close()
				f.SetupCheck("Database", true, cfg.DatabasePath)
			}

			f.SetupCheck("User", true, cfg.User)

			if ok {
				f.Success("\nAll prerequisites met. Ready to upload!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}
