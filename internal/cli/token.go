package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/podushkina/meetscribe/internal/api"
)

func NewTokenCmd(deps *Dependencies) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token for the current user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.Config.JWTSecret == "" {
				return errors.New("MEETSCRIBE_JWT_SECRET is not set")
			}
			tok, err := api.IssueToken([]byte(deps.Config.JWTSecret), deps.Config.User, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
