package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/podushkina/meetscribe/internal/output"
)

func NewPlanCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show or change the subscription plan",
	}
	cmd.AddCommand(newPlanShowCmd(deps))
	cmd.AddCommand(newPlanSetCmd(deps))
	cmd.AddCommand(newPlanResetCmd(deps))
	return cmd
}

func newPlanShowCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current plan and minute usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := deps.App(cmd.Context())
			if err != nil {
				return err
			}

			sub, err := a.Guard.Subscription(cmd.Context(), deps.Config.User)
			if err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).Quota(sub, a.Catalog.Metered(sub.Plan))
			return nil
		},
	}
}

func newPlanSetCmd(deps *Dependencies) *cobra.Command {
	var quotaMinutes int

	cmd := &cobra.Command{
		Use:   "set <plan>",
		Short: "Switch plan, keeping minutes already used",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())
			a, err := deps.App(cmd.Context())
			if err != nil {
				return err
			}

			plan, ok := a.Catalog.Plan(args[0])
			if !ok {
				return fmt.Errorf("unknown plan %q", args[0])
			}
			if !cmd.Flags().Changed("quota") {
				quotaMinutes = plan.QuotaMinutes
			}
			if plan.Metered && quotaMinutes <= 0 {
				return fmt.Errorf("plan %s is metered and needs a positive quota", plan.Name)
			}

			if err := a.Subscriptions.Upsert(cmd.Context(), deps.Config.User, plan.Name, quotaMinutes); err != nil {
				return err
			}
			f.Success(fmt.Sprintf("Plan set to %s", plan.Name))
			return nil
		},
	}

	cmd.Flags().IntVar(&quotaMinutes, "quota", 0, "override the plan's minute quota")
	return cmd
}

func newPlanResetCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Start a new billing period with zero minutes used",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := deps.App(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Subscriptions.ResetUsage(cmd.Context(), deps.Config.User); err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).Success("Usage reset")
			return nil
		},
	}
}
