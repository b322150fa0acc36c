package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newWhitelistCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage packages exempted from scanning",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <package>",
			Short: "Exempt a package and reconcile the threat list",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withApp(cmd, func(ctx context.Context, a *app) error {
					report, err := a.coordinator.AddToWhitelist(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Whitelisted %s (%d threat(s) remaining)\n", args[0], len(report.Threats))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "remove <package>",
			Short: "Lift an exemption and reconcile the threat list",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withApp(cmd, func(ctx context.Context, a *app) error {
					report, err := a.coordinator.RemoveFromWhitelist(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from whitelist (%d threat(s))\n", args[0], len(report.Threats))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List whitelisted packages",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withApp(cmd, func(ctx context.Context, a *app) error {
					apps, err := a.coordinator.Whitelist(ctx)
					if err != nil {
						return err
					}
					for _, entry := range apps {
						fmt.Fprintln(cmd.OutOrStdout(), entry.PackageName)
					}
					return nil
				})
			},
		},
	)

	return cmd
}
