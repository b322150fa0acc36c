package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newScanCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one full scan and persist the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				report, err := a.coordinator.Refresh(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				return printReport(cmd.OutOrStdout(), report)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the scan report as JSON")
	return cmd
}
