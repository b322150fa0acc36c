package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"secureguard-lab/internal/domain/models"
)

func newThreatsCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON   bool
		minLevel string
	)

	cmd := &cobra.Command{
		Use:   "threats",
		Short: "List persisted threats, most severe first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var floor models.RiskLevel
			if minLevel != "" {
				floor = models.RiskLevel(strings.ToLower(minLevel))
				if !floor.Valid() {
					return fmt.Errorf("invalid --min-level %q", minLevel)
				}
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				threats, err := a.coordinator.Threats(ctx)
				if err != nil {
					return err
				}
				if floor != "" {
					kept := threats[:0]
					for _, t := range threats {
						if !floor.Greater(t.RiskLevel) {
							kept = append(kept, t)
						}
					}
					threats = kept
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), threats)
				}
				return printThreats(cmd.OutOrStdout(), threats)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print threats as JSON")
	cmd.Flags().StringVar(&minLevel, "min-level", "", "Only show threats at or above this level (high, medium, low)")
	return cmd
}
